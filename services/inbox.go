package services

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"

	"joinmatch/models"
)

const NoMessagesPlaceholder = "No messages yet"

// ConversationPreview - строка списка бесед
type ConversationPreview struct {
	Conversation ConversationView `json:"conversation"`
	Title        string           `json:"title"`
	LastMessage  *MessageView     `json:"last_message,omitempty"`
	Preview      string           `json:"preview"`
	UnreadCount  int64            `json:"unread_count"`
	LastActivity time.Time        `json:"last_activity"`
}

// Inbox собирает список бесед пользователя из бесед, сообщений и отметок о прочтении
type Inbox struct {
	conversations *ConversationManager
	messages      *MessageStore
	reads         *ReadTracker
	directory     *Directory
}

func NewInbox(conversations *ConversationManager, messages *MessageStore, reads *ReadTracker, directory *Directory) *Inbox {
	return &Inbox{conversations: conversations, messages: messages, reads: reads, directory: directory}
}

// Previews - беседы пользователя с последним сообщением и счетчиком непрочитанного, свежие сверху
func (ib *Inbox) Previews(ctx context.Context, userID int64) ([]ConversationPreview, error) {
	convs, err := ib.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	counterparts := lo.FilterMap(convs, func(c ConversationView, _ int) (int64, bool) {
		if c.Type != models.ConversationPrivate {
			return 0, false
		}
		others := lo.Without(c.ParticipantIDs, userID)
		return lo.FirstOr(others, 0), len(others) > 0
	})
	users, err := ib.directory.UsersByID(ctx, counterparts)
	if err != nil {
		return nil, err
	}

	previews := make([]ConversationPreview, 0, len(convs))
	for _, c := range convs {
		p := ConversationPreview{Conversation: c, Preview: NoMessagesPlaceholder, LastActivity: c.CreatedAt}
		p.Title = ib.title(ctx, c, userID, users)

		if p.LastMessage, err = ib.messages.LastMessage(ctx, c.ID); err != nil {
			return nil, err
		}
		if p.LastMessage != nil {
			p.Preview = p.LastMessage.Content
			p.LastActivity = p.LastMessage.CreatedAt
		}
		if p.UnreadCount, err = ib.reads.UnreadCount(ctx, c.ID, userID); err != nil {
			return nil, err
		}
		previews = append(previews, p)
	}

	sort.SliceStable(previews, func(i, j int) bool {
		if previews[i].LastActivity.Equal(previews[j].LastActivity) {
			return previews[i].Conversation.ID > previews[j].Conversation.ID
		}
		return previews[i].LastActivity.After(previews[j].LastActivity)
	})
	return previews, nil
}

func (ib *Inbox) title(ctx context.Context, c ConversationView, userID int64, users map[int64]models.User) string {
	switch c.Type {
	case models.ConversationPrivate:
		for _, id := range c.ParticipantIDs {
			if id != userID {
				return users[id].Name
			}
		}
	case models.ConversationTeam:
		if c.TeamID != nil {
			if team, err := ib.directory.Team(ctx, *c.TeamID); err == nil {
				return team.Name
			}
		}
	case models.ConversationEvent:
		if c.EventID != nil {
			if event, err := ib.directory.Event(ctx, *c.EventID); err == nil {
				return event.Name
			}
		}
	}
	return ""
}

// TotalUnread - непрочитанные сообщения во всех беседах пользователя
func (ib *Inbox) TotalUnread(ctx context.Context, userID int64) (int64, error) {
	return ib.reads.TotalUnread(ctx, userID)
}
