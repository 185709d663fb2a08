package services

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"joinmatch/logs"
	"joinmatch/models"
)

const (
	ContentPost    = "post"
	ContentComment = "comment"
)

// SocialEvents - реакция ядра на события основного CRUD-сервиса:
// вступление и выход из команд и мероприятий, их отмена, комментарии и реакции.
// Каждый метод возвращает число созданных уведомлений
type SocialEvents struct {
	conversations *ConversationManager
	notifier      *NotificationDispatcher
	directory     *Directory
	log           *logrus.Entry
}

func NewSocialEvents(conversations *ConversationManager, notifier *NotificationDispatcher, directory *Directory) *SocialEvents {
	return &SocialEvents{
		conversations: conversations,
		notifier:      notifier,
		directory:     directory,
		log:           logs.For("social_events"),
	}
}

// TeamJoined добавляет участника в беседу команды (если она есть) и уведомляет лидера
func (se *SocialEvents) TeamJoined(ctx context.Context, teamID, userID int64) (int, error) {
	team, err := se.directory.Team(ctx, teamID)
	if err != nil {
		return 0, err
	}
	user, err := se.directory.User(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := se.syncTeamParticipant(ctx, teamID, userID, true); err != nil {
		return 0, err
	}
	return se.notifyOne(ctx, team.LeaderID, userID, models.NotifyTeamJoin,
		"New team member", fmt.Sprintf("%s joined %s", user.Name, team.Name),
		map[string]interface{}{"team_id": teamID, "user_id": userID},
	)
}

// TeamLeft убирает участника из беседы команды и уведомляет лидера
func (se *SocialEvents) TeamLeft(ctx context.Context, teamID, userID int64) (int, error) {
	team, err := se.directory.Team(ctx, teamID)
	if err != nil {
		return 0, err
	}
	user, err := se.directory.User(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := se.syncTeamParticipant(ctx, teamID, userID, false); err != nil {
		return 0, err
	}
	return se.notifyOne(ctx, team.LeaderID, userID, models.NotifyTeamLeave,
		"Member left the team", fmt.Sprintf("%s left %s", user.Name, team.Name),
		map[string]interface{}{"team_id": teamID, "user_id": userID},
	)
}

// EventJoined добавляет участника в беседу мероприятия и уведомляет организатора
func (se *SocialEvents) EventJoined(ctx context.Context, eventID, userID int64) (int, error) {
	event, err := se.directory.Event(ctx, eventID)
	if err != nil {
		return 0, err
	}
	user, err := se.directory.User(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := se.syncEventParticipant(ctx, eventID, userID, true); err != nil {
		return 0, err
	}
	return se.notifyOne(ctx, event.OrganizerID, userID, models.NotifyEventJoin,
		"New participant", fmt.Sprintf("%s registered for %s", user.Name, event.Name),
		map[string]interface{}{"event_id": eventID, "user_id": userID},
	)
}

// EventLeft убирает участника из беседы мероприятия и уведомляет организатора
func (se *SocialEvents) EventLeft(ctx context.Context, eventID, userID int64) (int, error) {
	event, err := se.directory.Event(ctx, eventID)
	if err != nil {
		return 0, err
	}
	user, err := se.directory.User(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := se.syncEventParticipant(ctx, eventID, userID, false); err != nil {
		return 0, err
	}
	return se.notifyOne(ctx, event.OrganizerID, userID, models.NotifyEventLeave,
		"Participant left", fmt.Sprintf("%s unregistered from %s", user.Name, event.Name),
		map[string]interface{}{"event_id": eventID, "user_id": userID},
	)
}

// TeamCancelled уведомляет всех участников команды, кроме инициатора
func (se *SocialEvents) TeamCancelled(ctx context.Context, teamID, actorID int64) (int, error) {
	team, err := se.directory.Team(ctx, teamID)
	if err != nil {
		return 0, err
	}
	roster, err := se.directory.TeamRoster(ctx, team)
	if err != nil {
		return 0, err
	}
	return se.notifyMany(ctx, lo.Without(roster, actorID), models.NotifyTeamCancelled,
		"Team cancelled", fmt.Sprintf("%s has been cancelled", team.Name),
		map[string]interface{}{"team_id": teamID, "actor_id": actorID},
	)
}

// EventCancelled уведомляет всех участников мероприятия, кроме инициатора
func (se *SocialEvents) EventCancelled(ctx context.Context, eventID, actorID int64) (int, error) {
	event, err := se.directory.Event(ctx, eventID)
	if err != nil {
		return 0, err
	}
	roster, err := se.directory.EventRoster(ctx, event)
	if err != nil {
		return 0, err
	}
	return se.notifyMany(ctx, lo.Without(roster, actorID), models.NotifyEventCancelled,
		"Event cancelled", fmt.Sprintf("%s has been cancelled", event.Name),
		map[string]interface{}{"event_id": eventID, "actor_id": actorID},
	)
}

// PostCommented уведомляет автора поста; свой комментарий не уведомляет
func (se *SocialEvents) PostCommented(ctx context.Context, postAuthorID, commenterID, postID int64) (int, error) {
	commenter, err := se.directory.User(ctx, commenterID)
	if err != nil {
		return 0, err
	}
	return se.notifyOne(ctx, postAuthorID, commenterID, models.NotifyPostComment,
		"New comment", fmt.Sprintf("%s commented on your post", commenter.Name),
		map[string]interface{}{"post_id": postID, "commenter_id": commenterID},
	)
}

// CommentReplied уведомляет автора родительского комментария; ответ самому себе не уведомляет
func (se *SocialEvents) CommentReplied(ctx context.Context, parentAuthorID, replierID, commentID int64) (int, error) {
	replier, err := se.directory.User(ctx, replierID)
	if err != nil {
		return 0, err
	}
	return se.notifyOne(ctx, parentAuthorID, replierID, models.NotifyCommentReply,
		"New reply", fmt.Sprintf("%s replied to your comment", replier.Name),
		map[string]interface{}{"comment_id": commentID, "replier_id": replierID},
	)
}

// ContentReacted уведомляет автора поста или комментария о реакции; своя реакция не уведомляет
func (se *SocialEvents) ContentReacted(ctx context.Context, authorID, reactorID int64, contentType string, contentID int64, reaction string) (int, error) {
	var notifyType models.NotificationType
	switch contentType {
	case ContentPost:
		notifyType = models.NotifyPostReaction
	case ContentComment:
		notifyType = models.NotifyCommentReaction
	default:
		return 0, fmt.Errorf("%w: unknown content type %q", ErrInvalidOperation, contentType)
	}
	reactor, err := se.directory.User(ctx, reactorID)
	if err != nil {
		return 0, err
	}
	return se.notifyOne(ctx, authorID, reactorID, notifyType,
		"New reaction", fmt.Sprintf("%s reacted %s to your %s", reactor.Name, reaction, contentType),
		map[string]interface{}{"content_type": contentType, "content_id": contentID, "reactor_id": reactorID, "reaction": reaction},
	)
}

func (se *SocialEvents) syncTeamParticipant(ctx context.Context, teamID, userID int64, join bool) error {
	conv, err := se.conversations.FindForTeam(ctx, teamID)
	if err != nil || conv == nil {
		return err
	}
	return se.syncParticipant(ctx, conv.ID, userID, join)
}

func (se *SocialEvents) syncEventParticipant(ctx context.Context, eventID, userID int64, join bool) error {
	conv, err := se.conversations.FindForEvent(ctx, eventID)
	if err != nil || conv == nil {
		return err
	}
	return se.syncParticipant(ctx, conv.ID, userID, join)
}

func (se *SocialEvents) syncParticipant(ctx context.Context, conversationID, userID int64, join bool) error {
	if join {
		return se.conversations.AddParticipant(ctx, conversationID, userID)
	}
	return se.conversations.RemoveParticipant(ctx, conversationID, userID)
}

// notifyOne пропускает уведомление, если получатель и инициатор совпадают
func (se *SocialEvents) notifyOne(ctx context.Context, recipientID, actorID int64, notifyType models.NotificationType, title, message string, payload interface{}) (int, error) {
	if recipientID == actorID {
		se.log.WithFields(logrus.Fields{"type": notifyType, "user_id": actorID}).Debug("self notification skipped")
		return 0, nil
	}
	if _, err := se.notifier.Dispatch(ctx, recipientID, notifyType, title, message, payload); err != nil {
		return 0, err
	}
	return 1, nil
}

func (se *SocialEvents) notifyMany(ctx context.Context, recipients []int64, notifyType models.NotificationType, title, message string, payload interface{}) (int, error) {
	start := time.Now()
	sent := 0
	for _, id := range recipients {
		if _, err := se.notifier.Dispatch(ctx, id, notifyType, title, message, payload); err != nil {
			return sent, err
		}
		sent++
	}
	se.log.WithFields(logrus.Fields{"type": notifyType, "recipients": sent, "took": time.Since(start)}).Info("fan-out finished")
	return sent, nil
}
