package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"joinmatch/db"
	"joinmatch/logs"
	"joinmatch/models"
)

type MessageView struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

func messageView(m models.Message) MessageView {
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

// MessageStore - сообщения бесед. Время сообщения назначает сервер, порядок - (created_at, id)
type MessageStore struct {
	orm       *gorm.DB
	pusher    Pusher
	maxLength int
	log       *logrus.Entry
}

func NewMessageStore(orm *gorm.DB, pusher Pusher, maxLength int) *MessageStore {
	return &MessageStore{orm: orm, pusher: pusher, maxLength: maxLength, log: logs.For("messages")}
}

// Append сохраняет сообщение участника беседы и рассылает его подписчикам топика беседы
func (ms *MessageStore) Append(ctx context.Context, conversationID, senderID int64, content string) (view MessageView, err error) {
	defer observe("message.append", time.Now(), &err)

	if strings.TrimSpace(content) == "" {
		return view, fmt.Errorf("%w: message content is empty", ErrInvalidOperation)
	}
	if ms.maxLength > 0 && utf8.RuneCountInString(content) > ms.maxLength {
		return view, fmt.Errorf("%w: message is longer than %d characters", ErrInvalidOperation, ms.maxLength)
	}

	msg := models.Message{ConversationID: conversationID, SenderID: senderID, Content: content}
	err = ms.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := findOne(tx, &conv, conversationID, "conversation"); err != nil {
			return err
		}
		ok, err := isParticipant(tx, conversationID, senderID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: user %d is not a participant of conversation %d", ErrInvalidOperation, senderID, conversationID)
		}
		msg.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
		return nil
	})
	if err != nil {
		return MessageView{}, err
	}

	view = messageView(msg)
	if payload, encErr := encodeEvent("message", view); encErr == nil {
		ms.pusher.PushToTopic(ConversationTopic(conversationID), payload)
	} else {
		ms.log.WithError(encErr).Warn("failed to encode message push")
	}
	ms.log.WithFields(logrus.Fields{"conversation_id": conversationID, "message_id": msg.ID, "sender_id": senderID}).Debug("message appended")
	return view, nil
}

// ListOrdered - все сообщения беседы по возрастанию (created_at, id)
func (ms *MessageStore) ListOrdered(ctx context.Context, conversationID int64) ([]MessageView, error) {
	q := db.GetReadOnlyDB(ctx, ms.orm)
	var conv models.Conversation
	if err := findOne(q, &conv, conversationID, "conversation"); err != nil {
		return nil, err
	}

	var rows []models.Message
	err := q.Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	views := make([]MessageView, 0, len(rows))
	for _, m := range rows {
		views = append(views, messageView(m))
	}
	return views, nil
}

// LastMessage - последнее сообщение беседы или nil, если сообщений нет
func (ms *MessageStore) LastMessage(ctx context.Context, conversationID int64) (*MessageView, error) {
	var msg models.Message
	err := db.GetReadOnlyDB(ctx, ms.orm).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Take(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last message: %w", err)
	}
	view := messageView(msg)
	return &view, nil
}
