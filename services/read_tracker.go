package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"joinmatch/db"
	"joinmatch/models"
)

// ReadTracker - отметки о прочтении сообщений и счетчики непрочитанного
type ReadTracker struct {
	orm           *gorm.DB
	conversations *ConversationManager
	defaultLimit  int
	maxLimit      int
}

func NewReadTracker(orm *gorm.DB, conversations *ConversationManager, defaultLimit, maxLimit int) *ReadTracker {
	return &ReadTracker{orm: orm, conversations: conversations, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// unread - сообщения беседы от других отправителей без отметки пользователя
func unread(q *gorm.DB, conversationID, userID int64) *gorm.DB {
	return q.Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ?", conversationID, userID).
		Where("NOT EXISTS (SELECT 1 FROM read_markers rm WHERE rm.message_id = messages.id AND rm.user_id = ?)", userID)
}

func (rt *ReadTracker) clampLimit(limit int) int {
	if limit <= 0 {
		limit = rt.defaultLimit
	}
	if rt.maxLimit > 0 && limit > rt.maxLimit {
		limit = rt.maxLimit
	}
	return limit
}

// MarkRead отмечает прочитанными не более limit самых старых непрочитанных сообщений,
// не позже upToMessageID (0 - без верхней границы). Уже существующие отметки пропускаются.
// Возвращает число новых отметок
func (rt *ReadTracker) MarkRead(ctx context.Context, conversationID, userID, upToMessageID int64, limit int) (marked int64, err error) {
	defer observe("read.mark", time.Now(), &err)

	limit = rt.clampLimit(limit)
	err = rt.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := findOne(tx, &conv, conversationID, "conversation"); err != nil {
			return err
		}
		ok, err := isParticipant(tx, conversationID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: user %d is not a participant of conversation %d", ErrInvalidOperation, userID, conversationID)
		}

		q := unread(tx, conversationID, userID)
		if upToMessageID > 0 {
			var bound models.Message
			err := tx.Where("id = ? AND conversation_id = ?", upToMessageID, conversationID).Take(&bound).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: message %d in conversation %d", ErrNotFound, upToMessageID, conversationID)
			}
			if err != nil {
				return err
			}
			q = q.Where("(created_at < ? OR (created_at = ? AND id <= ?))", bound.CreatedAt, bound.CreatedAt, bound.ID)
		}

		var ids []int64
		if err := q.Order("created_at ASC, id ASC").Limit(limit).Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("failed to select unread messages: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		now := time.Now().UTC()
		markers := lo.Map(ids, func(id int64, _ int) models.ReadMarker {
			return models.ReadMarker{MessageID: id, UserID: userID, ReadAt: now}
		})
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&markers)
		if res.Error != nil {
			return fmt.Errorf("failed to save read markers: %w", res.Error)
		}
		marked = res.RowsAffected
		return nil
	})
	return marked, err
}

// UnreadCount - число непрочитанных пользователем сообщений беседы
func (rt *ReadTracker) UnreadCount(ctx context.Context, conversationID, userID int64) (int64, error) {
	var count int64
	if err := unread(db.GetReadOnlyDB(ctx, rt.orm), conversationID, userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// TotalUnread - сумма непрочитанного по всем беседам пользователя
func (rt *ReadTracker) TotalUnread(ctx context.Context, userID int64) (int64, error) {
	convs, err := rt.conversations.ListForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, c := range convs {
		n, err := rt.UnreadCount(ctx, c.ID, userID)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
