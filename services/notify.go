package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"joinmatch/db"
	"joinmatch/logs"
	"joinmatch/models"
)

const maxPushMessageLength = 100

type NotificationView struct {
	ID        int64                   `json:"id"`
	UserID    int64                   `json:"user_id"`
	Type      models.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Data      json.RawMessage         `json:"data"`
	IsRead    bool                    `json:"is_read"`
	CreatedAt time.Time               `json:"created_at"`
}

func notificationView(n models.Notification) NotificationView {
	data := json.RawMessage(n.Data)
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return NotificationView{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      data,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

// NotificationDispatcher сохраняет уведомления и пытается доставить их через Pusher.
// Сохранение обязательно, доставка best-effort
type NotificationDispatcher struct {
	orm    *gorm.DB
	pusher Pusher
	log    *logrus.Entry
}

func NewNotificationDispatcher(orm *gorm.DB, pusher Pusher) *NotificationDispatcher {
	return &NotificationDispatcher{orm: orm, pusher: pusher, log: logs.For("notifications")}
}

// Dispatch - сохранить уведомление для recipientID и отправить его в live-канал
func (d *NotificationDispatcher) Dispatch(ctx context.Context, recipientID int64, notifyType models.NotificationType, title, message string, payload interface{}) (view NotificationView, err error) {
	defer observe("notification.dispatch", time.Now(), &err)

	n, err := d.record(d.orm.WithContext(ctx), recipientID, notifyType, title, message, payload)
	if err != nil {
		return NotificationView{}, err
	}
	d.deliver(n)
	return notificationView(n), nil
}

// record пишет уведомление через переданный tx; доставка выполняется отдельно, после коммита
func (d *NotificationDispatcher) record(tx *gorm.DB, recipientID int64, notifyType models.NotificationType, title, message string, payload interface{}) (models.Notification, error) {
	data := []byte("{}")
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return models.Notification{}, fmt.Errorf("failed to marshal notification payload: %w", err)
		}
	}
	n := models.Notification{
		UserID:    recipientID,
		Type:      notifyType,
		Title:     title,
		Message:   message,
		Data:      string(data),
		IsRead:    false,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := tx.Create(&n).Error; err != nil {
		return models.Notification{}, fmt.Errorf("failed to create notification: %w", err)
	}
	notificationsCreatedTotal.WithLabelValues(string(notifyType)).Inc()
	d.log.WithFields(logrus.Fields{"user_id": recipientID, "type": notifyType, "notification_id": n.ID}).Debug("notification stored")
	return n, nil
}

// deliver отправляет уже сохраненное уведомление; длинный текст обрезается как в ленте
func (d *NotificationDispatcher) deliver(n models.Notification) {
	view := notificationView(n)
	if r := []rune(view.Message); len(r) > maxPushMessageLength {
		view.Message = string(r[:maxPushMessageLength]) + "..."
	}
	payload, err := encodeEvent("notification", view)
	if err != nil {
		d.log.WithError(err).Warn("failed to encode notification push")
		return
	}
	d.pusher.PushToUser(n.UserID, TopicNotifications, payload)
}

// ListForUser - все уведомления пользователя, новые первыми
func (d *NotificationDispatcher) ListForUser(ctx context.Context, userID int64) ([]NotificationView, error) {
	var rows []models.Notification
	err := db.GetReadOnlyDB(ctx, d.orm).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	views := make([]NotificationView, 0, len(rows))
	for _, n := range rows {
		views = append(views, notificationView(n))
	}
	return views, nil
}

func (d *NotificationDispatcher) UnreadCount(ctx context.Context, userID int64) (count int64, err error) {
	err = db.GetReadOnlyDB(ctx, d.orm).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return
}

func (d *NotificationDispatcher) Get(ctx context.Context, notificationID int64) (NotificationView, error) {
	var n models.Notification
	if err := findOne(d.orm.WithContext(ctx), &n, notificationID, "notification"); err != nil {
		return NotificationView{}, err
	}
	return notificationView(n), nil
}

// MarkRead отмечает уведомление прочитанным; повторная отметка не ошибка
func (d *NotificationDispatcher) MarkRead(ctx context.Context, notificationID int64) (err error) {
	defer observe("notification.mark_read", time.Now(), &err)

	res := d.orm.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND is_read = ?", notificationID, false).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var exists int64
	if err = d.orm.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", notificationID).Count(&exists).Error; err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: notification %d", ErrNotFound, notificationID)
	}
	return nil
}

// MarkAllRead отмечает все непрочитанные уведомления пользователя, возвращает их количество
func (d *NotificationDispatcher) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res := d.orm.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
