package models

import "time"

type NotificationType string

const (
	NotifyFriendRequest         NotificationType = "FRIEND_REQUEST"
	NotifyFriendRequestAccepted NotificationType = "FRIEND_REQUEST_ACCEPTED"
	NotifyFriendRequestRejected NotificationType = "FRIEND_REQUEST_REJECTED"
	NotifyTeamJoin              NotificationType = "TEAM_JOIN"
	NotifyTeamLeave             NotificationType = "TEAM_LEAVE"
	NotifyTeamCancelled         NotificationType = "TEAM_CANCELLED"
	NotifyEventJoin             NotificationType = "EVENT_JOIN"
	NotifyEventLeave            NotificationType = "EVENT_LEAVE"
	NotifyEventCancelled        NotificationType = "EVENT_CANCELLED"
	NotifyPostComment           NotificationType = "POST_COMMENT"
	NotifyCommentReply          NotificationType = "COMMENT_REPLY"
	NotifyPostReaction          NotificationType = "POST_REACTION"
	NotifyCommentReaction       NotificationType = "COMMENT_REACTION"
)

// Notification - уведомление пользователя, Data хранит json с подробностями события
type Notification struct {
	ID        int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64            `gorm:"not null;index:idx_notification_user_created,priority:1" json:"user_id"`
	Type      NotificationType `gorm:"size:40;not null" json:"type"`
	Title     string           `gorm:"size:255;not null" json:"title"`
	Message   string           `gorm:"type:text" json:"message"`
	Data      string           `gorm:"type:text" json:"-"`
	IsRead    bool             `gorm:"not null;default:false;index" json:"is_read"`
	CreatedAt time.Time        `gorm:"index:idx_notification_user_created,priority:2" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
