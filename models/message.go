package models

import (
	"time"
)

// Message - сообщение в беседе, порядок задается парой (created_at, id)
type Message struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID int64     `gorm:"not null;index:idx_message_conversation_order,priority:1" json:"conversation_id"`
	SenderID       int64     `gorm:"not null;index" json:"sender_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"not null;index:idx_message_conversation_order,priority:2" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

// ReadMarker - отметка о прочтении сообщения пользователем, одна на пару (message_id, user_id)
type ReadMarker struct {
	MessageID int64     `gorm:"primaryKey;autoIncrement:false" json:"message_id"`
	UserID    int64     `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

func (ReadMarker) TableName() string {
	return "read_markers"
}
