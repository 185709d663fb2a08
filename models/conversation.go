package models

import "time"

type ConversationType string

const (
	ConversationPrivate ConversationType = "PRIVATE"
	ConversationTeam    ConversationType = "TEAM"
	ConversationEvent   ConversationType = "EVENT"
)

// Conversation - беседа. Для каждого типа свой уникальный ключ:
// DirectKey для PRIVATE, TeamID для TEAM, EventID для EVENT
type Conversation struct {
	ID        int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	Type      ConversationType `gorm:"size:16;not null;index" json:"type"`
	DirectKey *string          `gorm:"size:64;uniqueIndex:idx_conversation_direct" json:"-"`
	TeamID    *int64           `gorm:"uniqueIndex:idx_conversation_team" json:"team_id,omitempty"`
	EventID   *int64           `gorm:"uniqueIndex:idx_conversation_event" json:"event_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

type ConversationParticipant struct {
	ConversationID int64     `gorm:"primaryKey;autoIncrement:false" json:"conversation_id"`
	UserID         int64     `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	JoinedAt       time.Time `json:"joined_at"`
}

func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}
