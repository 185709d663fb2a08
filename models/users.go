package models

import (
	"time"
)

// User - пользователь; ведется внешним CRUD-сервисом, здесь только читается
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:255;index" json:"name"`
	Email     string    `gorm:"size:255;index" json:"email"`
	AvatarURL string    `gorm:"size:512" json:"avatar_url"`
	Blocked   bool      `gorm:"not null;default:false" json:"blocked"`
	Verified  bool      `gorm:"not null;default:false" json:"verified"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

type Team struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:255" json:"name"`
	LeaderID  int64     `gorm:"not null;index" json:"leader_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Team) TableName() string {
	return "teams"
}

type TeamMember struct {
	TeamID   int64     `gorm:"primaryKey;autoIncrement:false" json:"team_id"`
	UserID   int64     `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

func (TeamMember) TableName() string {
	return "team_members"
}

type Event struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"size:255" json:"name"`
	OrganizerID int64     `gorm:"not null;index" json:"organizer_id"`
	StartsAt    time.Time `json:"starts_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Event) TableName() string {
	return "events"
}

type EventAttendee struct {
	EventID      int64     `gorm:"primaryKey;autoIncrement:false" json:"event_id"`
	UserID       int64     `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

func (EventAttendee) TableName() string {
	return "event_attendees"
}

// All - все модели для AutoMigrate
func All() []interface{} {
	return []interface{}{
		&User{}, &Team{}, &TeamMember{}, &Event{}, &EventAttendee{},
		&FriendRequest{}, &Friendship{},
		&Conversation{}, &ConversationParticipant{},
		&Message{}, &ReadMarker{},
		&Notification{},
	}
}
