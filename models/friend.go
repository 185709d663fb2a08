package models

import (
	"fmt"
	"time"
)

type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "PENDING"
	FriendRequestAccepted FriendRequestStatus = "ACCEPTED"
	FriendRequestRejected FriendRequestStatus = "REJECTED"
)

// Terminal - из ACCEPTED и REJECTED переходов нет
func (s FriendRequestStatus) Terminal() bool {
	return s == FriendRequestAccepted || s == FriendRequestRejected
}

// FriendRequest - заявка в друзья
// PendingKey заполнен только пока заявка в PENDING, уникальный индекс по нему
// не дает завести вторую активную заявку для той же пары в любом направлении
type FriendRequest struct {
	ID         int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderID   int64               `gorm:"not null;index" json:"sender_id"`
	ReceiverID int64               `gorm:"not null;index" json:"receiver_id"`
	Status     FriendRequestStatus `gorm:"size:16;not null;index" json:"status"`
	PendingKey *string             `gorm:"size:64;uniqueIndex:idx_friend_request_pending" json:"-"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

func (FriendRequest) TableName() string {
	return "friend_requests"
}

// Friendship - симметричная связь, UserOneID всегда меньше UserTwoID
type Friendship struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserOneID int64     `gorm:"not null;uniqueIndex:idx_friendship_pair,priority:1" json:"user_one_id"`
	UserTwoID int64     `gorm:"not null;uniqueIndex:idx_friendship_pair,priority:2;index" json:"user_two_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Friendship) TableName() string {
	return "friendships"
}

// Other возвращает вторую сторону дружбы
func (f Friendship) Other(userID int64) int64 {
	if f.UserOneID == userID {
		return f.UserTwoID
	}
	return f.UserOneID
}

// OrderedPair упорядочивает пару пользователей (меньший id первым)
func OrderedPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// PairKey - ключ неупорядоченной пары, одинаковый для (a, b) и (b, a)
func PairKey(a, b int64) string {
	low, high := OrderedPair(a, b)
	return fmt.Sprintf("%d:%d", low, high)
}
