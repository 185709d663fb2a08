package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"joinmatch/db"
	"joinmatch/logs"
	"joinmatch/models"
)

type FriendRequestView struct {
	ID         int64                      `json:"id"`
	SenderID   int64                      `json:"sender_id"`
	ReceiverID int64                      `json:"receiver_id"`
	Status     models.FriendRequestStatus `json:"status"`
	CreatedAt  time.Time                  `json:"created_at"`
	UpdatedAt  time.Time                  `json:"updated_at"`
}

func friendRequestView(r models.FriendRequest) FriendRequestView {
	return FriendRequestView{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// likeEscaper экранирует спецсимволы LIKE, запрос ищется как обычная подстрока
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// FriendView - вторая сторона дружбы
type FriendView struct {
	FriendshipID int64     `json:"friendship_id"`
	UserID       int64     `json:"user_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	AvatarURL    string    `json:"avatar_url"`
	Verified     bool      `json:"verified"`
	Since        time.Time `json:"since"`
}

// FriendGraphManager - заявки в друзья и симметричная связь дружбы
type FriendGraphManager struct {
	orm      *gorm.DB
	notifier *NotificationDispatcher
	log      *logrus.Entry
}

func NewFriendGraphManager(orm *gorm.DB, notifier *NotificationDispatcher) *FriendGraphManager {
	return &FriendGraphManager{orm: orm, notifier: notifier, log: logs.For("friends")}
}

// SendRequest создает заявку в PENDING и уведомляет получателя
func (fs *FriendGraphManager) SendRequest(ctx context.Context, senderID, receiverID int64) (view FriendRequestView, err error) {
	defer observe("friend.send_request", time.Now(), &err)

	if senderID == receiverID {
		return view, fmt.Errorf("%w: cannot send a friend request to yourself", ErrInvalidOperation)
	}

	var (
		request models.FriendRequest
		note    models.Notification
	)
	err = fs.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := usersExist(tx, senderID, receiverID); err != nil {
			return err
		}

		low, high := models.OrderedPair(senderID, receiverID)
		var friends int64
		if err := tx.Model(&models.Friendship{}).Where("user_one_id = ? AND user_two_id = ?", low, high).Count(&friends).Error; err != nil {
			return err
		}
		if friends > 0 {
			return fmt.Errorf("%w: users %d and %d are already friends", ErrConflict, senderID, receiverID)
		}

		key := models.PairKey(senderID, receiverID)
		request = models.FriendRequest{
			SenderID:   senderID,
			ReceiverID: receiverID,
			Status:     models.FriendRequestPending,
			PendingKey: &key,
		}
		// уникальный pending_key отсекает вторую активную заявку в любом направлении
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&request)
		if res.Error != nil {
			return fmt.Errorf("failed to create friend request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: friend request between %d and %d is already pending", ErrConflict, senderID, receiverID)
		}

		var sender models.User
		if err := tx.Select("id", "name").First(&sender, senderID).Error; err != nil {
			return err
		}
		var err error
		note, err = fs.notifier.record(tx, receiverID, models.NotifyFriendRequest,
			"New friend request",
			fmt.Sprintf("%s wants to be your friend", sender.Name),
			map[string]interface{}{"request_id": request.ID, "sender_id": senderID},
		)
		return err
	})
	if err != nil {
		return FriendRequestView{}, err
	}

	fs.notifier.deliver(note)
	fs.log.WithFields(logrus.Fields{"request_id": request.ID, "sender_id": senderID, "receiver_id": receiverID}).Info("friend request sent")
	return friendRequestView(request), nil
}

// AcceptRequest переводит заявку в ACCEPTED, создает дружбу и уведомление отправителю одной транзакцией
func (fs *FriendGraphManager) AcceptRequest(ctx context.Context, requestID int64) (err error) {
	defer observe("friend.accept", time.Now(), &err)
	return fs.resolve(ctx, requestID, models.FriendRequestAccepted)
}

// RejectRequest переводит заявку в REJECTED и уведомляет отправителя
func (fs *FriendGraphManager) RejectRequest(ctx context.Context, requestID int64) (err error) {
	defer observe("friend.reject", time.Now(), &err)
	return fs.resolve(ctx, requestID, models.FriendRequestRejected)
}

func (fs *FriendGraphManager) resolve(ctx context.Context, requestID int64, status models.FriendRequestStatus) error {
	var (
		request models.FriendRequest
		note    models.Notification
	)
	err := fs.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findOne(tx, &request, requestID, "friend request"); err != nil {
			return err
		}
		if request.Status != models.FriendRequestPending {
			return fmt.Errorf("%w: friend request %d is %s", ErrNotFound, requestID, request.Status)
		}

		// условное обновление: из двух параллельных accept/reject пройдет только один
		res := tx.Model(&models.FriendRequest{}).
			Where("id = ? AND status = ?", requestID, models.FriendRequestPending).
			Updates(map[string]interface{}{"status": status, "pending_key": nil})
		if res.Error != nil {
			return fmt.Errorf("failed to update friend request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: friend request %d is no longer pending", ErrNotFound, requestID)
		}
		request.Status = status

		var receiver models.User
		if err := tx.Select("id", "name").First(&receiver, request.ReceiverID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		notifyType := models.NotifyFriendRequestRejected
		title, message := "Friend request declined", fmt.Sprintf("%s declined your friend request", receiver.Name)
		if status == models.FriendRequestAccepted {
			low, high := models.OrderedPair(request.SenderID, request.ReceiverID)
			friendship := models.Friendship{UserOneID: low, UserTwoID: high}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&friendship).Error; err != nil {
				return fmt.Errorf("failed to create friendship: %w", err)
			}
			notifyType = models.NotifyFriendRequestAccepted
			title, message = "Friend request accepted", fmt.Sprintf("%s accepted your friend request", receiver.Name)
		}

		var err error
		note, err = fs.notifier.record(tx, request.SenderID, notifyType, title, message,
			map[string]interface{}{"request_id": request.ID, "receiver_id": request.ReceiverID},
		)
		return err
	})
	if err != nil {
		return err
	}

	fs.notifier.deliver(note)
	fs.log.WithFields(logrus.Fields{"request_id": requestID, "status": status}).Info("friend request resolved")
	return nil
}

// DeleteFriendship удаляет дружбу и все заявки между этой парой
func (fs *FriendGraphManager) DeleteFriendship(ctx context.Context, friendshipID int64) (err error) {
	defer observe("friend.delete", time.Now(), &err)

	return fs.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var friendship models.Friendship
		if err := findOne(tx, &friendship, friendshipID, "friendship"); err != nil {
			return err
		}
		if err := tx.Delete(&friendship).Error; err != nil {
			return fmt.Errorf("failed to delete friendship: %w", err)
		}
		a, b := friendship.UserOneID, friendship.UserTwoID
		err := tx.Where(
			"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			a, b, b, a,
		).Delete(&models.FriendRequest{}).Error
		if err != nil {
			return fmt.Errorf("failed to delete friend requests: %w", err)
		}
		fs.log.WithFields(logrus.Fields{"friendship_id": friendshipID, "user_one_id": a, "user_two_id": b}).Info("friendship deleted")
		return nil
	})
}

// GetFriendship - дружба по id
func (fs *FriendGraphManager) GetFriendship(ctx context.Context, friendshipID int64) (friendship models.Friendship, err error) {
	err = findOne(db.GetReadOnlyDB(ctx, fs.orm), &friendship, friendshipID, "friendship")
	return
}

// GetRequest - заявка по id
func (fs *FriendGraphManager) GetRequest(ctx context.Context, requestID int64) (FriendRequestView, error) {
	var request models.FriendRequest
	if err := findOne(db.GetReadOnlyDB(ctx, fs.orm), &request, requestID, "friend request"); err != nil {
		return FriendRequestView{}, err
	}
	return friendRequestView(request), nil
}

// ListFriends возвращает друзей пользователя; query фильтрует по имени или email без учета регистра
func (fs *FriendGraphManager) ListFriends(ctx context.Context, userID int64, query string) ([]FriendView, error) {
	friends := make([]FriendView, 0)

	q := db.GetReadOnlyDB(ctx, fs.orm).
		Table("friendships f").
		Select("f.id AS friendship_id, f.created_at AS since, u.id AS user_id, u.name, u.email, u.avatar_url, u.verified").
		Joins("JOIN users u ON u.id = CASE WHEN f.user_one_id = ? THEN f.user_two_id ELSE f.user_one_id END", userID).
		Where("(f.user_one_id = ? OR f.user_two_id = ?)", userID, userID)

	if query = strings.TrimSpace(query); query != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
		q = q.Where(`(LOWER(u.name) LIKE ? ESCAPE '\' OR LOWER(u.email) LIKE ? ESCAPE '\')`, like, like)
	}

	if err := q.Order("u.name ASC, u.id ASC").Scan(&friends).Error; err != nil {
		return nil, fmt.Errorf("failed to get friends: %w", err)
	}
	return friends, nil
}

// ListIncoming - входящие заявки в PENDING
func (fs *FriendGraphManager) ListIncoming(ctx context.Context, userID int64) ([]FriendRequestView, error) {
	return fs.listPending(ctx, "receiver_id = ?", userID)
}

// ListOutgoing - исходящие заявки в PENDING
func (fs *FriendGraphManager) ListOutgoing(ctx context.Context, userID int64) ([]FriendRequestView, error) {
	return fs.listPending(ctx, "sender_id = ?", userID)
}

func (fs *FriendGraphManager) listPending(ctx context.Context, where string, userID int64) ([]FriendRequestView, error) {
	var rows []models.FriendRequest
	err := db.GetReadOnlyDB(ctx, fs.orm).
		Where(where, userID).
		Where("status = ?", models.FriendRequestPending).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get pending requests: %w", err)
	}
	views := make([]FriendRequestView, 0, len(rows))
	for _, r := range rows {
		views = append(views, friendRequestView(r))
	}
	return views, nil
}
