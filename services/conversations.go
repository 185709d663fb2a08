package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"joinmatch/db"
	"joinmatch/logs"
	"joinmatch/models"
)

type ConversationView struct {
	ID             int64                   `json:"id"`
	Type           models.ConversationType `json:"type"`
	ParticipantIDs []int64                 `json:"participant_ids"`
	TeamID         *int64                  `json:"team_id,omitempty"`
	EventID        *int64                  `json:"event_id,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
}

func conversationView(c models.Conversation, participants []int64) ConversationView {
	if participants == nil {
		participants = []int64{}
	}
	return ConversationView{
		ID:             c.ID,
		Type:           c.Type,
		ParticipantIDs: participants,
		TeamID:         c.TeamID,
		EventID:        c.EventID,
		CreatedAt:      c.CreatedAt,
	}
}

// HasParticipant - входит ли пользователь в беседу
func (v ConversationView) HasParticipant(userID int64) bool {
	return lo.Contains(v.ParticipantIDs, userID)
}

// ConversationManager - создание и поиск бесед, состав участников
type ConversationManager struct {
	orm    *gorm.DB
	pusher Pusher
	log    *logrus.Entry
}

func NewConversationManager(orm *gorm.DB, pusher Pusher) *ConversationManager {
	return &ConversationManager{orm: orm, pusher: pusher, log: logs.For("conversations")}
}

// GetOrCreateDirect возвращает личную беседу пары, создавая ее при первом обращении.
// Порядок аргументов не важен
func (cm *ConversationManager) GetOrCreateDirect(ctx context.Context, userAID, userBID int64) (view ConversationView, err error) {
	defer observe("conversation.get_or_create_direct", time.Now(), &err)

	if userAID == userBID {
		return view, fmt.Errorf("%w: direct conversation needs two different users", ErrInvalidOperation)
	}
	key := models.PairKey(userAID, userBID)
	err = cm.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := usersExist(tx, userAID, userBID); err != nil {
			return err
		}
		conv := models.Conversation{Type: models.ConversationPrivate, DirectKey: &key}
		var err error
		view, err = cm.getOrCreate(tx, conv, "direct_key = ?", key, func() ([]int64, error) {
			return []int64{userAID, userBID}, nil
		})
		return err
	})
	return view, err
}

// GetOrCreateForTeam - беседа команды; при создании участники берутся из текущего состава и лидера
func (cm *ConversationManager) GetOrCreateForTeam(ctx context.Context, teamID int64) (view ConversationView, err error) {
	defer observe("conversation.get_or_create_team", time.Now(), &err)

	err = cm.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var team models.Team
		if err := findOne(tx, &team, teamID, "team"); err != nil {
			return err
		}
		conv := models.Conversation{Type: models.ConversationTeam, TeamID: &teamID}
		var err error
		view, err = cm.getOrCreate(tx, conv, "team_id = ?", teamID, func() ([]int64, error) {
			members, err := teamMemberIDs(tx, teamID)
			return append([]int64{team.LeaderID}, members...), err
		})
		return err
	})
	return view, err
}

// GetOrCreateForEvent - беседа мероприятия; при создании участники берутся из записавшихся и организатора
func (cm *ConversationManager) GetOrCreateForEvent(ctx context.Context, eventID int64) (view ConversationView, err error) {
	defer observe("conversation.get_or_create_event", time.Now(), &err)

	err = cm.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event models.Event
		if err := findOne(tx, &event, eventID, "event"); err != nil {
			return err
		}
		conv := models.Conversation{Type: models.ConversationEvent, EventID: &eventID}
		var err error
		view, err = cm.getOrCreate(tx, conv, "event_id = ?", eventID, func() ([]int64, error) {
			attendees, err := eventAttendeeIDs(tx, eventID)
			return append([]int64{event.OrganizerID}, attendees...), err
		})
		return err
	})
	return view, err
}

// getOrCreate ищет беседу по уникальному ключу, иначе вставляет ее.
// Если параллельная транзакция успела вставить ту же беседу, вставка пропускается и беседа перечитывается
func (cm *ConversationManager) getOrCreate(tx *gorm.DB, conv models.Conversation, where string, key interface{}, seed func() ([]int64, error)) (ConversationView, error) {
	var existing models.Conversation
	err := tx.Where(where, key).Take(&existing).Error
	if err == nil {
		return cm.load(tx, existing)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ConversationView{}, err
	}

	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&conv)
	if res.Error != nil {
		return ConversationView{}, fmt.Errorf("failed to create conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if err := tx.Where(where, key).Take(&existing).Error; err != nil {
			return ConversationView{}, fmt.Errorf("failed to reload conversation: %w", err)
		}
		return cm.load(tx, existing)
	}

	participants, err := seed()
	if err != nil {
		return ConversationView{}, err
	}
	participants = lo.Uniq(participants)
	now := time.Now().UTC()
	rows := lo.Map(participants, func(userID int64, _ int) models.ConversationParticipant {
		return models.ConversationParticipant{ConversationID: conv.ID, UserID: userID, JoinedAt: now}
	})
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return ConversationView{}, fmt.Errorf("failed to add participants: %w", err)
	}
	cm.log.WithFields(logrus.Fields{"conversation_id": conv.ID, "type": conv.Type, "participants": len(participants)}).Info("conversation created")
	return conversationView(conv, participants), nil
}

func (cm *ConversationManager) load(q *gorm.DB, conv models.Conversation) (ConversationView, error) {
	participants, err := participantIDs(q, conv.ID)
	if err != nil {
		return ConversationView{}, err
	}
	return conversationView(conv, participants), nil
}

func participantIDs(q *gorm.DB, conversationID int64) ([]int64, error) {
	var ids []int64
	err := q.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

func isParticipant(q *gorm.DB, conversationID, userID int64) (bool, error) {
	var count int64
	err := q.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

// Get - беседа по id с участниками
func (cm *ConversationManager) Get(ctx context.Context, conversationID int64) (ConversationView, error) {
	q := db.GetReadOnlyDB(ctx, cm.orm)
	var conv models.Conversation
	if err := findOne(q, &conv, conversationID, "conversation"); err != nil {
		return ConversationView{}, err
	}
	return cm.load(q, conv)
}

// FindForTeam - беседа команды, если уже создана
func (cm *ConversationManager) FindForTeam(ctx context.Context, teamID int64) (*ConversationView, error) {
	return cm.findBy(ctx, "team_id = ?", teamID)
}

// FindForEvent - беседа мероприятия, если уже создана
func (cm *ConversationManager) FindForEvent(ctx context.Context, eventID int64) (*ConversationView, error) {
	return cm.findBy(ctx, "event_id = ?", eventID)
}

func (cm *ConversationManager) findBy(ctx context.Context, where string, key int64) (*ConversationView, error) {
	q := db.GetReadOnlyDB(ctx, cm.orm)
	var conv models.Conversation
	err := q.Where(where, key).Take(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	view, err := cm.load(q, conv)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// AddParticipant добавляет пользователя в беседу команды или мероприятия; повторное добавление ничего не меняет
func (cm *ConversationManager) AddParticipant(ctx context.Context, conversationID, userID int64) (err error) {
	defer observe("conversation.add_participant", time.Now(), &err)

	return cm.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := groupConversation(tx, conversationID); err != nil {
			return err
		}
		if err := usersExist(tx, userID); err != nil {
			return err
		}
		row := models.ConversationParticipant{ConversationID: conversationID, UserID: userID, JoinedAt: time.Now().UTC()}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return fmt.Errorf("failed to add participant: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			cm.log.WithFields(logrus.Fields{"conversation_id": conversationID, "user_id": userID}).Debug("participant added")
		}
		return nil
	})
}

// RemoveParticipant убирает пользователя из беседы команды или мероприятия; если его там нет, ничего не делает.
// После удаления live-подписки пользователя на беседу закрываются
func (cm *ConversationManager) RemoveParticipant(ctx context.Context, conversationID, userID int64) (err error) {
	defer observe("conversation.remove_participant", time.Now(), &err)

	var removed bool
	err = cm.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := groupConversation(tx, conversationID); err != nil {
			return err
		}
		res := tx.Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			Delete(&models.ConversationParticipant{})
		if res.Error != nil {
			return fmt.Errorf("failed to remove participant: %w", res.Error)
		}
		removed = res.RowsAffected > 0
		return nil
	})
	if err != nil || !removed {
		return err
	}
	cm.pusher.Unsubscribe(ConversationTopic(conversationID), userID)
	cm.log.WithFields(logrus.Fields{"conversation_id": conversationID, "user_id": userID}).Debug("participant removed")
	return nil
}

// groupConversation - состав личной беседы фиксирован, менять можно только TEAM и EVENT
func groupConversation(tx *gorm.DB, conversationID int64) (models.Conversation, error) {
	var conv models.Conversation
	if err := findOne(tx, &conv, conversationID, "conversation"); err != nil {
		return conv, err
	}
	if conv.Type == models.ConversationPrivate {
		return conv, fmt.Errorf("%w: participants of a direct conversation are fixed", ErrInvalidOperation)
	}
	return conv, nil
}

// ListForUser - все беседы, где пользователь участник
func (cm *ConversationManager) ListForUser(ctx context.Context, userID int64) ([]ConversationView, error) {
	q := db.GetReadOnlyDB(ctx, cm.orm)

	var convs []models.Conversation
	err := q.Model(&models.Conversation{}).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", userID).
		Order("conversations.created_at DESC, conversations.id DESC").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(convs) == 0 {
		return []ConversationView{}, nil
	}

	ids := lo.Map(convs, func(c models.Conversation, _ int) int64 { return c.ID })
	var rows []models.ConversationParticipant
	if err := q.Where("conversation_id IN ?", ids).Order("user_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	byConversation := lo.GroupBy(rows, func(p models.ConversationParticipant) int64 { return p.ConversationID })

	return lo.Map(convs, func(c models.Conversation, _ int) ConversationView {
		participants := lo.Map(byConversation[c.ID], func(p models.ConversationParticipant, _ int) int64 { return p.UserID })
		return conversationView(c, participants)
	}), nil
}
