package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"joinmatch/db"
	"joinmatch/models"
)

// Directory - чтение внешних сущностей (пользователи, команды, мероприятия).
// Записи ведет основной CRUD-сервис, ядро их только читает
type Directory struct {
	orm *gorm.DB
}

func NewDirectory(orm *gorm.DB) *Directory {
	return &Directory{orm: orm}
}

// usersExist возвращает ErrNotFound, если хотя бы один id не найден
func usersExist(q *gorm.DB, ids ...int64) error {
	ids = lo.Uniq(ids)
	var found []int64
	if err := q.Model(&models.User{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return fmt.Errorf("error checking users: %w", err)
	}
	if missing, _ := lo.Difference(ids, found); len(missing) > 0 {
		return fmt.Errorf("%w: user %d", ErrNotFound, missing[0])
	}
	return nil
}

func findOne(q *gorm.DB, dest interface{}, id int64, kind string) error {
	err := q.First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
	}
	return err
}

func teamMemberIDs(q *gorm.DB, teamID int64) ([]int64, error) {
	var ids []int64
	err := q.Model(&models.TeamMember{}).Where("team_id = ?", teamID).Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}

func eventAttendeeIDs(q *gorm.DB, eventID int64) ([]int64, error) {
	var ids []int64
	err := q.Model(&models.EventAttendee{}).Where("event_id = ?", eventID).Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}

func (d *Directory) User(ctx context.Context, userID int64) (user models.User, err error) {
	err = findOne(db.GetReadOnlyDB(ctx, d.orm), &user, userID, "user")
	return
}

// UsersByID - пользователи по списку id; отсутствующие просто не попадают в результат
func (d *Directory) UsersByID(ctx context.Context, ids []int64) (map[int64]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return map[int64]models.User{}, nil
	}
	if err := db.GetReadOnlyDB(ctx, d.orm).Where("id IN ?", lo.Uniq(ids)).Find(&users).Error; err != nil {
		return nil, err
	}
	return lo.KeyBy(users, func(u models.User) int64 { return u.ID }), nil
}

func (d *Directory) Team(ctx context.Context, teamID int64) (team models.Team, err error) {
	err = findOne(db.GetReadOnlyDB(ctx, d.orm), &team, teamID, "team")
	return
}

func (d *Directory) Event(ctx context.Context, eventID int64) (event models.Event, err error) {
	err = findOne(db.GetReadOnlyDB(ctx, d.orm), &event, eventID, "event")
	return
}

// TeamRoster - участники команды вместе с лидером
func (d *Directory) TeamRoster(ctx context.Context, team models.Team) ([]int64, error) {
	ids, err := teamMemberIDs(db.GetReadOnlyDB(ctx, d.orm), team.ID)
	if err != nil {
		return nil, err
	}
	return lo.Uniq(append([]int64{team.LeaderID}, ids...)), nil
}

// EventRoster - участники мероприятия вместе с организатором
func (d *Directory) EventRoster(ctx context.Context, event models.Event) ([]int64, error) {
	ids, err := eventAttendeeIDs(db.GetReadOnlyDB(ctx, d.orm), event.ID)
	if err != nil {
		return nil, err
	}
	return lo.Uniq(append([]int64{event.OrganizerID}, ids...)), nil
}
