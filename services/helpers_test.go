package services

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"joinmatch/db"
	"joinmatch/models"
)

type sentPush struct {
	userID  int64
	topic   string
	payload []byte
}

type leftTopic struct {
	topic  string
	userID int64
}

// fakeChannel запоминает доставки; fail заставляет каждую доставку падать
type fakeChannel struct {
	mu   sync.Mutex
	sent []sentPush
	left []leftTopic
	fail error
}

func (f *fakeChannel) Send(_ context.Context, userID int64, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentPush{userID: userID, topic: topic, payload: payload})
	return f.fail
}

func (f *fakeChannel) Broadcast(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentPush{topic: topic, payload: payload})
	return f.fail
}

func (f *fakeChannel) Leave(_ context.Context, topic string, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, leftTopic{topic: topic, userID: userID})
	return f.fail
}

func (f *fakeChannel) leaves() []leftTopic {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]leftTopic(nil), f.left...)
}

func (f *fakeChannel) pushes() []sentPush {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentPush(nil), f.sent...)
}

func (f *fakeChannel) eventsFor(userID int64, topic string) []PushEvent {
	var events []PushEvent
	for _, p := range f.pushes() {
		if p.userID != userID || p.topic != topic {
			continue
		}
		var ev PushEvent
		if err := json.Unmarshal(p.payload, &ev); err == nil {
			events = append(events, ev)
		}
	}
	return events
}

type fixture struct {
	orm           *gorm.DB
	channel       *fakeChannel
	directory     *Directory
	notifier      *NotificationDispatcher
	friends       *FriendGraphManager
	conversations *ConversationManager
	messages      *MessageStore
	reads         *ReadTracker
	inbox         *Inbox
	events        *SocialEvents
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	orm, err := db.Open(sqlite.Open(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := orm.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return orm
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	orm := newTestDB(t)
	channel := &fakeChannel{}
	pusher := NewDirectPusher(channel, time.Second, "test")

	f := &fixture{orm: orm, channel: channel}
	f.directory = NewDirectory(orm)
	f.notifier = NewNotificationDispatcher(orm, pusher)
	f.friends = NewFriendGraphManager(orm, f.notifier)
	f.conversations = NewConversationManager(orm, pusher)
	f.messages = NewMessageStore(orm, pusher, 2000)
	f.reads = NewReadTracker(orm, f.conversations, 50, 500)
	f.inbox = NewInbox(f.conversations, f.messages, f.reads, f.directory)
	f.events = NewSocialEvents(f.conversations, f.notifier, f.directory)
	return f
}

func (f *fixture) user(t *testing.T) models.User {
	t.Helper()
	u := models.User{Name: gofakeit.Name(), Email: gofakeit.Email(), AvatarURL: gofakeit.URL()}
	require.NoError(t, f.orm.Create(&u).Error)
	return u
}

func (f *fixture) namedUser(t *testing.T, name, email string) models.User {
	t.Helper()
	u := models.User{Name: name, Email: email}
	require.NoError(t, f.orm.Create(&u).Error)
	return u
}

func (f *fixture) team(t *testing.T, leader models.User, members ...models.User) models.Team {
	t.Helper()
	team := models.Team{Name: gofakeit.Company(), LeaderID: leader.ID}
	require.NoError(t, f.orm.Create(&team).Error)
	for _, m := range members {
		require.NoError(t, f.orm.Create(&models.TeamMember{TeamID: team.ID, UserID: m.ID, JoinedAt: time.Now().UTC()}).Error)
	}
	return team
}

func (f *fixture) event(t *testing.T, organizer models.User, attendees ...models.User) models.Event {
	t.Helper()
	event := models.Event{Name: gofakeit.HipsterWord() + " cup", OrganizerID: organizer.ID, StartsAt: time.Now().UTC().Add(48 * time.Hour)}
	require.NoError(t, f.orm.Create(&event).Error)
	for _, a := range attendees {
		require.NoError(t, f.orm.Create(&models.EventAttendee{EventID: event.ID, UserID: a.ID, RegisteredAt: time.Now().UTC()}).Error)
	}
	return event
}

func (f *fixture) notificationsOf(t *testing.T, userID int64, notifyType models.NotificationType) []NotificationView {
	t.Helper()
	all, err := f.notifier.ListForUser(context.Background(), userID)
	require.NoError(t, err)
	var out []NotificationView
	for _, n := range all {
		if n.Type == notifyType {
			out = append(out, n)
		}
	}
	return out
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
