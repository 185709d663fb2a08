package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"joinmatch/api/handlers"
	"joinmatch/config"
	"joinmatch/db"
	"joinmatch/models"
	"joinmatch/services"
)

type testAPI struct {
	router *gin.Engine
	orm    *gorm.DB
	ws     *services.WSConnManager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	orm, err := db.Open(sqlite.Open(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := orm.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	ws := services.NewWSConnManager(time.Second)
	pusher := services.NewDirectPusher(ws, time.Second, "local")
	h := handlers.New(orm, pusher, ws, config.Default().Messaging)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	PublicApi(router, h)
	InternalApi(router, h)
	return &testAPI{router: router, orm: orm, ws: ws}
}

func (a *testAPI) user(t *testing.T) models.User {
	u := models.User{Name: gofakeit.Name(), Email: gofakeit.Email()}
	require.NoError(t, a.orm.Create(&u).Error)
	return u
}

// do выполняет запрос от имени userID (0 - без заголовка) и декодирует ответ в out
func (a *testAPI) do(t *testing.T, method, path string, userID int64, body interface{}, out interface{}) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}

func TestRequiresIdentity(t *testing.T) {
	api := newTestAPI(t)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/api/v1/friend-requests/incoming", 0, nil, nil))
}

func TestFriendRequestFlow(t *testing.T) {
	api := newTestAPI(t)
	alice, bob := api.user(t), api.user(t)

	var req services.FriendRequestView
	status := api.do(t, http.MethodPost, "/api/v1/friend-requests", alice.ID, gin.H{"receiver_id": bob.ID}, &req)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, models.FriendRequestPending, req.Status)

	assert.Equal(t, http.StatusConflict, api.do(t, http.MethodPost, "/api/v1/friend-requests", bob.ID, gin.H{"receiver_id": alice.ID}, nil))
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/api/v1/friend-requests", alice.ID, gin.H{"receiver_id": alice.ID}, nil))
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPost, "/api/v1/friend-requests", alice.ID, gin.H{"sender_id": bob.ID, "receiver_id": alice.ID}, nil))

	var incoming struct {
		Requests []services.FriendRequestView `json:"requests"`
	}
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/v1/friend-requests/incoming", bob.ID, nil, &incoming))
	require.Len(t, incoming.Requests, 1)

	acceptPath := "/api/v1/friend-requests/" + id(req.ID) + "/accept"
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPost, acceptPath, alice.ID, nil, nil))
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodPost, acceptPath, bob.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, acceptPath, bob.ID, nil, nil))

	var friends struct {
		Friends []services.FriendView `json:"friends"`
	}
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/v1/friends/"+id(alice.ID)+"?query="+strings.ToUpper(bob.Name[:1]), alice.ID, nil, &friends))
	require.Len(t, friends.Friends, 1)
	assert.Equal(t, bob.ID, friends.Friends[0].UserID)

	var unread struct {
		UnreadCount int64 `json:"unread_count"`
	}
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/v1/notifications/"+id(alice.ID)+"/unread-count", alice.ID, nil, &unread))
	assert.EqualValues(t, 1, unread.UnreadCount)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/api/v1/notifications/"+id(alice.ID), bob.ID, nil, nil))

	var list struct {
		Notifications []services.NotificationView `json:"notifications"`
	}
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/v1/notifications/"+id(alice.ID), alice.ID, nil, &list))
	require.Len(t, list.Notifications, 1)
	assert.Equal(t, models.NotifyFriendRequestAccepted, list.Notifications[0].Type)

	readPath := "/api/v1/notifications/" + id(list.Notifications[0].ID) + "/read"
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPatch, readPath, bob.ID, nil, nil))
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodPatch, readPath, alice.ID, nil, nil))
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/v1/notifications/"+id(alice.ID)+"/unread-count", alice.ID, nil, &unread))
	assert.Zero(t, unread.UnreadCount)

	var updated struct {
		Updated int64 `json:"updated"`
	}
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPatch, "/api/v1/notifications/"+id(bob.ID)+"/read-all", bob.ID, nil, &updated))
	assert.EqualValues(t, 1, updated.Updated)

	friendshipPath := "/api/v1/friendships/" + id(friends.Friends[0].FriendshipID)
	carol := api.user(t)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodDelete, friendshipPath, carol.ID, nil, nil))
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodDelete, friendshipPath, bob.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, friendshipPath, bob.ID, nil, nil))
}

func TestConversationFlow(t *testing.T) {
	api := newTestAPI(t)
	alice, bob, eve := api.user(t), api.user(t), api.user(t)

	var conv services.ConversationView
	status := api.do(t, http.MethodPost, "/api/v1/conversations/direct", alice.ID, gin.H{"user_a_id": alice.ID, "user_b_id": bob.ID}, &conv)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPost, "/api/v1/conversations/direct", eve.ID, gin.H{"user_a_id": alice.ID, "user_b_id": bob.ID}, nil))

	var same services.ConversationView
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/conversations/direct", bob.ID, gin.H{"user_a_id": bob.ID, "user_b_id": alice.ID}, &same))
	assert.Equal(t, conv.ID, same.ID)

	var lastID int64
	for _, text := range []string{"hi", "game tonight?", "bring the ball"} {
		var msg services.MessageView
		require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/api/v1/messages", bob.ID, gin.H{"conversation_id": conv.ID, "content": text}, &msg))
		lastID = msg.ID
	}
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/api/v1/messages", eve.ID, gin.H{"conversation_id": conv.ID, "content": "let me in"}, nil))

	var messages struct {
		Messages []services.MessageView `json:"messages"`
	}
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/v1/conversations/"+id(conv.ID)+"/messages", alice.ID, nil, &messages))
	require.Len(t, messages.Messages, 3)
	assert.Equal(t, "hi", messages.Messages[0].Content)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/api/v1/conversations/"+id(conv.ID)+"/messages", eve.ID, nil, nil))

	var previews struct {
		Conversations []services.ConversationPreview `json:"conversations"`
	}
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/v1/conversations/"+id(alice.ID)+"/previews", alice.ID, nil, &previews))
	require.Len(t, previews.Conversations, 1)
	assert.Equal(t, "bring the ball", previews.Conversations[0].Preview)
	assert.EqualValues(t, 3, previews.Conversations[0].UnreadCount)

	var read struct {
		Marked      int64 `json:"marked"`
		UnreadCount int64 `json:"unread_count"`
	}
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPatch, "/api/v1/message-read", alice.ID,
		gin.H{"conversation_id": conv.ID, "up_to_message_id": lastID, "limit": 10}, &read))
	assert.EqualValues(t, 3, read.Marked)
	assert.Zero(t, read.UnreadCount)

	var total struct {
		UnreadCount int64 `json:"unread_count"`
	}
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/v1/conversations/"+id(alice.ID)+"/unread-count", alice.ID, nil, &total))
	assert.Zero(t, total.UnreadCount)
}

func TestTeamConversationAndHooks(t *testing.T) {
	api := newTestAPI(t)
	leader, player, outsider := api.user(t), api.user(t), api.user(t)
	team := models.Team{Name: "Night Owls", LeaderID: leader.ID}
	require.NoError(t, api.orm.Create(&team).Error)

	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPost, "/api/v1/conversations/team/"+id(team.ID), outsider.ID, nil, nil))
	var created int64
	require.NoError(t, api.orm.Model(&models.Conversation{}).Count(&created).Error)
	assert.Zero(t, created, "a non-member must not create the team conversation")
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/api/v1/conversations/team/999", outsider.ID, nil, nil))

	var conv services.ConversationView
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/conversations/team/"+id(team.ID), leader.ID, nil, &conv))
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPost, "/api/v1/conversations/team/"+id(team.ID), outsider.ID, nil, nil))

	var hook struct {
		Notifications int `json:"notifications"`
	}
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/internal/v1/hooks/team-joined", 0, gin.H{"team_id": team.ID, "user_id": player.ID}, &hook))
	assert.Equal(t, 1, hook.Notifications)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/conversations/team/"+id(team.ID), player.ID, nil, nil))

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/internal/v1/hooks/team-joined", 0, gin.H{"team_id": 999, "user_id": player.ID}, nil))
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/internal/v1/hooks/team-joined", 0, gin.H{"team_id": team.ID}, nil))

	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/internal/v1/hooks/content-reacted", 0,
		gin.H{"author_id": leader.ID, "actor_id": player.ID, "content_type": "post", "content_id": 3, "reaction": "fire"}, &hook))
	assert.Equal(t, 1, hook.Notifications)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/internal/v1/hooks/team-cancelled", 0, gin.H{"team_id": team.ID, "actor_id": leader.ID}, &hook))
	assert.Equal(t, 0, hook.Notifications, "team_members is maintained by the CRUD service, hooks do not write it")
}

func dial(t *testing.T, server *httptest.Server, path string, userID int64) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	header := http.Header{}
	header.Set("X-User-ID", id(userID))
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err, "WebSocket dial failed, resp: %+v", resp)
	t.Cleanup(func() { _ = conn.Close() })

	var hello map[string]string
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello["event"])
	return conn
}

func TestWebSocketPush(t *testing.T) {
	api := newTestAPI(t)
	server := httptest.NewServer(api.router)
	defer server.Close()
	alice, bob := api.user(t), api.user(t)

	notifications := dial(t, server, "/api/v1/ws", bob.ID)
	require.Eventually(t, func() bool { return api.ws.Online(bob.ID) }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/api/v1/friend-requests", alice.ID, gin.H{"receiver_id": bob.ID}, nil))

	var frame struct {
		Event string                    `json:"event"`
		Data  services.NotificationView `json:"data"`
	}
	_ = notifications.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, notifications.ReadJSON(&frame))
	assert.Equal(t, "notification", frame.Event)
	assert.Equal(t, models.NotifyFriendRequest, frame.Data.Type)

	var conv services.ConversationView
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/conversations/direct", alice.ID, gin.H{"user_a_id": alice.ID, "user_b_id": bob.ID}, &conv))

	header := http.Header{}
	header.Set("X-User-ID", id(api.user(t).ID))
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/v1/ws/conversations/"+id(conv.ID), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	room := dial(t, server, "/api/v1/ws/conversations/"+id(conv.ID), bob.ID)
	require.Eventually(t, func() bool { return api.ws.Subscribers(services.ConversationTopic(conv.ID)) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/api/v1/messages", alice.ID, gin.H{"conversation_id": conv.ID, "content": "warmup at 6"}, nil))
	var msgFrame struct {
		Event string               `json:"event"`
		Data  services.MessageView `json:"data"`
	}
	_ = room.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, room.ReadJSON(&msgFrame))
	assert.Equal(t, "message", msgFrame.Event)
	assert.Equal(t, "warmup at 6", msgFrame.Data.Content)
}

func TestEventConversationChecksAttendanceFirst(t *testing.T) {
	api := newTestAPI(t)
	organizer, attendee, outsider := api.user(t), api.user(t), api.user(t)
	event := models.Event{Name: "Sunday 5v5", OrganizerID: organizer.ID, StartsAt: time.Now().UTC().Add(24 * time.Hour)}
	require.NoError(t, api.orm.Create(&event).Error)
	require.NoError(t, api.orm.Create(&models.EventAttendee{EventID: event.ID, UserID: attendee.ID, RegisteredAt: time.Now().UTC()}).Error)

	path := "/api/v1/conversations/event/" + id(event.ID)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPost, path, outsider.ID, nil, nil))
	var created int64
	require.NoError(t, api.orm.Model(&models.Conversation{}).Count(&created).Error)
	assert.Zero(t, created)

	var conv services.ConversationView
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, path, attendee.ID, nil, &conv))
	assert.ElementsMatch(t, []int64{organizer.ID, attendee.ID}, conv.ParticipantIDs)
}

func TestTeamLeftClosesConversationFeed(t *testing.T) {
	api := newTestAPI(t)
	server := httptest.NewServer(api.router)
	defer server.Close()
	leader, player := api.user(t), api.user(t)
	team := models.Team{Name: "Early Birds", LeaderID: leader.ID}
	require.NoError(t, api.orm.Create(&team).Error)
	require.NoError(t, api.orm.Create(&models.TeamMember{TeamID: team.ID, UserID: player.ID, JoinedAt: time.Now().UTC()}).Error)

	var conv services.ConversationView
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/conversations/team/"+id(team.ID), player.ID, nil, &conv))
	feed := dial(t, server, "/api/v1/ws/conversations/"+id(conv.ID), player.ID)
	topic := services.ConversationTopic(conv.ID)
	require.Eventually(t, func() bool { return api.ws.Subscribers(topic) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/internal/v1/hooks/team-left", 0, gin.H{"team_id": team.ID, "user_id": player.ID}, nil))
	assert.Zero(t, api.ws.Subscribers(topic))

	require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/api/v1/messages", leader.ID, gin.H{"conversation_id": conv.ID, "content": "new lineup"}, nil))
	_ = feed.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, frame, err := feed.ReadMessage()
		if err != nil {
			break
		}
		assert.NotContains(t, string(frame), "new lineup")
	}
}
