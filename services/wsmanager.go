package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"joinmatch/logs"
)

type wsClient struct {
	id     string
	userID int64
	topic  string
	conn   *websocket.Conn
	mu     sync.Mutex
}

func (c *wsClient) write(deadline time.Time, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// close отправляет close-фрейм и закрывает соединение; цикл чтения обработчика после этого завершается
func (c *wsClient) close(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "removed from conversation")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout))
	_ = c.conn.Close()
}

// WSConnManager - локальный PushChannel: websocket-соединения этого инстанса.
// Персональные соединения адресуются по userID, подписки на беседы по топику
type WSConnManager struct {
	mu           sync.RWMutex
	clients      map[string]*wsClient
	users        map[int64]map[string]*wsClient
	topics       map[string]map[string]*wsClient
	writeTimeout time.Duration
	log          *logrus.Entry
}

func NewWSConnManager(writeTimeout time.Duration) *WSConnManager {
	return &WSConnManager{
		clients:      make(map[string]*wsClient),
		users:        make(map[int64]map[string]*wsClient),
		topics:       make(map[string]map[string]*wsClient),
		writeTimeout: writeTimeout,
		log:          logs.For("ws"),
	}
}

// Add регистрирует персональное соединение пользователя, возвращает id соединения
func (m *WSConnManager) Add(userID int64, conn *websocket.Conn) string {
	return m.register(&wsClient{id: uuid.NewString(), userID: userID, conn: conn})
}

// Join регистрирует соединение, подписанное на топик
func (m *WSConnManager) Join(topic string, userID int64, conn *websocket.Conn) string {
	return m.register(&wsClient{id: uuid.NewString(), userID: userID, topic: topic, conn: conn})
}

func (m *WSConnManager) register(c *wsClient) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.id] = c
	if c.topic == "" {
		if m.users[c.userID] == nil {
			m.users[c.userID] = make(map[string]*wsClient)
		}
		m.users[c.userID][c.id] = c
	} else {
		if m.topics[c.topic] == nil {
			m.topics[c.topic] = make(map[string]*wsClient)
		}
		m.topics[c.topic][c.id] = c
	}
	wsActiveConnections.Inc()
	m.log.WithFields(logrus.Fields{"user_id": c.userID, "topic": c.topic, "conn_id": c.id}).Debug("connection registered")
	return c.id
}

// Remove снимает соединение с регистрации; повторный вызов ничего не делает
func (m *WSConnManager) Remove(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[connID]
	if !ok {
		return
	}
	delete(m.clients, connID)
	if c.topic == "" {
		delete(m.users[c.userID], connID)
		if len(m.users[c.userID]) == 0 {
			delete(m.users, c.userID)
		}
	} else {
		delete(m.topics[c.topic], connID)
		if len(m.topics[c.topic]) == 0 {
			delete(m.topics, c.topic)
		}
	}
	wsActiveConnections.Dec()
}

// Online - есть ли у пользователя персональное соединение на этом инстансе
func (m *WSConnManager) Online(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users[userID]) > 0
}

// Leave закрывает соединения пользователя, подписанные на топик; персональные соединения не трогает
func (m *WSConnManager) Leave(_ context.Context, topic string, userID int64) error {
	m.mu.RLock()
	var targets []*wsClient
	for _, c := range m.topics[topic] {
		if c.userID == userID {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range targets {
		m.Remove(c.id)
		c.close(m.writeTimeout)
		m.log.WithFields(logrus.Fields{"user_id": userID, "topic": topic, "conn_id": c.id}).Debug("topic subscription dropped")
	}
	return nil
}

// Subscribers - число локальных подписчиков топика
func (m *WSConnManager) Subscribers(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.topics[topic])
}

func (m *WSConnManager) Send(ctx context.Context, userID int64, topic string, payload []byte) error {
	m.mu.RLock()
	targets := make([]*wsClient, 0, len(m.users[userID]))
	for _, c := range m.users[userID] {
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	if len(targets) == 0 {
		return ErrRecipientOffline
	}
	if delivered := m.writeAll(ctx, targets, payload); delivered == 0 {
		return fmt.Errorf("%w: all %d connections of user %d failed on %s", ErrDeliveryFailure, len(targets), userID, topic)
	}
	return nil
}

// Broadcast рассылает подписчикам топика; отсутствие подписчиков ошибкой не считается
func (m *WSConnManager) Broadcast(ctx context.Context, topic string, payload []byte) error {
	m.mu.RLock()
	targets := make([]*wsClient, 0, len(m.topics[topic]))
	for _, c := range m.topics[topic] {
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}
	if delivered := m.writeAll(ctx, targets, payload); delivered == 0 {
		return fmt.Errorf("%w: broadcast to %s failed", ErrDeliveryFailure, topic)
	}
	return nil
}

// writeAll пишет вне общей блокировки; соединение с ошибкой записи закрывается и снимается
func (m *WSConnManager) writeAll(ctx context.Context, targets []*wsClient, payload []byte) int {
	deadline := time.Now().Add(m.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	delivered := 0
	for _, c := range targets {
		if err := c.write(deadline, payload); err != nil {
			m.log.WithError(err).WithField("conn_id", c.id).Warn("websocket write failed, dropping connection")
			m.Remove(c.id)
			_ = c.conn.Close()
			continue
		}
		delivered++
	}
	return delivered
}
