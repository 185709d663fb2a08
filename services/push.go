package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"joinmatch/logs"
)

const (
	// TopicNotifications - персональный топик пользователя для уведомлений
	TopicNotifications = "notifications"
)

var ErrRecipientOffline = fmt.Errorf("%w: recipient offline", ErrDeliveryFailure)

// ConversationTopic - топик беседы для рассылки новых сообщений подписчикам
func ConversationTopic(conversationID int64) string {
	return fmt.Sprintf("conversation.%d", conversationID)
}

// PushChannel - канал live-доставки до подключенных клиентов.
// Доставка best-effort: ошибка означает только то, что событие не ушло сейчас
type PushChannel interface {
	Send(ctx context.Context, userID int64, topic string, payload []byte) error
	Broadcast(ctx context.Context, topic string, payload []byte) error
	// Leave отключает подписки пользователя на топик на всех инстансах
	Leave(ctx context.Context, topic string, userID int64) error
}

// Pusher - то, через что сервисы отправляют события; не возвращает ошибок.
// Unsubscribe выполняется синхронно, чтобы следующая рассылка по топику уже не дошла до пользователя
type Pusher interface {
	PushToUser(userID int64, topic string, payload []byte)
	PushToTopic(topic string, payload []byte)
	Unsubscribe(topic string, userID int64)
}

// PushEvent - формат кадра, который получает клиент
type PushEvent struct {
	ID    string      `json:"id"`
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func encodeEvent(event string, data interface{}) ([]byte, error) {
	return json.Marshal(PushEvent{ID: uuid.NewString(), Event: event, Data: data})
}

type pushTask struct {
	userID  int64
	topic   string
	payload []byte
}

func (t pushTask) broadcast() bool {
	return t.userID == 0
}

// deliver выполняет одну попытку доставки с таймаутом, результат только логируется и считается в метриках
func deliver(ctx context.Context, channel PushChannel, task pushTask, timeout time.Duration, transport string) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	if task.broadcast() {
		err = channel.Broadcast(ctx, task.topic, task.payload)
	} else {
		err = channel.Send(ctx, task.userID, task.topic, task.payload)
	}
	result := "ok"
	if err != nil {
		result = "failed"
		entry := logs.For("push").WithFields(logrus.Fields{
			"user_id":   task.userID,
			"topic":     task.topic,
			"transport": transport,
		})
		if errors.Is(err, ErrRecipientOffline) {
			result = "offline"
			entry.Debug("recipient offline, push skipped")
		} else {
			entry.WithError(err).Warn("push delivery failed")
		}
	}
	pushDeliveriesTotal.WithLabelValues(transport, result).Inc()
}

// unsubscribe снимает подписки пользователя с топика; ошибка только логируется
func unsubscribe(channel PushChannel, topic string, userID int64, timeout time.Duration, transport string) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := channel.Leave(ctx, topic, userID); err != nil {
		logs.For("push").WithError(err).WithFields(logrus.Fields{
			"user_id":   userID,
			"topic":     topic,
			"transport": transport,
		}).Warn("failed to drop topic subscription")
	}
}

// DirectPusher доставляет синхронно в вызывающей горутине с ограничением по времени
type DirectPusher struct {
	channel   PushChannel
	timeout   time.Duration
	transport string
}

func NewDirectPusher(channel PushChannel, timeout time.Duration, transport string) *DirectPusher {
	return &DirectPusher{channel: channel, timeout: timeout, transport: transport}
}

func (p *DirectPusher) PushToUser(userID int64, topic string, payload []byte) {
	deliver(context.Background(), p.channel, pushTask{userID: userID, topic: topic, payload: payload}, p.timeout, p.transport)
}

func (p *DirectPusher) PushToTopic(topic string, payload []byte) {
	deliver(context.Background(), p.channel, pushTask{topic: topic, payload: payload}, p.timeout, p.transport)
}

func (p *DirectPusher) Unsubscribe(topic string, userID int64) {
	unsubscribe(p.channel, topic, userID, p.timeout, p.transport)
}
