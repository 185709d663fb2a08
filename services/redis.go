package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"joinmatch/config"
	"joinmatch/logs"
)

const RedisPushChannelName = "push_events"

// EnvelopeLeave - управляющий конверт: снять подписки UserID на Topic
const EnvelopeLeave = "leave"

// PushEnvelope - событие, которое ретранслируется между инстансами.
// UserID == 0 означает рассылку по топику
type PushEnvelope struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind,omitempty"`
	UserID  int64           `json:"user_id,omitempty"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// deliverEnvelope доставляет пришедшее событие локальным соединениям
func deliverEnvelope(ctx context.Context, local *WSConnManager, body []byte, log *logrus.Entry) {
	var env PushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		log.WithError(err).Warn("failed to unmarshal push envelope")
		return
	}
	var err error
	if env.Kind == EnvelopeLeave {
		err = local.Leave(ctx, env.Topic, env.UserID)
	} else if env.UserID != 0 {
		err = local.Send(ctx, env.UserID, env.Topic, env.Payload)
		if errors.Is(err, ErrRecipientOffline) {
			// пользователь подключен к другому инстансу
			return
		}
	} else {
		err = local.Broadcast(ctx, env.Topic, env.Payload)
	}
	if err != nil {
		log.WithError(err).WithField("envelope_id", env.ID).Warn("local delivery failed")
	}
}

func InitRedis(conf config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		Password: conf.Password,
		DB:       conf.DB,
	})

	// Тест соединения
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisPushChannel публикует события в pub/sub канал; каждый инстанс подписан и доставляет их своим соединениям
type RedisPushChannel struct {
	client  *redis.Client
	channel string
	local   *WSConnManager
	log     *logrus.Entry
}

func NewRedisPushChannel(client *redis.Client, local *WSConnManager) *RedisPushChannel {
	return &RedisPushChannel{
		client:  client,
		channel: RedisPushChannelName,
		local:   local,
		log:     logs.For("redis_push"),
	}
}

func (r *RedisPushChannel) publish(ctx context.Context, env PushEnvelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err = r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("%w: redis publish: %v", ErrDeliveryFailure, err)
	}
	return nil
}

func (r *RedisPushChannel) Send(ctx context.Context, userID int64, topic string, payload []byte) error {
	return r.publish(ctx, newEnvelope(userID, topic, payload))
}

func (r *RedisPushChannel) Broadcast(ctx context.Context, topic string, payload []byte) error {
	return r.publish(ctx, newEnvelope(0, topic, payload))
}

func (r *RedisPushChannel) Leave(ctx context.Context, topic string, userID int64) error {
	return r.publish(ctx, leaveEnvelope(topic, userID))
}

// Start подписывается на канал и запускает доставку до отмены ctx
func (r *RedisPushChannel) Start(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	msgs := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				deliverEnvelope(ctx, r.local, []byte(msg.Payload), r.log)
			}
		}
	}()
	r.log.WithField("channel", r.channel).Info("redis push relay started")
	return nil
}
