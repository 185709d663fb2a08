package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"joinmatch/logs"
)

func newEnvelope(userID int64, topic string, payload []byte) PushEnvelope {
	return PushEnvelope{ID: uuid.NewString(), UserID: userID, Topic: topic, Payload: payload}
}

func leaveEnvelope(topic string, userID int64) PushEnvelope {
	return PushEnvelope{ID: uuid.NewString(), Kind: EnvelopeLeave, UserID: userID, Topic: topic}
}

// routingKey: user.<id> для персональных событий, topic.<topic> для рассылок
func routingKey(env PushEnvelope) string {
	if env.UserID != 0 {
		return fmt.Sprintf("user.%d", env.UserID)
	}
	return "topic." + strings.ReplaceAll(env.Topic, ".", "_")
}

// RabbitPushChannel публикует события в topic exchange; каждый инстанс читает их через свою эксклюзивную очередь
type RabbitPushChannel struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	local    *WSConnManager
	log      *logrus.Entry
}

// NewRabbitPushChannel подключается к брокеру и объявляет exchange
func NewRabbitPushChannel(url, exchange string, local *WSConnManager) (*RabbitPushChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	// Создаем exchange типа topic
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,   // args
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &RabbitPushChannel{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		local:    local,
		log:      logs.For("rabbitmq_push"),
	}, nil
}

func (r *RabbitPushChannel) publish(ctx context.Context, env PushEnvelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	err = r.channel.PublishWithContext(ctx,
		r.exchange,
		routingKey(env),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   env.ID,
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("%w: rabbitmq publish: %v", ErrDeliveryFailure, err)
	}
	return nil
}

func (r *RabbitPushChannel) Send(ctx context.Context, userID int64, topic string, payload []byte) error {
	return r.publish(ctx, newEnvelope(userID, topic, payload))
}

func (r *RabbitPushChannel) Broadcast(ctx context.Context, topic string, payload []byte) error {
	return r.publish(ctx, newEnvelope(0, topic, payload))
}

// Leave уходит по ключу user.<id>, его получают все инстансы
func (r *RabbitPushChannel) Leave(ctx context.Context, topic string, userID int64) error {
	return r.publish(ctx, leaveEnvelope(topic, userID))
}

// Start объявляет эксклюзивную очередь инстанса, привязывает ее ко всем ключам и запускает консьюмер
func (r *RabbitPushChannel) Start(ctx context.Context) error {
	q, err := r.channel.QueueDeclare(
		"",    // имя назначит брокер
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	for _, key := range []string{"user.*", "topic.*"} {
		if err := r.channel.QueueBind(q.Name, key, r.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue: %w", err)
		}
	}
	msgs, err := r.channel.Consume(
		q.Name,
		"",
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					r.log.Warn("rabbitmq delivery channel closed")
					return
				}
				deliverEnvelope(ctx, r.local, msg.Body, r.log)
			}
		}
	}()
	r.log.WithField("queue", q.Name).Info("rabbitmq push relay started")
	return nil
}

func (r *RabbitPushChannel) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
