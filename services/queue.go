package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"joinmatch/logs"
)

// PushQueue - пул воркеров, выполняющих доставку вне пути запроса.
// Очередь ограничена: при переполнении событие отбрасывается, запись в БД это не затрагивает
type PushQueue struct {
	channel   PushChannel
	tasks     chan pushTask
	workers   int
	timeout   time.Duration
	transport string
	wg        sync.WaitGroup
	log       *logrus.Entry
}

func NewPushQueue(channel PushChannel, workers, size int, timeout time.Duration, transport string) *PushQueue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 1
	}
	return &PushQueue{
		channel:   channel,
		tasks:     make(chan pushTask, size),
		workers:   workers,
		timeout:   timeout,
		transport: transport,
		log:       logs.For("push_queue"),
	}
}

// StartWorkers запускает воркеры; они завершаются по отмене ctx
func (q *PushQueue) StartWorkers(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Wait дожидается остановки воркеров
func (q *PushQueue) Wait() {
	q.wg.Wait()
}

func (q *PushQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()
	q.log.WithField("worker", workerID).Debug("push worker started")
	for {
		select {
		case <-ctx.Done():
			q.log.WithField("worker", workerID).Debug("push worker stopping")
			return
		case task := <-q.tasks:
			deliver(ctx, q.channel, task, q.timeout, q.transport)
		}
	}
}

func (q *PushQueue) enqueue(task pushTask) bool {
	select {
	case q.tasks <- task:
		return true
	default:
		q.log.WithFields(logrus.Fields{"user_id": task.userID, "topic": task.topic}).Warn("push queue is full, event dropped")
		pushDeliveriesTotal.WithLabelValues(q.transport, "dropped").Inc()
		return false
	}
}

func (q *PushQueue) PushToUser(userID int64, topic string, payload []byte) {
	q.enqueue(pushTask{userID: userID, topic: topic, payload: payload})
}

func (q *PushQueue) PushToTopic(topic string, payload []byte) {
	q.enqueue(pushTask{topic: topic, payload: payload})
}

// Unsubscribe не ставится в очередь: задачи рассылки, добавленные после него, не должны его обогнать
func (q *PushQueue) Unsubscribe(topic string, userID int64) {
	unsubscribe(q.channel, topic, userID, q.timeout, q.transport)
}

// Len - текущая длина очереди
func (q *PushQueue) Len() int {
	return len(q.tasks)
}
