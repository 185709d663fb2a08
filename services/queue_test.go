package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingChannel держит доставку до закрытия release
type blockingChannel struct {
	fakeChannel
	release chan struct{}
}

func (b *blockingChannel) Send(ctx context.Context, userID int64, topic string, payload []byte) error {
	<-b.release
	return b.fakeChannel.Send(ctx, userID, topic, payload)
}

func TestPushQueueDeliversAsync(t *testing.T) {
	channel := &fakeChannel{}
	q := NewPushQueue(channel, 2, 16, time.Second, "test")
	ctx, cancel := context.WithCancel(context.Background())
	q.StartWorkers(ctx)

	for i := int64(1); i <= 5; i++ {
		q.PushToUser(i, TopicNotifications, []byte("n"))
	}
	q.PushToTopic(ConversationTopic(1), []byte("m"))

	require.Eventually(t, func() bool { return len(channel.pushes()) == 6 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	q.Wait()
}

func TestPushQueueDropsWhenFull(t *testing.T) {
	channel := &blockingChannel{release: make(chan struct{})}
	q := NewPushQueue(channel, 1, 1, time.Second, "test")
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		q.Wait()
	}()
	q.StartWorkers(ctx)

	// первая задача занимает воркер, вторая - единственное место в очереди
	assert.True(t, q.enqueue(pushTask{userID: 1, topic: TopicNotifications}))
	require.Eventually(t, func() bool { return q.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, q.enqueue(pushTask{userID: 2, topic: TopicNotifications}))
	assert.False(t, q.enqueue(pushTask{userID: 3, topic: TopicNotifications}))

	close(channel.release)
	require.Eventually(t, func() bool { return len(channel.pushes()) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestPushQueueUnsubscribeIsSynchronous(t *testing.T) {
	channel := &fakeChannel{}
	q := NewPushQueue(channel, 1, 4, time.Second, "test")

	// воркеры не запущены: отписка все равно выполняется сразу, мимо очереди
	q.Unsubscribe(ConversationTopic(3), 12)
	assert.Equal(t, []leftTopic{{topic: ConversationTopic(3), userID: 12}}, channel.leaves())
	assert.Zero(t, q.Len())
}
