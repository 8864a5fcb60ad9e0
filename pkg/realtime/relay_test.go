package realtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clinicnotify/pkg/broadcast"
	"github.com/dmitrymomot/clinicnotify/pkg/logger"
	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
	"github.com/dmitrymomot/clinicnotify/pkg/realtime"
)

// relayNode is one notifyd instance sharing a Redis with its peers.
type relayNode struct {
	hub      *realtime.Hub
	store    *notifications.MemoryStorage
	notifier *notifications.Notifier
}

func newRelayNode(t *testing.T, ctx context.Context, client *redis.Client) *relayNode {
	t.Helper()

	var relay *broadcast.RedisRelay[notifications.Envelope]
	hub := realtime.NewHub(realtime.WithPublisher(func(local *broadcast.Topics[notifications.Envelope]) broadcast.Publisher[notifications.Envelope] {
		relay = broadcast.NewRedisRelay(client, local, broadcast.WithRelayLogger(logger.Discard()))
		return relay
	}))
	go func() { _ = relay.Run(ctx) }()

	store := notifications.NewMemoryStorage()
	directory := notifications.NewMemoryDirectory(
		notifications.Recipient{ID: 7, FirstName: "Alice", Role: notifications.RolePatient},
	)
	dispatcher := notifications.NewDispatcher(hub,
		notifications.WithSendTimeout(time.Second),
		notifications.WithDispatcherLogger(logger.Discard()),
	)
	n := &relayNode{
		hub:      hub,
		store:    store,
		notifier: notifications.NewNotifier(store, directory, dispatcher, notifications.WithNotifierLogger(logger.Discard())),
	}
	t.Cleanup(func() {
		_ = n.notifier.Close(context.Background())
		_ = hub.Close()
	})
	return n
}

func (n *relayNode) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, n.notifier.Wait(ctx))
}

func TestHub_RelayKeepsOfflineRecipientPending(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	node := newRelayNode(t, ctx, client)
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumPat(ctx).Result()
		return err == nil && n >= 1
	}, 2*time.Second, 10*time.Millisecond)

	n, err := node.notifier.NotifyResultReady(ctx, notifications.ResultReady{PatientID: 7, TestName: "CBC", ResultID: 99, Status: "NORMAL"})
	require.NoError(t, err)
	node.wait(t)

	stored, err := node.store.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.DeliveryPending, stored.DeliveryStatus)
	assert.False(t, stored.Sent)
	assert.Nil(t, stored.SentAt)
}

func TestHub_RelayReachesPeerNode(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sender := newRelayNode(t, ctx, client)
	peer := newRelayNode(t, ctx, client)
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumPat(ctx).Result()
		return err == nil && n >= 2
	}, 2*time.Second, 10*time.Millisecond)

	sub := peer.hub.Subscribe(ctx, notifications.PrimaryChannel(7))
	defer sub.Close()

	reached, err := sender.hub.Publish(ctx, notifications.PrimaryChannel(7), notifications.Envelope{Title: "Results ready"})
	require.NoError(t, err)
	assert.Equal(t, notifications.ReachUnknown, reached)

	select {
	case msg := <-sub.Receive(ctx):
		assert.Equal(t, "Results ready", msg.Data.Title)
	case <-ctx.Done():
		t.Fatal("relayed envelope not received")
	}
}
