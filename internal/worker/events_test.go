package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/localnotify/pkg/messaging"
	redisBroker "github.com/jwalitptl/localnotify/pkg/messaging/redis"
)

func receivedCount(t *testing.T, reg *prometheus.Registry, eventType string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "localnotify_worker_events_received_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "type" && label.GetValue() == eventType {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestEventListenerCountsEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	broker := redisBroker.NewRedisBrokerWithClient(client, redisBroker.Config{}, nil)
	t.Cleanup(func() { broker.Close() })

	reg := prometheus.NewRegistry()
	listener := NewEventListener(broker, "events", nil, reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	publisher := messaging.NewChannelPublisher(broker, "events")
	assert.Eventually(t, func() bool {
		_ = publisher.Publish(context.Background(), messaging.EventNotificationScheduled, map[string]string{"id": "a"})
		return receivedCount(t, reg, messaging.EventNotificationScheduled) > 0
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, broker.Publish(context.Background(), "events", "not a message"))
	assert.Eventually(t, func() bool {
		return receivedCount(t, reg, "malformed") == 1
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}
