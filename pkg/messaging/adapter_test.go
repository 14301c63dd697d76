package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureBroker struct {
	channel string
	message interface{}
	err     error
}

func (b *captureBroker) Publish(_ context.Context, channel string, message interface{}) error {
	b.channel = channel
	b.message = message
	return b.err
}

func (b *captureBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *captureBroker) Close() error { return nil }

func TestChannelPublisherWrapsMessage(t *testing.T) {
	broker := &captureBroker{}
	p := NewChannelPublisher(broker, "localnotify.events")
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	p.now = func() time.Time { return at }

	require.NoError(t, p.Publish(context.Background(), EventNotificationCancelled, map[string]string{"id": "a"}))

	assert.Equal(t, "localnotify.events", broker.channel)
	msg, ok := broker.message.(Message)
	require.True(t, ok)
	assert.Equal(t, EventNotificationCancelled, msg.Type)
	assert.Equal(t, map[string]string{"id": "a"}, msg.Payload)
	assert.Equal(t, at.UTC(), msg.OccurredAt)
}

func TestChannelPublisherReturnsBrokerError(t *testing.T) {
	broker := &captureBroker{err: errors.New("breaker open")}
	p := NewChannelPublisher(broker, "events")

	err := p.Publish(context.Background(), EventNotificationsCleared, nil)
	assert.EqualError(t, err, "breaker open")
}
