package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/localnotify/internal/model"
	"github.com/jwalitptl/localnotify/pkg/messaging"
)

// memoryOutbox mimics the Postgres outbox: failures bump the retry count
// until the event is marked failed.
type memoryOutbox struct {
	mu      sync.Mutex
	events  []*model.OutboxEvent
	deleted []time.Time
}

func (m *memoryOutbox) add(t *testing.T, eventType string, payload interface{}) *model.OutboxEvent {
	t.Helper()
	event, err := model.NewOutboxEvent(eventType, payload, time.Now())
	require.NoError(t, err)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return event
}

func (m *memoryOutbox) ProcessPending(_ context.Context, limit, maxRetries int, fn func(*model.OutboxEvent) error) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	processed := 0
	for _, e := range m.events {
		if processed >= limit || e.Status != model.OutboxStatusPending {
			continue
		}
		if err := fn(e); err != nil {
			e.RetryCount++
			msg := err.Error()
			e.ErrorMessage = &msg
			if e.RetryCount >= maxRetries {
				e.Status = model.OutboxStatusFailed
			}
			continue
		}
		now := time.Now()
		e.Status = model.OutboxStatusProcessed
		e.ProcessedAt = &now
		processed++
	}
	return processed, nil
}

func (m *memoryOutbox) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, before)
	return 0, nil
}

type recordingBroker struct {
	mu        sync.Mutex
	published []messaging.Message
	channels  []string
	err       error
}

func (b *recordingBroker) Publish(_ context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.channels = append(b.channels, channel)
	b.published = append(b.published, message.(messaging.Message))
	return nil
}

func (b *recordingBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *recordingBroker) Close() error { return nil }

func TestNewOutboxRelayValidatesConfig(t *testing.T) {
	_, err := NewOutboxRelay(&memoryOutbox{}, &recordingBroker{}, OutboxRelayConfig{}, nil)
	assert.Error(t, err)

	_, err = NewOutboxRelay(&memoryOutbox{}, &recordingBroker{}, DefaultOutboxRelayConfig("events"), nil)
	assert.NoError(t, err)
}

func TestRelayOncePublishesInOrder(t *testing.T) {
	repo := &memoryOutbox{}
	repo.add(t, messaging.EventNotificationScheduled, map[string]string{"id": "a"})
	repo.add(t, messaging.EventNotificationCancelled, map[string]string{"id": "a"})
	broker := &recordingBroker{}

	relay, err := NewOutboxRelay(repo, broker, DefaultOutboxRelayConfig("events"), nil)
	require.NoError(t, err)

	sent, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, broker.published, 2)
	assert.Equal(t, []string{"events", "events"}, broker.channels)
	assert.Equal(t, messaging.EventNotificationScheduled, broker.published[0].Type)
	assert.Equal(t, messaging.EventNotificationCancelled, broker.published[1].Type)

	payload, ok := broker.published[0].Payload.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"a"}`, string(payload))
	assert.Len(t, repo.deleted, 1)

	sent, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Len(t, broker.published, 2)
}

func TestRelayOnceGivesUpAfterMaxRetries(t *testing.T) {
	repo := &memoryOutbox{}
	event := repo.add(t, messaging.EventNotificationsCleared, nil)
	broker := &recordingBroker{err: errors.New("circuit breaker is open")}

	config := DefaultOutboxRelayConfig("events")
	config.MaxRetries = 2
	relay, err := NewOutboxRelay(repo, broker, config, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		sent, err := relay.RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, sent)
	}
	assert.Equal(t, model.OutboxStatusFailed, event.Status)
	assert.Equal(t, 2, event.RetryCount)
	require.NotNil(t, event.ErrorMessage)
	assert.Equal(t, "circuit breaker is open", *event.ErrorMessage)
}
