package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/localnotify/pkg/logger"
	"github.com/jwalitptl/localnotify/pkg/messaging"
)

// EventListener follows the lifecycle events the API publishes and logs them.
type EventListener struct {
	broker   messaging.Broker
	channel  string
	logger   *logger.Logger
	received *prometheus.CounterVec
}

func NewEventListener(broker messaging.Broker, channel string, log *logger.Logger, reg prometheus.Registerer) *EventListener {
	if log == nil {
		log = logger.Nop()
	}
	l := &EventListener{broker: broker, channel: channel, logger: log}
	if reg != nil {
		l.received = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "localnotify_worker_events_received_total",
			Help: "Lifecycle events received by type",
		}, []string{"type"})
		reg.MustRegister(l.received)
	}
	return l
}

// Run blocks until ctx is done or the subscription ends.
func (l *EventListener) Run(ctx context.Context) error {
	msgs, err := l.broker.Subscribe(ctx, l.channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	l.logger.Info("Listening for notification events", "channel", l.channel)
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-msgs:
			if !ok {
				return nil
			}
			l.handle(raw)
		}
	}
}

func (l *EventListener) handle(raw []byte) {
	var msg messaging.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		l.logger.Warn("Dropping malformed event", "error", err.Error())
		l.count("malformed")
		return
	}
	l.count(msg.Type)
	l.logger.Info("Notification event", "type", msg.Type, "occurred_at", msg.OccurredAt, "payload", msg.Payload)
}

func (l *EventListener) count(eventType string) {
	if l.received != nil {
		l.received.WithLabelValues(eventType).Inc()
	}
}
