package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/localnotify/internal/model"
	"github.com/jwalitptl/localnotify/internal/repository"
	"github.com/jwalitptl/localnotify/pkg/logger"
	"github.com/jwalitptl/localnotify/pkg/messaging"
)

type OutboxRelayConfig struct {
	Channel      string
	BatchSize    int
	PollInterval time.Duration
	MaxRetries   int
	// Retention is how long processed events are kept before deletion.
	Retention time.Duration
}

func DefaultOutboxRelayConfig(channel string) OutboxRelayConfig {
	return OutboxRelayConfig{
		Channel:      channel,
		BatchSize:    50,
		PollInterval: time.Second,
		MaxRetries:   5,
		Retention:    24 * time.Hour,
	}
}

// OutboxRelay moves stored lifecycle events onto the broker channel.
type OutboxRelay struct {
	repo   repository.OutboxRepository
	broker messaging.Broker
	config OutboxRelayConfig
	logger *logger.Logger
	now    func() time.Time
}

func NewOutboxRelay(repo repository.OutboxRepository, broker messaging.Broker, config OutboxRelayConfig, log *logger.Logger) (*OutboxRelay, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be greater than 0")
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return nil, fmt.Errorf("max retries must be greater than 0")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OutboxRelay{
		repo:   repo,
		broker: broker,
		config: config,
		logger: log,
		now:    time.Now,
	}, nil
}

func (r *OutboxRelay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	r.logger.Info("Starting outbox relay", "channel", r.config.Channel)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Shutting down outbox relay")
			return
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil {
				r.logger.Error(err, "Failed to relay events")
			}
		}
	}
}

// RelayOnce publishes one batch and removes processed events past retention.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	sent, err := r.repo.ProcessPending(ctx, r.config.BatchSize, r.config.MaxRetries, func(event *model.OutboxEvent) error {
		err := r.broker.Publish(ctx, r.config.Channel, messaging.Message{
			Type:       event.EventType,
			Payload:    event.Payload,
			OccurredAt: event.CreatedAt.UTC(),
		})
		if err != nil {
			r.logger.Warn("Failed to relay event",
				"event_id", event.ID.String(),
				"event_type", event.EventType,
				"retry_count", event.RetryCount,
				"error", err.Error())
		}
		return err
	})
	if err != nil {
		return sent, fmt.Errorf("failed to process outbox: %w", err)
	}

	if r.config.Retention > 0 {
		if _, err := r.repo.DeleteProcessedBefore(ctx, r.now().Add(-r.config.Retention)); err != nil {
			return sent, err
		}
	}
	if sent > 0 {
		r.logger.Debug("Relayed outbox events", "count", sent)
	}
	return sent, nil
}
