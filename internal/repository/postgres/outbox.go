package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/localnotify/internal/model"
	"github.com/jwalitptl/localnotify/internal/repository"
	"github.com/jwalitptl/localnotify/pkg/messaging"
)

// OutboxRepository stores lifecycle events in outbox_events so they survive
// a broker outage; the worker relays them.
type OutboxRepository struct {
	BaseRepository
	now func() time.Time
}

var (
	_ repository.OutboxRepository = (*OutboxRepository)(nil)
	_ messaging.Publisher         = (*OutboxRepository)(nil)
)

func NewOutboxRepository(base BaseRepository) *OutboxRepository {
	return &OutboxRepository{BaseRepository: base, now: time.Now}
}

// Publish records the event for later delivery.
func (r *OutboxRepository) Publish(ctx context.Context, eventType string, payload interface{}) error {
	event, err := model.NewOutboxEvent(eventType, payload, r.now())
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}
	return r.Create(ctx, event)
}

func (r *OutboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, status, retry_count, created_at
		) VALUES (
			:id, :event_type, :payload, :status, :retry_count, :created_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// ProcessPending locks up to limit pending events and hands each to fn in
// creation order. Events fn accepts are marked processed; rejected ones have
// their retry count bumped and are marked failed after maxRetries.
func (r *OutboxRepository) ProcessPending(ctx context.Context, limit, maxRetries int, fn func(*model.OutboxEvent) error) (int, error) {
	processed := 0
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var events []*model.OutboxEvent
		if err := tx.SelectContext(ctx, &events, `
			SELECT id, event_type, payload, status, error_message, retry_count, created_at, processed_at
			FROM outbox_events
			WHERE status = $1
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, model.OutboxStatusPending, limit); err != nil {
			return fmt.Errorf("failed to get pending events: %w", err)
		}

		for _, event := range events {
			if relayErr := fn(event); relayErr != nil {
				if err := r.markRetry(ctx, tx, event.ID, event.RetryCount+1, maxRetries, relayErr); err != nil {
					return err
				}
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE outbox_events SET status = $1, processed_at = $2, error_message = NULL
				WHERE id = $3
			`, model.OutboxStatusProcessed, r.now(), event.ID); err != nil {
				return fmt.Errorf("failed to mark event processed: %w", err)
			}
			processed++
		}
		return nil
	})
	return processed, err
}

func (r *OutboxRepository) markRetry(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, retries, maxRetries int, cause error) error {
	status := model.OutboxStatusPending
	if retries >= maxRetries {
		status = model.OutboxStatusFailed
	}
	msg := cause.Error()
	if _, err := tx.ExecContext(ctx, `
		UPDATE outbox_events SET status = $1, retry_count = $2, error_message = $3
		WHERE id = $4
	`, status, retries, msg, id); err != nil {
		return fmt.Errorf("failed to record event failure: %w", err)
	}
	return nil
}

func (r *OutboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM outbox_events
		WHERE status = $1
		AND processed_at < $2
	`, model.OutboxStatusProcessed, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}
	return result.RowsAffected()
}
