package repository

import (
	"context"
	"time"

	"github.com/jwalitptl/localnotify/internal/model"
)

// All repository interfaces in one file
type (
	// NotificationBackend is the platform notification store: it owns the
	// permission state and the set of pending requests.
	NotificationBackend interface {
		RequestAuthorization(ctx context.Context, options model.AuthorizationOptions) (bool, error)
		GetAuthorizationSettings(ctx context.Context) (*model.NotificationSettings, error)
		AddPendingRequest(ctx context.Context, request *model.PendingRequest) error
		// RemovePendingRequests ignores identifiers that are not pending.
		RemovePendingRequests(ctx context.Context, ids []string) error
		RemoveAllPendingRequests(ctx context.Context) error
		GetPendingRequests(ctx context.Context) ([]*model.PendingRequest, error)
		SetCategories(ctx context.Context, categories []model.NotificationCategory) error
	}

	// IntervalStore remembers the repeat interval a request was scheduled with,
	// which the backend's trigger cannot represent.
	IntervalStore interface {
		Save(ctx context.Context, id string, interval model.RepeatInterval) error
		Get(ctx context.Context, id string) (model.RepeatInterval, bool, error)
		Delete(ctx context.Context, ids ...string) error
		Clear(ctx context.Context) error
	}

	// PendingPruner is implemented by backends that keep fired requests
	// around until something removes them.
	PendingPruner interface {
		DeleteFiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	// OutboxRepository hands stored lifecycle events to a relay.
	OutboxRepository interface {
		ProcessPending(ctx context.Context, limit, maxRetries int, fn func(*model.OutboxEvent) error) (int, error)
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
