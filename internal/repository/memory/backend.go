// Package memory holds in-process implementations of the repository
// interfaces. The backend behaves like a device notification center: it
// remembers the permission decision, keeps pending requests and forgets
// one-shot requests once they have fired.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jwalitptl/localnotify/internal/model"
	"github.com/jwalitptl/localnotify/internal/repository"
)

type Option func(*Backend)

// WithDecision sets what the simulated user answers to the first prompt.
func WithDecision(status model.AuthorizationStatus) Option {
	return func(b *Backend) {
		b.decision = status
	}
}

// WithInitialStatus starts the backend with a decision already made.
func WithInitialStatus(status model.AuthorizationStatus) Option {
	return func(b *Backend) {
		b.status = status
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

type Backend struct {
	mu         sync.RWMutex
	status     model.AuthorizationStatus
	decision   model.AuthorizationStatus
	prompts    int
	requests   map[string]*model.PendingRequest
	categories []model.NotificationCategory
	now        func() time.Time
}

var _ repository.NotificationBackend = (*Backend)(nil)

func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		status:   model.AuthorizationNotDetermined,
		decision: model.AuthorizationAuthorized,
		requests: make(map[string]*model.PendingRequest),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RequestAuthorization prompts once. After a terminal decision the stored
// answer is returned without prompting again.
func (b *Backend) RequestAuthorization(ctx context.Context, options model.AuthorizationOptions) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !options.Alert && !options.Sound && !options.Badge && !options.Provisional {
		return false, fmt.Errorf("at least one authorization option is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.status.Terminal() {
		b.prompts++
		b.status = b.decision
		if options.Provisional && b.status == model.AuthorizationNotDetermined {
			b.status = model.AuthorizationProvisional
		}
	}
	return b.status.CanSchedule(), nil
}

func (b *Backend) GetAuthorizationSettings(ctx context.Context) (*model.NotificationSettings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return &model.NotificationSettings{AuthorizationStatus: b.status}, nil
}

// AddPendingRequest replaces any request with the same identifier.
func (b *Backend) AddPendingRequest(ctx context.Context, request *model.PendingRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if request == nil || request.Identifier == "" {
		return fmt.Errorf("request identifier is required")
	}
	if request.Trigger == nil {
		return fmt.Errorf("request trigger is required")
	}

	stored := clonePending(request)
	now := b.now()
	switch t := stored.Trigger.(type) {
	case *model.CalendarTrigger:
		cp := *t
		stored.Trigger = &cp
	case *model.TimeIntervalTrigger:
		cp := *t
		if cp.Anchor.IsZero() {
			cp.Anchor = now
		}
		stored.Trigger = &cp
	default:
		return fmt.Errorf("unsupported trigger kind %q", request.Trigger.Kind())
	}
	stored.CreatedAt = now

	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests[stored.Identifier] = stored
	return nil
}

func (b *Backend) RemovePendingRequests(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		delete(b.requests, id)
	}
	return nil
}

func (b *Backend) RemoveAllPendingRequests(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = make(map[string]*model.PendingRequest)
	return nil
}

// GetPendingRequests drops fired one-shot requests before listing.
func (b *Backend) GetPendingRequests(ctx context.Context) ([]*model.PendingRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	pending := make([]*model.PendingRequest, 0, len(b.requests))
	for id, r := range b.requests {
		if _, ok := r.Trigger.NextFireDate(now); !ok && !r.Trigger.Repeats() {
			delete(b.requests, id)
			continue
		}
		pending = append(pending, clonePending(r))
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].Identifier < pending[j].Identifier
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (b *Backend) SetCategories(ctx context.Context, categories []model.NotificationCategory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.categories = append([]model.NotificationCategory(nil), categories...)
	return nil
}

// SetAuthorizationStatus simulates the user changing the permission in system settings.
func (b *Backend) SetAuthorizationStatus(status model.AuthorizationStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

// Prompts reports how many times the user was actually asked.
func (b *Backend) Prompts() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.prompts
}

func (b *Backend) Categories() []model.NotificationCategory {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]model.NotificationCategory(nil), b.categories...)
}

func clonePending(r *model.PendingRequest) *model.PendingRequest {
	cp := *r
	if r.Content.UserInfo != nil {
		cp.Content.UserInfo = make(map[string]interface{}, len(r.Content.UserInfo))
		for k, v := range r.Content.UserInfo {
			cp.Content.UserInfo[k] = v
		}
	}
	return &cp
}
