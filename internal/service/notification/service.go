// Package notification owns the permission state and the mirror of pending
// notifications, and translates requests into backend triggers.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/jwalitptl/localnotify/internal/model"
	"github.com/jwalitptl/localnotify/internal/repository"
	"github.com/jwalitptl/localnotify/internal/service/audit"
	"github.com/jwalitptl/localnotify/pkg/logger"
	"github.com/jwalitptl/localnotify/pkg/messaging"
	"github.com/jwalitptl/localnotify/pkg/metrics"
	"github.com/jwalitptl/localnotify/pkg/validator"
)

const DefaultErrorClearDelay = 3 * time.Second

// Auditor records lifecycle events; *audit.Service implements it.
type Auditor interface {
	Log(ctx context.Context, action, entityID string, opts *audit.LogOptions)
}

// State is a consistent snapshot of everything the service publishes.
type State struct {
	AuthorizationStatus  model.AuthorizationStatus    `json:"authorization_status"`
	CanSchedule          bool                         `json:"can_schedule"`
	PendingNotifications []*model.NotificationRequest `json:"pending_notifications"`
	LastError            *string                      `json:"last_error"`
}

type Option func(*Service)

// WithIntervalStore records each repeating request's interval so reloads
// report it exactly instead of guessing from the trigger shape.
func WithIntervalStore(store repository.IntervalStore) Option {
	return func(s *Service) {
		s.intervals = store
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLocation sets the zone calendar components are taken in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithErrorClearDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.clearDelay = d
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPublisher(p messaging.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithRecheckBeforeSchedule makes ScheduleNotification query the backend for
// the current permission instead of trusting the cached status.
func WithRecheckBeforeSchedule(enabled bool) Option {
	return func(s *Service) {
		s.recheck = enabled
	}
}

// WithGranularRepeats makes a repeating trigger match only the fields its
// interval implies, so it recurs hourly, daily or weekly.
func WithGranularRepeats(enabled bool) Option {
	return func(s *Service) {
		s.granular = enabled
	}
}

type Service struct {
	backend    repository.NotificationBackend
	intervals  repository.IntervalStore
	now        func() time.Time
	loc        *time.Location
	clearDelay time.Duration
	logger     *logger.Logger
	metrics    *metrics.Metrics
	publisher  messaging.Publisher
	auditor    Auditor
	validator  validator.Validator
	options    model.AuthorizationOptions
	recheck    bool
	granular   bool

	mu         sync.RWMutex
	status     model.AuthorizationStatus
	pending    []*model.NotificationRequest
	lastError  *string
	errorEpoch uint64
	clearTimer *time.Timer

	subMu       sync.Mutex
	subscribers map[int]chan State
	nextSub     int
}

func NewService(backend repository.NotificationBackend, opts ...Option) *Service {
	s := &Service{
		backend:     backend,
		now:         time.Now,
		loc:         time.Local,
		clearDelay:  DefaultErrorClearDelay,
		logger:      logger.Nop(),
		validator:   validator.New(),
		options:     model.DefaultAuthorizationOptions(),
		status:      model.AuthorizationNotDetermined,
		pending:     []*model.NotificationRequest{},
		subscribers: make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start performs the initial status check, which also loads the pending set.
func (s *Service) Start(ctx context.Context) error {
	return s.CheckAuthorizationStatus(ctx)
}

// Close stops the pending error-clear timer and closes all subscriptions.
func (s *Service) Close() {
	s.mu.Lock()
	if s.clearTimer != nil {
		s.clearTimer.Stop()
		s.clearTimer = nil
	}
	s.mu.Unlock()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *Service) AuthorizationStatus() model.AuthorizationStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// PendingNotifications returns a copy of the pending set, ascending by date.
func (s *Service) PendingNotifications() []*model.NotificationRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePending(s.pending)
}

// LastError returns the message currently on display, if any.
func (s *Service) LastError() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastError == nil {
		return "", false
	}
	return *s.lastError, true
}

func (s *Service) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() State {
	state := State{
		AuthorizationStatus:  s.status,
		CanSchedule:          s.status.CanSchedule(),
		PendingNotifications: clonePending(s.pending),
	}
	if s.lastError != nil {
		msg := *s.lastError
		state.LastError = &msg
	}
	return state
}

// Subscribe delivers the newest State after every change. A slow reader
// only ever sees the latest value; the service never blocks on it.
func (s *Service) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	ch <- s.Snapshot()
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if _, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(ch)
			}
		})
	}
}

func (s *Service) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if len(s.subscribers) == 0 {
		return
	}

	state := s.Snapshot()
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- state:
		default:
		}
	}
}

// DeepLink extracts the deep link a tapped notification carries.
func (s *Service) DeepLink(userInfo map[string]interface{}) (string, bool) {
	link, ok := userInfo[model.DeepLinkKey].(string)
	return link, ok && link != ""
}

// RegisterCategories registers the predefined action categories with the backend.
func (s *Service) RegisterCategories(ctx context.Context) error {
	categories := model.DefaultCategories()
	start := time.Now()
	err := s.backend.SetCategories(ctx, categories)
	s.observe("set_categories", start, err)
	s.audit(ctx, audit.ActionRegisterCategories, "", &audit.LogOptions{
		Metadata: map[string]interface{}{"categories": len(categories)},
		Err:      err,
	})
	if err != nil {
		s.logger.Error(err, "Failed to register notification categories")
		return err
	}
	s.logger.Info("Registered notification categories", "count", len(categories))
	return nil
}

func (s *Service) observe(operation string, start time.Time, err error) {
	s.metrics.ObserveBackend(operation, err, time.Since(start).Seconds())
}

func (s *Service) audit(ctx context.Context, action, id string, opts *audit.LogOptions) {
	if s.auditor == nil {
		return
	}
	s.auditor.Log(ctx, action, id, opts)
}

func (s *Service) publish(ctx context.Context, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		s.logger.Warn("Failed to publish event", "event_type", eventType, "error", err.Error())
	}
}

func clonePending(in []*model.NotificationRequest) []*model.NotificationRequest {
	out := make([]*model.NotificationRequest, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
