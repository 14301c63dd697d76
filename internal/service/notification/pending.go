package notification

import (
	"context"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/localnotify/internal/model"
	"github.com/jwalitptl/localnotify/internal/service/audit"
	apperrors "github.com/jwalitptl/localnotify/pkg/errors"
	"github.com/jwalitptl/localnotify/pkg/messaging"
)

// CancelNotification removes id from the backend and reloads. Unknown ids are not an error.
func (s *Service) CancelNotification(ctx context.Context, id string) error {
	start := time.Now()
	err := s.backend.RemovePendingRequests(ctx, []string{id})
	s.observe("remove_pending_requests", start, err)
	if err != nil {
		return s.fail(ctx, audit.ActionCancel, id, apperrors.CancellationFailed(err))
	}

	if s.intervals != nil {
		if err := s.intervals.Delete(ctx, id); err != nil {
			s.logger.Error(err, "Failed to forget repeat interval", "id", id)
		}
	}
	if s.metrics != nil {
		s.metrics.NotificationsCancelled.WithLabelValues("single").Inc()
	}
	s.logger.Info("Notification cancelled", "id", id)
	s.audit(ctx, audit.ActionCancel, id, nil)
	s.publish(ctx, messaging.EventNotificationCancelled, map[string]string{"id": id})

	_ = s.LoadPendingNotifications(ctx)
	return nil
}

// CancelAllNotifications removes every pending request and reloads.
func (s *Service) CancelAllNotifications(ctx context.Context) error {
	start := time.Now()
	err := s.backend.RemoveAllPendingRequests(ctx)
	s.observe("remove_all_pending_requests", start, err)
	if err != nil {
		return s.fail(ctx, audit.ActionCancelAll, "", apperrors.CancellationFailed(err))
	}

	if s.intervals != nil {
		if err := s.intervals.Clear(ctx); err != nil {
			s.logger.Error(err, "Failed to clear repeat intervals")
		}
	}
	if s.metrics != nil {
		s.metrics.NotificationsCancelled.WithLabelValues("all").Inc()
	}
	s.logger.Info("All notifications cancelled")
	s.audit(ctx, audit.ActionCancelAll, "", nil)
	s.publish(ctx, messaging.EventNotificationsCleared, nil)

	_ = s.LoadPendingNotifications(ctx)
	return nil
}

// LoadPendingNotifications replaces the pending set with what the backend
// holds, ascending by next fire date. Entries that cannot be reconstructed
// are skipped. On failure the previous set is kept.
func (s *Service) LoadPendingNotifications(ctx context.Context) error {
	if s.metrics != nil {
		timer := prometheus.NewTimer(s.metrics.LoadLatency)
		defer timer.ObserveDuration()
	}

	start := time.Now()
	requests, err := s.backend.GetPendingRequests(ctx)
	s.observe("get_pending_requests", start, err)
	if err != nil {
		appErr := apperrors.RetrievalFailed(err)
		s.handleError(appErr)
		return appErr
	}

	now := s.now()
	pending := make([]*model.NotificationRequest, 0, len(requests))
	for _, r := range requests {
		if n, ok := s.reconstruct(ctx, r, now); ok {
			pending = append(pending, n)
		}
	}
	sortByDate(pending)

	s.mu.Lock()
	s.pending = pending
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.PendingNotifications.Set(float64(len(pending)))
	}
	s.logger.Debug("Pending notifications loaded", "count", len(pending))
	s.notify()
	return nil
}

func (s *Service) reconstruct(ctx context.Context, r *model.PendingRequest, now time.Time) (*model.NotificationRequest, bool) {
	if r == nil || r.Trigger == nil {
		s.skip("missing_trigger", "")
		return nil, false
	}

	var guess model.RepeatInterval
	switch r.Trigger.(type) {
	case *model.CalendarTrigger:
		guess = model.RepeatDay
	case *model.TimeIntervalTrigger:
		guess = model.RepeatMinute
	default:
		s.skip("unknown_trigger", r.Identifier, "kind", string(r.Trigger.Kind()))
		return nil, false
	}

	date, ok := r.Trigger.NextFireDate(now)
	if !ok {
		s.skip("no_next_date", r.Identifier)
		return nil, false
	}

	n := &model.NotificationRequest{
		ID:       r.Identifier,
		Title:    r.Content.Title,
		Body:     r.Content.Body,
		Date:     date,
		Repeats:  r.Trigger.Repeats(),
		UserInfo: stringUserInfo(r.Content.UserInfo),
	}
	if n.Repeats {
		interval := s.lookupInterval(ctx, r.Identifier, guess)
		n.RepeatInterval = &interval
	}
	if r.Content.CategoryIdentifier != "" {
		category := r.Content.CategoryIdentifier
		n.CategoryIdentifier = &category
	}
	return n, true
}

func (s *Service) lookupInterval(ctx context.Context, id string, guess model.RepeatInterval) model.RepeatInterval {
	if s.intervals == nil {
		return guess
	}
	interval, found, err := s.intervals.Get(ctx, id)
	if err != nil {
		s.logger.Error(err, "Failed to read repeat interval", "id", id)
		return guess
	}
	if !found {
		return guess
	}
	return interval
}

func (s *Service) skip(reason, id string, fields ...interface{}) {
	if s.metrics != nil {
		s.metrics.SkippedOnLoad.WithLabelValues(reason).Inc()
	}
	s.logger.Warn("Skipping pending request", append([]interface{}{"reason", reason, "id", id}, fields...)...)
}

// stringUserInfo keeps user info only when every value is a string.
func stringUserInfo(raw map[string]interface{}) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		str, ok := v.(string)
		if !ok {
			return map[string]string{}
		}
		out[k] = str
	}
	return out
}

func sortByDate(pending []*model.NotificationRequest) {
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Date.Equal(pending[j].Date) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].Date.Before(pending[j].Date)
	})
}
