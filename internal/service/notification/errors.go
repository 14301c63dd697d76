package notification

import (
	"errors"
	"time"

	apperrors "github.com/jwalitptl/localnotify/pkg/errors"
)

// handleError puts err's message on display and arms a timer to clear it.
// Every error bumps the epoch; a timer only clears the epoch it was armed for.
func (s *Service) handleError(err error) {
	if err == nil {
		return
	}
	msg := err.Error()

	s.mu.Lock()
	s.errorEpoch++
	epoch := s.errorEpoch
	s.lastError = &msg
	if s.clearTimer != nil {
		s.clearTimer.Stop()
	}
	s.clearTimer = time.AfterFunc(s.clearDelay, func() {
		s.clearError(epoch)
	})
	s.mu.Unlock()

	kind := "unknown"
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		kind = appErr.Kind()
	}
	if s.metrics != nil {
		s.metrics.NotificationErrors.WithLabelValues(kind).Inc()
	}
	s.logger.Warn("Notification error", "kind", kind, "error", msg)
	s.notify()
}

func (s *Service) clearError(epoch uint64) {
	s.mu.Lock()
	if s.errorEpoch != epoch || s.lastError == nil {
		s.mu.Unlock()
		return
	}
	s.lastError = nil
	s.clearTimer = nil
	s.mu.Unlock()

	s.notify()
}
