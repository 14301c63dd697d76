package notification

import (
	"context"
	"time"

	"github.com/jwalitptl/localnotify/internal/model"
	"github.com/jwalitptl/localnotify/internal/service/audit"
	apperrors "github.com/jwalitptl/localnotify/pkg/errors"
	"github.com/jwalitptl/localnotify/pkg/messaging"
)

// RequestAuthorization prompts for alert, sound and badge permission. The
// status is re-queried afterwards rather than derived from the granted flag.
// A backend failure is recorded as a scheduling failure and reported as false.
func (s *Service) RequestAuthorization(ctx context.Context) bool {
	start := time.Now()
	granted, err := s.backend.RequestAuthorization(ctx, s.options)
	s.observe("request_authorization", start, err)
	if err != nil {
		appErr := apperrors.SchedulingFailed(err)
		s.handleError(appErr)
		s.audit(ctx, audit.ActionRequestAuthorization, "", &audit.LogOptions{Err: appErr})
		return false
	}

	previous := s.AuthorizationStatus()
	_ = s.CheckAuthorizationStatus(ctx)
	current := s.AuthorizationStatus()

	s.audit(ctx, audit.ActionRequestAuthorization, "", &audit.LogOptions{
		Changes:  map[string]string{"from": string(previous), "to": string(current)},
		Metadata: map[string]interface{}{"granted": granted},
	})
	if previous != current {
		s.publish(ctx, messaging.EventAuthorizationChanged, map[string]string{
			"from": string(previous),
			"to":   string(current),
		})
	}
	return granted
}

// CheckAuthorizationStatus refreshes the cached status and reloads the
// pending set. Statuses this build does not know are treated as notDetermined.
func (s *Service) CheckAuthorizationStatus(ctx context.Context) error {
	if err := s.refreshAuthorization(ctx); err != nil {
		return err
	}
	return s.LoadPendingNotifications(ctx)
}

func (s *Service) refreshAuthorization(ctx context.Context) error {
	start := time.Now()
	settings, err := s.backend.GetAuthorizationSettings(ctx)
	s.observe("get_authorization_settings", start, err)
	if err != nil {
		appErr := apperrors.RetrievalFailed(err)
		s.handleError(appErr)
		return appErr
	}

	status := model.AuthorizationNotDetermined
	if settings != nil {
		status = model.ParseAuthorizationStatus(string(settings.AuthorizationStatus))
	}

	s.mu.Lock()
	changed := s.status != status
	s.status = status
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.AuthorizationChecks.WithLabelValues(string(status)).Inc()
	}
	if changed {
		s.logger.Info("Authorization status changed", "status", string(status))
		s.notify()
	}
	return nil
}
