package notification

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/localnotify/internal/model"
	"github.com/jwalitptl/localnotify/internal/service/audit"
	apperrors "github.com/jwalitptl/localnotify/pkg/errors"
	"github.com/jwalitptl/localnotify/pkg/messaging"
)

// ScheduleNotification hands req to the backend as a calendar trigger.
// Checks run in order: permission, then a future date, then the request's
// own shape. Nothing changes when any of them fails.
func (s *Service) ScheduleNotification(ctx context.Context, req *model.NotificationRequest) error {
	if s.recheck {
		if err := s.refreshAuthorization(ctx); err != nil {
			return err
		}
	}

	if !s.AuthorizationStatus().CanSchedule() {
		return s.fail(ctx, audit.ActionSchedule, requestID(req), apperrors.AuthorizationDenied())
	}
	if req == nil {
		return s.fail(ctx, audit.ActionSchedule, "", apperrors.InvalidRequest(errors.New("request is required")))
	}
	// The trigger fires on whole minutes, so the minute itself must be ahead.
	if !req.Date.Truncate(time.Minute).After(s.now()) {
		return s.fail(ctx, audit.ActionSchedule, req.ID, apperrors.InvalidDate())
	}
	if err := s.validate(req); err != nil {
		return s.fail(ctx, audit.ActionSchedule, req.ID, apperrors.InvalidRequest(err))
	}

	pending := &model.PendingRequest{
		Identifier: req.ID,
		Content:    s.buildContent(req),
		Trigger:    s.buildTrigger(req),
	}

	start := time.Now()
	err := s.backend.AddPendingRequest(ctx, pending)
	s.observe("add_pending_request", start, err)
	if err != nil {
		return s.fail(ctx, audit.ActionSchedule, req.ID, apperrors.SchedulingFailed(err))
	}

	s.rememberInterval(ctx, req)

	if s.metrics != nil {
		s.metrics.NotificationsScheduled.Inc()
	}
	s.logger.Info("Notification scheduled", "id", req.ID, "repeats", req.Repeats)
	s.audit(ctx, audit.ActionSchedule, req.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"date":     req.Date.UTC(),
			"repeats":  req.Repeats,
			"interval": string(req.Interval()),
		},
	})
	s.publish(ctx, messaging.EventNotificationScheduled, req.Clone())

	_ = s.LoadPendingNotifications(ctx)
	return nil
}

func (s *Service) validate(req *model.NotificationRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}
	return req.Validate()
}

// buildTrigger takes year, month, day, hour and minute from the date in the
// service's zone; seconds are dropped. With granular repeats a repeating
// request keeps only the fields its interval recurs on.
func (s *Service) buildTrigger(req *model.NotificationRequest) model.Trigger {
	fields := model.ScheduleFields
	if s.granular && req.Repeats {
		fields = req.Interval().RecurrenceFields()
	}
	components := model.DateComponentsFrom(req.Date, s.loc, fields...)
	return model.NewCalendarTrigger(components, req.Repeats, s.loc)
}

func (s *Service) buildContent(req *model.NotificationRequest) model.NotificationContent {
	userInfo := make(map[string]interface{}, len(req.UserInfo))
	for k, v := range req.UserInfo {
		userInfo[k] = v
	}
	return model.NotificationContent{
		Title:              req.Title,
		Body:               req.Body,
		Sound:              model.DefaultSound,
		CategoryIdentifier: req.Category(),
		UserInfo:           userInfo,
	}
}

// rememberInterval keeps the side store in step with the backend. Failures
// are logged; reloads then fall back to guessing the interval.
func (s *Service) rememberInterval(ctx context.Context, req *model.NotificationRequest) {
	if s.intervals == nil {
		return
	}
	var err error
	if req.Repeats {
		err = s.intervals.Save(ctx, req.ID, req.Interval())
	} else {
		err = s.intervals.Delete(ctx, req.ID)
	}
	if err != nil {
		s.logger.Error(err, "Failed to update repeat interval", "id", req.ID)
	}
}

// fail records err for display and audit, then returns it to the caller.
func (s *Service) fail(ctx context.Context, action, id string, err *apperrors.AppError) error {
	s.handleError(err)
	s.audit(ctx, action, id, &audit.LogOptions{Err: err})
	return err
}

func requestID(req *model.NotificationRequest) string {
	if req == nil {
		return ""
	}
	return req.ID
}
