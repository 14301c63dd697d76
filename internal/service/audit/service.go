// Package audit writes a structured trail of notification lifecycle events.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jwalitptl/localnotify/pkg/logger"
)

// Actions recorded by the scheduling service.
const (
	ActionSchedule             = "schedule"
	ActionCancel               = "cancel"
	ActionCancelAll            = "cancel_all"
	ActionRequestAuthorization = "request_authorization"
	ActionRegisterCategories   = "register_categories"
)

type Service struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewService(l *zap.Logger) *Service {
	if l == nil {
		l = zap.NewNop()
	}
	return &Service{logger: l.Named("audit"), now: time.Now}
}

type LogOptions struct {
	Changes  interface{}
	Metadata map[string]interface{}
	Err      error
}

// Log records one lifecycle event. It never fails the caller.
func (s *Service) Log(ctx context.Context, action, entityID string, opts *LogOptions) {
	fields := []zap.Field{
		zap.String("audit_id", uuid.New().String()),
		zap.String("action", action),
		zap.String("entity_type", "notification"),
		zap.Time("occurred_at", s.now().UTC()),
	}
	if entityID != "" {
		fields = append(fields, zap.String("entity_id", entityID))
	}
	if rid := logger.RequestIDFromContext(ctx); rid != "" {
		fields = append(fields, zap.String("request_id", rid))
	}

	if opts != nil {
		if opts.Changes != nil {
			fields = append(fields, zap.Any("changes", opts.Changes))
		}
		for k, v := range opts.Metadata {
			fields = append(fields, zap.Any(k, v))
		}
		if opts.Err != nil {
			s.logger.Warn("audit event failed", append(fields, zap.Error(opts.Err))...)
			return
		}
	}
	s.logger.Info("audit event", fields...)
}

func (s *Service) Sync() error {
	return s.logger.Sync()
}
