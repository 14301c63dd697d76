package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/localnotify/internal/model"
	"github.com/jwalitptl/localnotify/internal/repository"
)

type Option func(*Backend)

// WithDecision sets the status recorded the first time authorization is requested.
func WithDecision(status model.AuthorizationStatus) Option {
	return func(b *Backend) {
		b.decision = status
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

// Backend stores pending requests, the permission decision and the
// registered categories in Postgres.
type Backend struct {
	BaseRepository
	decision model.AuthorizationStatus
	now      func() time.Time
}

var (
	_ repository.NotificationBackend = (*Backend)(nil)
	_ repository.PendingPruner       = (*Backend)(nil)
)

func NewBackend(base BaseRepository, opts ...Option) *Backend {
	b := &Backend{
		BaseRepository: base,
		decision:       model.AuthorizationAuthorized,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type pendingRow struct {
	Identifier         string       `db:"identifier"`
	Title              string       `db:"title"`
	Body               string       `db:"body"`
	Sound              string       `db:"sound"`
	CategoryIdentifier string       `db:"category_identifier"`
	UserInfo           []byte       `db:"user_info"`
	TriggerKind        string       `db:"trigger_kind"`
	TriggerData        []byte       `db:"trigger_data"`
	Repeats            bool         `db:"repeats"`
	NextFireAt         sql.NullTime `db:"next_fire_at"`
	CreatedAt          time.Time    `db:"created_at"`
}

func (b *Backend) RequestAuthorization(ctx context.Context, options model.AuthorizationOptions) (bool, error) {
	if !options.Alert && !options.Sound && !options.Badge && !options.Provisional {
		return false, fmt.Errorf("at least one authorization option is required")
	}

	var status model.AuthorizationStatus
	err := b.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notification_authorization (id, status, prompts, updated_at)
			VALUES (1, $1, 0, $2)
			ON CONFLICT (id) DO NOTHING
		`, model.AuthorizationNotDetermined, b.now()); err != nil {
			return err
		}

		var current string
		if err := tx.GetContext(ctx, &current,
			`SELECT status FROM notification_authorization WHERE id = 1 FOR UPDATE`); err != nil {
			return err
		}
		status = model.AuthorizationStatus(current)
		if status.Terminal() {
			return nil
		}

		status = b.decision
		if options.Provisional && status == model.AuthorizationNotDetermined {
			status = model.AuthorizationProvisional
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE notification_authorization
			SET status = $1, prompts = prompts + 1, updated_at = $2
			WHERE id = 1
		`, status, b.now())
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to request authorization: %w", err)
	}
	return status.CanSchedule(), nil
}

// GetAuthorizationSettings reports the stored status verbatim; unknown
// values are left for the caller to fold.
func (b *Backend) GetAuthorizationSettings(ctx context.Context) (*model.NotificationSettings, error) {
	var status string
	err := b.db.GetContext(ctx, &status, `SELECT status FROM notification_authorization WHERE id = 1`)
	if err == sql.ErrNoRows {
		return &model.NotificationSettings{AuthorizationStatus: model.AuthorizationNotDetermined}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization settings: %w", err)
	}
	return &model.NotificationSettings{AuthorizationStatus: model.AuthorizationStatus(status)}, nil
}

// SetAuthorizationStatus overwrites the stored decision, as a change made in
// system settings would.
func (b *Backend) SetAuthorizationStatus(ctx context.Context, status model.AuthorizationStatus) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO notification_authorization (id, status, prompts, updated_at)
		VALUES (1, $1, 0, $2)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
	`, status, b.now())
	if err != nil {
		return fmt.Errorf("failed to set authorization status: %w", err)
	}
	return nil
}

func (b *Backend) AddPendingRequest(ctx context.Context, request *model.PendingRequest) error {
	row, err := toRow(request, b.now())
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pending_notifications (
			identifier, title, body, sound, category_identifier, user_info,
			trigger_kind, trigger_data, repeats, next_fire_at, created_at
		) VALUES (
			:identifier, :title, :body, :sound, :category_identifier, :user_info,
			:trigger_kind, :trigger_data, :repeats, :next_fire_at, :created_at
		)
		ON CONFLICT (identifier) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			sound = EXCLUDED.sound,
			category_identifier = EXCLUDED.category_identifier,
			user_info = EXCLUDED.user_info,
			trigger_kind = EXCLUDED.trigger_kind,
			trigger_data = EXCLUDED.trigger_data,
			repeats = EXCLUDED.repeats,
			next_fire_at = EXCLUDED.next_fire_at,
			created_at = EXCLUDED.created_at
	`
	if _, err := b.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to add pending request: %w", err)
	}
	return nil
}

func (b *Backend) RemovePendingRequests(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM pending_notifications WHERE identifier IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}
	if _, err := b.db.ExecContext(ctx, b.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to remove pending requests: %w", err)
	}
	return nil
}

func (b *Backend) RemoveAllPendingRequests(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM pending_notifications`); err != nil {
		return fmt.Errorf("failed to remove pending requests: %w", err)
	}
	return nil
}

// GetPendingRequests skips one-shot requests that have already fired; the
// pruner removes them later.
func (b *Backend) GetPendingRequests(ctx context.Context) ([]*model.PendingRequest, error) {
	query := `
		SELECT identifier, title, body, sound, category_identifier, user_info,
			trigger_kind, trigger_data, repeats, next_fire_at, created_at
		FROM pending_notifications
		WHERE repeats = TRUE OR next_fire_at IS NULL OR next_fire_at > $1
		ORDER BY created_at ASC, identifier ASC
	`
	var rows []pendingRow
	if err := b.db.SelectContext(ctx, &rows, query, b.now()); err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}

	pending := make([]*model.PendingRequest, 0, len(rows))
	for _, row := range rows {
		pending = append(pending, fromRow(row))
	}
	return pending, nil
}

func (b *Backend) SetCategories(ctx context.Context, categories []model.NotificationCategory) error {
	now := b.now()
	return b.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM notification_categories`); err != nil {
			return fmt.Errorf("failed to clear categories: %w", err)
		}
		for _, c := range categories {
			actions, err := json.Marshal(c.Actions)
			if err != nil {
				return fmt.Errorf("failed to marshal actions for %s: %w", c.Identifier, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO notification_categories (identifier, actions, updated_at)
				VALUES ($1, $2, $3)
			`, c.Identifier, actions, now); err != nil {
				return fmt.Errorf("failed to insert category %s: %w", c.Identifier, err)
			}
		}
		return nil
	})
}

// DeleteFiredBefore removes one-shot requests whose fire time is before cutoff.
func (b *Backend) DeleteFiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM pending_notifications
		WHERE repeats = FALSE
		AND next_fire_at < $1
	`
	result, err := b.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete fired requests: %w", err)
	}
	return result.RowsAffected()
}

func toRow(request *model.PendingRequest, now time.Time) (pendingRow, error) {
	if request == nil || request.Identifier == "" {
		return pendingRow{}, fmt.Errorf("request identifier is required")
	}
	if request.Trigger == nil {
		return pendingRow{}, fmt.Errorf("request trigger is required")
	}

	trigger := request.Trigger
	switch t := trigger.(type) {
	case *model.CalendarTrigger:
	case *model.TimeIntervalTrigger:
		if t.Anchor.IsZero() {
			cp := *t
			cp.Anchor = now
			trigger = &cp
		}
	default:
		return pendingRow{}, fmt.Errorf("unsupported trigger kind %q", trigger.Kind())
	}

	data, err := model.MarshalTrigger(trigger)
	if err != nil {
		return pendingRow{}, err
	}
	userInfo := request.Content.UserInfo
	if userInfo == nil {
		userInfo = map[string]interface{}{}
	}
	info, err := json.Marshal(userInfo)
	if err != nil {
		return pendingRow{}, fmt.Errorf("failed to marshal user info: %w", err)
	}

	row := pendingRow{
		Identifier:         request.Identifier,
		Title:              request.Content.Title,
		Body:               request.Content.Body,
		Sound:              request.Content.Sound,
		CategoryIdentifier: request.Content.CategoryIdentifier,
		UserInfo:           info,
		TriggerKind:        string(trigger.Kind()),
		TriggerData:        data,
		Repeats:            trigger.Repeats(),
		CreatedAt:          now,
	}
	if next, ok := trigger.NextFireDate(now); ok {
		row.NextFireAt = sql.NullTime{Time: next, Valid: true}
	}
	return row, nil
}

// fromRow never fails: a trigger that cannot be decoded comes back as an
// UnrecognizedTrigger, which the service skips, and unreadable user info
// becomes an empty map.
func fromRow(row pendingRow) *model.PendingRequest {
	trigger, err := model.UnmarshalTrigger(row.TriggerData)
	if err != nil {
		log.Warn().Err(err).Str("id", row.Identifier).Str("trigger_kind", row.TriggerKind).
			Msg("Undecodable trigger in pending_notifications")
		trigger = &model.UnrecognizedTrigger{RawKind: row.TriggerKind}
	}

	userInfo := map[string]interface{}{}
	if len(row.UserInfo) > 0 {
		if err := json.Unmarshal(row.UserInfo, &userInfo); err != nil {
			log.Warn().Err(err).Str("id", row.Identifier).Msg("Undecodable user info in pending_notifications")
			userInfo = map[string]interface{}{}
		} else if userInfo == nil {
			userInfo = map[string]interface{}{}
		}
	}

	return &model.PendingRequest{
		Identifier: row.Identifier,
		Content: model.NotificationContent{
			Title:              row.Title,
			Body:               row.Body,
			Sound:              row.Sound,
			CategoryIdentifier: row.CategoryIdentifier,
			UserInfo:           userInfo,
		},
		Trigger:   trigger,
		CreatedAt: row.CreatedAt,
	}
}
