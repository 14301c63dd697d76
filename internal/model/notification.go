package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeepLinkKey is the user-info key the presentation layer reads on tap.
const DeepLinkKey = "deepLink"

// RepeatInterval is the recurrence granularity of a repeating notification.
// Every interval means "every 1 unit".
type RepeatInterval string

const (
	RepeatMinute RepeatInterval = "minute"
	RepeatHour   RepeatInterval = "hour"
	RepeatDay    RepeatInterval = "day"
	RepeatWeek   RepeatInterval = "week"
)

// CalendarUnit names the calendar granularity an interval maps to.
type CalendarUnit string

const (
	UnitMinute     CalendarUnit = "minute"
	UnitHour       CalendarUnit = "hour"
	UnitDay        CalendarUnit = "day"
	UnitWeekOfYear CalendarUnit = "weekOfYear"
)

// AllRepeatIntervals lists the intervals in display order.
func AllRepeatIntervals() []RepeatInterval {
	return []RepeatInterval{RepeatMinute, RepeatHour, RepeatDay, RepeatWeek}
}

func (r RepeatInterval) Valid() bool {
	switch r {
	case RepeatMinute, RepeatHour, RepeatDay, RepeatWeek:
		return true
	}
	return false
}

func (r RepeatInterval) String() string {
	return string(r)
}

func (r RepeatInterval) DisplayName() string {
	if r == "" {
		return ""
	}
	return strings.ToUpper(string(r[:1])) + string(r[1:])
}

// Value is the multiplier of the unit. Always 1.
func (r RepeatInterval) Value() int {
	return 1
}

func (r RepeatInterval) CalendarUnit() CalendarUnit {
	switch r {
	case RepeatMinute:
		return UnitMinute
	case RepeatHour:
		return UnitHour
	case RepeatDay:
		return UnitDay
	case RepeatWeek:
		return UnitWeekOfYear
	}
	return ""
}

// RecurrenceFields are the calendar fields a trigger must match for the
// notification to recur at this interval.
func (r RepeatInterval) RecurrenceFields() []CalendarField {
	switch r {
	case RepeatHour:
		return []CalendarField{FieldMinute}
	case RepeatDay:
		return []CalendarField{FieldHour, FieldMinute}
	case RepeatWeek:
		return []CalendarField{FieldWeekday, FieldHour, FieldMinute}
	}
	return nil
}

// ParseRepeatInterval accepts both the wire form ("week") and the display form ("Week").
func ParseRepeatInterval(raw string) (RepeatInterval, error) {
	r := RepeatInterval(strings.ToLower(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown repeat interval %q", raw)
	}
	return r, nil
}

// AuthorizationStatus is the permission level granted by the notification backend.
type AuthorizationStatus string

const (
	AuthorizationNotDetermined AuthorizationStatus = "notDetermined"
	AuthorizationDenied        AuthorizationStatus = "denied"
	AuthorizationAuthorized    AuthorizationStatus = "authorized"
	AuthorizationProvisional   AuthorizationStatus = "provisional"
	AuthorizationEphemeral     AuthorizationStatus = "ephemeral"
)

// ParseAuthorizationStatus folds anything unknown to notDetermined.
func ParseAuthorizationStatus(raw string) AuthorizationStatus {
	switch s := AuthorizationStatus(raw); s {
	case AuthorizationNotDetermined, AuthorizationDenied, AuthorizationAuthorized,
		AuthorizationProvisional, AuthorizationEphemeral:
		return s
	}
	return AuthorizationNotDetermined
}

func (s AuthorizationStatus) CanSchedule() bool {
	return s == AuthorizationAuthorized || s == AuthorizationProvisional || s == AuthorizationEphemeral
}

// Terminal reports whether the user has made a decision the backend will not re-prompt for.
func (s AuthorizationStatus) Terminal() bool {
	return s != AuthorizationNotDetermined && s != ""
}

func (s AuthorizationStatus) DisplayName() string {
	switch s {
	case AuthorizationNotDetermined:
		return "Not Determined"
	case AuthorizationDenied:
		return "Denied"
	case AuthorizationAuthorized:
		return "Authorized"
	case AuthorizationProvisional:
		return "Provisional"
	case AuthorizationEphemeral:
		return "Ephemeral"
	}
	return "Not Determined"
}

// NotificationRequest is a scheduled or to-be-scheduled local notification.
type NotificationRequest struct {
	ID                 string            `json:"id" validate:"required"`
	Title              string            `json:"title" validate:"required"`
	Body               string            `json:"body" validate:"required"`
	Date               time.Time         `json:"date" validate:"required"`
	Repeats            bool              `json:"repeats"`
	RepeatInterval     *RepeatInterval   `json:"repeat_interval,omitempty"`
	CategoryIdentifier *string           `json:"category_identifier,omitempty"`
	UserInfo           map[string]string `json:"user_info"`
}

type RequestOption func(*NotificationRequest)

func WithID(id string) RequestOption {
	return func(r *NotificationRequest) {
		r.ID = id
	}
}

func WithRepeat(interval RepeatInterval) RequestOption {
	return func(r *NotificationRequest) {
		r.Repeats = true
		r.RepeatInterval = &interval
	}
}

// WithCategory ignores empty identifiers.
func WithCategory(identifier string) RequestOption {
	return func(r *NotificationRequest) {
		if identifier == "" {
			r.CategoryIdentifier = nil
			return
		}
		r.CategoryIdentifier = &identifier
	}
}

func WithUserInfo(info map[string]string) RequestOption {
	return func(r *NotificationRequest) {
		r.UserInfo = make(map[string]string, len(info))
		for k, v := range info {
			r.UserInfo[k] = v
		}
	}
}

// NewNotificationRequest builds a one-shot request with a generated id
// unless options say otherwise.
func NewNotificationRequest(title, body string, date time.Time, opts ...RequestOption) *NotificationRequest {
	r := &NotificationRequest{
		ID:       uuid.New().String(),
		Title:    title,
		Body:     body,
		Date:     date,
		UserInfo: map[string]string{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Validate checks the cross-field rules the struct tags cannot express.
func (r *NotificationRequest) Validate() error {
	if r.Repeats && r.RepeatInterval == nil {
		return fmt.Errorf("repeat_interval is required when repeats is set")
	}
	if !r.Repeats && r.RepeatInterval != nil {
		return fmt.Errorf("repeat_interval is only allowed on repeating notifications")
	}
	if r.RepeatInterval != nil && !r.RepeatInterval.Valid() {
		return fmt.Errorf("unknown repeat interval %q", *r.RepeatInterval)
	}
	if r.CategoryIdentifier != nil && *r.CategoryIdentifier == "" {
		return fmt.Errorf("category_identifier must not be empty when present")
	}
	return nil
}

func (r *NotificationRequest) DeepLink() (string, bool) {
	link, ok := r.UserInfo[DeepLinkKey]
	return link, ok && link != ""
}

// Category returns the category identifier or "".
func (r *NotificationRequest) Category() string {
	if r.CategoryIdentifier == nil {
		return ""
	}
	return *r.CategoryIdentifier
}

// Interval returns the repeat interval or "".
func (r *NotificationRequest) Interval() RepeatInterval {
	if r.RepeatInterval == nil {
		return ""
	}
	return *r.RepeatInterval
}

// Clone returns a deep copy so callers cannot mutate published state.
func (r *NotificationRequest) Clone() *NotificationRequest {
	if r == nil {
		return nil
	}
	cp := *r
	if r.RepeatInterval != nil {
		interval := *r.RepeatInterval
		cp.RepeatInterval = &interval
	}
	if r.CategoryIdentifier != nil {
		category := *r.CategoryIdentifier
		cp.CategoryIdentifier = &category
	}
	cp.UserInfo = make(map[string]string, len(r.UserInfo))
	for k, v := range r.UserInfo {
		cp.UserInfo[k] = v
	}
	return &cp
}
