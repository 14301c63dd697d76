package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultSound is the only sound content the service sets.
const DefaultSound = "default"

// NotificationContent is what the backend displays when a request fires.
type NotificationContent struct {
	Title              string                 `json:"title"`
	Body               string                 `json:"body"`
	Sound              string                 `json:"sound,omitempty"`
	CategoryIdentifier string                 `json:"category_identifier"`
	UserInfo           map[string]interface{} `json:"user_info"`
}

// PendingRequest is the backend's representation of a scheduled notification.
type PendingRequest struct {
	Identifier string              `json:"identifier"`
	Content    NotificationContent `json:"content"`
	Trigger    Trigger             `json:"-"`
	CreatedAt  time.Time           `json:"created_at"`
}

// NotificationSettings is what the backend reports about permissions.
// AuthorizationStatus may hold a value this build does not know.
type NotificationSettings struct {
	AuthorizationStatus AuthorizationStatus `json:"authorization_status"`
}

// AuthorizationOptions are the capabilities asked for when prompting.
type AuthorizationOptions struct {
	Alert       bool `json:"alert"`
	Sound       bool `json:"sound"`
	Badge       bool `json:"badge"`
	Provisional bool `json:"provisional"`
}

// DefaultAuthorizationOptions is alert, sound and badge.
func DefaultAuthorizationOptions() AuthorizationOptions {
	return AuthorizationOptions{Alert: true, Sound: true, Badge: true}
}

type ActionOption string

const (
	ActionOptionForeground  ActionOption = "foreground"
	ActionOptionDestructive ActionOption = "destructive"
)

const (
	DefaultCategoryIdentifier = "NOTIFICATION_CATEGORY"
	ActionAccept              = "ACCEPT_ACTION"
	ActionDecline             = "DECLINE_ACTION"
)

type NotificationAction struct {
	Identifier string         `json:"identifier"`
	Title      string         `json:"title"`
	Options    []ActionOption `json:"options"`
}

type NotificationCategory struct {
	Identifier string               `json:"identifier"`
	Actions    []NotificationAction `json:"actions"`
}

// DefaultCategories is the accept/decline action set registered at startup.
func DefaultCategories() []NotificationCategory {
	return []NotificationCategory{
		{
			Identifier: DefaultCategoryIdentifier,
			Actions: []NotificationAction{
				{Identifier: ActionAccept, Title: "Accept", Options: []ActionOption{ActionOptionForeground}},
				{Identifier: ActionDecline, Title: "Decline", Options: []ActionOption{ActionOptionDestructive}},
			},
		},
	}
}

type triggerEnvelope struct {
	Kind TriggerKind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalTrigger encodes a trigger with its kind so it can be decoded later.
func MarshalTrigger(t Trigger) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("trigger cannot be nil")
	}
	if u, ok := t.(*UnrecognizedTrigger); ok {
		return nil, fmt.Errorf("cannot encode unrecognized trigger kind %q", u.RawKind)
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger: %w", err)
	}
	return json.Marshal(triggerEnvelope{Kind: t.Kind(), Data: data})
}

// UnmarshalTrigger decodes MarshalTrigger output. Unknown kinds come back as
// *UnrecognizedTrigger rather than an error so one bad row does not poison a listing.
func UnmarshalTrigger(raw []byte) (Trigger, error) {
	var env triggerEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger envelope: %w", err)
	}

	switch env.Kind {
	case TriggerCalendar:
		var t CalendarTrigger
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal calendar trigger: %w", err)
		}
		return &t, nil
	case TriggerTimeInterval:
		var t TimeIntervalTrigger
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal time interval trigger: %w", err)
		}
		return &t, nil
	default:
		return &UnrecognizedTrigger{RawKind: string(env.Kind)}, nil
	}
}
