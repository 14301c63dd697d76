package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/localnotify/internal/model"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func calendarRequest(id string, at time.Time, repeats bool) *model.PendingRequest {
	return &model.PendingRequest{
		Identifier: id,
		Content: model.NotificationContent{
			Title:    "Title " + id,
			Body:     "Body",
			UserInfo: map[string]interface{}{"deepLink": "home"},
		},
		Trigger: model.NewCalendarTrigger(model.DateComponentsFrom(at, time.UTC, model.ScheduleFields...), repeats, time.UTC),
	}
}

func TestRequestAuthorizationPromptsOnce(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(WithDecision(model.AuthorizationDenied))

	granted, err := b.RequestAuthorization(ctx, model.DefaultAuthorizationOptions())
	require.NoError(t, err)
	assert.False(t, granted)

	b.decision = model.AuthorizationAuthorized
	granted, err = b.RequestAuthorization(ctx, model.DefaultAuthorizationOptions())
	require.NoError(t, err)
	assert.False(t, granted, "a terminal decision must not be re-prompted")
	assert.Equal(t, 1, b.Prompts())

	settings, err := b.GetAuthorizationSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.AuthorizationDenied, settings.AuthorizationStatus)
}

func TestRequestAuthorizationRequiresOptions(t *testing.T) {
	b := NewBackend()
	_, err := b.RequestAuthorization(context.Background(), model.AuthorizationOptions{})
	assert.Error(t, err)
	assert.Equal(t, 0, b.Prompts())
}

func TestProvisionalOptionWithoutDecision(t *testing.T) {
	b := NewBackend(WithDecision(model.AuthorizationNotDetermined))
	granted, err := b.RequestAuthorization(context.Background(), model.AuthorizationOptions{Provisional: true})
	require.NoError(t, err)
	assert.True(t, granted)

	settings, _ := b.GetAuthorizationSettings(context.Background())
	assert.Equal(t, model.AuthorizationProvisional, settings.AuthorizationStatus)
}

func TestOutOfBandStatusChange(t *testing.T) {
	b := NewBackend(WithInitialStatus(model.AuthorizationAuthorized))
	b.SetAuthorizationStatus(model.AuthorizationDenied)

	settings, err := b.GetAuthorizationSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.AuthorizationDenied, settings.AuthorizationStatus)
}

func TestAddListRemove(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	b := NewBackend(WithClock(clock.Now))

	require.NoError(t, b.AddPendingRequest(ctx, calendarRequest("a", clock.now.Add(time.Hour), false)))
	require.NoError(t, b.AddPendingRequest(ctx, calendarRequest("b", clock.now.Add(2*time.Hour), false)))

	pending, err := b.GetPendingRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].Identifier)
	assert.Equal(t, "home", pending[0].Content.UserInfo["deepLink"])

	require.NoError(t, b.RemovePendingRequests(ctx, []string{"a", "missing"}))
	pending, err = b.GetPendingRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].Identifier)

	require.NoError(t, b.RemoveAllPendingRequests(ctx))
	pending, err = b.GetPendingRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAddReplacesSameIdentifier(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()
	at := time.Now().Add(time.Hour)

	require.NoError(t, b.AddPendingRequest(ctx, calendarRequest("a", at, false)))
	replacement := calendarRequest("a", at, false)
	replacement.Content.Title = "Replaced"
	require.NoError(t, b.AddPendingRequest(ctx, replacement))

	pending, err := b.GetPendingRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Replaced", pending[0].Content.Title)
}

func TestAddRejectsInvalidRequests(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()

	assert.Error(t, b.AddPendingRequest(ctx, &model.PendingRequest{Trigger: &model.CalendarTrigger{}}))
	assert.Error(t, b.AddPendingRequest(ctx, &model.PendingRequest{Identifier: "x"}))
	assert.Error(t, b.AddPendingRequest(ctx, &model.PendingRequest{Identifier: "x", Trigger: &model.UnrecognizedTrigger{RawKind: "geo"}}))
}

func TestFiredOneShotIsForgotten(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	b := NewBackend(WithClock(clock.Now))

	require.NoError(t, b.AddPendingRequest(ctx, calendarRequest("once", clock.now.Add(time.Hour), false)))
	require.NoError(t, b.AddPendingRequest(ctx, calendarRequest("stale-repeat", clock.now.Add(time.Hour), true)))

	clock.now = clock.now.Add(2 * time.Hour)
	pending, err := b.GetPendingRequests(ctx)
	require.NoError(t, err)

	require.Len(t, pending, 1)
	assert.Equal(t, "stale-repeat", pending[0].Identifier)
}

func TestTimeIntervalAnchorSetOnAdd(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	b := NewBackend(WithClock(clock.Now))

	trigger, err := model.NewTimeIntervalTrigger(time.Hour, true)
	require.NoError(t, err)
	require.NoError(t, b.AddPendingRequest(ctx, &model.PendingRequest{Identifier: "t", Trigger: trigger}))
	assert.True(t, trigger.Anchor.IsZero(), "caller's trigger must not be mutated")

	pending, err := b.GetPendingRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	next, ok := pending[0].Trigger.NextFireDate(clock.now)
	require.True(t, ok)
	assert.Equal(t, clock.now.Add(time.Hour), next)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBackend()

	_, err := b.GetPendingRequests(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetCategories(t *testing.T) {
	b := NewBackend()
	require.NoError(t, b.SetCategories(context.Background(), model.DefaultCategories()))
	assert.Equal(t, model.DefaultCategories(), b.Categories())
}
