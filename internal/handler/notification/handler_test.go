package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/localnotify/internal/model"
	"github.com/jwalitptl/localnotify/internal/repository/memory"
	notificationService "github.com/jwalitptl/localnotify/internal/service/notification"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

type fixture struct {
	engine  *gin.Engine
	backend *memory.Backend
	service *notificationService.Service
}

func newFixture(t *testing.T, opts ...memory.Option) *fixture {
	t.Helper()
	backend := memory.NewBackend(opts...)
	svc := notificationService.NewService(backend)
	t.Cleanup(svc.Close)
	require.NoError(t, svc.Start(context.Background()))

	engine := gin.New()
	NewHandler(svc).RegisterRoutes(engine.Group("/api/v1"))
	return &fixture{engine: engine, backend: backend, service: svc}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (f *fixture) authorize(t *testing.T) {
	t.Helper()
	w, _ := f.do(t, http.MethodPost, "/api/v1/authorization/request", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func futureBody(title string) map[string]interface{} {
	return map[string]interface{}{
		"title": title,
		"body":  title + " body",
		"date":  time.Now().Add(2 * time.Hour).Format(time.RFC3339),
	}
}

func TestGetAuthorizationBeforePrompt(t *testing.T) {
	f := newFixture(t)

	w, resp := f.do(t, http.MethodGet, "/api/v1/authorization", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var auth authorizationResponse
	require.NoError(t, json.Unmarshal(resp.Data, &auth))
	assert.Equal(t, model.AuthorizationNotDetermined, auth.Status)
	assert.False(t, auth.CanSchedule)
	assert.Nil(t, auth.Granted)
}

func TestRequestAuthorization(t *testing.T) {
	f := newFixture(t)

	w, resp := f.do(t, http.MethodPost, "/api/v1/authorization/request", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var auth authorizationResponse
	require.NoError(t, json.Unmarshal(resp.Data, &auth))
	require.NotNil(t, auth.Granted)
	assert.True(t, *auth.Granted)
	assert.Equal(t, model.AuthorizationAuthorized, auth.Status)
	assert.Equal(t, "Authorized", auth.DisplayName)
	assert.True(t, auth.CanSchedule)
}

func TestRequestAuthorizationDenied(t *testing.T) {
	f := newFixture(t, memory.WithDecision(model.AuthorizationDenied))

	_, resp := f.do(t, http.MethodPost, "/api/v1/authorization/request", nil)
	var auth authorizationResponse
	require.NoError(t, json.Unmarshal(resp.Data, &auth))
	require.NotNil(t, auth.Granted)
	assert.False(t, *auth.Granted)
	assert.Equal(t, model.AuthorizationDenied, auth.Status)
}

func TestScheduleAndList(t *testing.T) {
	f := newFixture(t)
	f.authorize(t)

	body := futureBody("Standup")
	body["id"] = "standup"
	body["repeats"] = true
	body["repeat_interval"] = "Day"
	body["user_info"] = map[string]string{model.DeepLinkKey: "app://standup"}

	w, resp := f.do(t, http.MethodPost, "/api/v1/notifications", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, resp.Success)

	var created model.NotificationRequest
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.Equal(t, "standup", created.ID)
	assert.Equal(t, model.RepeatDay, created.Interval())

	w, resp = f.do(t, http.MethodGet, "/api/v1/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listed []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "standup", listed[0]["id"])
	assert.Equal(t, "app://standup", listed[0]["deep_link"])
	assert.Equal(t, true, listed[0]["repeats"])
}

func TestScheduleGeneratesID(t *testing.T) {
	f := newFixture(t)
	f.authorize(t)

	w, resp := f.do(t, http.MethodPost, "/api/v1/notifications", futureBody("Water"))
	require.Equal(t, http.StatusCreated, w.Code)

	var created model.NotificationRequest
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.NotEmpty(t, created.ID)
}

func TestScheduleErrors(t *testing.T) {
	past := futureBody("Late")
	past["date"] = time.Now().Add(-time.Hour).Format(time.RFC3339)

	badInterval := futureBody("Odd")
	badInterval["repeats"] = true
	badInterval["repeat_interval"] = "fortnight"

	tests := []struct {
		name      string
		authorize bool
		body      interface{}
		status    int
		kind      string
	}{
		{"not authorized", false, futureBody("Standup"), http.StatusForbidden, "authorization_denied"},
		{"past date", true, past, http.StatusBadRequest, "invalid_date"},
		{"unknown interval", true, badInterval, http.StatusBadRequest, "invalid_request"},
		{"malformed json", true, "not an object", http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.authorize {
				f.authorize(t)
			}

			w, resp := f.do(t, http.MethodPost, "/api/v1/notifications", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.kind, resp.Error.Kind)
			assert.Empty(t, f.service.PendingNotifications())
		})
	}
}

func TestCancelNotification(t *testing.T) {
	f := newFixture(t)
	f.authorize(t)

	for _, id := range []string{"a", "b"} {
		body := futureBody(id)
		body["id"] = id
		w, _ := f.do(t, http.MethodPost, "/api/v1/notifications", body)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, _ := f.do(t, http.MethodDelete, "/api/v1/notifications/a", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	pending := f.service.PendingNotifications()
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].ID)

	w, _ = f.do(t, http.MethodDelete, "/api/v1/notifications/missing", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestGetNotification(t *testing.T) {
	f := newFixture(t)
	f.authorize(t)

	body := futureBody("standup")
	body["id"] = "standup"
	w, _ := f.do(t, http.MethodPost, "/api/v1/notifications", body)
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := f.do(t, http.MethodGet, "/api/v1/notifications/standup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.NotificationRequest
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, "standup", got.ID)
	assert.Equal(t, "standup", got.Title)

	w, resp = f.do(t, http.MethodGet, "/api/v1/notifications/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_found", resp.Error.Kind)
}

func TestCancelAllNotifications(t *testing.T) {
	f := newFixture(t)
	f.authorize(t)

	for _, title := range []string{"one", "two", "three"} {
		w, _ := f.do(t, http.MethodPost, "/api/v1/notifications", futureBody(title))
		require.Equal(t, http.StatusCreated, w.Code)
	}
	require.Len(t, f.service.PendingNotifications(), 3)

	w, _ := f.do(t, http.MethodDelete, "/api/v1/notifications", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, f.service.PendingNotifications())
}

func TestListReload(t *testing.T) {
	f := newFixture(t)
	f.authorize(t)

	w, _ := f.do(t, http.MethodPost, "/api/v1/notifications", futureBody("Standup"))
	require.Equal(t, http.StatusCreated, w.Code)

	// Removed behind the service's back; only a reload notices.
	require.NoError(t, f.backend.RemoveAllPendingRequests(context.Background()))

	_, resp := f.do(t, http.MethodGet, "/api/v1/notifications", nil)
	var cached []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &cached))
	assert.Len(t, cached, 1)

	_, resp = f.do(t, http.MethodGet, "/api/v1/notifications?reload=true", nil)
	var reloaded []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &reloaded))
	assert.Empty(t, reloaded)
}

func TestGetStateIncludesLastError(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(t, http.MethodPost, "/api/v1/notifications", futureBody("Standup"))
	require.Equal(t, http.StatusForbidden, w.Code)

	w, resp := f.do(t, http.MethodGet, "/api/v1/state", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var state struct {
		Authorization authorizationResponse    `json:"authorization"`
		Pending       []map[string]interface{} `json:"pending"`
		LastError     *string                  `json:"last_error"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &state))
	assert.Equal(t, model.AuthorizationNotDetermined, state.Authorization.Status)
	assert.Empty(t, state.Pending)
	require.NotNil(t, state.LastError)
	assert.Contains(t, *state.LastError, "permission was denied")
}
