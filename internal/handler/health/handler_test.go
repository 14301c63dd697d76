package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(t *testing.T, h *Handler, path string) (int, map[string]interface{}) {
	t.Helper()
	engine := gin.New()
	h.RegisterRoutes(engine.Group(""))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestLiveness(t *testing.T) {
	code, body := get(t, NewHandler(), "/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "UP", body["status"])
}

func TestReadinessWithoutChecks(t *testing.T) {
	code, body := get(t, NewHandler(), "/health/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "UP", body["status"])
}

func TestReadinessReportsFailedCheck(t *testing.T) {
	h := NewHandler(
		Check{Name: "postgres", Ping: func(context.Context) error { return nil }},
		Check{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }},
	)

	code, body := get(t, h, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "DOWN", body["status"])
	checks, ok := body["checks"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "connection refused", checks["redis"])
	assert.NotContains(t, checks, "postgres")
}
