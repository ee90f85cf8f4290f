package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/zsiec/reelcam/internal/logger"
	"github.com/zsiec/reelcam/pkg/version"
)

func TestHandleHealth(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	m := NewManager(logger.NewNullLogger(), fc)
	m.Register(&mockChecker{name: "output_dir"})
	h := NewHandler(m)
	fc.Step(90 * time.Minute)

	rr := httptest.NewRecorder()
	h.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rr.Header().Get("Cache-Control"))

	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, version.Version, resp.Version)
	assert.Equal(t, "1h30m0s", resp.Uptime)
	assert.Contains(t, resp.Checks, "output_dir")
}

func TestHandleHealthDegradedAndDown(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		want Status
	}{
		{"degraded", Degraded("camera not ready"), http.StatusOK, StatusDegraded},
		{"down", assert.AnError, http.StatusServiceUnavailable, StatusDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(logger.NewNullLogger(), nil)
			m.Register(&mockChecker{name: "c", err: tt.err})

			rr := httptest.NewRecorder()
			NewHandler(m).HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.code, rr.Code)

			var resp Response
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestHandleReady(t *testing.T) {
	m := NewManager(logger.NewNullLogger(), nil)
	m.Register(&mockChecker{name: "c"})
	h := NewHandler(m)

	rr := httptest.NewRecorder()
	h.HandleReady(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code, "not ready before the first check run")

	m.RunChecks(context.Background())
	rr = httptest.NewRecorder()
	h.HandleReady(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleLive(t *testing.T) {
	h := NewHandler(NewManager(logger.NewNullLogger(), nil))

	rr := httptest.NewRecorder()
	h.HandleLive(rr, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "alive", body["status"])
}
