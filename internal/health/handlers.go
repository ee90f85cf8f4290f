package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/zsiec/reelcam/pkg/version"
)

type Response struct {
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]*Check `json:"checks,omitempty"`
}

// Handler serves /health, /ready and /live.
type Handler struct {
	manager *Manager
	started time.Time
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{
		manager: manager,
		started: manager.clock.Now(),
	}
}

// HandleHealth runs every check and reports the details. Degraded still
// answers 200.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*checkTimeout)
	defer cancel()

	checks := h.manager.RunChecks(ctx)
	status := h.manager.OverallStatus()

	h.writeJSON(w, statusCode(status), Response{
		Status:    status,
		Timestamp: h.manager.clock.Now(),
		Version:   version.Version,
		Uptime:    h.uptime(),
		Checks:    checks,
	})
}

// HandleReady reports the status of the last check run without probing.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	status := h.manager.OverallStatus()
	h.writeJSON(w, statusCode(status), map[string]interface{}{
		"status":    status,
		"timestamp": h.manager.clock.Now(),
	})
}

func (h *Handler) HandleLive(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": h.manager.clock.Now(),
	})
}

func (h *Handler) uptime() string {
	return h.manager.clock.Since(h.started).Truncate(time.Second).String()
}

func statusCode(s Status) int {
	if s == StatusDown {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.manager.logger.WithError(err).Error("Failed to encode health response")
	}
}
