package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/zsiec/reelcam/internal/capture/controller"
	"github.com/zsiec/reelcam/internal/capture/muxer"
	apperrors "github.com/zsiec/reelcam/internal/errors"
	"github.com/zsiec/reelcam/internal/logger"
	"github.com/zsiec/reelcam/internal/overlay"
	"github.com/zsiec/reelcam/pkg/version"
)

type stateResponse struct {
	State controller.State `json:"state"`
}

type stopResponse struct {
	SessionID string  `json:"session_id"`
	Path      string  `json:"path"`
	Size      int64   `json:"size"`
	Duration  float64 `json:"duration_seconds"`
	Frames    uint64  `json:"frames"`
}

type overlayElement struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Scale    float64 `json:"asset_scale"`
}

type overlaySlot struct {
	Category string `json:"category"`
	overlay.Slot
}

type overlayResponse struct {
	Applied   string           `json:"applied,omitempty"`
	Mode      overlay.Mode     `json:"mode"`
	Switching bool             `json:"switching"`
	Catalog   []overlayElement `json:"catalog"`
	Slots     []overlaySlot    `json:"slots"`
}

type selectRequest struct {
	ElementID string `json:"element_id"`
}

type scaleRequest struct {
	Category string  `json:"category"`
	Factor   float64 `json:"factor"`
}

type scaleResponse struct {
	Category string  `json:"category"`
	Scale    float64 `json:"scale"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	s.writeJSON(w, r, http.StatusOK, version.GetInfo())
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.StartRecording(); err != nil {
		s.writeError(w, r, apperrors.NewConflictError(err))
		return
	}
	logger.FromContext(r.Context()).Info("Recording started via API")
	s.writeJSON(w, r, http.StatusOK, stateResponse{State: s.ctrl.Status().State})
}

// handleStop waits for finalize, bounded by the stop timeout and the
// request. A recording that outlives the wait still finalizes.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var timeout <-chan time.Time
	if s.cfg.StopTimeout > 0 {
		t := time.NewTimer(s.cfg.StopTimeout)
		defer t.Stop()
		timeout = t.C
	}

	var res muxer.StopResult
	select {
	case res = <-s.ctrl.StopRecording():
	case <-timeout:
		s.writeError(w, r, apperrors.NewTimeoutError("Recording is still finalizing"))
		return
	case <-ctx.Done():
		return
	}

	switch {
	case errors.Is(res.Err, controller.ErrNotRecording):
		s.writeError(w, r, apperrors.NewConflictError(res.Err))
		return
	case res.Err != nil:
		s.writeError(w, r, apperrors.NewUnprocessableError(res.Err))
		return
	}

	logger.FromContext(ctx).WithField("path", res.Path).Info("Recording stopped via API")
	s.writeJSON(w, r, http.StatusOK, stopResponse{
		SessionID: res.SessionID,
		Path:      res.Path,
		Size:      res.Size,
		Duration:  res.Duration.Seconds(),
		Frames:    res.Frames,
	})
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	s.stateChange(w, r, s.ctrl.LockRecording)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	s.stateChange(w, r, s.ctrl.UnlockRecording)
}

func (s *Server) stateChange(w http.ResponseWriter, r *http.Request, fn func() error) {
	if err := fn(); err != nil {
		s.writeError(w, r, apperrors.NewConflictError(err))
		return
	}
	s.writeJSON(w, r, http.StatusOK, stateResponse{State: s.ctrl.Status().State})
}

func (s *Server) handleCameraToggle(w http.ResponseWriter, r *http.Request) {
	err := s.ctrl.ToggleCameraSource()
	switch {
	case errors.Is(err, controller.ErrSwitchPending):
		s.writeError(w, r, apperrors.NewConflictError(err))
		return
	case errors.Is(err, controller.ErrSourceNotRunning):
		s.writeError(w, r, apperrors.NewServiceDownError("camera"))
		return
	case err != nil:
		s.writeError(w, r, apperrors.WrapInternalError(err, "Camera switch failed"))
		return
	}

	st := s.ctrl.Status()
	s.writeJSON(w, r, http.StatusAccepted, map[string]interface{}{
		"camera_position": st.CameraPosition,
		"switching":       st.Switching,
	})
}

func (s *Server) handleIllumination(w http.ResponseWriter, r *http.Request) {
	on, err := s.ctrl.ToggleIllumination()
	if err != nil {
		s.writeError(w, r, apperrors.NewServiceDownError("camera"))
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]bool{"illumination": on})
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	engine := s.ctrl.Engine()

	resp := overlayResponse{
		Applied:   engine.Applied(),
		Mode:      engine.Mode(),
		Switching: engine.Switching(),
	}
	for _, el := range engine.Catalog() {
		resp.Catalog = append(resp.Catalog, overlayElement{
			ID:       el.ID,
			Name:     el.Name,
			Category: el.Category.String(),
			Scale:    el.AssetScale,
		})
	}
	for _, slot := range engine.Slots() {
		resp.Slots = append(resp.Slots, overlaySlot{Category: slot.Category.String(), Slot: slot})
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleOverlaySelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.NewValidationError("Request body must be JSON"))
		return
	}
	if req.ElementID == "" {
		s.writeError(w, r, apperrors.NewValidationError("element_id is required"))
		return
	}

	if err := s.ctrl.SelectOverlay(req.ElementID); err != nil {
		if errors.Is(err, overlay.ErrUnknownElement) {
			s.writeError(w, r, apperrors.NewValidationError(err.Error()))
			return
		}
		s.writeError(w, r, apperrors.WrapInternalError(err, "Overlay selection failed"))
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"applied": s.ctrl.Engine().Applied()})
}

// handleOverlayScale multiplies one category's user scale. The scale is
// kept when the selection changes.
func (s *Server) handleOverlayScale(w http.ResponseWriter, r *http.Request) {
	var req scaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.NewValidationError("Request body must be JSON"))
		return
	}

	category, err := overlay.ParseCategory(req.Category)
	if err != nil {
		s.writeError(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	scale, err := s.ctrl.Engine().AdjustScale(category, req.Factor)
	if err != nil {
		if errors.Is(err, overlay.ErrInvalidScale) {
			s.writeError(w, r, apperrors.NewValidationError(err.Error()))
			return
		}
		s.writeError(w, r, apperrors.WrapInternalError(err, "Overlay scale failed"))
		return
	}
	s.writeJSON(w, r, http.StatusOK, scaleResponse{Category: category.String(), Scale: scale})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.FromContext(r.Context()).WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.errorHandler.HandleError(w, r, err)
}
