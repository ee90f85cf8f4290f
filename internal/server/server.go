// Package server exposes the recording controller over HTTP.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"golang.org/x/time/rate"

	"github.com/zsiec/reelcam/internal/capture/controller"
	"github.com/zsiec/reelcam/internal/capture/muxer"
	"github.com/zsiec/reelcam/internal/config"
	apperrors "github.com/zsiec/reelcam/internal/errors"
	"github.com/zsiec/reelcam/internal/health"
	"github.com/zsiec/reelcam/internal/logger"
	"github.com/zsiec/reelcam/internal/overlay"
)

const healthInterval = 30 * time.Second

// Controller is the recording surface served by the API.
type Controller interface {
	StartRecording() error
	StopRecording() <-chan muxer.StopResult
	LockRecording() error
	UnlockRecording() error
	ToggleCameraSource() error
	ToggleIllumination() (bool, error)
	SelectOverlay(id string) error
	Status() controller.Status
	Engine() *overlay.Engine
}

type Server struct {
	cfg          *config.ServerConfig
	router       *mux.Router
	httpServer   *http.Server
	http3Server  *http3.Server
	logger       logger.Logger
	ctrl         Controller
	healthMgr    *health.Manager
	errorHandler *apperrors.ErrorHandler
	limiter      *rate.Limiter
}

// New builds the server and its routes. Nothing listens until Start.
func New(cfg *config.ServerConfig, ctrl Controller, healthMgr *health.Manager, log logger.Logger) *Server {
	log = logger.WithComponent(log, "server")

	limit := rate.Inf
	if cfg.ControlRate > 0 {
		limit = rate.Limit(cfg.ControlRate)
	}
	burst := cfg.ControlBurst
	if burst < 1 {
		burst = 1
	}

	s := &Server{
		cfg:          cfg,
		router:       mux.NewRouter(),
		logger:       log,
		ctrl:         ctrl,
		healthMgr:    healthMgr,
		errorHandler: apperrors.NewErrorHandler(log),
		limiter:      rate.NewLimiter(limit, burst),
	}
	s.setupRoutes()
	return s
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP, and HTTP/3 when enabled, until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	if s.cfg.HTTP3Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load TLS certificates: %w", err)
		}
		s.http3Server = &http3.Server{
			Addr:    fmt.Sprintf(":%d", s.cfg.HTTP3Port),
			Handler: s.router,
			TLSConfig: http3.ConfigureTLSConfig(&tls.Config{
				MinVersion:   tls.VersionTLS13,
				Certificates: []tls.Certificate{cert},
			}),
			QUICConfig: &quic.Config{
				MaxIdleTimeout: s.cfg.MaxIdleTimeout,
			},
		}
	}

	go s.healthMgr.StartPeriodicChecks(ctx, healthInterval)

	errCh := make(chan error, 2)
	go func() {
		s.logger.WithField("port", s.cfg.HTTPPort).Info("Starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	if s.http3Server != nil {
		go func() {
			s.logger.WithField("port", s.cfg.HTTP3Port).Info("Starting HTTP/3 server")
			if err := s.http3Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http3 server: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		s.Shutdown(context.Background())
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")

	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}
	if s.http3Server != nil {
		// http3.Server has no graceful shutdown with a deadline
		if err := s.http3Server.Close(); err != nil {
			errs = append(errs, fmt.Errorf("http3 server: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) setupRoutes() {
	s.router.Use(requestIDMiddleware)
	s.router.Use(logger.RequestLoggerMiddleware(s.logger))
	s.router.Use(s.errorHandler.Middleware)
	s.router.Use(metricsMiddleware)

	hh := health.NewHandler(s.healthMgr)
	s.router.HandleFunc("/health", hh.HandleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", hh.HandleReady).Methods(http.MethodGet)
	s.router.HandleFunc("/live", hh.HandleLive).Methods(http.MethodGet)
	s.router.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/recording", s.handleRecordingStatus).Methods(http.MethodGet)
	api.HandleFunc("/overlay", s.handleOverlay).Methods(http.MethodGet)

	control := api.NewRoute().Subrouter()
	control.Use(s.rateLimitMiddleware)
	control.HandleFunc("/recording/start", s.handleStart).Methods(http.MethodPost)
	control.HandleFunc("/recording/stop", s.handleStop).Methods(http.MethodPost)
	control.HandleFunc("/recording/lock", s.handleLock).Methods(http.MethodPost)
	control.HandleFunc("/recording/unlock", s.handleUnlock).Methods(http.MethodPost)
	control.HandleFunc("/camera/toggle", s.handleCameraToggle).Methods(http.MethodPost)
	control.HandleFunc("/camera/illumination", s.handleIllumination).Methods(http.MethodPost)
	control.HandleFunc("/overlay/select", s.handleOverlaySelect).Methods(http.MethodPost)
	control.HandleFunc("/overlay/scale", s.handleOverlayScale).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(s.errorHandler.HandleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.errorHandler.HandleMethodNotAllowed)
}
