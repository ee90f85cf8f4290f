package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/zsiec/reelcam/internal/errors"
	"github.com/zsiec/reelcam/internal/logger"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reelcam_http_request_duration_seconds",
		Help:    "Duration of API requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelcam_http_requests_in_flight",
		Help: "API requests currently being served",
	})
)

// requestIDMiddleware echoes or assigns X-Request-ID.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(logger.RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
			r.Header.Set(logger.RequestIDHeader, id)
		}
		w.Header().Set(logger.RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records latency by route template so ids in paths do
// not explode label cardinality. Health probes are skipped.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		switch route {
		case "/health", "/ready", "/live":
			next.ServeHTTP(w, r)
			return
		}

		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		start := time.Now()
		rw := logger.NewResponseWriter(w)
		next.ServeHTTP(rw, r)

		httpRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(rw.StatusCode())).
			Observe(time.Since(start).Seconds())
	})
}

// rateLimitMiddleware sheds control requests above the configured rate.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			s.errorHandler.HandleError(w, r, apperrors.NewRateLimitError("Too many control requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
