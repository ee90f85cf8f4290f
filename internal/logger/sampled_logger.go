package logger

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Categories for high-frequency pipeline events.
const (
	CategoryFrameProcessing = "frame_processing"
	CategoryBackpressure    = "backpressure"
	CategorySyncAdjustment  = "sync_adjustment"
	CategoryOverlayTracking = "overlay_tracking"
)

// SampledLogger rate limits log lines per category. Uncategorised calls go
// straight to the base logger; errors are never sampled.
type SampledLogger struct {
	Logger

	mu       sync.RWMutex
	samplers map[string]*sampler
}

type sampler struct {
	limiter *rate.Limiter
	total   atomic.Int64
	logged  atomic.Int64
}

// SamplerStats reports how much of a category made it to the log.
type SamplerStats struct {
	Name    string `json:"name"`
	Total   int64  `json:"total"`
	Logged  int64  `json:"logged"`
	Dropped int64  `json:"dropped"`
}

func NewSampledLogger(base Logger) *SampledLogger {
	return &SampledLogger{
		Logger:   base,
		samplers: make(map[string]*sampler),
	}
}

// WithSampler allows one line per interval for category, after an initial
// burst.
func (s *SampledLogger) WithSampler(category string, interval time.Duration, burst int) *SampledLogger {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samplers[category] = &sampler{limiter: rate.NewLimiter(rate.Every(interval), burst)}
	return s
}

// NewPipelineLogger returns a sampled logger configured for the capture
// pipeline categories.
func NewPipelineLogger(base Logger) *SampledLogger {
	return NewSampledLogger(base).
		WithSampler(CategoryFrameProcessing, 200*time.Millisecond, 5).
		WithSampler(CategoryBackpressure, 500*time.Millisecond, 3).
		WithSampler(CategorySyncAdjustment, time.Second, 2).
		WithSampler(CategoryOverlayTracking, time.Second, 1)
}

func (s *SampledLogger) allow(category string) bool {
	s.mu.RLock()
	sm, ok := s.samplers[category]
	s.mu.RUnlock()
	if !ok {
		return true
	}

	sm.total.Add(1)
	if !sm.limiter.Allow() {
		return false
	}
	sm.logged.Add(1)
	return true
}

func (s *SampledLogger) logCategory(level logrus.Level, category, msg string, fields map[string]interface{}) {
	if !s.allow(category) {
		return
	}
	if fields == nil {
		fields = make(map[string]interface{}, 1)
	}
	fields["category"] = category
	s.Logger.WithFields(fields).Log(level, msg)
}

func (s *SampledLogger) DebugWithCategory(category, msg string, fields map[string]interface{}) {
	s.logCategory(logrus.DebugLevel, category, msg, fields)
}

func (s *SampledLogger) InfoWithCategory(category, msg string, fields map[string]interface{}) {
	s.logCategory(logrus.InfoLevel, category, msg, fields)
}

func (s *SampledLogger) WarnWithCategory(category, msg string, fields map[string]interface{}) {
	s.logCategory(logrus.WarnLevel, category, msg, fields)
}

func (s *SampledLogger) ErrorWithCategory(category, msg string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{}, 1)
	}
	fields["category"] = category
	s.Logger.WithFields(fields).Error(msg)
}

// Stats returns per-category sampling counters.
func (s *SampledLogger) Stats() map[string]SamplerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]SamplerStats, len(s.samplers))
	for name, sm := range s.samplers {
		total, logged := sm.total.Load(), sm.logged.Load()
		stats[name] = SamplerStats{
			Name:    name,
			Total:   total,
			Logged:  logged,
			Dropped: total - logged,
		}
	}
	return stats
}
