// Package health runs dependency checks and serves the health endpoints.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/zsiec/reelcam/internal/logger"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

const checkTimeout = 5 * time.Second

// Check is the latest result of one checker.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"-"`
	DurationMS  float64       `json:"duration_ms"`
}

// Checker probes one dependency. Returning a *DegradedError reports the
// component as degraded rather than down.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// DegradedError marks a check that works but needs attention.
type DegradedError struct {
	Reason string
}

func (e *DegradedError) Error() string { return e.Reason }

func Degraded(reason string) error {
	return &DegradedError{Reason: reason}
}

// Manager runs registered checkers concurrently and keeps their last
// results.
type Manager struct {
	logger logger.Logger
	clock  clock.WithTicker

	mu       sync.RWMutex
	checkers []Checker
	results  map[string]*Check
}

func NewManager(log logger.Logger, clk clock.WithTicker) *Manager {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Manager{
		logger:  logger.WithComponent(log, "health"),
		clock:   clk,
		results: make(map[string]*Check),
	}
}

func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
	m.logger.WithField("checker", c.Name()).Debug("Registered health checker")
}

// RunChecks executes every checker and returns the fresh results.
func (m *Manager) RunChecks(ctx context.Context) map[string]*Check {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	out := make(chan *Check, len(checkers))
	var wg sync.WaitGroup
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			out <- m.run(ctx, c)
		}(c)
	}
	wg.Wait()
	close(out)

	results := make(map[string]*Check, len(checkers))
	m.mu.Lock()
	for check := range out {
		results[check.Name] = check
		m.results[check.Name] = check
	}
	m.mu.Unlock()
	return results
}

func (m *Manager) run(ctx context.Context, c Checker) *Check {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := m.clock.Now()
	err := c.Check(ctx)
	elapsed := m.clock.Since(start)

	check := &Check{
		Name:        c.Name(),
		Status:      StatusOK,
		LastChecked: m.clock.Now(),
		Duration:    elapsed,
		DurationMS:  float64(elapsed) / float64(time.Millisecond),
	}

	var degraded *DegradedError
	switch {
	case err == nil:
	case errors.As(err, &degraded):
		check.Status = StatusDegraded
		check.Message = degraded.Reason
	case errors.Is(err, context.DeadlineExceeded):
		check.Status = StatusDown
		check.Message = "health check timed out"
	default:
		check.Status = StatusDown
		check.Message = err.Error()
	}

	entry := m.logger.WithFields(map[string]interface{}{
		"checker":  check.Name,
		"status":   check.Status,
		"duration": elapsed,
	})
	if check.Status == StatusDown {
		entry.WithError(err).Error("Health check failed")
	} else {
		entry.Debug("Health check completed")
	}
	return check
}

// Results returns copies of the latest results.
func (m *Manager) Results() map[string]*Check {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*Check, len(m.results))
	for k, v := range m.results {
		c := *v
		out[k] = &c
	}
	return out
}

// OverallStatus is the worst status among the latest results. With no
// results yet the service is considered down.
func (m *Manager) OverallStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.results) == 0 {
		return StatusDown
	}
	overall := StatusOK
	for _, c := range m.results {
		switch c.Status {
		case StatusDown:
			return StatusDown
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// StartPeriodicChecks runs the checks now and then every interval until ctx
// is done.
func (m *Manager) StartPeriodicChecks(ctx context.Context, interval time.Duration) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	m.RunChecks(ctx)
	for {
		select {
		case <-ticker.C():
			m.RunChecks(ctx)
		case <-ctx.Done():
			m.logger.Debug("Stopping periodic health checks")
			return
		}
	}
}
