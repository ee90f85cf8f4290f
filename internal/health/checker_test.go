package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/zsiec/reelcam/internal/logger"
)

type mockChecker struct {
	name  string
	err   error
	delay time.Duration
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(ctx context.Context) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func TestRunChecks(t *testing.T) {
	m := NewManager(logger.NewNullLogger(), nil)
	m.Register(&mockChecker{name: "ok"})
	m.Register(&mockChecker{name: "broken", err: errors.New("connection refused")})
	m.Register(&mockChecker{name: "slow", err: Degraded("disk nearly full")})

	results := m.RunChecks(context.Background())
	require.Len(t, results, 3)

	assert.Equal(t, StatusOK, results["ok"].Status)
	assert.Empty(t, results["ok"].Message)

	assert.Equal(t, StatusDown, results["broken"].Status)
	assert.Equal(t, "connection refused", results["broken"].Message)

	assert.Equal(t, StatusDegraded, results["slow"].Status)
	assert.Equal(t, "disk nearly full", results["slow"].Message)

	assert.Equal(t, StatusDown, m.OverallStatus())
}

func TestCheckTimeout(t *testing.T) {
	m := NewManager(logger.NewNullLogger(), nil)
	m.Register(&mockChecker{name: "hang", delay: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	results := m.RunChecks(ctx)
	assert.Equal(t, StatusDown, results["hang"].Status)
	assert.Equal(t, "health check timed out", results["hang"].Message)
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{"no results", nil, StatusDown},
		{"all ok", []Checker{&mockChecker{name: "a"}, &mockChecker{name: "b"}}, StatusOK},
		{"degraded", []Checker{&mockChecker{name: "a"}, &mockChecker{name: "b", err: Degraded("x")}}, StatusDegraded},
		{"down wins", []Checker{&mockChecker{name: "a", err: Degraded("x")}, &mockChecker{name: "b", err: assert.AnError}}, StatusDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(logger.NewNullLogger(), nil)
			for _, c := range tt.checkers {
				m.Register(c)
			}
			if len(tt.checkers) > 0 {
				m.RunChecks(context.Background())
			}
			assert.Equal(t, tt.want, m.OverallStatus())
		})
	}
}

func TestResultsAreCopies(t *testing.T) {
	m := NewManager(logger.NewNullLogger(), nil)
	m.Register(&mockChecker{name: "a"})
	m.RunChecks(context.Background())

	r := m.Results()
	r["a"].Status = StatusDown
	assert.Equal(t, StatusOK, m.Results()["a"].Status)
}

func TestStartPeriodicChecks(t *testing.T) {
	m := NewManager(logger.NewNullLogger(), nil)
	m.Register(&mockChecker{name: "a"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.StartPeriodicChecks(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(m.Results()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic checks did not stop")
	}
}

type countingChecker struct {
	calls atomic.Int32
}

func (c *countingChecker) Name() string { return "counting" }

func (c *countingChecker) Check(context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestPeriodicChecksRunOnEachTick(t *testing.T) {
	fake := testingclock.NewFakeClock(time.Unix(0, 0))
	m := NewManager(logger.NewNullLogger(), fake)
	c := &countingChecker{}
	m.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.StartPeriodicChecks(ctx, time.Minute)

	require.Eventually(t, func() bool {
		return c.calls.Load() == 1 && fake.HasWaiters()
	}, time.Second, 5*time.Millisecond)

	fake.Step(59 * time.Second)
	assert.Never(t, func() bool { return c.calls.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	fake.Step(time.Second)
	require.Eventually(t, func() bool { return c.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}
