package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	typ     CheckType
	healthy atomic.Bool
}

func (c *fakeChecker) Type() CheckType { return c.typ }

func (c *fakeChecker) Check(ctx context.Context) Result {
	return Result{Healthy: c.healthy.Load(), Message: "fake", CheckedAt: time.Now()}
}

func TestStatusStartsHealthy(t *testing.T) {
	s := NewStatus()
	require.True(t, s.Healthy)
	require.Zero(t, s.ConsecutiveFailures)
}

func TestStatusBecomesUnhealthyAfterRetriesExceeded(t *testing.T) {
	s := NewStatus()
	cfg := Config{Retries: 2}

	s.Update(Result{Healthy: false}, cfg)
	require.True(t, s.Healthy, "should tolerate the first failure below Retries")

	s.Update(Result{Healthy: false}, cfg)
	require.False(t, s.Healthy)

	s.Update(Result{Healthy: true}, cfg)
	require.True(t, s.Healthy)
	require.Zero(t, s.ConsecutiveFailures)
}

func TestRunnerPicksUpCheckerTransitions(t *testing.T) {
	checker := &fakeChecker{typ: CheckTypeKV}
	checker.healthy.Store(true)

	r := NewRunner(checker, Config{Interval: 5 * time.Millisecond, Timeout: time.Second, Retries: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	require.Eventually(t, func() bool {
		return r.Status().LastCheck.After(time.Time{})
	}, time.Second, 5*time.Millisecond)
	require.True(t, r.Status().Healthy)

	checker.healthy.Store(false)
	require.Eventually(t, func() bool {
		return !r.Status().Healthy
	}, time.Second, 5*time.Millisecond)
}
