package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dmitrijs2005/imgdrop/internal/client/failure"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type rawErr struct {
	raw failure.Raw
}

func (e rawErr) Error() string     { return e.raw.Message }
func (e rawErr) Raw() failure.Raw { return e.raw }

func networkErr() error {
	return rawErr{failure.Raw{Category: failure.CategoryNetwork, Message: "connection reset"}}
}

func unauthorizedErr() error {
	return rawErr{failure.Raw{Category: failure.CategoryUpload, Message: "401 Unauthorized"}}
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func TestComputeDelay_Defaults(t *testing.T) {
	c := NewCoordinator(DefaultConfig())

	assert.Equal(t, time.Second, c.ComputeDelay(0))
	assert.Equal(t, 2*time.Second, c.ComputeDelay(1))
	assert.Equal(t, 4*time.Second, c.ComputeDelay(2))
	assert.Equal(t, 8*time.Second, c.ComputeDelay(3))
	assert.Equal(t, 10*time.Second, c.ComputeDelay(4))
	assert.Equal(t, 10*time.Second, c.ComputeDelay(1000))
}

func TestCanRetry(t *testing.T) {
	c := NewCoordinator(DefaultConfig())

	assert.False(t, c.CanRetry(nil))
	assert.True(t, c.CanRetry(failure.FromError(networkErr())))
	assert.False(t, c.CanRetry(failure.FromError(unauthorizedErr())), "policy forbids retry")
	assert.False(t, c.CanRetry(failure.Classify(failure.Raw{Category: failure.CategoryValidation, Message: "size"})))
	assert.False(t, c.CanRetry(failure.FromError(errors.New("no category"))))
}

func TestCanRetry_FalseOnceBudgetSpent(t *testing.T) {
	rec := &sleepRecorder{}
	c := NewCoordinator(DefaultConfig(), WithSleep(rec.sleep))

	err := c.ExecuteRetry(context.Background(), func(context.Context) error { return networkErr() }, networkErr(), nil)
	require.Error(t, err)

	assert.Equal(t, 3, c.State().Attempts)
	for _, k := range failure.Kinds() {
		assert.False(t, c.CanRetry(failure.Classify(failure.Raw{Category: failure.CategoryNetwork, Message: string(k)})), k)
	}
}

func TestExecuteRetry_SucceedsOnThirdAttempt(t *testing.T) {
	rec := &sleepRecorder{}
	c := NewCoordinator(DefaultConfig(), WithSleep(rec.sleep))

	calls := 0
	op := func(context.Context) error {
		calls++
		if calls < 2 {
			return networkErr()
		}
		return nil
	}

	var seen []int
	err := c.ExecuteRetry(context.Background(), op, networkErr(), func(attempt int, _ time.Duration) {
		seen = append(seen, attempt)
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
	assert.Equal(t, State{}, c.State(), "state resets on success")
}

func TestExecuteRetry_ExhaustsAndReturnsLatestError(t *testing.T) {
	rec := &sleepRecorder{}
	c := NewCoordinator(DefaultConfig(), WithSleep(rec.sleep))

	latest := rawErr{failure.Raw{Category: failure.CategoryNetwork, Message: "timed out"}}
	calls := 0
	err := c.ExecuteRetry(context.Background(), func(context.Context) error {
		calls++
		return latest
	}, networkErr(), nil)

	assert.Equal(t, latest, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.delays)

	st := c.State()
	assert.False(t, st.IsRetrying)
	assert.Equal(t, failure.KindTimeoutError, st.LastError.Kind)
}

func TestExecuteRetry_NonRetryableRethrowsImmediately(t *testing.T) {
	rec := &sleepRecorder{}
	c := NewCoordinator(DefaultConfig(), WithSleep(rec.sleep))

	in := unauthorizedErr()
	called := false
	err := c.ExecuteRetry(context.Background(), func(context.Context) error {
		called = true
		return nil
	}, in, nil)

	assert.Equal(t, in, err)
	assert.False(t, called)
	assert.Empty(t, rec.delays)
	assert.Zero(t, c.State().Attempts)
}

func TestExecuteRetry_StopsWhenOperationTurnsTerminal(t *testing.T) {
	rec := &sleepRecorder{}
	c := NewCoordinator(DefaultConfig(), WithSleep(rec.sleep))

	calls := 0
	err := c.ExecuteRetry(context.Background(), func(context.Context) error {
		calls++
		return unauthorizedErr()
	}, networkErr(), nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteRetry_KindBudgetCapsConfig(t *testing.T) {
	rec := &sleepRecorder{}
	c := NewCoordinator(Config{MaxRetries: 5, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Second}, WithSleep(rec.sleep))

	server := rawErr{failure.Raw{Category: failure.CategoryUpload, Message: "status 503"}}
	calls := 0
	_ = c.ExecuteRetry(context.Background(), func(context.Context) error {
		calls++
		return server
	}, server, nil)

	assert.Equal(t, failure.PolicyFor(failure.KindServerError).Recovery.MaxRetries, calls)
}

func TestExecuteRetry_ContextCancelAbortsWait(t *testing.T) {
	c := NewCoordinator(Config{MaxRetries: 3, BaseDelay: time.Hour, Multiplier: 2, MaxDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.ExecuteRetry(ctx, func(context.Context) error { return nil }, networkErr(), nil)
	}()

	require.Eventually(t, func() bool { return c.State().IsRetrying }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("ExecuteRetry did not return after cancel")
	}
	assert.False(t, c.State().IsRetrying)
}

type fakeTimers struct {
	mu      sync.Mutex
	fns     []func()
	delays  []time.Duration
	stopped int
}

func (f *fakeTimers) after(d time.Duration, fn func()) func() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.fns)
	f.fns = append(f.fns, fn)
	f.delays = append(f.delays, d)
	return func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fns[idx] == nil {
			return false
		}
		f.fns[idx] = nil
		f.stopped++
		return true
	}
}

func (f *fakeTimers) fire(i int) {
	f.mu.Lock()
	fn := f.fns[i]
	f.fns[i] = nil
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func TestScheduleRetry_SameKeyReplacesPendingTimer(t *testing.T) {
	timers := &fakeTimers{}
	c := NewCoordinator(DefaultConfig(), WithAfterFunc(timers.after))

	runs := 0
	op := func(context.Context) error { runs++; return nil }

	require.True(t, c.ScheduleRetry(context.Background(), op, networkErr(), "upload"))
	require.True(t, c.ScheduleRetry(context.Background(), op, networkErr(), "upload"))

	assert.Equal(t, 1, timers.stopped)
	assert.Equal(t, 1, c.Pending())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timers.delays)

	timers.fire(0)
	assert.Zero(t, runs, "replaced timer must not run")

	timers.fire(1)
	assert.Equal(t, 1, runs)
	assert.Zero(t, c.Pending())
	assert.Equal(t, State{}, c.State())
}

func TestScheduleRetry_RejectsTerminalError(t *testing.T) {
	timers := &fakeTimers{}
	c := NewCoordinator(DefaultConfig(), WithAfterFunc(timers.after))

	assert.False(t, c.ScheduleRetry(context.Background(), func(context.Context) error { return nil }, unauthorizedErr(), "k"))
	assert.Empty(t, timers.fns)
	assert.Equal(t, failure.KindUnauthorized, c.State().LastError.Kind)
}

func TestCancelRetry(t *testing.T) {
	timers := &fakeTimers{}
	c := NewCoordinator(DefaultConfig(), WithAfterFunc(timers.after))

	c.CancelRetry("missing")

	require.True(t, c.ScheduleRetry(context.Background(), func(context.Context) error { return nil }, networkErr(), "k"))
	assert.True(t, c.State().IsRetrying)

	c.CancelRetry("k")
	assert.False(t, c.State().IsRetrying)
	assert.Zero(t, c.Pending())
	assert.Equal(t, 1, timers.stopped)
}

func TestReset_StopsRealTimers(t *testing.T) {
	c := NewCoordinator(Config{MaxRetries: 3, BaseDelay: time.Hour, Multiplier: 2, MaxDelay: time.Hour})

	op := func(context.Context) error { t.Error("operation must not run"); return nil }
	require.True(t, c.ScheduleRetry(context.Background(), op, networkErr(), "a"))
	require.True(t, c.ScheduleRetry(context.Background(), op, networkErr(), "b"))
	assert.Equal(t, 2, c.Pending())

	c.Reset()
	assert.Zero(t, c.Pending())
	assert.Equal(t, State{}, c.State())
}

func TestScheduleRetry_RealTimerFires(t *testing.T) {
	c := NewCoordinator(Config{MaxRetries: 3, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Millisecond})

	done := make(chan struct{})
	require.True(t, c.ScheduleRetry(context.Background(), func(context.Context) error {
		close(done)
		return networkErr()
	}, networkErr(), "k"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled retry never ran")
	}
	require.Eventually(t, func() bool { return !c.State().IsRetrying }, time.Second, time.Millisecond)
	assert.Equal(t, 1, c.State().Attempts)
}
