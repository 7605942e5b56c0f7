// Package retry drives the user-facing retry layer of an upload run:
// attempt counting, capped exponential backoff and keyed retry timers.
package retry

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/imgdrop/internal/client/failure"
	"github.com/dmitrijs2005/imgdrop/internal/logging"
)

// Config holds the backoff policy.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// DefaultConfig returns 3 retries starting at 1s, doubling, capped at 10s.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Multiplier: 2,
		MaxDelay:   10 * time.Second,
	}
}

// State is a snapshot of the coordinator's bookkeeping.
type State struct {
	Attempts   int
	LastError  *failure.Classified
	IsRetrying bool
	NextDelay  time.Duration
}

// Operation is one attempt of the retried work.
type Operation func(ctx context.Context) error

// ProgressFunc is told about every retry right before the attempt runs.
type ProgressFunc func(attempt int, delay time.Duration)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// AfterFunc runs f after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

var retryableCategories = map[failure.Category]bool{
	failure.CategoryNetwork: true,
	failure.CategoryUpload:  true,
	failure.CategoryCamera:  true,
}

// Retryable reports whether err belongs to a retryable category and its
// kind allows retries. Attempt budgets are not considered.
func Retryable(err *failure.Classified) bool {
	return err != nil && retryableCategories[err.Category] && err.Recovery.CanRetry
}

type pending struct {
	stop func() bool
}

// Coordinator owns the retry state of a single pipeline run.
type Coordinator struct {
	cfg    Config
	logger logging.Logger
	sleep  SleepFunc
	after  AfterFunc

	mu     sync.Mutex
	state  State
	timers map[string]*pending
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

func WithLogger(l logging.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithSleep replaces the backoff wait of ExecuteRetry.
func WithSleep(fn SleepFunc) Option {
	return func(c *Coordinator) { c.sleep = fn }
}

// WithAfterFunc replaces the timer used by ScheduleRetry.
func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Coordinator) { c.after = fn }
}

func NewCoordinator(cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:    cfg,
		logger: logging.Discard(),
		sleep:  sleepCtx,
		after:  afterFunc,
		timers: make(map[string]*pending),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Config returns the policy the coordinator was built with.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// ComputeDelay returns min(MaxDelay, BaseDelay * Multiplier^attempt).
func (c *Coordinator) ComputeDelay(attempt int) time.Duration {
	return computeDelay(c.cfg, attempt)
}

func computeDelay(cfg Config, attempt int) time.Duration {
	d := cfg.BaseDelay
	if d <= 0 {
		return 0
	}
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	if cfg.Multiplier <= 1 {
		return d
	}
	for i := 0; i < attempt; i++ {
		next := time.Duration(float64(d) * cfg.Multiplier)
		if next < d || (cfg.MaxDelay > 0 && next >= cfg.MaxDelay) {
			// overflow or cap reached
			if cfg.MaxDelay > 0 {
				return cfg.MaxDelay
			}
			return d
		}
		d = next
	}
	return d
}

// CanRetry reports whether err may be retried given the attempts made so far.
func (c *Coordinator) CanRetry(err *failure.Classified) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canRetryLocked(err)
}

func (c *Coordinator) canRetryLocked(err *failure.Classified) bool {
	if !Retryable(err) {
		return false
	}
	return c.state.Attempts < c.limit(err)
}

// limit is the smaller of the configured budget and the kind's own budget.
func (c *Coordinator) limit(err *failure.Classified) int {
	n := c.cfg.MaxRetries
	if m := err.Recovery.MaxRetries; m > 0 && m < n {
		n = m
	}
	return n
}

// ExecuteRetry retries op after a failed first attempt that produced err.
// Each round waits ComputeDelay, reports through onProgress and reruns op,
// until op succeeds or the error is no longer retryable. The latest error
// is returned on exhaustion.
func (c *Coordinator) ExecuteRetry(ctx context.Context, op Operation, err error, onProgress ProgressFunc) error {
	last := err
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.stopRetrying()
			return ctxErr
		}

		classified := failure.FromError(last)

		c.mu.Lock()
		c.state.LastError = classified
		if !c.canRetryLocked(classified) {
			c.state.IsRetrying = false
			c.mu.Unlock()
			return last
		}
		c.state.Attempts++
		attempt := c.state.Attempts
		delay := computeDelay(c.cfg, attempt-1)
		c.state.IsRetrying = true
		c.state.NextDelay = delay
		limit := c.limit(classified)
		c.mu.Unlock()

		c.logger.Info(ctx, "retrying", "attempt", attempt, "of", limit, "delay", delay, "kind", classified.Kind)

		if werr := c.sleep(ctx, delay); werr != nil {
			c.stopRetrying()
			return werr
		}

		if onProgress != nil {
			onProgress(attempt, delay)
		}

		if last = op(ctx); last == nil {
			c.logger.Info(ctx, "retry succeeded", "attempt", attempt)
			c.resetState()
			return nil
		}
		c.logger.Warn(ctx, "retry attempt failed", "attempt", attempt, "error", last)
	}
}

// ScheduleRetry arranges for op to run after the next backoff delay without
// blocking. A pending timer under the same key is replaced. It returns false
// when err is not retryable.
func (c *Coordinator) ScheduleRetry(ctx context.Context, op Operation, err error, key string) bool {
	classified := failure.FromError(err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.timers[key]; ok {
		p.stop()
		delete(c.timers, key)
	}

	c.state.LastError = classified
	if !c.canRetryLocked(classified) {
		c.state.IsRetrying = false
		return false
	}

	c.state.Attempts++
	attempt := c.state.Attempts
	delay := computeDelay(c.cfg, attempt-1)
	c.state.IsRetrying = true
	c.state.NextDelay = delay

	p := &pending{}
	p.stop = c.after(delay, func() {
		c.mu.Lock()
		if c.timers[key] != p {
			c.mu.Unlock()
			return
		}
		delete(c.timers, key)
		c.mu.Unlock()

		if opErr := op(ctx); opErr != nil {
			c.mu.Lock()
			c.state.LastError = failure.FromError(opErr)
			c.state.IsRetrying = false
			c.mu.Unlock()
			c.logger.Warn(ctx, "scheduled retry failed", "key", key, "attempt", attempt, "error", opErr)
			return
		}
		c.resetState()
	})
	c.timers[key] = p

	c.logger.Debug(ctx, "retry scheduled", "key", key, "attempt", attempt, "delay", delay)
	return true
}

// CancelRetry stops the timer pending under key, if any.
func (c *Coordinator) CancelRetry(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.timers[key]; ok {
		p.stop()
		delete(c.timers, key)
	}
	c.state.IsRetrying = false
}

// Reset stops every pending timer and zeroes the state.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, p := range c.timers {
		p.stop()
		delete(c.timers, key)
	}
	c.state = State{}
}

// Pending reports how many scheduled retries are waiting.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) resetState() {
	c.mu.Lock()
	c.state = State{}
	c.mu.Unlock()
}

func (c *Coordinator) stopRetrying() {
	c.mu.Lock()
	c.state.IsRetrying = false
	c.mu.Unlock()
}
