// Package pipeline sequences acquisition, validation, upload and the
// terminal state of a single-file upload run, including cancellation,
// classified failures and retries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/imgdrop/internal/client/announce"
	"github.com/dmitrijs2005/imgdrop/internal/client/failure"
	"github.com/dmitrijs2005/imgdrop/internal/client/models"
	"github.com/dmitrijs2005/imgdrop/internal/client/notify"
	"github.com/dmitrijs2005/imgdrop/internal/client/retry"
	"github.com/dmitrijs2005/imgdrop/internal/client/transport"
	"github.com/dmitrijs2005/imgdrop/internal/client/validation"
	"github.com/dmitrijs2005/imgdrop/internal/logging"
)

var afterFunc = time.AfterFunc

// History stores descriptors of finished uploads.
type History interface {
	Insert(ctx context.Context, rec models.UploadRecord) error
	MarkDeleted(ctx context.Context, publicID string) error
}

// Observer is called with a snapshot after every state change. Observers
// run synchronously and must not call mutating Controller methods.
type Observer func(Run)

type Options struct {
	Rules      validation.Rules
	Validators []validation.Validator

	UploadOnSelect bool
	Folder         string
	Tags           []string

	Retry        retry.Config
	RetryOptions []retry.Option
	// TransportRetries is passed to the transport; zero keeps its default.
	TransportRetries int

	Notifier notify.Notifier
	Logger   logging.Logger
	History  History

	// OnFallback runs when the user picks the fallback action of an error,
	// e.g. switching from the camera to the file browser.
	OnFallback func()
}

// Controller owns one pipeline run at a time.
type Controller struct {
	uploader transport.Uploader
	opts     Options
	retry    *retry.Coordinator
	logger   logging.Logger
	notifier notify.Notifier

	mu        sync.Mutex
	run       Run
	gen       uint64
	cancel    context.CancelFunc
	loading   notify.Handle
	observers map[int]Observer
	nextObs   int
	closed    bool

	emitMu sync.Mutex
	bg     sync.WaitGroup
}

func NewController(uploader transport.Uploader, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{}
	}
	if opts.Retry == (retry.Config{}) {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.Rules.MaxSize == 0 && len(opts.Rules.AllowedTypes) == 0 {
		opts.Rules = validation.DefaultRules()
	}

	c := &Controller{
		uploader:  uploader,
		opts:      opts,
		logger:    opts.Logger,
		notifier:  opts.Notifier,
		run:       Run{Phase: PhaseIdle},
		observers: make(map[int]Observer),
	}
	retryOpts := append([]retry.Option{retry.WithLogger(opts.Logger), retry.WithAfterFunc(c.afterFunc)}, opts.RetryOptions...)
	c.retry = retry.NewCoordinator(opts.Retry, retryOpts...)
	return c
}

// Snapshot returns the current run.
func (c *Controller) Snapshot() Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Run {
	r := c.run
	r.Reasons = append([]string(nil), c.run.Reasons...)
	return r
}

// RetryState exposes the coordinator bookkeeping of the current run.
func (c *Controller) RetryState() retry.State {
	return c.retry.State()
}

// Subscribe registers fn and returns a function that removes it.
func (c *Controller) Subscribe(fn Observer) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// commitLocked publishes the current state to observers. It must be called
// with c.mu held and releases it; observers see changes in commit order.
func (c *Controller) commitLocked() {
	snap := c.snapshotLocked()
	observers := make([]Observer, 0, len(c.observers))
	for i := 0; i < c.nextObs; i++ {
		if fn, ok := c.observers[i]; ok {
			observers = append(observers, fn)
		}
	}
	c.emitMu.Lock()
	c.mu.Unlock()
	defer c.emitMu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

// Acquire validates file and makes it the candidate of a new run. The
// controller takes ownership of preview. A previous run is replaced without
// deleting its remote asset.
func (c *Controller) Acquire(ctx context.Context, file *models.CandidateFile, preview *models.PreviewHandle) error {
	if file == nil {
		preview.Release()
		return ErrNoCandidate
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		preview.Release()
		return ErrClosed
	}
	if c.run.Phase == PhaseUploading {
		c.mu.Unlock()
		preview.Release()
		return ErrBusy
	}
	c.mu.Unlock()

	res := validation.Validate(ctx, file, c.opts.Rules, c.opts.Validators...)

	c.mu.Lock()
	if c.closed || c.run.Phase == PhaseUploading {
		closed := c.closed
		c.mu.Unlock()
		preview.Release()
		if closed {
			return ErrClosed
		}
		return ErrBusy
	}
	c.gen++
	c.run.Preview.Release()
	c.retry.Reset()

	if !res.IsValid {
		classified := failure.Classify(failure.Raw{
			Category: failure.CategoryValidation,
			Message:  res.Errors[0],
			Details:  strings.Join(res.Errors, "\n"),
		})
		c.run = Run{Phase: PhaseError, Error: classified, Reasons: res.Errors}
		c.commitLocked()
		preview.Release()

		c.logger.Info(ctx, "file rejected", "file", file.Name, "kind", classified.Kind, "reasons", len(res.Errors))
		c.notifier.Error(classified.Title, strings.Join(res.Errors, "\n"), c.errorActions(classified, false)...)
		announce.Publish(fmt.Sprintf("%s: %s", classified.Title, file.Name))
		return classified
	}

	c.run = Run{Phase: PhaseSelecting, Candidate: file, Preview: preview}
	c.commitLocked()

	c.logger.Info(ctx, "file selected", "file", file.Name, "size", file.Size, "type", file.MIMEType, "source", file.Source)
	c.notifier.Info(fmt.Sprintf("Selected %s", file.Name), fmt.Sprintf("%s, %s", validation.FormatBytes(file.Size), file.MIMEType))
	announce.Publish(fmt.Sprintf("%s selected", file.Name))

	if c.opts.UploadOnSelect {
		return c.Upload(ctx)
	}
	return nil
}

// Upload sends the selected candidate and blocks until the run reaches a
// terminal state. Retryable failures are retried with backoff.
func (c *Controller) Upload(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.run.Phase == PhaseUploading:
		c.mu.Unlock()
		return ErrBusy
	case c.run.Phase != PhaseSelecting || c.run.Candidate == nil:
		c.mu.Unlock()
		return ErrNoCandidate
	}
	return c.startLocked(ctx)
}

// Retry re-dispatches a failed upload with a fresh retry budget.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.run.Phase == PhaseUploading:
		c.mu.Unlock()
		return ErrBusy
	case c.run.Phase != PhaseError || c.run.Candidate == nil:
		c.mu.Unlock()
		return ErrNoCandidate
	case c.run.Error != nil && !retry.Retryable(c.run.Error):
		c.mu.Unlock()
		return ErrNotRetryable
	}
	c.retry.Reset()
	return c.startLocked(ctx)
}

// startLocked moves the run to Uploading and drives it to a terminal state.
// Called with c.mu held.
func (c *Controller) startLocked(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.cancel = cancel
	gen := c.gen
	file := c.run.Candidate
	c.enterUploadingLocked(1)
	c.loading = c.notifier.Loading(fmt.Sprintf("Uploading %s", file.Name), "0%")
	c.commitLocked()

	announce.Publish(fmt.Sprintf("Uploading %s", file.Name))

	var result *models.UploadResult
	attempt := func(ctx context.Context) error {
		res, err := c.uploader.Upload(ctx, file, transport.Options{
			Folder:     c.opts.Folder,
			Tags:       c.opts.Tags,
			OnProgress: func(p int) { c.setProgress(gen, p) },
			OnAttempt:  func(n int) { c.restartProgress(gen, n) },
			MaxRetries: c.opts.TransportRetries,
		})
		if err != nil {
			return err
		}
		result = res
		return nil
	}

	err := attempt(runCtx)
	if err != nil && runCtx.Err() == nil {
		classified := failure.FromError(err)
		if c.retry.CanRetry(classified) {
			c.fail(ctx, gen, classified, true)

			err = c.retry.ExecuteRetry(runCtx, func(ctx context.Context) error {
				err := attempt(ctx)
				if err != nil && ctx.Err() == nil {
					if cl := failure.FromError(err); c.retry.CanRetry(cl) {
						c.fail(ctx, gen, cl, true)
					}
				}
				return err
			}, err, func(n int, _ time.Duration) {
				c.mu.Lock()
				if c.gen != gen {
					c.mu.Unlock()
					return
				}
				c.enterUploadingLocked(n + 1)
				c.commitLocked()
			})
		}
	}

	if c.stale(gen) {
		return ErrCancelled
	}
	if runCtx.Err() != nil {
		// caller's context ended without Cancel
		c.discard(context.WithoutCancel(ctx), "cancelled")
		return ErrCancelled
	}
	if err != nil {
		classified := failure.FromError(err)
		c.fail(ctx, gen, classified, false)
		return classified
	}

	c.succeed(ctx, gen, file, result)
	return nil
}

func (c *Controller) enterUploadingLocked(attempt int) {
	c.run.Phase = PhaseUploading
	c.run.Progress = 0
	c.run.Error = nil
	c.run.Result = nil
	c.run.Reasons = nil
	c.run.Attempt = attempt
}

func (c *Controller) stale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen != gen
}

func (c *Controller) setProgress(gen uint64, p int) {
	c.mu.Lock()
	if c.gen != gen || c.run.Phase != PhaseUploading || p <= c.run.Progress {
		c.mu.Unlock()
		return
	}
	c.run.Progress = p
	loading := c.loading
	c.commitLocked()

	if loading != nil {
		loading.Update(fmt.Sprintf("Uploading… %d%%", p), "")
	}
}

// restartProgress drops the progress of a failed transport attempt.
func (c *Controller) restartProgress(gen uint64, attempt int) {
	c.mu.Lock()
	if c.gen != gen || c.run.Phase != PhaseUploading || attempt <= 1 || c.run.Progress == 0 {
		c.mu.Unlock()
		return
	}
	c.run.Progress = 0
	loading := c.loading
	c.commitLocked()

	if loading != nil {
		loading.Update("Uploading… 0%", "")
	}
}

func (c *Controller) succeed(ctx context.Context, gen uint64, file *models.CandidateFile, result *models.UploadResult) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.retry.Reset()
	c.run.Phase = PhaseSuccess
	c.run.Progress = 100
	c.run.Result = result
	c.run.Error = nil
	c.cancel = nil
	loading := c.loading
	c.loading = nil
	c.commitLocked()

	if loading != nil {
		loading.Dismiss()
	}

	c.logger.Info(ctx, "upload complete", "file", file.Name, "public_id", result.ID, "bytes", result.Bytes, "format", result.Format)
	c.notifier.Success("Upload complete", fmt.Sprintf("%s, %s", validation.FormatBytes(result.Bytes), result.Format))
	announce.Publish(fmt.Sprintf("%s uploaded", file.Name))

	if c.opts.History != nil {
		rec := models.UploadRecord{UploadResult: *result, FileName: file.Name}
		if err := c.opts.History.Insert(ctx, rec); err != nil {
			c.logger.Warn(ctx, "cannot record upload", "public_id", result.ID, "error", err)
		}
	}
}

// fail moves the run to Error and pushes one notification. retrying marks
// an intermediate failure that the coordinator is about to retry.
func (c *Controller) fail(ctx context.Context, gen uint64, classified *failure.Classified, retrying bool) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.run.Phase = PhaseError
	c.run.Error = classified
	c.run.Result = nil
	var loading notify.Handle
	if !retrying {
		c.cancel = nil
		loading, c.loading = c.loading, nil
	}
	attempt := c.run.Attempt
	c.commitLocked()

	if loading != nil {
		loading.Dismiss()
	}

	if retrying {
		limit := c.opts.Retry.MaxRetries
		if m := classified.Recovery.MaxRetries; m > 0 && m < limit {
			limit = m
		}
		c.logger.Warn(ctx, "upload failed, retrying", "kind", classified.Kind, "attempt", attempt, "error", classified.Technical.Message)
		c.notifier.Error(classified.Title, fmt.Sprintf("%s Retrying (attempt %d of %d)…", classified.Message, attempt, limit))
		return
	}

	c.logger.Error(ctx, "upload failed", "kind", classified.Kind, "severity", classified.Severity, "error", classified.Technical.Message)
	c.notifier.Error(classified.Title, classified.Message+" "+classified.Suggestion, c.errorActions(classified, true)...)
	announce.Publish(fmt.Sprintf("Upload failed: %s", classified.Title))
}

func (c *Controller) errorActions(classified *failure.Classified, retryable bool) []notify.Action {
	var actions []notify.Action
	if retryable && retry.Retryable(classified) {
		actions = append(actions, notify.Action{Label: notify.LabelRetry, OnInvoke: c.scheduleRetry})
	}
	if label := classified.Recovery.FallbackLabel; label != "" {
		actions = append(actions, notify.Action{Label: label, OnInvoke: c.opts.OnFallback})
	}
	if classified.Persistent() && len(actions) == 0 {
		actions = append(actions, notify.Action{Label: notify.LabelDismiss})
	}
	return actions
}

func retryKey(gen uint64) string {
	return "run-" + strconv.FormatUint(gen, 10)
}

// scheduleRetry runs Retry after the first backoff delay. The timer belongs
// to the current run and is dropped when the run is cancelled or replaced.
func (c *Controller) scheduleRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.run.Phase != PhaseError || c.run.Candidate == nil || !retry.Retryable(c.run.Error) {
		return
	}

	gen := c.gen
	c.retry.Reset()
	c.retry.ScheduleRetry(context.Background(), func(ctx context.Context) error {
		if c.stale(gen) {
			return nil
		}
		err := c.Retry(ctx)
		if errors.Is(err, ErrCancelled) || errors.Is(err, ErrClosed) || errors.Is(err, ErrBusy) {
			return nil
		}
		if err != nil {
			c.logger.Debug(ctx, "retry action", "error", err)
		}
		return err
	}, c.run.Error, retryKey(gen))
}

// afterFunc starts a retry timer that Close waits for.
func (c *Controller) afterFunc(d time.Duration, f func()) func() bool {
	c.bg.Add(1)
	t := afterFunc(d, func() {
		defer c.bg.Done()
		f()
	})
	return func() bool {
		if t.Stop() {
			c.bg.Done()
			return true
		}
		return false
	}
}

// Cancel aborts in-flight work and returns to Idle. A received descriptor is
// deleted from the store in the background.
func (c *Controller) Cancel() {
	descriptor := c.discard(context.Background(), "cancelled")
	if descriptor == nil {
		return
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		c.deleteRemote(context.Background(), descriptor.ID)
	}()
}

// Reset returns to Idle. When the run had already uploaded its file, the
// asset is deleted from the store first, best effort.
func (c *Controller) Reset(ctx context.Context) {
	if descriptor := c.discard(ctx, "reset"); descriptor != nil {
		c.deleteRemote(ctx, descriptor.ID)
	}
}

// discard moves the run to Idle and returns the descriptor it held.
func (c *Controller) discard(ctx context.Context, reason string) *models.UploadResult {
	c.mu.Lock()
	prev := c.run
	cancel := c.cancel
	loading := c.loading
	c.cancel, c.loading = nil, nil

	c.retry.CancelRetry(retryKey(c.gen))
	c.retry.Reset()
	if cancel != nil {
		cancel()
	}
	c.gen++
	prev.Preview.Release()
	c.run = Run{Phase: PhaseIdle}
	c.commitLocked()

	if loading != nil {
		loading.Dismiss()
	}
	if prev.Phase == PhaseIdle {
		return nil
	}

	c.logger.Info(ctx, "run "+reason, "phase", prev.Phase)
	if prev.Phase == PhaseUploading {
		c.notifier.Info("Upload cancelled", "")
		announce.Publish("Upload cancelled")
	}
	return prev.Result
}

func (c *Controller) deleteRemote(ctx context.Context, publicID string) {
	if err := c.uploader.Delete(ctx, publicID); err != nil {
		c.logger.Warn(ctx, "cannot delete discarded upload", "public_id", publicID, "error", err)
		return
	}
	if c.opts.History != nil {
		if err := c.opts.History.MarkDeleted(ctx, publicID); err != nil {
			c.logger.Warn(ctx, "cannot update history", "public_id", publicID, "error", err)
		}
	}
}

// Close tears the controller down: in-flight work is cancelled, timers are
// stopped and the preview is released. Uploaded assets are kept.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	loading := c.loading
	c.cancel, c.loading = nil, nil
	c.gen++
	c.retry.Reset()
	if cancel != nil {
		cancel()
	}
	c.run.Preview.Release()
	c.run = Run{Phase: PhaseIdle}
	c.commitLocked()

	if loading != nil {
		loading.Dismiss()
	}

	done := make(chan struct{})
	go func() {
		c.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
