package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/imgdrop/internal/client/acquire"
	"github.com/dmitrijs2005/imgdrop/internal/client/repositories/settings"
	"github.com/dmitrijs2005/imgdrop/internal/client/validation"
	"github.com/dmitrijs2005/imgdrop/internal/filex"
)

// historyLimit caps the rows printed by the history command.
const historyLimit = 20

// Browse picks path from disk.
func (a *App) Browse(ctx context.Context, path string) error {
	if path == "" {
		return errors.New("usage: browse <path>")
	}
	return a.zone.Browse(ctx, path)
}

// ToggleDrop starts watching the drop folder, or stops the running watch.
func (a *App) ToggleDrop(ctx context.Context) error {
	a.mu.Lock()
	if a.stopFolder != nil {
		stop := a.stopFolder
		a.stopFolder = nil
		a.mu.Unlock()
		stop()
		fmt.Fprintln(a.out, "Stopped watching the drop folder.")
		return nil
	}

	dir, err := filex.EnsureDir(a.config.DropDir)
	if err != nil {
		a.mu.Unlock()
		return err
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.stopFolder = cancel
	a.mu.Unlock()

	folder := acquire.NewDropFolder(dir, a.zone, acquire.WithFolderLogger(a.logger.With("component", "dropfolder")))
	a.jobs.Add(1)
	go func() {
		defer a.jobs.Done()
		if err := folder.Run(watchCtx); err != nil {
			a.report(watchCtx, err)
		}
	}()

	fmt.Fprintf(a.out, "Watching %s. Copy an image there to select it.\n", dir)
	return nil
}

// Camera opens a camera stream. facing is "front" or "back"; without it the
// last used camera is opened, front by default.
func (a *App) Camera(ctx context.Context, facing string) error {
	if facing == "" {
		saved, err := a.settings.Get(ctx, settings.KeyFacing)
		if err != nil {
			a.logger.Debug(ctx, "reading saved camera", "error", err)
		}
		facing = saved
	}

	mode := acquire.FacingUser
	switch strings.ToLower(facing) {
	case "", "front", "user":
	case "back", "environment", "rear":
		mode = acquire.FacingEnvironment
	default:
		return errors.New("usage: camera [front|back]")
	}

	if err := a.camera.Start(ctx, mode); err != nil {
		a.notifyFailure(err)
		return nil
	}
	a.saveFacing(ctx)
	fmt.Fprintf(a.out, "Camera ready (%s). Type 'capture' to take a photo.\n", mode)
	return nil
}

// Switch flips between the front and back camera.
func (a *App) Switch(ctx context.Context) error {
	if !a.camera.Active() {
		return acquire.ErrCameraStopped
	}
	switched, err := a.camera.SwitchCamera(ctx)
	if err != nil {
		a.notifyFailure(err)
		return nil
	}
	if !switched {
		fmt.Fprintln(a.out, "Only one camera is available.")
		return nil
	}
	a.saveFacing(ctx)
	fmt.Fprintf(a.out, "Switched to %s camera.\n", a.camera.Facing())
	return nil
}

func (a *App) saveFacing(ctx context.Context) {
	if err := a.settings.Set(ctx, settings.KeyFacing, string(a.camera.Facing())); err != nil {
		a.logger.Debug(ctx, "saving camera", "error", err)
	}
}

// Capture takes a photo with the open camera and selects it.
func (a *App) Capture(ctx context.Context) error {
	err := a.camera.Capture(ctx)
	if err == nil || errors.Is(err, acquire.ErrCameraStopped) {
		return err
	}
	var devErr *acquire.DeviceError
	if errors.As(err, &devErr) {
		a.notifyFailure(err)
		return nil
	}
	return err
}

func (a *App) Upload(ctx context.Context) error {
	a.spawn(ctx, a.ctrl.Upload)
	return nil
}

func (a *App) Retry(ctx context.Context) error {
	a.spawn(ctx, a.ctrl.Retry)
	return nil
}

func (a *App) Cancel(context.Context) error {
	a.ctrl.Cancel()
	return nil
}

// Reset clears the current run, deleting an already uploaded file.
func (a *App) Reset(ctx context.Context) error {
	a.ctrl.Reset(ctx)
	return nil
}

// Act invokes an action offered by the last error notification.
func (a *App) Act(_ context.Context, label string) error {
	if label == "" {
		if pending := a.console.Actions(); len(pending) > 0 {
			fmt.Fprintln(a.out, "Available actions:", strings.Join(pending, ", "))
			return nil
		}
		return errors.New("no actions available")
	}
	if !a.console.Invoke(label) {
		return fmt.Errorf("no action %q", label)
	}
	return nil
}

// Status prints the current run.
func (a *App) Status(context.Context) error {
	run := a.ctrl.Snapshot()

	fmt.Fprintln(a.out, "Phase:", run.Phase)
	if run.Candidate != nil {
		fmt.Fprintf(a.out, "File: %s (%s, %s)\n", run.Candidate.Name, validation.FormatBytes(run.Candidate.Size), run.Candidate.MIMEType)
	}
	if run.Attempt > 0 {
		fmt.Fprintf(a.out, "Attempt: %d, progress %d%%\n", run.Attempt, run.Progress)
	}
	if run.Result != nil {
		fmt.Fprintln(a.out, "URL:", run.Result.SecureURL)
	}
	if run.Error != nil {
		fmt.Fprintf(a.out, "Error: %s: %s\n", run.Error.Title, run.Error.Message)
		for _, r := range run.Reasons {
			fmt.Fprintln(a.out, "  -", r)
		}
		if run.Error.Technical.Details != "" {
			fmt.Fprintln(a.out, "Details:", run.Error.Technical.Details)
		}
	}
	if st := a.ctrl.RetryState(); st.IsRetrying {
		fmt.Fprintf(a.out, "Retrying: attempt %d, next in %s\n", st.Attempts, st.NextDelay)
	}
	return nil
}

// History lists recent uploads from the local history.
func (a *App) History(ctx context.Context) error {
	records, err := a.history.List(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.out, "No uploads yet.")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "UPLOADED\tFILE\tSIZE\tID\tURL")
	for _, r := range records {
		url := r.SecureURL
		if r.Deleted {
			url = "(deleted)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.UploadedAt.Local().Format("2006-01-02 15:04"), r.FileName, validation.FormatBytes(r.Bytes), r.ID, url)
	}
	return w.Flush()
}
