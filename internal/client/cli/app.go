package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/dmitrijs2005/imgdrop/internal/client/acquire"
	"github.com/dmitrijs2005/imgdrop/internal/client/announce"
	"github.com/dmitrijs2005/imgdrop/internal/client/config"
	"github.com/dmitrijs2005/imgdrop/internal/client/failure"
	"github.com/dmitrijs2005/imgdrop/internal/client/models"
	"github.com/dmitrijs2005/imgdrop/internal/client/notify"
	"github.com/dmitrijs2005/imgdrop/internal/client/pipeline"
	"github.com/dmitrijs2005/imgdrop/internal/client/repositories/settings"
	"github.com/dmitrijs2005/imgdrop/internal/client/repositories/uploads"
	"github.com/dmitrijs2005/imgdrop/internal/client/transport"
	"github.com/dmitrijs2005/imgdrop/internal/logging"
)

// tokenSetter is the part of the transport the token command needs.
type tokenSetter interface {
	SetToken(token string)
}

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	history   uploads.Repository
	settings  settings.Repository
	transport tokenSetter
	console   *notify.Console
	ctrl      *pipeline.Controller
	zone      *acquire.DropZone
	camera    *acquire.Camera
	out       io.Writer

	mu         sync.Mutex
	stopFolder context.CancelFunc
	jobs       sync.WaitGroup
}

// NewApp opens the local history and wires the pipeline to its transport,
// acquisition sources and console notifications.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	db, err := uploads.Open(ctx, c.HistoryPath)
	if err != nil {
		logger.Error(ctx, "error initializing history database", "path", c.HistoryPath, "error", err)
		return nil, err
	}

	tr := transport.NewHTTPTransport(c.Endpoint,
		transport.WithToken(c.Token),
		transport.WithHTTPClient(&http.Client{Timeout: c.RequestTimeout}),
		transport.WithLogger(logger.With("component", "transport")),
	)

	devices := acquire.NewV4LDevices(c.CaptureCommand)
	if c.CameraDevices != "" {
		devices.Pattern = c.CameraDevices
	}

	a := newApp(c, logger, db, uploads.NewSQLiteRepository(db), tr, devices, os.Stdout)
	a.restoreToken(ctx)
	return a, nil
}

func newApp(c *config.Config, logger logging.Logger, db *sql.DB, history uploads.Repository,
	uploader interface {
		transport.Uploader
		tokenSetter
	}, devices acquire.MediaDevices, out io.Writer) *App {

	a := &App{
		config:    c,
		logger:    logger,
		db:        db,
		history:   history,
		settings:  settings.NewSQLiteRepository(db),
		transport: uploader,
		console:   notify.NewConsole(out),
		out:       out,
	}

	a.ctrl = pipeline.NewController(uploader, pipeline.Options{
		Rules:            c.Rules(),
		UploadOnSelect:   c.UploadOnSelect,
		Folder:           c.Folder,
		Tags:             c.Tags,
		Retry:            c.RetryConfig(),
		TransportRetries: c.TransportRetries,
		Notifier:         a.console,
		Logger:           logger.With("component", "pipeline"),
		History:          history,
		OnFallback:       a.fallbackToBrowse,
	})

	previews := acquire.TempPreviews(c.PreviewDir)
	a.zone = acquire.NewDropZone(a.acquire,
		acquire.WithPreviews(previews),
		acquire.WithDropLogger(logger.With("component", "dropzone")))
	a.camera = acquire.NewCamera(devices, a.acquire,
		acquire.WithCameraPreviews(previews),
		acquire.WithCameraLogger(logger.With("component", "camera")))

	return a
}

// restoreToken applies the token saved by the token command when neither the
// environment nor the flags provided one.
func (a *App) restoreToken(ctx context.Context) {
	if a.config.Token != "" {
		return
	}
	token, err := a.settings.Get(ctx, settings.KeyToken)
	if err != nil {
		a.logger.Warn(ctx, "reading saved token", "error", err)
		return
	}
	if token != "" {
		a.transport.SetToken(token)
		a.config.Token = token
		a.logger.Debug(ctx, "restored saved token")
	}
}

// Run starts the REPL and blocks until the user exits, then releases every
// resource held by the app.
func (a *App) Run(ctx context.Context) {
	defer a.Close(context.WithoutCancel(ctx))
	a.Root(ctx)
}

// Close stops acquisition sources, waits for background jobs and closes the
// pipeline and the history database.
func (a *App) Close(ctx context.Context) {
	a.mu.Lock()
	stop := a.stopFolder
	a.stopFolder = nil
	a.mu.Unlock()
	if stop != nil {
		stop()
	}

	a.camera.Close()
	if err := a.ctrl.Close(ctx); err != nil {
		a.logger.Warn(ctx, "closing pipeline", "error", err)
	}
	a.jobs.Wait()

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn(ctx, "closing history database", "error", err)
		}
	}
	if err := announce.Shutdown(); err != nil {
		a.logger.Debug(ctx, "announcer shutdown", "error", err)
	}
}

// acquire is the sink of every acquisition source. The pipeline runs in the
// background so the prompt stays responsive during uploads and backoff.
func (a *App) acquire(ctx context.Context, f *models.CandidateFile, p *models.PreviewHandle) error {
	a.spawn(ctx, func(ctx context.Context) error {
		return a.ctrl.Acquire(ctx, f, p)
	})
	return nil
}

func (a *App) spawn(ctx context.Context, fn func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	a.jobs.Add(1)
	go func() {
		defer a.jobs.Done()
		a.report(ctx, fn(ctx))
	}()
}

// report prints errors that the pipeline did not already notify about.
func (a *App) report(ctx context.Context, err error) {
	if err == nil || errors.Is(err, pipeline.ErrCancelled) {
		return
	}
	var classified *failure.Classified
	if errors.As(err, &classified) {
		return
	}
	a.logger.Debug(ctx, "command failed", "error", err)
	fmt.Fprintln(a.out, "Error:", err)
}

// notifyFailure classifies err and shows it with its recovery actions.
func (a *App) notifyFailure(err error) {
	classified := failure.FromError(err)
	var actions []notify.Action
	if label := classified.Recovery.FallbackLabel; label != "" {
		actions = append(actions, notify.Action{Label: label, OnInvoke: a.fallbackToBrowse})
	}
	a.console.Error(classified.Title, classified.Message+" "+classified.Suggestion, actions...)
}

func (a *App) fallbackToBrowse() {
	a.camera.Close()
	fmt.Fprintln(a.out, "Camera closed. Use 'browse <path>' to pick a file instead.")
}

func (a *App) getStatus() string {
	run := a.ctrl.Snapshot()
	s := string(run.Phase)
	switch run.Phase {
	case pipeline.PhaseUploading:
		s = fmt.Sprintf("%s %d%%", s, run.Progress)
	case pipeline.PhaseSelecting:
		s = fmt.Sprintf("%s %s", s, run.Candidate.Name)
	}
	if a.camera.Active() {
		s += " cam:" + string(a.camera.Facing())
	}
	a.mu.Lock()
	if a.stopFolder != nil {
		s += " drop"
	}
	a.mu.Unlock()
	return fmt.Sprintf("(%s)", s)
}
