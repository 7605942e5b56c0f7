// Package httpapi exposes the asset store over HTTP: authenticated multipart
// uploads and deletes, public blob downloads, health and Prometheus metrics.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/imgdrop/internal/common"
	"github.com/dmitrijs2005/imgdrop/internal/logging"
	"github.com/dmitrijs2005/imgdrop/internal/server/blobstore"
	"github.com/dmitrijs2005/imgdrop/internal/server/models"
	"github.com/dmitrijs2005/imgdrop/internal/server/services"
)

// AssetService is the business logic behind the handlers.
type AssetService interface {
	Upload(ctx context.Context, req services.UploadRequest) (*models.Asset, error)
	Delete(ctx context.Context, ownerID, publicID string) error
	Open(ctx context.Context, key string) (*blobstore.Object, error)
	Usage(ctx context.Context, ownerID string) (used, limit int64, err error)
}

// Options configures a Server.
type Options struct {
	Address   string
	PublicURL string
	Secret    string
	// MaxUploadBytes bounds the file part of an upload.
	MaxUploadBytes int64
	// RateLimit is the number of write requests per minute and client IP;
	// zero disables limiting.
	RateLimit       int
	ShutdownTimeout time.Duration
}

type Server struct {
	address         string
	publicURL       string
	maxUpload       int64
	shutdownTimeout time.Duration
	assets          AssetService
	logger          logging.Logger
	metrics         *Metrics
	router          chi.Router
}

func NewServer(opts Options, assets AssetService, logger logging.Logger) *Server {
	s := &Server{
		address:         opts.Address,
		publicURL:       opts.PublicURL,
		maxUpload:       opts.MaxUploadBytes,
		shutdownTimeout: opts.ShutdownTimeout,
		assets:          assets,
		logger:          logger.With("module", "http_server"),
		metrics:         NewMetrics(),
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 10 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, s.metrics.Instrument)

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get(filesPrefix+"*", s.handleFile)

	r.Group(func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(RateLimit(opts.RateLimit, time.Minute))
		}
		r.Use(RequireAuth(opts.Secret))
		r.Post(common.UploadPath, s.handleUpload)
		r.Post(common.DeletePath, s.handleDelete)
		r.Get("/v1/usage", s.handleUsage)
	})

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		stopped <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())
	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-stopped
}
