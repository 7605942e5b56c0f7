// Package transport uploads candidate files to the remote asset store over
// HTTP and deletes them again on request.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/imgdrop/internal/client/models"
	"github.com/dmitrijs2005/imgdrop/internal/common"
	"github.com/dmitrijs2005/imgdrop/internal/logging"
	"github.com/dmitrijs2005/imgdrop/internal/netx"
)

// DefaultMaxRetries is the transport-level retry budget. The user-facing
// retry layer lives in the retry package.
const DefaultMaxRetries = 1

const maxErrorBody = 4 << 10

// Options tune a single Upload call. OnAttempt is called before every
// attempt, starting at 1; progress of the new attempt starts again at 0.
type Options struct {
	Folder     string
	Tags       []string
	OnProgress func(percent int)
	OnAttempt  func(attempt int)
	// MaxRetries overrides the transport default. Negative disables retries.
	MaxRetries int
}

// Uploader is what the pipeline needs from a transport.
type Uploader interface {
	Upload(ctx context.Context, file *models.CandidateFile, opts Options) (*models.UploadResult, error)
	Delete(ctx context.Context, publicID string) error
}

// HTTPTransport talks to the asset store REST API.
type HTTPTransport struct {
	endpoint   string
	client     *http.Client
	logger     logging.Logger
	maxRetries int
	backoff    func(attempt int) time.Duration
	sleep      func(ctx context.Context, d time.Duration) error

	mu    sync.RWMutex
	token string
}

type Option func(*HTTPTransport)

func WithToken(token string) Option {
	return func(t *HTTPTransport) { t.token = token }
}

func WithHTTPClient(c *http.Client) Option {
	return func(t *HTTPTransport) { t.client = c }
}

func WithLogger(l logging.Logger) Option {
	return func(t *HTTPTransport) { t.logger = l }
}

func WithMaxRetries(n int) Option {
	return func(t *HTTPTransport) { t.maxRetries = n }
}

// WithBackoff replaces the 2^attempt seconds backoff.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(t *HTTPTransport) { t.backoff = fn }
}

func NewHTTPTransport(endpoint string, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		endpoint:   strings.TrimRight(endpoint, "/"),
		client:     &http.Client{},
		logger:     logging.Discard(),
		maxRetries: DefaultMaxRetries,
		backoff:    ExponentialBackoff,
		sleep:      sleep,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// ExponentialBackoff returns 2^attempt seconds.
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	return time.Duration(1<<attempt) * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetToken replaces the bearer token used on subsequent requests.
func (t *HTTPTransport) SetToken(token string) {
	t.mu.Lock()
	t.token = token
	t.mu.Unlock()
}

func (t *HTTPTransport) authorize(req *http.Request) {
	t.mu.RLock()
	token := t.token
	t.mu.RUnlock()
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}
}

// Upload sends file as multipart/form-data. Progress restarts at 0 on every
// attempt, announced through Options.OnAttempt. Network failures and 5xx are retried up to the retry budget; any
// 4xx is returned at once. Errors other than context cancellation are
// *Failure.
func (t *HTTPTransport) Upload(ctx context.Context, file *models.CandidateFile, opts Options) (*models.UploadResult, error) {
	retries := t.maxRetries
	if opts.MaxRetries != 0 {
		retries = opts.MaxRetries
	}
	if retries < 0 {
		retries = 0
	}

	for attempt := 0; ; attempt++ {
		if opts.OnAttempt != nil {
			opts.OnAttempt(attempt + 1)
		}
		res, err := t.uploadOnce(ctx, file, opts)
		if err == nil {
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var f *Failure
		if !errors.As(err, &f) || !f.Retryable() || attempt >= retries {
			return nil, err
		}

		delay := t.backoff(attempt)
		t.logger.Warn(ctx, "upload attempt failed, retrying",
			"file", file.Name, "attempt", attempt+1, "delay", delay, "error", err)

		if werr := t.sleep(ctx, delay); werr != nil {
			return nil, werr
		}
	}
}

func (t *HTTPTransport) uploadOnce(ctx context.Context, file *models.CandidateFile, opts Options) (*models.UploadResult, error) {
	src, err := file.Open()
	if err != nil {
		return nil, uploadFailure("cannot read file", err)
	}

	progress := netx.NewProgressReader(src, file.Size, opts.OnProgress)
	progress.Start()

	body, w := io.Pipe()
	mw := multipart.NewWriter(w)

	written := make(chan struct{})
	go func() {
		defer close(written)
		defer src.Close()
		w.CloseWithError(writeForm(mw, file, progress, opts))
	}()
	// The writer must be gone before the next attempt reports progress.
	defer func() {
		body.Close()
		<-written
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+common.UploadPath, body)
	if err != nil {
		return nil, uploadFailure("cannot build request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, networkFailure("upload", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusFailure("upload", resp, readServerMessage(resp.Body))
	}

	var result models.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, uploadFailure("invalid response from asset store", err)
	}

	progress.Finish()
	t.logger.Info(ctx, "upload finished", "public_id", result.ID, "bytes", result.Bytes, "format", result.Format)
	return &result, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeForm(mw *multipart.Writer, file *models.CandidateFile, src io.Reader, opts Options) error {
	if opts.Folder != "" {
		if err := mw.WriteField(common.FieldFolder, opts.Folder); err != nil {
			return err
		}
	}
	if len(opts.Tags) > 0 {
		if err := mw.WriteField(common.FieldTags, strings.Join(opts.Tags, ",")); err != nil {
			return err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		common.FieldFile, quoteEscaper.Replace(file.Name)))
	contentType := file.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return mw.Close()
}

type deleteRequest struct {
	PublicID string `json:"publicId"`
}

type deleteResponse struct {
	Success bool `json:"success"`
}

// Delete asks the store to drop the asset with publicID.
func (t *HTTPTransport) Delete(ctx context.Context, publicID string) error {
	payload, err := json.Marshal(deleteRequest{PublicID: publicID})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+common.DeletePath, bytes.NewReader(payload))
	if err != nil {
		return uploadFailure("cannot build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return networkFailure("delete", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusFailure("delete", resp, readServerMessage(resp.Body))
	}

	var out deleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return uploadFailure("invalid response from asset store", err)
	}
	if !out.Success {
		return uploadFailure(fmt.Sprintf("delete of %s was not acknowledged", publicID), nil)
	}

	t.logger.Info(ctx, "asset deleted", "public_id", publicID)
	return nil
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// readServerMessage extracts the error text of a non-2xx response body.
func readServerMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var p errorPayload
	if json.Unmarshal(raw, &p) == nil {
		if p.Error != "" {
			return p.Error
		}
		if p.Message != "" {
			return p.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
