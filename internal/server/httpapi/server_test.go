package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dmitrijs2005/imgdrop/internal/client/models"
	"github.com/dmitrijs2005/imgdrop/internal/client/transport"
	"github.com/dmitrijs2005/imgdrop/internal/common"
	"github.com/dmitrijs2005/imgdrop/internal/logging"
	"github.com/dmitrijs2005/imgdrop/internal/server/auth"
	"github.com/dmitrijs2005/imgdrop/internal/server/blobstore"
	sm "github.com/dmitrijs2005/imgdrop/internal/server/models"
	"github.com/dmitrijs2005/imgdrop/internal/server/quota"
	"github.com/dmitrijs2005/imgdrop/internal/server/repositories/assets"
	"github.com/dmitrijs2005/imgdrop/internal/server/services"
)

const testSecret = "test-secret"

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func token(t *testing.T, owner string) string {
	t.Helper()
	tok, err := auth.GenerateToken(owner, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return tok
}

type fixture struct {
	srv   *httptest.Server
	blobs *blobstore.MemoryStore
}

func newFixture(t *testing.T, opts Options, limits services.Limits) *fixture {
	t.Helper()
	blobs := blobstore.NewMemoryStore()
	svc := services.NewMemoryAssetService(assets.NewMemoryRepository(), blobs, quota.NewMemoryStore(), limits, logging.Discard())
	if opts.Secret == "" {
		opts.Secret = testSecret
	}
	if opts.MaxUploadBytes == 0 {
		opts.MaxUploadBytes = limits.MaxUploadBytes
	}
	s := NewServer(opts, svc, logging.Discard())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, blobs: blobs}
}

func (f *fixture) upload(t *testing.T, tok, field, name string, data []byte, extra map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range extra {
		require.NoError(t, mw.WriteField(k, v))
	}
	if field != "" {
		part, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, _ = part.Write(data)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+common.UploadPath, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if tok != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+tok)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) post(t *testing.T, tok, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+tok)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(r).Decode(&v))
	return v
}

func TestUpload_CreatesAndServesAsset(t *testing.T) {
	f := newFixture(t, Options{}, services.Limits{MaxUploadBytes: 1 << 20})
	data := pngBytes(t, 6, 4)

	resp := f.upload(t, token(t, "u1"), common.FieldFile, "cat.png", data,
		map[string]string{common.FieldFolder: "/avatars/", common.FieldTags: "a, b,,"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	d := decode[sm.Descriptor](t, resp.Body)
	assert.True(t, strings.HasPrefix(d.PublicID, "avatars/"))
	assert.Equal(t, 6, d.Width)
	assert.Equal(t, 4, d.Height)
	assert.Equal(t, "png", d.Format)
	assert.Equal(t, int64(len(data)), d.Bytes)
	assert.True(t, strings.HasPrefix(d.URL, f.srv.URL+filesPrefix+"u1/avatars/"))
	assert.True(t, strings.HasPrefix(d.SecureURL, "https://"))

	get, err := f.srv.Client().Get(d.URL)
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, "image/png", get.Header.Get("Content-Type"))
	served, _ := io.ReadAll(get.Body)
	assert.Equal(t, data, served)

	etag := get.Header.Get("ETag")
	require.NotEmpty(t, etag)
	req, err := http.NewRequest(http.MethodGet, d.URL, nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", etag)
	cached, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer cached.Body.Close()
	assert.Equal(t, http.StatusNotModified, cached.StatusCode)
}

func TestUpload_PublicURLOverridesHost(t *testing.T) {
	f := newFixture(t, Options{PublicURL: "https://cdn.example.com/"}, services.Limits{MaxUploadBytes: 1 << 20})
	resp := f.upload(t, token(t, "u1"), common.FieldFile, "x.png", pngBytes(t, 1, 1), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	d := decode[sm.Descriptor](t, resp.Body)
	assert.True(t, strings.HasPrefix(d.URL, "https://cdn.example.com/v1/files/u1/"))
	assert.Equal(t, d.URL, d.SecureURL)
}

func TestUpload_Errors(t *testing.T) {
	limits := services.Limits{MaxUploadBytes: 512, QuotaBytes: 1 << 20}
	small := pngBytes(t, 1, 1)

	tests := []struct {
		name   string
		tok    string
		field  string
		data   []byte
		status int
		msg    string
	}{
		{"no token", "", common.FieldFile, small, http.StatusUnauthorized, "missing bearer token"},
		{"bad token", "garbage", common.FieldFile, small, http.StatusUnauthorized, "invalid token"},
		{"missing file", token(t, "u"), "", nil, http.StatusBadRequest, "missing file field"},
		{"not an image", token(t, "u"), common.FieldFile, []byte("just some text"), http.StatusBadRequest, "not a supported image"},
		{"too large", token(t, "u"), common.FieldFile, bytes.Repeat([]byte{1}, 4096), http.StatusRequestEntityTooLarge, "file too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{}, limits)
			resp := f.upload(t, tt.tok, tt.field, "f.png", tt.data, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, decode[errorResponse](t, resp.Body).Error, tt.msg)
			assert.Zero(t, f.blobs.Len())
		})
	}
}

func TestUpload_ExpiredToken(t *testing.T) {
	f := newFixture(t, Options{}, services.Limits{MaxUploadBytes: 1 << 20})
	expired, err := auth.GenerateToken("u", []byte(testSecret), -time.Minute)
	require.NoError(t, err)

	resp := f.upload(t, expired, common.FieldFile, "x.png", pngBytes(t, 1, 1), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "token expired", decode[errorResponse](t, resp.Body).Error)
}

func TestUpload_QuotaExceeded(t *testing.T) {
	data := pngBytes(t, 2, 2)
	f := newFixture(t, Options{}, services.Limits{MaxUploadBytes: 1 << 20, QuotaBytes: int64(len(data)) + 1})
	tok := token(t, "u")

	require.Equal(t, http.StatusCreated, f.upload(t, tok, common.FieldFile, "a.png", data, nil).StatusCode)

	resp := f.upload(t, tok, common.FieldFile, "b.png", data, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "quota exceeded", decode[errorResponse](t, resp.Body).Error)

	usage := f.get(t, tok, "/v1/usage")
	u := decode[usageResponse](t, usage.Body)
	assert.Equal(t, int64(len(data)), u.Bytes)
	assert.Equal(t, int64(len(data))+1, u.Limit)
}

func (f *fixture) get(t *testing.T, tok, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+path, nil)
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+tok)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestDelete(t *testing.T) {
	f := newFixture(t, Options{}, services.Limits{MaxUploadBytes: 1 << 20})
	tok := token(t, "u1")

	d := decode[sm.Descriptor](t, f.upload(t, tok, common.FieldFile, "a.png", pngBytes(t, 1, 1), nil).Body)
	body := `{"publicId":"` + d.PublicID + `"}`

	resp := f.post(t, token(t, "someone-else"), common.DeletePath, body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[deleteResponse](t, resp.Body).Success)
	assert.Equal(t, 1, f.blobs.Len())

	resp = f.post(t, tok, common.DeletePath, body)
	assert.True(t, decode[deleteResponse](t, resp.Body).Success)
	assert.Zero(t, f.blobs.Len())

	resp = f.post(t, tok, common.DeletePath, body)
	assert.False(t, decode[deleteResponse](t, resp.Body).Success)

	resp = f.post(t, tok, common.DeletePath, `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.post(t, "", common.DeletePath, body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFile_NotFound(t *testing.T) {
	f := newFixture(t, Options{}, services.Limits{})
	resp := f.get(t, "", filesPrefix+"nope/x.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Options{RateLimit: 2}, services.Limits{MaxUploadBytes: 1 << 20})

	for range 2 {
		assert.Equal(t, http.StatusUnauthorized, f.post(t, "", common.DeletePath, `{}`).StatusCode)
	}
	resp := f.post(t, "", common.DeletePath, `{}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", decode[errorResponse](t, resp.Body).Error)

	assert.Equal(t, http.StatusOK, f.get(t, "", "/healthz").StatusCode, "reads are not limited")
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, Options{}, services.Limits{MaxUploadBytes: 1 << 20})

	assert.Equal(t, "ok", decode[map[string]string](t, f.get(t, "", "/healthz").Body)["status"])
	f.upload(t, token(t, "u"), common.FieldFile, "a.png", pngBytes(t, 1, 1), nil)
	f.upload(t, token(t, "u"), common.FieldFile, "b.txt", []byte("text"), nil)

	resp := f.get(t, "", "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	text := string(raw)
	assert.Contains(t, text, `imgdrop_http_requests_total{code="201",route="/v1/assets"} 1`)
	assert.Contains(t, text, `imgdrop_upload_rejections_total{reason="not_image"} 1`)
	assert.Contains(t, text, "imgdrop_uploaded_bytes_total")
}

func TestClientTransportAgainstServer(t *testing.T) {
	data := pngBytes(t, 3, 2)
	f := newFixture(t, Options{}, services.Limits{MaxUploadBytes: 1 << 20, QuotaBytes: int64(len(data)) + 1})
	ctx := context.Background()

	tr := transport.NewHTTPTransport(f.srv.URL, transport.WithToken(token(t, "u1")), transport.WithHTTPClient(f.srv.Client()))
	file, err := models.NewFileFromBytes("pic.png", "image/png", data, models.SourceBrowse)
	require.NoError(t, err)

	var progress []int
	res, err := tr.Upload(ctx, file, transport.Options{Folder: "gallery", Tags: []string{"t"}, OnProgress: func(p int) { progress = append(progress, p) }})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Width)
	assert.Equal(t, 2, res.Height)
	assert.True(t, strings.HasPrefix(res.ID, "gallery/"))
	assert.NotEmpty(t, progress)

	_, err = tr.Upload(ctx, file, transport.Options{MaxRetries: -1})
	var failed *transport.Failure
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, http.StatusRequestEntityTooLarge, failed.StatusCode)
	assert.Contains(t, failed.Message+failed.Details, "quota")

	require.NoError(t, tr.Delete(ctx, res.ID))
	assert.Zero(t, f.blobs.Len())
	assert.Error(t, tr.Delete(ctx, res.ID), "second delete is not acknowledged")
}

func TestServe_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	svc := services.NewMemoryAssetService(assets.NewMemoryRepository(), blobstore.NewMemoryStore(), quota.NewMemoryStore(), services.Limits{}, logging.Discard())
	s := NewServer(Options{Secret: testSecret, ShutdownTimeout: time.Second}, svc, logging.Discard())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
	http.DefaultClient.CloseIdleConnections()
}

func TestRun_BadAddress(t *testing.T) {
	s := NewServer(Options{Address: "256.0.0.1:bad"}, nil, logging.Discard())
	assert.Error(t, s.Run(context.Background()))
}
