package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/imgdrop/internal/client/failure"
	"github.com/dmitrijs2005/imgdrop/internal/client/models"
	"github.com/dmitrijs2005/imgdrop/internal/common"
)

func pngFile(t *testing.T, size int) *models.CandidateFile {
	t.Helper()
	data := append([]byte{0x89, 0x50, 0x4e, 0x47}, bytes.Repeat([]byte{1}, size-4)...)
	f, err := models.NewFileFromBytes("photo.png", "image/png", data, models.SourceBrowse)
	require.NoError(t, err)
	return f
}

func noBackoff(int) time.Duration { return 0 }

func writeDescriptor(w http.ResponseWriter, id string, size int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(models.UploadResult{
		ID: id, URL: "http://store/" + id, SecureURL: "https://store/" + id,
		Width: 640, Height: 480, Format: "png", Bytes: size,
	})
}

func TestUpload_SendsMultipartAndReportsProgress(t *testing.T) {
	var (
		gotFolder, gotTags, gotAuth, gotName, gotType string
		gotBody                                       []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, common.UploadPath, r.URL.Path)
		gotAuth = r.Header.Get(common.AuthorizationHeaderName)

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		gotFolder = r.FormValue(common.FieldFolder)
		gotTags = r.FormValue(common.FieldTags)

		f, hdr, err := r.FormFile(common.FieldFile)
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		gotName = hdr.Filename
		gotType = hdr.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(f)

		writeDescriptor(w, "abc", int64(len(gotBody)))
	}))
	defer srv.Close()

	file := pngFile(t, 256<<10)
	tr := NewHTTPTransport(srv.URL+"/", WithToken("tok"))

	var progress []int
	res, err := tr.Upload(context.Background(), file, Options{
		Folder:     "avatars",
		Tags:       []string{"a", "b"},
		OnProgress: func(p int) { progress = append(progress, p) },
	})
	require.NoError(t, err)

	assert.Equal(t, "abc", res.ID)
	assert.Equal(t, "https://store/abc", res.SecureURL)
	assert.Equal(t, int64(256<<10), res.Bytes)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "avatars", gotFolder)
	assert.Equal(t, "a,b", gotTags)
	assert.Equal(t, "photo.png", gotName)
	assert.Equal(t, "image/png", gotType)
	assert.Len(t, gotBody, 256<<10)

	require.NotEmpty(t, progress)
	assert.Equal(t, 0, progress[0])
	assert.Equal(t, 100, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i], progress[i-1])
	}
}

func TestUpload_NoTokenNoHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(common.AuthorizationHeaderName))
		_, _ = io.Copy(io.Discard, r.Body)
		writeDescriptor(w, "x", 1)
	}))
	defer srv.Close()

	_, err := NewHTTPTransport(srv.URL).Upload(context.Background(), pngFile(t, 16), Options{})
	require.NoError(t, err)
}

func TestUpload_StatusClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType failure.Category
		wantKind failure.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, "", failure.CategoryUpload, failure.KindUnauthorized},
		{"forbidden", http.StatusForbidden, "", failure.CategoryUpload, failure.KindUnauthorized},
		{"quota", http.StatusRequestEntityTooLarge, `{"error":"quota exceeded"}`, failure.CategoryUpload, failure.KindQuotaExceeded},
		{"rate limited", http.StatusTooManyRequests, "", failure.CategoryUpload, failure.KindQuotaExceeded},
		{"bad request", http.StatusBadRequest, `{"error":"File type text/plain is not allowed"}`, failure.CategoryValidation, failure.KindInvalidFileType},
		{"server error", http.StatusInternalServerError, "boom", failure.CategoryUpload, failure.KindServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			tr := NewHTTPTransport(srv.URL, WithBackoff(noBackoff), WithMaxRetries(-1))
			_, err := tr.Upload(context.Background(), pngFile(t, 64), Options{})

			var f *Failure
			require.ErrorAs(t, err, &f)
			assert.Equal(t, tt.wantType, f.Type)
			assert.Equal(t, tt.status, f.StatusCode)
			assert.Equal(t, tt.wantKind, failure.FromError(err).Kind)
			assert.EqualValues(t, 1, hits.Load())
		})
	}
}

func TestUpload_ClientErrorsAreNeverRetried(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404, 413} {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			_, _ = io.Copy(io.Discard, r.Body)
			w.WriteHeader(status)
		}))

		tr := NewHTTPTransport(srv.URL, WithBackoff(noBackoff), WithMaxRetries(3))
		_, err := tr.Upload(context.Background(), pngFile(t, 64), Options{})
		srv.Close()

		require.Error(t, err)
		assert.EqualValues(t, 1, hits.Load(), "status %d", status)
	}
}

func TestUpload_RetriesServerErrorOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeDescriptor(w, "second", 64)
	}))
	defer srv.Close()

	var delays []int
	tr := NewHTTPTransport(srv.URL, WithBackoff(func(a int) time.Duration {
		delays = append(delays, a)
		return 0
	}))

	var mu sync.Mutex
	var progress, attempts []int
	res, err := tr.Upload(context.Background(), pngFile(t, 64), Options{
		OnProgress: func(p int) {
			mu.Lock()
			progress = append(progress, p)
			mu.Unlock()
		},
		OnAttempt: func(n int) {
			mu.Lock()
			attempts = append(attempts, n)
			progress = append(progress, -n)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "second", res.ID)
	assert.EqualValues(t, 2, hits.Load())
	assert.Equal(t, []int{0}, delays)
	assert.Equal(t, []int{1, 2}, attempts)

	// progress of an attempt never arrives after the next one was announced
	second := -1
	for i, p := range progress {
		if p == -2 {
			second = i
		}
	}
	require.Positive(t, second)
	assert.Equal(t, -1, progress[0])
	assert.Equal(t, 0, progress[second+1])
	assert.Equal(t, 100, progress[len(progress)-1])

	zeros := 0
	for _, p := range progress {
		if p == 0 {
			zeros++
		}
	}
	assert.Equal(t, 2, zeros, "each attempt starts at zero")
}

func TestUpload_GivesUpAfterBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, WithBackoff(noBackoff))
	_, err := tr.Upload(context.Background(), pngFile(t, 64), Options{MaxRetries: 2})
	require.Error(t, err)
	assert.EqualValues(t, 3, hits.Load())
}

func TestUpload_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr := NewHTTPTransport(url, WithBackoff(noBackoff))
	_, err := tr.Upload(context.Background(), pngFile(t, 64), Options{})

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, failure.CategoryNetwork, f.Type)
	assert.True(t, f.Retryable())
	assert.Equal(t, failure.KindNetworkError, failure.FromError(err).Kind)
}

func TestUpload_RequestErrorIsNotRetried(t *testing.T) {
	var delays int
	tr := NewHTTPTransport("ftp://store.invalid", WithBackoff(func(int) time.Duration {
		delays++
		return 0
	}))
	_, err := tr.Upload(context.Background(), pngFile(t, 64), Options{})

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, failure.CategoryUpload, f.Type)
	assert.False(t, f.Retryable())
	assert.Zero(t, delays)
	assert.Contains(t, f.Details, "unsupported protocol scheme")
	assert.Equal(t, failure.KindUploadFailed, failure.FromError(err).Kind)
}

func TestUpload_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	tr := NewHTTPTransport(srv.URL, WithBackoff(noBackoff), WithMaxRetries(-1),
		WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := tr.Upload(context.Background(), pngFile(t, 64), Options{})

	assert.Equal(t, failure.KindTimeoutError, failure.FromError(err).Kind)
}

func TestUpload_CancelReturnsContextError(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := NewHTTPTransport(srv.URL).Upload(ctx, pngFile(t, 64), Options{})
	assert.ErrorIs(t, err, context.Canceled)

	var f *Failure
	assert.False(t, errors.As(err, &f))
}

func TestDelete(t *testing.T) {
	var got deleteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, common.DeletePath, r.URL.Path)
		assert.Equal(t, "Bearer t2", r.Header.Get(common.AuthorizationHeaderName))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(deleteResponse{Success: got.PublicID == "abc"})
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, WithToken("t1"))
	tr.SetToken("t2")

	require.NoError(t, tr.Delete(context.Background(), "abc"))
	assert.Equal(t, "abc", got.PublicID)

	err := tr.Delete(context.Background(), "other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not acknowledged")
}

func TestDelete_StatusFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewHTTPTransport(srv.URL).Delete(context.Background(), "abc")
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, http.StatusUnauthorized, f.StatusCode)
}

func TestExponentialBackoff(t *testing.T) {
	assert.Equal(t, time.Second, ExponentialBackoff(0))
	assert.Equal(t, 2*time.Second, ExponentialBackoff(1))
	assert.Equal(t, 4*time.Second, ExponentialBackoff(2))
	assert.Equal(t, ExponentialBackoff(30), ExponentialBackoff(99))
}
