package server

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/imgdrop/internal/logging"
	"github.com/dmitrijs2005/imgdrop/internal/server/blobstore"
	"github.com/dmitrijs2005/imgdrop/internal/server/config"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.ListenAddr = "127.0.0.1:0"
	c.ShutdownTimeout = time.Second
	return c
}

func TestNewApp_MemoryBackends(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(), logging.Discard())
	require.NoError(t, err)
	assert.NotNil(t, app.server)
	assert.Empty(t, app.closers)
}

func TestNewApp_RedisQuota(t *testing.T) {
	mr := miniredis.RunT(t)
	c := testConfig()
	c.RedisURL = "redis://" + mr.Addr()

	app, err := NewApp(context.Background(), c, logging.Discard())
	require.NoError(t, err)
	require.Len(t, app.closers, 1)
	app.close(context.Background())
	assert.Empty(t, app.closers)
}

func TestNewApp_BackendErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("s3", func(t *testing.T) {
		orig := newS3Store
		newS3Store = func(context.Context, blobstore.S3Config) (blobstore.Store, error) { return nil, boom }
		defer func() { newS3Store = orig }()

		c := testConfig()
		c.S3BaseEndpoint = "http://minio:9000"
		_, err := NewApp(context.Background(), c, logging.Discard())
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "blob store")
	})

	t.Run("redis", func(t *testing.T) {
		c := testConfig()
		c.RedisURL = "::not a url"
		_, err := NewApp(context.Background(), c, logging.Discard())
		assert.ErrorContains(t, err, "quota store")
	})

	t.Run("db", func(t *testing.T) {
		orig := openDB
		openDB = func(context.Context, string) (*sql.DB, error) { return nil, boom }
		defer func() { openDB = orig }()

		c := testConfig()
		c.DatabaseDSN = "postgres://x"
		_, err := NewApp(context.Background(), c, logging.Discard())
		assert.ErrorIs(t, err, boom)
	})
}

func TestRun_StopsWhenContextCancelled(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(), logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestRun_ListenError(t *testing.T) {
	c := testConfig()
	c.ListenAddr = "bad-address"
	app, err := NewApp(context.Background(), c, logging.Discard())
	require.NoError(t, err)
	assert.Error(t, app.Run(context.Background()))
}
