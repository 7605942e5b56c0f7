// Package config handles configuration for the asset store server,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the imgdrop asset store.
//
// Fields:
//   - ListenAddr: bind address of the HTTP API.
//   - PublicURL: base URL of the blob route used in descriptors; empty
//     derives it from the request.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty keeps metadata in memory.
//   - SecretKey: HMAC secret for verifying bearer JWTs (HS256). Do not use test defaults in prod.
//   - S3RootUser / S3RootPassword: credentials for the S3-compatible backend.
//   - S3Bucket / S3Region / S3BaseEndpoint: object storage settings. An
//     empty S3BaseEndpoint keeps blobs in memory.
//   - RedisURL: quota store. Empty keeps quotas in memory.
//   - QuotaBytes: bytes each owner may store. Zero disables quotas.
//   - MaxUploadBytes: largest accepted file.
//   - RateLimit: upload requests per minute and client IP. Zero disables limiting.
type Config struct {
	ListenAddr      string
	PublicURL       string
	DatabaseDSN     string
	SecretKey       string
	S3RootUser      string
	S3RootPassword  string
	S3Bucket        string
	S3Region        string
	S3BaseEndpoint  string
	RedisURL        string
	QuotaBytes      int64
	MaxUploadBytes  int64
	RateLimit       int
	ShutdownTimeout time.Duration
	LogLevel        string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":8080"
	c.SecretKey = "secretKey"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "imgdrop"
	c.S3Region = "us-east-1"
	c.QuotaBytes = 100 << 20
	c.MaxUploadBytes = 10 << 20
	c.RateLimit = 60
	c.ShutdownTimeout = 10 * time.Second
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
