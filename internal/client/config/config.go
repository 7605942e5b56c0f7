package config

import (
	"time"

	"github.com/dmitrijs2005/imgdrop/internal/client/retry"
	"github.com/dmitrijs2005/imgdrop/internal/client/validation"
)

// Config holds runtime settings for the imgdrop CLI.
type Config struct {
	Endpoint       string
	Token          string
	RequestTimeout time.Duration

	Folder         string
	Tags           []string
	UploadOnSelect bool

	MaxSize      int64
	AllowedTypes []string
	MinWidth     int
	MinHeight    int
	MaxWidth     int
	MaxHeight    int

	MaxRetries       int
	BaseDelay        time.Duration
	Multiplier       float64
	MaxDelay         time.Duration
	TransportRetries int

	DropDir        string
	PreviewDir     string
	CameraDevices  string
	CaptureCommand []string

	HistoryPath string
	LogLevel    string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	rules := validation.DefaultRules()
	rc := retry.DefaultConfig()

	c.Endpoint = "http://127.0.0.1:8080"
	c.RequestTimeout = 60 * time.Second
	c.UploadOnSelect = true

	c.MaxSize = rules.MaxSize
	c.AllowedTypes = rules.AllowedTypes

	c.MaxRetries = rc.MaxRetries
	c.BaseDelay = rc.BaseDelay
	c.Multiplier = rc.Multiplier
	c.MaxDelay = rc.MaxDelay
	c.TransportRetries = 1

	c.DropDir = "drop"
	c.PreviewDir = ".imgdrop/previews"
	c.CameraDevices = "/dev/video*"
	c.HistoryPath = ".imgdrop/history.db"
	c.LogLevel = "info"
}

// Rules returns the validation rule set described by c.
func (c *Config) Rules() validation.Rules {
	return validation.Rules{
		MaxSize:      c.MaxSize,
		AllowedTypes: c.AllowedTypes,
		MinWidth:     c.MinWidth,
		MinHeight:    c.MinHeight,
		MaxWidth:     c.MaxWidth,
		MaxHeight:    c.MaxHeight,
	}
}

// RetryConfig returns the user-facing retry policy described by c.
func (c *Config) RetryConfig() retry.Config {
	return retry.Config{
		MaxRetries: c.MaxRetries,
		BaseDelay:  c.BaseDelay,
		Multiplier: c.Multiplier,
		MaxDelay:   c.MaxDelay,
	}
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), the environment and command-line flags. Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
