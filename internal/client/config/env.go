package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables read by parseEnv.
const (
	EnvToken    = "IMGDROP_TOKEN"
	EnvEndpoint = "IMGDROP_ENDPOINT"
)

// envFile is loaded into the environment when present. Variables already
// set in the environment win.
var envFile = ".env"

// parseEnv overlays cfg with IMGDROP_* variables, loading envFile first.
// It panics if envFile exists but cannot be parsed.
func parseEnv(cfg *Config) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	if v, ok := os.LookupEnv(EnvToken); ok {
		cfg.Token = v
	}
	if v, ok := os.LookupEnv(EnvEndpoint); ok && v != "" {
		cfg.Endpoint = v
	}
}
