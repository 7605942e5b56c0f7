package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/imgdrop/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string      HTTP bind address (e.g., ":8080")
//	-url string    public base URL of stored files
//	-d string      PostgreSQL DSN
//	-s string      JWT HMAC secret key
//	-u string      S3 root user
//	-p string      S3 root password
//	-b string      S3 bucket name
//	-g string      S3 region
//	-e string      S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-redis string  Redis URL for quotas
//	-q int         per-owner quota, bytes
//	-m int         max upload size, bytes
//	-rl int        upload requests per minute and IP
//	-l string      log level
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-url", "-d", "-s", "-u", "-p", "-b", "-g", "-e", "-redis", "-q", "-m", "-rl", "-l",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to run server")
	fs.StringVar(&config.PublicURL, "url", config.PublicURL, "public base URL of stored files")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.RedisURL, "redis", config.RedisURL, "Redis URL for quotas")
	fs.Int64Var(&config.QuotaBytes, "q", config.QuotaBytes, "per-owner quota in bytes")
	fs.Int64Var(&config.MaxUploadBytes, "m", config.MaxUploadBytes, "max upload size in bytes")
	fs.IntVar(&config.RateLimit, "rl", config.RateLimit, "upload requests per minute and IP")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
