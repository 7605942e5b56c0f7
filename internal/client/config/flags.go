package config

import (
	"flag"
	"os"
	"strings"

	"github.com/dmitrijs2005/imgdrop/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string     asset store base URL
//	-f string     destination folder
//	-tags string  comma-separated tags
//	-max int      maximum file size in bytes
//	-r int        user-facing retry budget
//	-auto         upload as soon as a file is selected
//	-drop string  drop folder watched by the "drop" command
//	-db string    path of the local upload history
//	-l string     log level
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-a", "-f", "-tags", "-max", "-r", "-auto", "-drop", "-db", "-l"},
		"-auto")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.Endpoint, "a", cfg.Endpoint, "asset store base URL")
	fs.StringVar(&cfg.Folder, "f", cfg.Folder, "destination folder")
	tags := fs.String("tags", strings.Join(cfg.Tags, ","), "comma-separated tags")
	fs.Int64Var(&cfg.MaxSize, "max", cfg.MaxSize, "maximum file size in bytes")
	fs.IntVar(&cfg.MaxRetries, "r", cfg.MaxRetries, "retry budget")
	fs.BoolVar(&cfg.UploadOnSelect, "auto", cfg.UploadOnSelect, "upload on select")
	fs.StringVar(&cfg.DropDir, "drop", cfg.DropDir, "drop folder")
	fs.StringVar(&cfg.HistoryPath, "db", cfg.HistoryPath, "upload history database")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.Tags = splitTags(*tags)
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
