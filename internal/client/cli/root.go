package cli

import (
	"bufio"
	"context"
	"os"
)

// Root runs the interactive session on stdin.
func (a *App) Root(ctx context.Context) {
	a.logger.Info(ctx, "imgdrop started", "endpoint", a.config.Endpoint, "auto_upload", a.config.UploadOnSelect)
	printlnFn("Welcome to imgdrop (type 'help' for commands)")
	if a.config.Token == "" {
		printlnFn("No access token configured. Use 'token' to set one.")
	}

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
}
