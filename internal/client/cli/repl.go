package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

const helpText = `Available commands:
  browse <path>          select a file from disk
  drop                   start or stop watching the drop folder
  camera [front|back]    open a camera (last used by default)
  switch                 switch between front and back camera
  capture                take a photo with the open camera
  upload                 upload the selected file
  retry                  retry the last failed upload
  act [label]            run an action offered by the last error
  cancel                 cancel the current upload
  reset                  clear the current file (deletes it if uploaded)
  status                 show the current upload
  history                list recent uploads
  token [mint <owner> <secret> | forget]
                         set, mint or forget the saved access token
  exit | quit            leave the program`

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Browse(ctx context.Context, path string) error
	ToggleDrop(ctx context.Context) error
	Camera(ctx context.Context, facing string) error
	Switch(ctx context.Context) error
	Capture(ctx context.Context) error
	Upload(ctx context.Context) error
	Retry(ctx context.Context) error
	Act(ctx context.Context, label string) error
	Cancel(ctx context.Context) error
	Reset(ctx context.Context) error
	Status(ctx context.Context) error
	History(ctx context.Context) error
	Token(ctx context.Context, args []string) error
}

// runREPL starts a simple read–eval–print loop for the imgdrop CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF, when ctx is done, or when
// the user types "exit" or "quit".
//
// Errors returned by command handlers are printed and never stop the loop.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("imgdrop %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help", "?":
			printlnFn(helpText)

		case "browse", "b":
			err = a.Browse(ctx, strings.Join(args, " "))

		case "drop":
			err = a.ToggleDrop(ctx)

		case "camera":
			err = a.Camera(ctx, strings.Join(args, ""))

		case "switch":
			err = a.Switch(ctx)

		case "capture":
			err = a.Capture(ctx)

		case "upload", "u":
			err = a.Upload(ctx)

		case "retry":
			err = a.Retry(ctx)

		case "act":
			err = a.Act(ctx, strings.Join(args, " "))

		case "cancel":
			err = a.Cancel(ctx)

		case "reset":
			err = a.Reset(ctx)

		case "status", "s":
			err = a.Status(ctx)

		case "history", "h":
			err = a.History(ctx)

		case "token":
			err = a.Token(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}
