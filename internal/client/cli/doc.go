// Package cli provides the interactive imgdrop command-line client.
//
// It wires configuration, the local upload history, the HTTP transport and
// the acquisition sources to a pipeline.Controller, and drives it from a
// REPL. Uploads run in the background so a running upload can be cancelled
// from the prompt.
//
// Key features:
//   - Select a file: browse a path, watch a drop folder, or capture a photo
//   - Upload with progress, automatic retries and a manual retry action
//   - Cancel / Reset (reset deletes an already uploaded file)
//   - Status and upload history
//   - Set or mint the access token
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
