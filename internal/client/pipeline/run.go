package pipeline

import (
	"errors"

	"github.com/dmitrijs2005/imgdrop/internal/client/failure"
	"github.com/dmitrijs2005/imgdrop/internal/client/models"
)

// Phase is the state of a pipeline run.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSelecting Phase = "selecting"
	PhaseUploading Phase = "uploading"
	PhaseSuccess   Phase = "success"
	PhaseError     Phase = "error"
)

var (
	// ErrCancelled is returned by Upload and Retry when the run was
	// cancelled or reset while in flight.
	ErrCancelled = errors.New("upload cancelled")

	ErrNoCandidate  = errors.New("no file selected")
	ErrBusy         = errors.New("an upload is already in progress")
	ErrNotRetryable = errors.New("the last error cannot be retried")
	ErrClosed       = errors.New("pipeline is closed")
)

// Run is a snapshot of the active pipeline run.
type Run struct {
	Phase     Phase
	Candidate *models.CandidateFile
	Progress  int
	Preview   *models.PreviewHandle
	Result    *models.UploadResult
	Error     *failure.Classified
	// Attempt counts uploads of the current candidate, starting at 1.
	Attempt int
	// Reasons holds the itemized validation failures, if any.
	Reasons []string
}
