// Package acquire obtains candidate files: from a drop target or file
// browser, from a watched drop folder, or from a live camera. All paths
// hand the file to the same Sink.
package acquire

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/imgdrop/internal/client/models"
)

// Sink receives an acquired file together with its preview. The pipeline
// controller's Acquire method satisfies it.
type Sink func(ctx context.Context, file *models.CandidateFile, preview *models.PreviewHandle) error

// Choice is one entry of the acquisition chooser.
type Choice string

const (
	ChoiceBrowse Choice = "browse"
	ChoiceCamera Choice = "camera"
)

var (
	ErrNoFiles       = errors.New("no files dropped")
	ErrCameraStopped = errors.New("camera is not running")
)

func makePreview(ctx context.Context, previews models.PreviewFactory, f *models.CandidateFile) (*models.PreviewHandle, error) {
	if previews == nil {
		return models.NewPreviewHandle(nil), nil
	}
	return previews(ctx, f)
}
