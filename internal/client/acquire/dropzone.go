package acquire

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/imgdrop/internal/client/models"
	"github.com/dmitrijs2005/imgdrop/internal/logging"
)

// DropZone is a drop target with a reference-counted drag state, so that
// nested regions entering and leaving do not flicker the highlight.
type DropZone struct {
	sink     Sink
	previews models.PreviewFactory
	logger   logging.Logger

	mu      sync.Mutex
	counter int
}

type DropZoneOption func(*DropZone)

func WithPreviews(f models.PreviewFactory) DropZoneOption {
	return func(z *DropZone) { z.previews = f }
}

func WithDropLogger(l logging.Logger) DropZoneOption {
	return func(z *DropZone) { z.logger = l }
}

func NewDropZone(sink Sink, opts ...DropZoneOption) *DropZone {
	z := &DropZone{sink: sink, logger: logging.Discard()}
	for _, o := range opts {
		o(z)
	}
	return z
}

func (z *DropZone) DragEnter() {
	z.mu.Lock()
	z.counter++
	z.mu.Unlock()
}

func (z *DropZone) DragLeave() {
	z.mu.Lock()
	if z.counter > 0 {
		z.counter--
	}
	z.mu.Unlock()
}

// DragOver keeps the current state and reports it.
func (z *DropZone) DragOver() bool {
	return z.IsDragOver()
}

func (z *DropZone) IsDragOver() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.counter > 0
}

// Drop clears the drag state and forwards the first file. The rest are
// discarded.
func (z *DropZone) Drop(ctx context.Context, files []*models.CandidateFile) error {
	z.mu.Lock()
	z.counter = 0
	z.mu.Unlock()

	if len(files) == 0 || files[0] == nil {
		return ErrNoFiles
	}
	if len(files) > 1 {
		z.logger.Debug(ctx, "multiple files dropped, keeping the first", "kept", files[0].Name, "discarded", len(files)-1)
	}
	return z.forward(ctx, files[0])
}

// Browse opens path from disk as if it had been picked in a file browser.
func (z *DropZone) Browse(ctx context.Context, path string) error {
	f, err := models.NewFileFromPath(path, models.SourceBrowse)
	if err != nil {
		return err
	}
	return z.forward(ctx, f)
}

// Choose lists the alternatives offered when the zone is clicked.
func (z *DropZone) Choose() []Choice {
	return []Choice{ChoiceBrowse, ChoiceCamera}
}

func (z *DropZone) forward(ctx context.Context, f *models.CandidateFile) error {
	preview, err := makePreview(ctx, z.previews, f)
	if err != nil {
		return fmt.Errorf("preview %s: %w", f.Name, err)
	}
	if err := z.sink(ctx, f, preview); err != nil {
		return err
	}
	return nil
}
