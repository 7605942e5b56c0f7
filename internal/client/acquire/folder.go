package acquire

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dmitrijs2005/imgdrop/internal/client/models"
	"github.com/dmitrijs2005/imgdrop/internal/logging"
)

// DefaultSettle is how long a file must stay unchanged before it is dropped.
const DefaultSettle = 500 * time.Millisecond

// DropFolder turns file activity in a directory into drag events on a
// DropZone. A created file enters the zone, writes keep it over the zone,
// removal leaves it, and once the folder is quiet the settled files are
// dropped together, so only the first one is taken.
type DropFolder struct {
	dir    string
	zone   *DropZone
	settle time.Duration
	logger logging.Logger
}

type DropFolderOption func(*DropFolder)

func WithSettle(d time.Duration) DropFolderOption {
	return func(f *DropFolder) { f.settle = d }
}

func WithFolderLogger(l logging.Logger) DropFolderOption {
	return func(f *DropFolder) { f.logger = l }
}

func NewDropFolder(dir string, zone *DropZone, opts ...DropFolderOption) *DropFolder {
	f := &DropFolder{dir: dir, zone: zone, settle: DefaultSettle, logger: logging.Discard()}
	for _, o := range opts {
		o(f)
	}
	return f
}

type pendingFile struct {
	path      string
	firstSeen time.Time
}

// Run watches the folder until ctx is done. Errors of the drop sink are
// logged and do not stop the watch.
func (f *DropFolder) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", f.dir, err)
	}

	pending := make(map[string]pendingFile)
	timer := time.NewTimer(f.settle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher channel closed")
			}
			f.handle(event, pending)
			if len(pending) > 0 {
				timer.Reset(f.settle)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			f.logger.Warn(ctx, "fsnotify watcher error", "error", err)

		case <-timer.C:
			f.flush(ctx, pending)
		}
	}
}

func (f *DropFolder) handle(event fsnotify.Event, pending map[string]pendingFile) {
	_, known := pending[event.Name]

	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
			return
		}
		if !known {
			pending[event.Name] = pendingFile{path: event.Name, firstSeen: time.Now()}
			f.zone.DragEnter()
		}
	case event.Has(fsnotify.Write):
		if known {
			f.zone.DragOver()
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if known {
			delete(pending, event.Name)
			f.zone.DragLeave()
		}
	}
}

func (f *DropFolder) flush(ctx context.Context, pending map[string]pendingFile) {
	if len(pending) == 0 {
		return
	}

	settled := make([]pendingFile, 0, len(pending))
	for _, p := range pending {
		settled = append(settled, p)
	}
	for k := range pending {
		delete(pending, k)
	}
	sort.Slice(settled, func(i, j int) bool {
		if settled[i].firstSeen.Equal(settled[j].firstSeen) {
			return settled[i].path < settled[j].path
		}
		return settled[i].firstSeen.Before(settled[j].firstSeen)
	})

	files := make([]*models.CandidateFile, 0, len(settled))
	for _, p := range settled {
		cf, err := models.NewFileFromPath(p.path, models.SourceDrop)
		if err != nil {
			f.logger.Warn(ctx, "dropped file vanished", "path", filepath.Base(p.path), "error", err)
			continue
		}
		files = append(files, cf)
	}

	if err := f.zone.Drop(ctx, files); err != nil {
		f.logger.Warn(ctx, "drop failed", "error", err)
	}
}
