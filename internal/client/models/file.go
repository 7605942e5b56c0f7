// Package models defines the data carried through an upload pipeline run.
package models

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source tells which acquisition path produced a candidate file.
type Source string

const (
	SourceBrowse Source = "browse"
	SourceDrop   Source = "drop"
	SourceCamera Source = "camera"
)

// ErrEmptyName is returned when a candidate is built without a name.
var ErrEmptyName = errors.New("file name is empty")

// CandidateFile is an immutable handle on the bytes a user supplied.
// Content is read through Open; the struct never caches the full payload.
type CandidateFile struct {
	Name         string
	Size         int64
	MIMEType     string
	LastModified time.Time
	Source       Source

	open func() (io.ReadCloser, error)
}

// Open returns a fresh reader over the file content.
func (f *CandidateFile) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("open %s: no content", f.Name)
	}
	return f.open()
}

// Head returns up to n leading bytes of the content.
func (f *CandidateFile) Head(n int) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(rc, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

// IsImage reports whether the declared MIME type is an image type.
func (f *CandidateFile) IsImage() bool {
	return strings.HasPrefix(f.MIMEType, "image/")
}

// NewFileFromPath builds a candidate from a file on disk. The MIME type is
// declared from the extension, the way a file picker would, not sniffed.
func NewFileFromPath(path string, source Source) (*CandidateFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return &CandidateFile{
		Name:         filepath.Base(path),
		Size:         info.Size(),
		MIMEType:     MIMETypeByName(path),
		LastModified: info.ModTime(),
		Source:       source,
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// NewFileFromBytes builds an in-memory candidate, used by camera capture.
func NewFileFromBytes(name, mimeType string, data []byte, source Source) (*CandidateFile, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	content := bytes.Clone(data)
	return &CandidateFile{
		Name:         name,
		Size:         int64(len(content)),
		MIMEType:     mimeType,
		LastModified: time.Now(),
		Source:       source,
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}, nil
}

// MIMETypeByName guesses the MIME type from the file extension.
func MIMETypeByName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		mediaType, _, err := mime.ParseMediaType(t)
		if err == nil {
			return mediaType
		}
	}
	return "application/octet-stream"
}

// PreviewHandle is the opaque reference to a rendered preview of a
// candidate. Release runs the revoke callback exactly once.
type PreviewHandle struct {
	ID string

	once    sync.Once
	release func()
}

// NewPreviewHandle returns a handle whose Release calls revoke once.
func NewPreviewHandle(revoke func()) *PreviewHandle {
	return &PreviewHandle{ID: "preview-" + uuid.NewString(), release: revoke}
}

// Release revokes the preview. Safe on nil and on repeated calls.
func (p *PreviewHandle) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		if p.release != nil {
			p.release()
		}
	})
}

// PreviewFactory creates previews for candidates; the CLI writes a temp
// copy, tests count calls.
type PreviewFactory func(ctx context.Context, f *CandidateFile) (*PreviewHandle, error)
