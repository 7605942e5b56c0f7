package acquire

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/imgdrop/internal/client/models"
	"github.com/dmitrijs2005/imgdrop/internal/filex"
)

// TempPreviews returns a factory that copies each candidate into dir so it
// can be opened by an external viewer. Releasing the handle removes the copy.
func TempPreviews(dir string) models.PreviewFactory {
	return func(ctx context.Context, f *models.CandidateFile) (*models.PreviewHandle, error) {
		abs, err := filex.EnsureDir(dir)
		if err != nil {
			return nil, err
		}

		src, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer src.Close()

		dst, err := os.CreateTemp(abs, "preview-*"+filepath.Ext(f.Name))
		if err != nil {
			return nil, fmt.Errorf("create preview: %w", err)
		}
		path := dst.Name()

		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			os.Remove(path)
			return nil, fmt.Errorf("write preview: %w", err)
		}
		if err := dst.Close(); err != nil {
			os.Remove(path)
			return nil, err
		}

		h := models.NewPreviewHandle(func() { _ = os.Remove(path) })
		h.ID = path
		return h, nil
	}
}
