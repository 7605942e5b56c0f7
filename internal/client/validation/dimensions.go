package validation

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/dmitrijs2005/imgdrop/internal/client/models"
)

// decodeDimensions reads only the image header.
func decodeDimensions(f *models.CandidateFile) (width, height int, err error) {
	rc, err := f.Open()
	if err != nil {
		return 0, 0, err
	}
	defer rc.Close()

	cfg, _, err := image.DecodeConfig(rc)
	if err != nil {
		return 0, 0, fmt.Errorf("decode %s: %w", f.Name, err)
	}
	return cfg.Width, cfg.Height, nil
}

func dimensionErrors(width, height int, r Rules) []string {
	var errs []string
	if r.MinWidth > 0 && width < r.MinWidth {
		errs = append(errs, fmt.Sprintf("Image width (%dpx) is below the minimum of %dpx", width, r.MinWidth))
	}
	if r.MinHeight > 0 && height < r.MinHeight {
		errs = append(errs, fmt.Sprintf("Image height (%dpx) is below the minimum of %dpx", height, r.MinHeight))
	}
	if r.MaxWidth > 0 && width > r.MaxWidth {
		errs = append(errs, fmt.Sprintf("Image width (%dpx) exceeds the maximum of %dpx", width, r.MaxWidth))
	}
	if r.MaxHeight > 0 && height > r.MaxHeight {
		errs = append(errs, fmt.Sprintf("Image height (%dpx) exceeds the maximum of %dpx", height, r.MaxHeight))
	}
	return errs
}
