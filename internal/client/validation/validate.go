package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/imgdrop/internal/client/models"
)

const (
	msgCorrupted      = "File appears to be corrupted or is not a valid image"
	msgUnreadable     = "Unable to read image dimensions"
	msgCustomFailed   = "Custom validation failed"
	signatureHeadSize = 4
)

// Validate runs every check against f and returns a fresh Result.
func Validate(ctx context.Context, f *models.CandidateFile, rules Rules, validators ...Validator) Result {
	var errs []string

	if f.Size > rules.MaxSize {
		errs = append(errs, fmt.Sprintf("File size (%s) exceeds the maximum limit of %s",
			FormatBytes(f.Size), FormatBytes(rules.MaxSize)))
	}

	if !rules.Allows(f.MIMEType) {
		errs = append(errs, fmt.Sprintf("File type %s is not allowed. Allowed types: %s",
			displayType(f.MIMEType), strings.Join(rules.AllowedTypes, ", ")))
	}

	intact := checkIntegrity(f)
	if !intact {
		errs = append(errs, msgCorrupted)
	}

	if intact && f.IsImage() && rules.HasDimensionConstraints() {
		w, h, err := decodeDimensions(f)
		if err != nil {
			errs = append(errs, msgUnreadable)
		} else {
			errs = append(errs, dimensionErrors(w, h, rules)...)
		}
	}

	for _, v := range validators {
		errs = append(errs, runValidator(ctx, v, f)...)
	}

	if len(errs) == 0 {
		return Valid()
	}
	return Invalid(errs...)
}

// checkIntegrity compares the leading bytes with known image signatures.
// Files not declared as images always pass.
func checkIntegrity(f *models.CandidateFile) bool {
	if !f.IsImage() {
		return true
	}
	head, err := f.Head(signatureHeadSize)
	if err != nil {
		return false
	}
	return matchSignature(head) != ""
}

func runValidator(ctx context.Context, v Validator, f *models.CandidateFile) (errs []string) {
	defer func() {
		if p := recover(); p != nil {
			errs = []string{msgCustomFailed}
		}
	}()

	res, err := v(ctx, f)
	if err != nil {
		return []string{msgCustomFailed}
	}
	if res.IsValid {
		return nil
	}
	if len(res.Errors) == 0 {
		return []string{msgCustomFailed}
	}
	return res.Errors
}

func displayType(t string) string {
	if t == "" {
		return "(unknown)"
	}
	return t
}
