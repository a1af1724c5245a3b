package util

import (
	"strings"

	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/storage"
)

const maxFilenameLength = 255

// ValidateUpload checks a media upload's name and declared size before its
// body is read. Failures are validation errors on field.
func ValidateUpload(field, filename string, size int64) *errors.APIError {
	switch {
	case filename == "":
		return errors.ValidationError(field, "filename is required")
	case strings.ContainsAny(filename, `/\`):
		return errors.ValidationError(field, "filename cannot contain directory paths")
	case len(filename) > maxFilenameLength:
		return errors.ValidationError(field, "filename too long")
	case !storage.Allowed(filename):
		return errors.ValidationError(field, "unsupported media type")
	case size > storage.MaxUploadBytes:
		return errors.ValidationError(field, "file is too large")
	}
	return nil
}
