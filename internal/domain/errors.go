package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidParent    = errors.New("invalid parent info")
	ErrFileEmpty        = errors.New("file is empty")
	ErrFileTooBig       = errors.New("file size exceeds maximum allowed size")
	ErrMimeTypeMismatch = errors.New("mime type of new content does not match file record")
	ErrBlocked          = errors.New("file is blocked by security check")
	ErrFileUploading    = errors.New("file is still uploading")
	ErrFileNameExists   = errors.New("file with this name already exists")
	ErrInvalidName      = errors.New("invalid file name")
	ErrScanNotAllowed   = errors.New("security check status does not allow scanning")
)

// IsValidation ошибки входных данных. Не повторяются.
func IsValidation(err error) bool {
	return errors.Is(err, ErrFileEmpty) ||
		errors.Is(err, ErrFileTooBig) ||
		errors.Is(err, ErrMimeTypeMismatch) ||
		errors.Is(err, ErrInvalidParent) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrScanNotAllowed)
}
