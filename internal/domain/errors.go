package domain

import "errors"

var (
	ErrMissingImage       = errors.New("image filename is required")
	ErrMissingDescription = errors.New("pose description is required")
	ErrImageNotFound      = errors.New("image not found")
	ErrUnsupportedFormat  = errors.New("unsupported file format")
	ErrInvalidImage       = errors.New("invalid image payload")
	ErrMissingCredentials = errors.New("api credentials are not configured")
	ErrQuotaExceeded      = errors.New("daily quota exceeded")
	ErrIllustrationFailed = errors.New("illustration generation failed")
)
