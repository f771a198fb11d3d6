package domain

import "errors"

var (
	// ErrValidation marks caller mistakes: empty question, unsupported file
	// type, undersized upload. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrExtraction marks an unreadable or corrupt source document.
	ErrExtraction = errors.New("extraction failed")
	// ErrUnavailable marks an unreachable embedding or language-model service.
	ErrUnavailable = errors.New("dependency unavailable")
	// ErrNotFound is returned when no upload was ever recorded for a
	// (user, filename) pair. Distinct from a failed upload.
	ErrNotFound = errors.New("not found")
)
