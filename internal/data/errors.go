package data

import (
	"errors"

	apperrors "github.com/target/mmk-docpipe/internal/errors"
)

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrDocumentNotFound is returned when a document is unknown or soft-deleted.
	ErrDocumentNotFound = apperrors.NotFound("document not found")
)
