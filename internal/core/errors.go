package core

import "errors"

// Structural errors. These mean the input itself is bad: retrying the same
// work cannot succeed, so the pipeline fails the job without burning its
// retry budget.
var (
	// ErrEmptyParse means the parsing service reported success but produced
	// no usable text. Treated as a parse failure, never as an empty document.
	ErrEmptyParse = errors.New("parser produced empty text")

	// ErrDimensionMismatch means an embedding vector does not match the
	// system-wide embedding dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrMalformedContentHash means a caller-supplied content hash is not a
	// valid sha256 hex digest.
	ErrMalformedContentHash = errors.New("malformed content hash")
)

// ErrStageConflict is returned by compare-and-set stage transitions when
// another worker moved the job first.
var ErrStageConflict = errors.New("job stage changed concurrently")

// Structural reports whether an error is one of the structural classes
// above (directly or wrapped).
func Structural(err error) bool {
	return errors.Is(err, ErrEmptyParse) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrMalformedContentHash)
}
