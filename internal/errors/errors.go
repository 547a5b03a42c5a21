// Package errors defines the typed error taxonomy shared by every engine
// component: callers use errors.Is/errors.As against the sentinels below
// rather than matching on message strings.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine-wide taxonomy. Components wrap these with
// fmt.Errorf("%w: ...") so context survives while errors.Is keeps working.
var (
	// ErrInvalidInput covers malformed parameters: empty user_id, oversized
	// content, negative k, unknown experience type, and similar.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound covers unknown or tombstoned ids.
	ErrNotFound = errors.New("not found")

	// ErrConflict covers a duplicate write racing another in-flight write
	// for the same content hash. Resolved internally; callers normally
	// never see it because the store returns the existing id instead.
	ErrConflict = errors.New("conflict")

	// ErrTransient covers model unavailability, disk pressure, or lock
	// contention timeouts. Retried internally before being surfaced.
	ErrTransient = errors.New("transient")

	// ErrCorruption covers a CRC mismatch in a snapshot or WAL segment.
	// Recovery truncates to the last good point and continues.
	ErrCorruption = errors.New("corruption")

	// ErrFatal covers conditions that abort startup: embedding dimension
	// mismatch against persisted state, unrecoverable disk errors.
	ErrFatal = errors.New("fatal")

	// ErrEmbedderUnavailable indicates the embedding backend has no model
	// loaded (hashing backend never returns this; the ONNX backend does
	// when its model or tokenizer path is unset or missing, or the runtime
	// fails to start). An output width that differs from the configured
	// dimension is reported by Embed as ErrDimensionMismatch instead.
	ErrEmbedderUnavailable = errors.New("embedder unavailable")

	// ErrDimensionMismatch indicates a vector's dimension does not match
	// the index's configured dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrEmptyIndex indicates a search against an index with no live
	// nodes. Callers treat this as an empty result, not a failure.
	ErrEmptyIndex = errors.New("empty index")

	// ErrTombstoned indicates a lookup landed on a tombstoned node.
	// Treated as a miss by the caller.
	ErrTombstoned = errors.New("tombstoned")

	// ErrEmptyCorpus indicates a retrieve against a user namespace with no
	// episodes at all. Treated as an empty result, not a failure.
	ErrEmptyCorpus = errors.New("empty corpus")
)

// Invalid wraps err (or a formatted message) as ErrInvalidInput.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)
}

// NotFoundf wraps a formatted message as ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Fatalf wraps a formatted message as ErrFatal.
func Fatalf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrFatal}, args...)...)
}

// Corruptf wraps a formatted message as ErrCorruption.
func Corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrCorruption}, args...)...)
}

// IsRetryable reports whether err should be retried by the caller's own
// backoff loop rather than surfaced as permanent.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
