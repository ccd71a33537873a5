// Package apperr defines the error taxonomy shared across docdex services.
//
// Services classify failures into a small fixed set of sentinel errors so
// callers (the HTTP layer in particular) can map them without inspecting
// message text. Wrap with fmt.Errorf("%w: ...") and test with errors.Is.
package apperr

import "errors"

var (
	// ErrUnauthorized indicates no caller identity was resolved.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller lacks permission for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates a collection, resource, or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateItem indicates a uniqueness violation, e.g. a collection
	// name collision.
	ErrDuplicateItem = errors.New("duplicate item")

	// ErrInvalidInput indicates malformed caller input, e.g. a bad URL or
	// out-of-range pagination.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstreamUnavailable indicates a transient failure of the embedding
	// provider, vector index, or file store after retries were exhausted.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrSchemaMismatch indicates vector-dimension or collection-config
	// drift. Fatal at startup, never retried.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// IsRetryable reports whether the error class may succeed on retry.
// Only upstream transient failures qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}
