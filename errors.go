package querycache

import "errors"

// ErrNotFound is returned when a requested item (e.g., store key, cache entry) is not found.
var ErrNotFound = errors.New("querycache: requested item not found")

// Additional package-level errors
var (
	ErrClosed = errors.New("querycache: cache is closed")
	// ErrMutationPending indicates Mutate was called while a previous call on the same handle is still in flight.
	ErrMutationPending = errors.New("querycache: mutation already in flight")
	ErrNilContext      = errors.New("querycache: nil context provided")
	ErrNilFetcher      = errors.New("querycache: nil fetcher provided")
	ErrNilMutation     = errors.New("querycache: nil mutation function provided")
	ErrEmptyKey        = errors.New("querycache: query key must have at least one segment")
	ErrSubClosed       = errors.New("querycache: subscription is closed")
	ErrNotConfigured   = errors.New("querycache: Default() called before Configure()")
)
