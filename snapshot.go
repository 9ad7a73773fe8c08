package querycache

import "time"

// State describes the lifecycle position of a cache entry.
type State int

const (
	// StateIdle means no fetch has been attempted (entry disabled or brand new).
	StateIdle State = iota
	// StateLoading means the first fetch for the entry is in flight.
	StateLoading
	// StateSuccess means the entry holds the last successfully fetched payload.
	StateSuccess
	// StateError means the last fetch failed; Err carries the failure.
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of a cache entry at one point in time.
//
// Data is opaque to the cache and owned by the subscriber. When a snapshot is
// served from a warm second-level store before the first fetch completes,
// Data is a json.RawMessage and Stale is true; the background revalidation
// replaces it with the fetcher's own value.
type Snapshot struct {
	State State
	Data  interface{}
	Err   error
	// Stale marks data that is still rendered but pending revalidation
	// (after Invalidate, or when served from a warm store).
	Stale bool
	// Fetching is true while any request for the entry is in flight,
	// including background revalidation that keeps State at StateSuccess.
	Fetching  bool
	FetchedAt time.Time
}

// IsLoading reports whether the first fetch is still in flight.
func (s Snapshot) IsLoading() bool { return s.State == StateLoading }

// IsError reports whether the last fetch failed.
func (s Snapshot) IsError() bool { return s.State == StateError }

// IsSuccess reports whether the entry holds fetched data.
func (s Snapshot) IsSuccess() bool { return s.State == StateSuccess }
