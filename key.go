package querycache

import (
	"fmt"

	"github.com/cobertis/querycache/internal/keys"
)

// Key is an ordered, structurally-comparable identifier for a cached server
// resource, e.g. Key{"contacts", "list", 1, 25, "", "all"}. Segments must be
// JSON-marshalable; primitives and plain maps/slices are the expected shape.
//
// Two keys identify the same resource iff their canonical JSON forms are
// equal, regardless of how the segments were constructed (map argument order,
// integer width, and so on).
type Key []interface{}

// Canonical returns the deterministic JSON form of the key. It panics only on
// unmarshalable segments (channels, funcs), which indicate a programming
// error at the call site; Validate reports the same condition as an error.
func (k Key) Canonical() string {
	c, err := keys.Canonical(k)
	if err != nil {
		panic(fmt.Sprintf("querycache: unmarshalable key segment: %v", err))
	}
	return c
}

// Validate reports whether the key is non-empty and all segments are
// canonicalizable.
func (k Key) Validate() error {
	if len(k) == 0 {
		return ErrEmptyKey
	}
	if _, err := keys.Canonical(k); err != nil {
		return fmt.Errorf("querycache: invalid key: %w", err)
	}
	return nil
}

// Hash returns a short hash of the canonical form, used to build store keys.
func (k Key) Hash() string {
	return keys.Hash(k.Canonical())
}

// Equal reports whether two keys are structurally equal.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	return k.Canonical() == other.Canonical()
}

// HasPrefix reports whether the first len(prefix) segments of k are
// structurally equal to prefix. Invalidation uses prefix matching so that
// Key{"contacts", "list"} invalidates every paginated variant of the list.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		a, err := keys.CanonicalSegment(k[i])
		if err != nil {
			return false
		}
		b, err := keys.CanonicalSegment(prefix[i])
		if err != nil {
			return false
		}
		if a != b {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer for log output.
func (k Key) String() string {
	return k.Canonical()
}
