package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Normalize recursively normalizes a key segment for consistent JSON
// marshaling. This is necessary to ensure the same canonical form regardless
// of how the segment was constructed.
func Normalize(value interface{}) interface{} {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case map[string]interface{}:
		// Sort map keys to ensure consistent ordering
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		result := make(map[string]interface{})
		for _, k := range keys {
			result[k] = Normalize(v[k])
		}
		return result
	case []interface{}:
		// Make a copy to avoid modifying the original
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = Normalize(item)
		}
		return result
	case []string:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = item
		}
		return result
	case int:
		// Unify integer widths so Key{1} and Key{int64(1)} canonicalize identically.
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	default:
		return v
	}
}

// Canonical returns the deterministic JSON form of a list of segments.
func Canonical(segments []interface{}) (string, error) {
	normalized := make([]interface{}, len(segments))
	for i, seg := range segments {
		normalized[i] = Normalize(seg)
	}
	out, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("failed to marshal key segments to JSON: %w", err)
	}
	return string(out), nil
}

// CanonicalSegment returns the deterministic JSON form of a single segment.
func CanonicalSegment(segment interface{}) (string, error) {
	out, err := json.Marshal(Normalize(segment))
	if err != nil {
		return "", fmt.Errorf("failed to marshal key segment to JSON: %w", err)
	}
	return string(out), nil
}

// Hash returns a short SHA-256 based hash of the canonical form, suitable for
// use in store keys.
func Hash(canonical string) string {
	hasher := sha256.New()
	hasher.Write([]byte(canonical))
	full := hex.EncodeToString(hasher.Sum(nil))
	// First 16 hex characters keep store keys short while staying collision-safe
	// for realistic key populations.
	if len(full) >= 16 {
		return full[:16]
	}
	return full
}
