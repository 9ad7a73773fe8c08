package httpfetch

import (
	"fmt"
	"net/url"

	"github.com/cobertis/querycache"
)

// Request is the resolved HTTP read for a query key.
type Request struct {
	Path  string
	Query url.Values
}

// Resolver maps a query key to a concrete request. Every query definition
// carries its own resolver so the key→URL mapping is explicit at the call
// site instead of an ad hoc convention the cache would have to guess.
type Resolver func(key querycache.Key) (*Request, error)

// PathResolver implements the house convention: the first key segment is the
// request path, and each remaining segment is serialized into the query
// string under the parameter name declared at the same position.
//
//	resolver := httpfetch.PathResolver("page", "limit", "search", "filter")
//	// Key{"/api/contacts", 1, 25, "", "all"} -> /api/contacts?page=1&limit=25&search=&filter=all
func PathResolver(params ...string) Resolver {
	return func(key querycache.Key) (*Request, error) {
		if len(key) == 0 {
			return nil, querycache.ErrEmptyKey
		}
		path, ok := key[0].(string)
		if !ok {
			return nil, fmt.Errorf("httpfetch: first key segment must be a string path, got %T", key[0])
		}
		if len(key)-1 != len(params) {
			return nil, fmt.Errorf("httpfetch: key %s has %d argument segments, resolver declares %d parameters",
				key, len(key)-1, len(params))
		}
		values := url.Values{}
		for i, name := range params {
			seg := key[i+1]
			switch v := seg.(type) {
			case string:
				values.Set(name, v)
			case bool:
				values.Set(name, fmt.Sprintf("%t", v))
			case int, int32, int64, uint, uint32, uint64, float32, float64:
				values.Set(name, fmt.Sprintf("%v", v))
			default:
				return nil, fmt.Errorf("httpfetch: key segment %d (%q) is not a primitive: %T", i+1, name, seg)
			}
		}
		return &Request{Path: path, Query: values}, nil
	}
}

// StaticResolver resolves every key to the same path with no parameters,
// for singleton resources like the session principal.
func StaticResolver(path string) Resolver {
	return func(querycache.Key) (*Request, error) {
		return &Request{Path: path}, nil
	}
}
