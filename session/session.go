// Package session consumes the /api/session endpoint that gates role-based
// behavior across the application. It is an external collaborator of the
// cache core: every consumer shares one cached session entry.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cobertis/querycache"
	"github.com/cobertis/querycache/httpfetch"
)

// Path is the session endpoint.
const Path = "/api/session"

// Principal is the authenticated identity returned by the session endpoint.
type Principal struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	CompanyID string `json:"companyId"`
	Email     string `json:"email"`
}

// HasRole reports whether the principal holds any of the given roles.
func (p *Principal) HasRole(roles ...string) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// Key is the canonical query key for the session entry.
func Key() querycache.Key {
	return querycache.Key{"session"}
}

// Query returns the key/fetcher pair for subscribing to the session.
func Query(client *httpfetch.Client) (querycache.Key, querycache.Fetcher) {
	return Key(), client.Fetcher(httpfetch.StaticResolver(Path))
}

// Decode converts a session snapshot's opaque data into a Principal.
func Decode(snap querycache.Snapshot) (*Principal, error) {
	if !snap.IsSuccess() {
		if snap.Err != nil {
			return nil, snap.Err
		}
		return nil, fmt.Errorf("session: snapshot is %s, not success", snap.State)
	}
	raw, err := json.Marshal(snap.Data)
	if err != nil {
		return nil, fmt.Errorf("session: failed to re-encode snapshot data: %w", err)
	}
	var p Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("session: failed to decode principal: %w", err)
	}
	return &p, nil
}

// Load subscribes to the session entry, waits for the first terminal
// snapshot, and returns the decoded principal. The subscription is released
// before returning; the entry stays warm in the cache for the GC window.
func Load(ctx context.Context, cache *querycache.Cache, client *httpfetch.Client) (*Principal, error) {
	key, fetcher := Query(client)
	sub, err := cache.Subscribe(ctx, key, fetcher, querycache.SubscribeOptions{})
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case snap := <-sub.Updates():
			switch snap.State {
			case querycache.StateSuccess:
				return Decode(snap)
			case querycache.StateError:
				return nil, snap.Err
			}
		}
	}
}
