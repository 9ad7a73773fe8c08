package querycache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Subscription is one mounted consumer of a query key. It receives a
// coalescing stream of snapshots on Updates and counts toward the entry's
// subscriber set until Close; an entry whose subscriber count stays at zero
// past the retention window is garbage collected.
type Subscription struct {
	id      string
	c       *Cache
	e       *entry
	enabled bool // guarded by c.mu
	closed  bool // guarded by c.mu

	ch        chan Snapshot
	stop      chan struct{}
	closeOnce sync.Once
}

func newSubscription(c *Cache, e *entry, enabled bool) *Subscription {
	return &Subscription{
		id:      uuid.NewString(),
		c:       c,
		e:       e,
		enabled: enabled,
		ch:      make(chan Snapshot, 1),
		stop:    make(chan struct{}),
	}
}

// Updates returns the snapshot stream. The channel holds only the most
// recent snapshot: intermediate states may be skipped when the consumer lags,
// but the latest state is always delivered. The channel is closed by Close,
// so consumers may range over it.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.ch
}

// Snapshot returns the entry's current state.
func (s *Subscription) Snapshot() Snapshot {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.e.snapshotLocked()
}

// Key returns the subscribed query key.
func (s *Subscription) Key() Key {
	return s.e.key
}

// Refetch forces a new request for the key, superseding any in-flight one.
func (s *Subscription) Refetch(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.closed {
		return ErrSubClosed
	}
	s.c.startFetchLocked(s.e, true)
	return nil
}

// SetEnabled flips the subscription's enabled flag. Enabling a previously
// disabled subscription triggers a fetch if the entry needs one; disabling
// only stops this subscription from triggering future fetches.
func (s *Subscription) SetEnabled(ctx context.Context, enabled bool) error {
	if ctx == nil {
		return ErrNilContext
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.closed {
		return ErrSubClosed
	}
	was := s.enabled
	s.enabled = enabled
	if enabled && !was {
		s.c.ensureFetchLocked(s.e)
	}
	return nil
}

// Close unregisters the subscriber. An in-flight fetch continues and still
// updates the cache (warming), but nothing is delivered here afterwards.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.c.mu.Lock()
		s.closed = true
		s.c.mu.Unlock()
		close(s.stop)
		s.c.unsubscribe(s)
	})
}

// push delivers a snapshot without blocking, replacing an undelivered older
// one. Called with c.mu held.
func (s *Subscription) push(snap Snapshot) {
	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- snap:
		default:
		}
	}
}

// pollLoop re-fetches the key at the configured interval for as long as the
// subscription is mounted and enabled.
func (s *Subscription) pollLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-s.c.done:
			return
		case <-ticker.C:
			s.c.mu.Lock()
			if s.closed {
				s.c.mu.Unlock()
				return
			}
			if s.enabled {
				s.c.bump("Poll")
				s.c.startFetchLocked(s.e, false)
			}
			s.c.mu.Unlock()
		}
	}
}
