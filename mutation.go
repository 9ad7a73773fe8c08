package querycache

import (
	"context"
	"sync/atomic"

	"github.com/cobertis/querycache/notify"
)

// MutationFunc performs one server write (POST/PUT/PATCH/DELETE) and returns
// the parsed response. Mutations are never retried by the cache.
type MutationFunc func(ctx context.Context, args interface{}) (interface{}, error)

// MutationOptions configure a Mutation handle.
type MutationOptions struct {
	// OnSuccess runs after a successful write, after the declared
	// invalidations have been applied.
	OnSuccess func(resp interface{})
	// OnError runs on transport failure or a non-2xx response.
	OnError func(err error)
	// Invalidates lists the key prefixes whose underlying resources this
	// mutation changes. They are invalidated automatically after every
	// successful call, so the mutation→cache coupling is declared once at
	// construction instead of being re-remembered at each call site.
	Invalidates []Key
	// Notifier receives a user-facing message on every failure (and on
	// success when SuccessMessage is set). Defaults to notify.Discard.
	Notifier notify.Notifier
	// SuccessMessage, when non-empty, is sent to the Notifier on success.
	SuccessMessage string
}

// Mutation wraps one write operation with in-flight tracking, declarative
// cache invalidation and notification plumbing. A mutation never writes
// cache entries directly: it only marks keys stale, forcing the cache to
// re-derive truth from the server. On failure the related entries are left
// untouched (stale-but-valid).
type Mutation struct {
	c       *Cache
	fn      MutationFunc
	opts    MutationOptions
	pending atomic.Bool
}

// NewMutation builds a Mutation handle bound to this cache.
func (c *Cache) NewMutation(fn MutationFunc, opts MutationOptions) (*Mutation, error) {
	if fn == nil {
		return nil, ErrNilMutation
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	return &Mutation{c: c, fn: fn, opts: opts}, nil
}

// Pending reports whether a call is in flight.
func (m *Mutation) Pending() bool {
	return m.pending.Load()
}

// Mutate invokes the write. On success it invalidates the declared key
// prefixes and calls OnSuccess; on failure it calls OnError and notifies
// with the error's message. Concurrent calls on the same handle are rejected
// with ErrMutationPending.
func (m *Mutation) Mutate(ctx context.Context, args interface{}) (interface{}, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if !m.pending.CompareAndSwap(false, true) {
		return nil, ErrMutationPending
	}
	defer m.pending.Store(false)

	resp, err := m.fn(ctx, args)
	if err != nil {
		m.c.bump("MutationError")
		m.opts.Notifier.Error(err.Error())
		if m.opts.OnError != nil {
			m.opts.OnError(err)
		}
		return nil, err
	}

	m.c.bump("Mutation")
	for _, prefix := range m.opts.Invalidates {
		if ierr := m.c.Invalidate(ctx, prefix); ierr != nil {
			m.c.log.WithField("prefix", prefix.Canonical()).WithError(ierr).
				Warn("post-mutation invalidation failed")
		}
	}
	if m.opts.SuccessMessage != "" {
		m.opts.Notifier.Success(m.opts.SuccessMessage)
	}
	if m.opts.OnSuccess != nil {
		m.opts.OnSuccess(resp)
	}
	return resp, nil
}
