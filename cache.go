package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const storeOpTimeout = 5 * time.Second

// entry is one cached resource, keyed by the canonical form of its query key.
// All fields are guarded by Cache.mu.
type entry struct {
	key       Key
	canonical string
	skey      string // second-level store key

	state     State
	data      interface{}
	err       error
	stale     bool
	fetchedAt time.Time

	// issuedSeq tags every fetch; appliedSeq is the last resolution applied.
	// A resolution with seq <= appliedSeq is superseded and discarded, so a
	// slow response can never overwrite a later-issued request's data.
	// staleSeq records issuedSeq at the moment of the last invalidation;
	// fetches issued at or before it predate the invalidation and cannot
	// clear staleness or satisfy a mounting subscriber.
	issuedSeq     uint64
	appliedSeq    uint64
	staleSeq      uint64
	inflightCount int

	// fetcher, timeout and retries follow the most recent subscriber.
	fetcher Fetcher
	timeout time.Duration
	retries int

	subs       map[string]*Subscription
	emptySince time.Time
	warmed     bool
}

func (e *entry) snapshotLocked() Snapshot {
	return Snapshot{
		State:     e.state,
		Data:      e.data,
		Err:       e.err,
		Stale:     e.stale,
		Fetching:  e.inflightCount > 0,
		FetchedAt: e.fetchedAt,
	}
}

func (e *entry) notifyLocked() {
	snap := e.snapshotLocked()
	for _, sub := range e.subs {
		sub.push(snap)
	}
}

func (e *entry) activeSubsLocked() int {
	n := 0
	for _, sub := range e.subs {
		if sub.enabled {
			n++
		}
	}
	return n
}

// Cache is a process-wide query/mutation cache. Instances are created with
// New and are safe for concurrent use. A Cache owns a background sweeper that
// evicts subscriber-less entries after the configured retention window; call
// Close to stop it.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	cfg      Config
	log      *logrus.Logger
	fetchSem *semaphore.Weighted

	statsMu  sync.Mutex
	counters map[string]int

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Cache with the given configuration and starts its sweeper.
func New(cfg Config) *Cache {
	cfg = cfg.withDefaults()
	c := &Cache{
		entries:  make(map[string]*entry),
		cfg:      cfg,
		log:      cfg.Logger,
		fetchSem: semaphore.NewWeighted(maxConcurrentFetches),
		counters: make(map[string]int),
		done:     make(chan struct{}),
	}
	go c.gcLoop()
	return c
}

// maxConcurrentFetches bounds parallel network fetches across all keys, the
// way a browser caps concurrent requests per origin.
const maxConcurrentFetches = 8

// SubscribeOptions configure one subscription.
type SubscribeOptions struct {
	// Disabled suppresses fetching entirely; the entry state stays idle until
	// SetEnabled(true) or another enabled subscriber mounts.
	Disabled bool
	// RefetchInterval enables polling; zero disables it.
	RefetchInterval time.Duration
	// Timeout overrides Config.FetchTimeout for fetches triggered by this
	// subscription. Zero means the cache default.
	Timeout time.Duration
	// Retry overrides Config.RetryCount. Zero means the cache default; a
	// negative value disables retries.
	Retry int
}

// Subscribe registers a consumer for the given key. The entry is created on
// first subscription; a fetch is triggered when the entry is missing, stale,
// errored, or this subscriber is the first enabled one. Concurrent
// subscriptions to structurally-equal keys coalesce into a single request.
//
// The returned Subscription observes every state change until Close.
func (c *Cache) Subscribe(ctx context.Context, key Key, fetcher Fetcher, opts SubscribeOptions) (*Subscription, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, ErrNilFetcher
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	canonical := key.Canonical()
	e, ok := c.entries[canonical]
	if !ok {
		e = &entry{
			key:       key,
			canonical: canonical,
			skey:      "query:" + key.Hash(),
			state:     StateIdle,
			subs:      make(map[string]*Subscription),
		}
		c.entries[canonical] = e
		c.bump("Miss")
	} else {
		c.bump("Hit")
	}

	e.fetcher = fetcher
	e.timeout = opts.Timeout
	if e.timeout <= 0 {
		e.timeout = c.cfg.FetchTimeout
	}
	switch {
	case opts.Retry < 0:
		e.retries = 0
	case opts.Retry == 0:
		e.retries = c.cfg.RetryCount
	default:
		e.retries = opts.Retry
	}

	sub := newSubscription(c, e, !opts.Disabled)
	e.subs[sub.id] = sub
	e.emptySince = time.Time{}

	if sub.enabled {
		c.ensureFetchLocked(e)
	}
	// Deliver the initial snapshot while still holding the lock so a fetch
	// resolving immediately afterwards cannot be reordered behind it.
	sub.push(e.snapshotLocked())
	c.mu.Unlock()

	if opts.RefetchInterval > 0 {
		go sub.pollLoop(opts.RefetchInterval)
	}
	return sub, nil
}

// Get returns the current snapshot for a key without subscribing.
func (c *Cache) Get(key Key) (Snapshot, error) {
	if err := key.Validate(); err != nil {
		return Snapshot{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.Canonical()]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return e.snapshotLocked(), nil
}

// Invalidate marks every entry whose key begins with prefix as stale.
// Entries with at least one enabled subscriber re-fetch immediately,
// superseding any in-flight request; subscriber-less entries stay stale until
// the next subscription mounts. Matching second-level store rows are deleted.
func (c *Cache) Invalidate(ctx context.Context, prefix Key) error {
	if ctx == nil {
		return ErrNilContext
	}
	if err := prefix.Validate(); err != nil {
		return err
	}

	var storeKeys []string
	c.mu.Lock()
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.stale = true
		e.staleSeq = e.issuedSeq
		c.bump("Invalidate")
		if c.cfg.Store != nil {
			storeKeys = append(storeKeys, e.skey)
		}
		if e.activeSubsLocked() > 0 {
			c.startFetchLocked(e, true)
		}
	}
	c.mu.Unlock()

	if len(storeKeys) > 0 {
		go c.storeDelete(storeKeys)
	}
	return nil
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a copy of the operation counters.
func (c *Cache) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	out := make(map[string]int, len(c.counters))
	for k, v := range c.counters {
		out[k] = v
	}
	return Stats{Counters: out}
}

// Close stops the sweeper and rejects further subscriptions. In-flight
// fetches are abandoned without applying their results. Close does not close
// the configured Store; its lifecycle belongs to the caller.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

// --- internals ---

func (c *Cache) bump(name string) {
	c.statsMu.Lock()
	c.counters[name]++
	c.statsMu.Unlock()
}

// needsFetchLocked reports whether a newly mounted (or re-enabled) subscriber
// must trigger a fetch: never fetched, invalidated, past StaleTime, or the
// last fetch failed.
func (c *Cache) needsFetchLocked(e *entry) bool {
	if e.appliedSeq == 0 {
		return true
	}
	if e.stale || e.state == StateError {
		return true
	}
	if c.cfg.StaleTime > 0 && e.state == StateSuccess && time.Since(e.fetchedAt) > c.cfg.StaleTime {
		return true
	}
	return false
}

// ensureFetchLocked triggers a fetch for a mounting or re-enabled subscriber.
// An in-flight request satisfies the need only when it was issued after the
// entry last went stale; a flight predating the invalidation is superseded so
// truth is re-derived from the server.
func (c *Cache) ensureFetchLocked(e *entry) {
	if e.inflightCount > 0 && e.issuedSeq > e.staleSeq {
		c.bump("Dedup")
		return
	}
	if c.needsFetchLocked(e) {
		c.startFetchLocked(e, e.inflightCount > 0)
	}
}

// startFetchLocked issues a fetch for the entry. With supersede false a fetch
// already in flight satisfies the need (request de-duplication); with
// supersede true a new request is issued regardless and the older one's
// resolution will be discarded by the sequence guard.
func (c *Cache) startFetchLocked(e *entry, supersede bool) {
	if e.fetcher == nil {
		return
	}
	if e.inflightCount > 0 && !supersede {
		c.bump("Dedup")
		return
	}
	e.issuedSeq++
	seq := e.issuedSeq
	e.inflightCount++
	c.bump("Fetch")

	// First load and stale revalidation surface as loading; fresh background
	// polling keeps the success state and only flips Snapshot.Fetching.
	if e.appliedSeq == 0 || e.stale {
		e.state = StateLoading
	}
	e.notifyLocked()

	go c.runFetch(e, seq, e.fetcher, e.timeout, e.retries)
}

// runFetch executes one fetch (plus bounded retries) outside the lock. The
// context is detached from any subscriber on purpose: an unmounting consumer
// must not abort a request whose result can still warm the cache.
func (c *Cache) runFetch(e *entry, seq uint64, fetcher Fetcher, timeout time.Duration, retries int) {
	log := c.log.WithFields(logrus.Fields{"key": e.canonical, "seq": seq})

	if c.cfg.Store != nil && c.claimWarm(e) {
		c.warmFromStore(e)
	}

	if err := c.fetchSem.Acquire(context.Background(), 1); err == nil {
		defer c.fetchSem.Release(1)
	}

	var data interface{}
	var err error
	for attempt := 0; ; attempt++ {
		fctx, cancel := context.WithTimeout(context.Background(), timeout)
		data, err = fetcher(fctx, e.key)
		cancel()
		if err == nil || attempt >= retries {
			break
		}
		delay := c.cfg.RetryBaseDelay << attempt
		log.WithError(err).WithField("attempt", attempt).Warn("query fetch failed, retrying")
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}
	}

	c.applyResult(e, seq, data, err)
}

// applyResult applies a fetch resolution unless a later-issued request has
// already been applied.
func (c *Cache) applyResult(e *entry, seq uint64, data interface{}, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.inflightCount--
	if c.closed {
		return
	}
	if seq <= e.appliedSeq {
		c.bump("Superseded")
		c.log.WithFields(logrus.Fields{"key": e.canonical, "seq": seq}).
			Debug("discarding superseded fetch resolution")
		return
	}
	e.appliedSeq = seq

	if err != nil {
		e.state = StateError
		e.err = err
		c.bump("FetchError")
		c.log.WithFields(logrus.Fields{"key": e.canonical, "seq": seq}).
			WithError(err).Warn("query fetch failed")
	} else {
		e.state = StateSuccess
		e.data = data
		e.err = nil
		e.fetchedAt = time.Now()
		c.bump("FetchOK")
		// A resolution issued before the entry went stale still warms the
		// cache, but it may not clear staleness or repopulate the store row
		// the invalidation deleted.
		if seq > e.staleSeq {
			e.stale = false
			if c.cfg.Store != nil {
				go c.storeWrite(e.skey, data)
			}
		}
	}
	e.notifyLocked()
}

// claimWarm marks the entry as having consulted the store, returning true for
// the one caller that should perform the read.
func (c *Cache) claimWarm(e *entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.warmed || e.appliedSeq > 0 || e.data != nil {
		return false
	}
	e.warmed = true
	return true
}

// warmFromStore serves a second-level store hit as stale data so subscribers
// render immediately while the network fetch revalidates.
func (c *Cache) warmFromStore(e *entry) {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()
	raw, err := c.cfg.Store.Get(ctx, e.skey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.log.WithField("key", e.canonical).WithError(err).Warn("store read failed")
		}
		c.bump("StoreMiss")
		return
	}
	c.bump("StoreHit")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || e.appliedSeq > 0 || e.data != nil {
		// A fetch resolved while we were reading the store.
		return
	}
	e.state = StateSuccess
	e.data = json.RawMessage(raw)
	e.stale = true
	e.notifyLocked()
}

func (c *Cache) storeWrite(skey string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.log.WithField("store_key", skey).WithError(err).Warn("skipping store write of unmarshalable data")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()
	if err := c.cfg.Store.Set(ctx, skey, string(raw), c.cfg.StoreTTL); err != nil {
		c.log.WithField("store_key", skey).WithError(err).Warn("store write failed")
	}
}

func (c *Cache) storeDelete(skeys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()
	for _, skey := range skeys {
		if err := c.cfg.Store.Delete(ctx, skey); err != nil && !errors.Is(err, ErrNotFound) {
			c.log.WithField("store_key", skey).WithError(err).Warn("store delete failed")
		}
	}
}

func (c *Cache) gcLoop() {
	ticker := time.NewTicker(c.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep evicts entries that have had zero subscribers for longer than GCTime.
func (c *Cache) sweep() {
	now := time.Now()
	c.mu.Lock()
	for canonical, e := range c.entries {
		if len(e.subs) > 0 || e.inflightCount > 0 {
			continue
		}
		if e.emptySince.IsZero() || now.Sub(e.emptySince) < c.cfg.GCTime {
			continue
		}
		delete(c.entries, canonical)
		c.bump("Evict")
		c.log.WithField("key", canonical).Debug("evicted idle cache entry")
	}
	c.mu.Unlock()
}

func (c *Cache) unsubscribe(sub *Subscription) {
	c.mu.Lock()
	delete(sub.e.subs, sub.id)
	if len(sub.e.subs) == 0 {
		sub.e.emptySince = time.Now()
	}
	// push refuses closed subscriptions under the same lock, so closing here
	// cannot race a send; a ranging consumer drains any buffered snapshot and
	// then terminates.
	close(sub.ch)
	c.mu.Unlock()
}
