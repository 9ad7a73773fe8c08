package querycache

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds configuration for a Cache instance.
//
// The zero value is usable: every field falls back to the default below.
type Config struct {
	// StaleTime is how long a successful fetch is considered fresh. A mounted
	// subscriber re-fetches a stale entry on subscribe. Zero means the
	// default; a negative value means entries only go stale via Invalidate.
	StaleTime time.Duration
	// GCTime is how long an entry may sit with zero subscribers before the
	// background sweeper evicts it.
	GCTime time.Duration
	// GCInterval is the sweep cadence.
	GCInterval time.Duration
	// FetchTimeout bounds each fetch attempt. Subscriptions may override it
	// per query.
	FetchTimeout time.Duration
	// RetryCount is the number of additional attempts after a failed query
	// fetch. Mutations are never retried.
	RetryCount int
	// RetryBaseDelay is the backoff base; attempt n waits RetryBaseDelay<<n.
	RetryBaseDelay time.Duration

	// Store is an optional second-level store for warm starts and
	// cross-process sharing. May be nil.
	Store Store
	// StoreTTL is the expiration applied to store writes.
	StoreTTL time.Duration

	// Logger receives structured cache activity logs. Defaults to the
	// logrus standard logger.
	Logger *logrus.Logger
}

const (
	defaultStaleTime      = 5 * time.Minute
	defaultGCTime         = 5 * time.Minute
	defaultGCInterval     = time.Minute
	defaultFetchTimeout   = 15 * time.Second
	defaultRetryCount     = 2
	defaultRetryBaseDelay = 100 * time.Millisecond
	defaultStoreTTL       = 8 * time.Hour
)

func (cfg Config) withDefaults() Config {
	if cfg.StaleTime == 0 {
		cfg.StaleTime = defaultStaleTime
	}
	if cfg.GCTime <= 0 {
		cfg.GCTime = defaultGCTime
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = defaultGCInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	} else if cfg.RetryCount == 0 {
		cfg.RetryCount = defaultRetryCount
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.StoreTTL <= 0 {
		cfg.StoreTTL = defaultStoreTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return cfg
}

// --- Global Configuration ---

var (
	defaultCache *Cache
	defaultMu    sync.RWMutex
)

// Configure builds the package-level default cache. Call it once during
// application initialization; afterwards Default returns the shared instance.
//
// Tests should not rely on the global: New returns isolated instances.
func Configure(cfg Config) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCache != nil {
		_ = defaultCache.Close()
	}
	defaultCache = New(cfg)
	cfg.withDefaults().Logger.Info("querycache configured globally")
	return nil
}

// Default returns the cache built by Configure.
func Default() (*Cache, error) {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultCache == nil {
		return nil, ErrNotConfigured
	}
	return defaultCache, nil
}
