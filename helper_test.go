package querycache_test

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cobertis/querycache"
)

// quietLogger keeps cache chatter out of test output.
func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newTestCache builds an isolated cache with fast retry timing.
func newTestCache(cfg querycache.Config) *querycache.Cache {
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = 5 * time.Millisecond
	}
	return querycache.New(cfg)
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
