// Package service layers validation, business rules and cache coordination
// over the repositories. Reads go through the cache when one is configured;
// writes invalidate the affected keys before returning.
package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/internal/cache"
	"github.com/birbparty/metabase-go/internal/telemetry"
)

// base holds what every service shares.
type base struct {
	cache *cache.Cache
	cfg   Config
	log   *logrus.Entry
}

func newBase(c *cache.Cache, cfg Config, component string) base {
	log := cfg.Logger
	if log == nil {
		log = telemetry.L()
	}
	return base{
		cache: c,
		cfg:   cfg,
		log:   log.WithField("component", component),
	}
}

// invalidate drops keys and every key under prefixes. It runs whether or not
// the cache is enabled so that re-enabling never serves a stale entry.
func (b base) invalidate(keys []string, prefixes ...string) {
	if b.cache == nil {
		return
	}
	b.cache.Delete(keys...)
	dropped := len(keys)
	for _, p := range prefixes {
		dropped += b.cache.DeletePrefix(p)
	}
	b.log.WithFields(logrus.Fields{
		"keys":     keys,
		"prefixes": prefixes,
		"dropped":  dropped,
	}).Debug("cache invalidated")
}

// fail adds operation context to err and keeps its kind.
func fail(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	kind := apierr.KindOf(err)
	if kind == apierr.KindUnknown {
		kind = apierr.KindTransport
	}
	return apierr.Wrap(err, kind, fmt.Sprintf(format, args...))
}
