package cache

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/birbparty/metabase-go/apierr"
)

// Config holds cache configuration
type Config struct {
	// Enabled is the initial state of the global enable flag
	Enabled bool

	// Shards is the number of independently locked partitions
	Shards int
	// MaxEntries bounds the entry count across all shards
	MaxEntries int

	// MetadataTTL applies to metadata entries stored without an explicit TTL
	MetadataTTL time.Duration
	// QueryTTL is the default lifetime of a cached query result
	QueryTTL time.Duration
	// MaxQueryTTL caps any per-call query TTL
	MaxQueryTTL time.Duration

	Recorder Recorder
	Logger   *logrus.Entry

	// Now is the clock, time.Now when nil
	Now func() time.Time
}

// Recorder receives hit and miss events per namespace.
type Recorder interface {
	OnCacheHit(namespace string)
	OnCacheMiss(namespace string)
}

// DefaultConfig returns an enabled cache of 1000 entries over 16 shards,
// with 5 minute metadata and 60 second query lifetimes.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Shards:      16,
		MaxEntries:  1000,
		MetadataTTL: 5 * time.Minute,
		QueryTTL:    60 * time.Second,
		MaxQueryTTL: 10 * time.Minute,
	}
}

// Validate checks the configuration and fills zero values with defaults.
func (c *Config) Validate() error {
	if c.Shards < 0 || c.MaxEntries < 0 {
		return apierr.New(apierr.KindConfiguration, "cache shards and max entries cannot be negative")
	}
	if c.MetadataTTL < 0 || c.QueryTTL < 0 || c.MaxQueryTTL < 0 {
		return apierr.New(apierr.KindConfiguration, "cache TTLs cannot be negative")
	}

	defaults := DefaultConfig()
	if c.Shards == 0 {
		c.Shards = defaults.Shards
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = defaults.MaxEntries
	}
	if c.MaxEntries < c.Shards {
		c.Shards = c.MaxEntries
	}
	if c.MetadataTTL == 0 {
		c.MetadataTTL = defaults.MetadataTTL
	}
	if c.QueryTTL == 0 {
		c.QueryTTL = defaults.QueryTTL
	}
	if c.MaxQueryTTL == 0 {
		c.MaxQueryTTL = defaults.MaxQueryTTL
	}
	if c.QueryTTL > c.MaxQueryTTL {
		c.QueryTTL = c.MaxQueryTTL
	}
	return nil
}
