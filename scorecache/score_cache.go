package scorecache

import (
	"sync"
	"sync/atomic"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var log = logging.Logger("scorecache")

// ScoreRecord is one entity's current score, as fetched from a Source.
type ScoreRecord struct {
	ID    uint64
	Value uint64
}

// Cache is a lock-free score cache for high-performance concurrent reads. It
// holds exactly one immutable snapshot at a time, which is replaced as a
// whole.
type Cache struct {
	read atomic.Pointer[snapshot]

	hits   atomic.Uint64
	misses atomic.Uint64

	metrics   *cacheMetrics
	closeOnce sync.Once
}

// CacheOption configures a Cache.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	meterProvider metric.MeterProvider
}

// WithMeterProvider sets the meter provider the cache reports metrics to.
// Default is the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) CacheOption {
	return func(cfg *cacheConfig) {
		if mp != nil {
			cfg.meterProvider = mp
		}
	}
}

// snapshot is an immutable struct stored atomically in the cache read field.
// Neither it nor its map is modified after it is stored.
type snapshot struct {
	m         map[uint64]uint64
	updatedAt time.Time
}

// New creates a new empty score cache. Call Close to stop reporting its
// metrics when the cache is no longer needed.
func New(options ...CacheOption) *Cache {
	cfg := cacheConfig{
		meterProvider: otel.GetMeterProvider(),
	}
	for _, opt := range options {
		opt(&cfg)
	}
	c := &Cache{}
	c.metrics = newCacheMetrics(c, cfg.meterProvider.Meter(meterName))
	return c
}

// Close unregisters the cache from its meter provider. The cache can still be
// used after Close, but its lookups and size are no longer reported.
func (c *Cache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.metrics.unregister()
	})
	return err
}

// Get returns the score for id from the most recently published snapshot. The
// second return value is false if id is not present in that snapshot.
func (c *Cache) Get(id uint64) (uint64, bool) {
	value, ok := c.loadSnapshot().m[id]
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return value, ok
}

// Replace atomically installs m as the current snapshot. Lookups that are in
// progress complete against either the previous snapshot or m, never a
// mixture of both.
//
// Replace takes ownership of m. The caller must not modify m after calling
// Replace. A nil m installs an empty snapshot.
func (c *Cache) Replace(m map[uint64]uint64) {
	c.read.Store(&snapshot{
		m:         m,
		updatedAt: time.Now(),
	})
}

// Len returns the number of scores in the current snapshot.
func (c *Cache) Len() int {
	return len(c.loadSnapshot().m)
}

// UpdatedAt returns the time the current snapshot was installed. It is the
// zero time if no snapshot has been installed.
func (c *Cache) UpdatedAt() time.Time {
	return c.loadSnapshot().updatedAt
}

// Range calls f for each id and score in the current snapshot, in no
// particular order, until f returns false. A snapshot installed while Range
// is running is not seen by that Range.
func (c *Cache) Range(f func(id, value uint64) bool) {
	for id, value := range c.loadSnapshot().m {
		if !f(id, value) {
			return
		}
	}
}

func (c *Cache) loadSnapshot() snapshot {
	if p := c.read.Load(); p != nil {
		return *p
	}
	return snapshot{}
}

// BuildSnapshot builds a snapshot map from fetched records. When an id
// appears more than once, the last record for that id wins.
func BuildSnapshot(records []ScoreRecord) map[uint64]uint64 {
	m := make(map[uint64]uint64, len(records))
	for _, rec := range records {
		m[rec.ID] = rec.Value
	}
	return m
}
