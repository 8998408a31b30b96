package scorecache

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/valk-sh/go-scorecache/scorecache"

var (
	refreshInstalled = metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", "installed")))
	refreshSkipped   = metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", "skipped")))
)

// cacheSeq numbers caches so that each reports under its own attribute set.
var cacheSeq atomic.Int64

// cacheMetrics reports lookup counts and snapshot size from a callback, so
// that Get only touches atomic counters.
type cacheMetrics struct {
	reg metric.Registration
}

func newCacheMetrics(c *Cache, meter metric.Meter) *cacheMetrics {
	lookups, err := meter.Int64ObservableCounter("scorecache_lookups",
		metric.WithDescription("Score lookups by result"),
		metric.WithUnit("{lookup}"))
	if err != nil {
		log.Warnw("Cannot create lookup counter", "err", err)
		return nil
	}
	size, err := meter.Int64ObservableGauge("scorecache_snapshot_size",
		metric.WithDescription("Number of scores in the live snapshot"),
		metric.WithUnit("{score}"))
	if err != nil {
		log.Warnw("Cannot create snapshot size gauge", "err", err)
		return nil
	}

	id := attribute.Int64("cache", cacheSeq.Add(1))
	hit := metric.WithAttributeSet(attribute.NewSet(id, attribute.String("result", "hit")))
	miss := metric.WithAttributeSet(attribute.NewSet(id, attribute.String("result", "miss")))
	cacheAttrs := metric.WithAttributeSet(attribute.NewSet(id))

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(lookups, int64(c.hits.Load()), hit)
		o.ObserveInt64(lookups, int64(c.misses.Load()), miss)
		o.ObserveInt64(size, int64(c.Len()), cacheAttrs)
		return nil
	}, lookups, size)
	if err != nil {
		log.Warnw("Cannot register cache metrics", "err", err)
		return nil
	}
	return &cacheMetrics{reg: reg}
}

func (m *cacheMetrics) unregister() error {
	if m == nil {
		return nil
	}
	return m.reg.Unregister()
}

type refreshMetrics struct {
	refreshes metric.Int64Counter
	duration  metric.Float64Histogram
}

func newRefreshMetrics() *refreshMetrics {
	meter := otel.Meter(meterName)
	m := &refreshMetrics{}
	if counter, err := meter.Int64Counter("scorecache_refreshes",
		metric.WithDescription("Refresh cycles by outcome"),
		metric.WithUnit("{refresh}")); err == nil {
		m.refreshes = counter
	}
	if hist, err := meter.Float64Histogram("scorecache_refresh_duration",
		metric.WithDescription("Duration of refresh cycles"),
		metric.WithUnit("s")); err == nil {
		m.duration = hist
	}
	return m
}

func (m *refreshMetrics) recordRefresh(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := refreshInstalled
	if err != nil {
		outcome = refreshSkipped
	}
	if m.refreshes != nil {
		m.refreshes.Add(ctx, 1, outcome)
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), outcome)
	}
}
