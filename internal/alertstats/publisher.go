package alertstats

import (
	"fmt"
	"time"

	"github.com/42ity/fty-alert-stats/internal/obslog"
	"github.com/42ity/fty-alert-stats/internal/shm"
)

// MetricPublisher writes AlertCount tallies to the shared-memory sink
// (spec.md §4.3). Only container-class assets (datacenter-, room-,
// row-, rack-) get their own published metric; non-container buckets
// exist purely to accumulate delta contributions toward their
// container ancestors.
type MetricPublisher struct {
	sink     shm.Sink
	counters *CounterEngine
	ttl      time.Duration
	log      *obslog.Logger

	// Ready reports whether publishing is currently permitted. While a
	// resync is in progress publishing is inhibited entirely — the
	// resync will trigger a full RecomputeAll and a full republish pass
	// once it completes, so publishing half-built tallies mid-resync
	// would only flap metrics.
	Ready func() bool
}

// NewMetricPublisher builds a publisher writing through sink with the
// given per-metric TTL.
func NewMetricPublisher(sink shm.Sink, counters *CounterEngine, ttl time.Duration, log *obslog.Logger) *MetricPublisher {
	return &MetricPublisher{sink: sink, counters: counters, ttl: ttl, log: log}
}

func metricName(severity string) string {
	return fmt.Sprintf("alerts.active.%s", severity)
}

// shouldPublish reports whether bucket's current value is due for a
// republish: either it has never been sent, or half its TTL has
// elapsed since the last send (the same refresh-before-expiry
// discipline spec.md's tick handler drives).
func (p *MetricPublisher) shouldPublish(bucket *AlertCount, now time.Time) bool {
	if bucket.LastSent.IsZero() {
		return true
	}
	return now.Sub(bucket.LastSent) >= p.ttl/2
}

// Publish writes asset's current tally if due, then — when recursive
// is true — walks to asset's parent bucket (if any) and does the
// same, unconditionally of whether this asset passed the
// container-name gate. This sequencing (gate, then unconditional
// recursion) matches the original aggregator: a non-container asset's
// own value is never published, but its parent's rollup still is.
func (p *MetricPublisher) Publish(assetName string, recursive bool, now time.Time) {
	if p.Ready != nil && !p.Ready() {
		return
	}
	p.publish(assetName, recursive, now)
}

func (p *MetricPublisher) publish(assetName string, recursive bool, now time.Time) {
	bucket := p.counters.Entry(assetName)

	if IsContainerAsset(assetName) {
		if p.shouldPublish(bucket, now) {
			p.sink.WriteMetric(assetName, metricName("warning"), fmt.Sprintf("%d", bucket.Warning), p.ttl)
			p.sink.WriteMetric(assetName, metricName("critical"), fmt.Sprintf("%d", bucket.Critical), p.ttl)
			bucket.LastSent = now
			if p.log != nil {
				p.log.WithField("asset", assetName).Debug("published alert counts")
			}
		}
	}
	// Non-container buckets are never written to the sink directly;
	// they exist only to accumulate delta contributions for ancestors.

	if !recursive {
		return
	}

	asset, known := p.parentOf(assetName)
	if !known || asset == "" {
		return
	}
	p.publish(asset, true, now)
}

// parentOf looks up assetName's parent via the same AssetStore the
// counter engine walks ancestry through.
func (p *MetricPublisher) parentOf(assetName string) (string, bool) {
	a, ok := p.counters.assets.Get(assetName)
	if !ok {
		return "", false
	}
	return a.Parent, a.Parent != ""
}

// RefreshStale republishes every bucket whose TTL is close to
// expiring, driven by the actor's periodic tick — this is what keeps
// long-lived, unchanging tallies from aging out of the shm sink.
func (p *MetricPublisher) RefreshStale(now time.Time) {
	if p.Ready != nil && !p.Ready() {
		return
	}
	for asset := range p.counters.Entries() {
		p.publish(asset, false, now)
	}
}
