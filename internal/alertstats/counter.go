package alertstats

import (
	"sync"
	"time"

	"github.com/42ity/fty-alert-stats/internal/obslog"
	"github.com/42ity/fty-alert-stats/internal/svcerr"
)

// CounterEngine maintains, per asset, the number of currently active
// warning and critical alerts rolled up through the asset's ancestor
// chain (spec.md §4.2). It never talks to the bus directly; the actor
// wires RecomputeAlert as the AlertStore's post hook and RecomputeAll
// as part of resync completion.
type CounterEngine struct {
	mu     sync.Mutex
	counts map[string]*AlertCount

	assets *AssetStore
	log    *obslog.Logger
}

// NewCounterEngine builds a CounterEngine that walks ancestry through
// assets.
func NewCounterEngine(assets *AssetStore, log *obslog.Logger) *CounterEngine {
	return &CounterEngine{
		counts: make(map[string]*AlertCount),
		assets: assets,
		log:    log,
	}
}

// delta returns the (warning, critical) change in contribution caused
// by moving from old to next for the same (rule, asset) slot. old may
// be nil (a brand new alert).
func delta(old *Alert, next Alert) (warning, critical int) {
	if old != nil && old.IsInteresting() {
		switch old.Severity {
		case SeverityWarning:
			warning--
		case SeverityCritical:
			critical--
		}
	}
	if next.IsInteresting() {
		switch next.Severity {
		case SeverityWarning:
			warning++
		case SeverityCritical:
			critical++
		}
	}
	return warning, critical
}

// RecomputeAlert applies the delta between old and next to next's
// asset and every known ancestor above it (spec.md §4.2's delta
// table, walked up the chain). Wire this as AlertStore.Post.
func (c *CounterEngine) RecomputeAlert(old *Alert, next Alert) {
	warningDelta, criticalDelta := delta(old, next)
	if warningDelta == 0 && criticalDelta == 0 {
		if c.log != nil {
			c.log.WithField("code", svcerr.CodeNullDelta).Debug("alert transition produced no counter change")
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	curAsset := next.AssetName
	for curAsset != "" {
		bucket, ok := c.counts[curAsset]
		if !ok {
			bucket = &AlertCount{NonContainer: !IsContainerAsset(curAsset)}
			c.counts[curAsset] = bucket
		}
		before := *bucket
		bucket.Warning += warningDelta
		bucket.Critical += criticalDelta
		bucket.LastSent = time.Time{}

		if c.log != nil {
			c.log.WithFields(map[string]interface{}{
				"asset":    curAsset,
				"before_w": before.Warning, "before_c": before.Critical,
				"after_w": bucket.Warning, "after_c": bucket.Critical,
			}).Debug("counter updated")
		}

		asset, known := c.assets.Get(curAsset)
		nextAsset := ""
		if known {
			nextAsset = asset.Parent
		}
		curAsset = nextAsset
	}
}

// RecomputeAll discards every tally, creates a zeroed bucket for every
// asset currently known to assets (so a container whose last alert was
// reparented or resolved away still reports 0/0 instead of vanishing
// from Entries()), and rebuilds the non-zero tallies from scratch by
// replaying every currently interesting alert. Call this once a resync
// completes (topology and alert set are both fresh) rather than
// trusting the incremental deltas accumulated during resync.
func (c *CounterEngine) RecomputeAll(alerts *AlertStore) {
	c.mu.Lock()
	c.counts = make(map[string]*AlertCount)
	for _, a := range c.assets.All() {
		c.counts[a.Name] = &AlertCount{NonContainer: !IsContainerAsset(a.Name)}
	}
	c.mu.Unlock()

	for _, a := range alerts.All() {
		if a.IsInteresting() {
			c.RecomputeAlert(nil, a)
		}
	}
}

// Get returns a copy of the current tally for asset, or the zero
// value if nothing has ever touched that bucket.
func (c *CounterEngine) Get(asset string) AlertCount {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.counts[asset]; ok {
		return *b
	}
	return AlertCount{}
}

// Entries returns every (asset, *AlertCount) pair currently tracked.
// The returned pointers alias the engine's own storage: callers that
// mutate LastSent (the publisher) are expected to hold no other lock
// while doing so, matching the original single-threaded actor design.
func (c *CounterEngine) Entries() map[string]*AlertCount {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*AlertCount, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Entry returns the live bucket pointer for asset, creating one if
// necessary. Used by MetricPublisher to walk to a parent bucket during
// recursive publish.
func (c *CounterEngine) Entry(asset string) *AlertCount {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.counts[asset]
	if !ok {
		b = &AlertCount{NonContainer: !IsContainerAsset(asset)}
		c.counts[asset] = b
	}
	return b
}
