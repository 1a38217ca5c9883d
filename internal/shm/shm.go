// Package shm is the metric sink MetricPublisher writes through.
// spec.md names this collaborator "shared memory" after the original
// agent's use of a shm-backed key/value store; this implementation
// adapts the teacher's infrastructure/cache.Cache TTL map as the
// default backing instead of hand-rolling a new expiring map.
package shm

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/42ity/fty-alert-stats/infrastructure/cache"
)

// Sink is what MetricPublisher writes metrics through. A metric is
// keyed by (asset, name) and carries a string value plus a TTL after
// which readers should treat it as stale.
type Sink interface {
	WriteMetric(asset, name, value string, ttl time.Duration)
	ReadMetric(asset, name string) (string, bool)
	// Snapshot returns every currently live metric, for inspection (the
	// package's own tests use it). Order is unspecified except
	// that it is stable across calls with no intervening writes.
	Snapshot() []Metric
}

// Metric is one (asset, name, value) triple as currently held by the sink.
type Metric struct {
	Asset string
	Name  string
	Value string
}

// CacheSink is the default Sink, backed by infrastructure/cache.Cache.
type CacheSink struct {
	c *cache.Cache

	mu   sync.RWMutex
	keys map[string]struct{ asset, name string }
}

// NewCacheSink builds a Sink with the given default TTL (used only
// when a caller passes ttl == 0 to WriteMetric).
func NewCacheSink(defaultTTL time.Duration) *CacheSink {
	return &CacheSink{
		c:    cache.NewCache(cache.CacheConfig{DefaultTTL: defaultTTL, CleanupInterval: defaultTTL}),
		keys: make(map[string]struct{ asset, name string }),
	}
}

func metricKey(asset, name string) string {
	return fmt.Sprintf("%s\x00%s", asset, name)
}

// WriteMetric implements Sink.
func (s *CacheSink) WriteMetric(asset, name, value string, ttl time.Duration) {
	key := metricKey(asset, name)
	s.c.Set(key, value, ttl)

	s.mu.Lock()
	s.keys[key] = struct{ asset, name string }{asset, name}
	s.mu.Unlock()
}

// ReadMetric implements Sink.
func (s *CacheSink) ReadMetric(asset, name string) (string, bool) {
	v, ok := s.c.Get(metricKey(asset, name))
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Snapshot implements Sink.
func (s *CacheSink) Snapshot() []Metric {
	s.mu.RLock()
	keys := make([]string, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	meta := make(map[string]struct{ asset, name string }, len(s.keys))
	for k, v := range s.keys {
		meta[k] = v
	}
	s.mu.RUnlock()

	sort.Strings(keys)

	out := make([]Metric, 0, len(keys))
	for _, k := range keys {
		v, ok := s.c.Get(k)
		if !ok {
			continue // expired since the key was recorded; skip rather than report a stale zero value
		}
		str, _ := v.(string)
		m := meta[k]
		out = append(out, Metric{Asset: m.asset, Name: m.name, Value: str})
	}
	return out
}
