package alertstats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/42ity/fty-alert-stats/internal/shm"
)

type fakeSink struct {
	writes map[string]string
}

func newFakeSink() *fakeSink { return &fakeSink{writes: make(map[string]string)} }

func (f *fakeSink) WriteMetric(asset, name, value string, ttl time.Duration) {
	f.writes[asset+"/"+name] = value
}
func (f *fakeSink) ReadMetric(asset, name string) (string, bool) {
	v, ok := f.writes[asset+"/"+name]
	return v, ok
}
func (f *fakeSink) Snapshot() []shm.Metric { return nil }

func TestPublishWritesOnlyContainerAssets(t *testing.T) {
	assets := buildTopology()
	assets.Process(Asset{Name: "device-7", Parent: "rack-6", Operation: AssetCreate})
	ce := NewCounterEngine(assets, nil)
	ce.RecomputeAlert(nil, Alert{AssetName: "device-7", State: AlertActive, Severity: SeverityWarning})

	sink := newFakeSink()
	pub := NewMetricPublisher(sink, ce, time.Minute, nil)

	pub.Publish("device-7", true, time.Now())

	_, ok := sink.ReadMetric("device-7", "alerts.active.warning")
	assert.False(t, ok, "non-container asset must never get its own metric")

	v, ok := sink.ReadMetric("rack-6", "alerts.active.warning")
	require.True(t, ok, "recursion must still reach the container ancestor")
	assert.Equal(t, "1", v)
}

func TestPublishInhibitedDuringResync(t *testing.T) {
	assets := buildTopology()
	ce := NewCounterEngine(assets, nil)
	ce.RecomputeAlert(nil, Alert{AssetName: "rack-6", State: AlertActive, Severity: SeverityCritical})

	sink := newFakeSink()
	pub := NewMetricPublisher(sink, ce, time.Minute, nil)
	pub.Ready = func() bool { return false }

	pub.Publish("rack-6", true, time.Now())

	_, ok := sink.ReadMetric("rack-6", "alerts.active.critical")
	assert.False(t, ok)
}

func TestShouldPublishRepublishesAfterHalfTTL(t *testing.T) {
	pub := &MetricPublisher{ttl: 10 * time.Second}
	now := time.Now()

	fresh := &AlertCount{LastSent: now}
	assert.False(t, pub.shouldPublish(fresh, now.Add(2*time.Second)))
	assert.True(t, pub.shouldPublish(fresh, now.Add(6*time.Second)))
}

func TestRefreshStaleSkipsWhenNotReady(t *testing.T) {
	assets := buildTopology()
	ce := NewCounterEngine(assets, nil)
	ce.RecomputeAlert(nil, Alert{AssetName: "rack-6", State: AlertActive, Severity: SeverityWarning})

	sink := newFakeSink()
	pub := NewMetricPublisher(sink, ce, time.Minute, nil)
	pub.Ready = func() bool { return false }

	pub.RefreshStale(time.Now())
	assert.Empty(t, sink.writes)
}
