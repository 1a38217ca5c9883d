package shm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWriteAndReadMetric(t *testing.T) {
	sink := NewCacheSink(time.Minute)
	sink.WriteMetric("rack-6", "average_temperature.critical", "1", time.Minute)

	v, ok := sink.ReadMetric("rack-6", "average_temperature.critical")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestReadMissingMetric(t *testing.T) {
	sink := NewCacheSink(time.Minute)
	_, ok := sink.ReadMetric("rack-6", "nope")
	assert.False(t, ok)
}

func TestMetricExpiresAfterTTL(t *testing.T) {
	sink := NewCacheSink(time.Minute)
	sink.WriteMetric("rack-6", "average_temperature.warning", "2", 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	_, ok := sink.ReadMetric("rack-6", "average_temperature.warning")
	assert.False(t, ok)
}

func TestSnapshotOmitsExpiredMetrics(t *testing.T) {
	sink := NewCacheSink(time.Minute)
	sink.WriteMetric("rack-6", "average_temperature.critical", "1", time.Minute)
	sink.WriteMetric("room-4", "average_humidity.warning", "0", 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)

	snap := sink.Snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, "rack-6", snap[0].Asset)
}
