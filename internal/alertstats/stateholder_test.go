package alertstats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetStorePostOnlyRunsWhenPreAccepts(t *testing.T) {
	s := NewAssetStore()
	var postCalls int
	s.Pre = func(_ *Asset, _ Asset) bool { return false }
	s.Post = func(_ *Asset, _ Asset) { postCalls++ }

	accepted := s.Process(Asset{Name: "rack-6", Operation: AssetCreate})
	assert.False(t, accepted)
	assert.Zero(t, postCalls)

	_, known := s.Get("rack-6")
	assert.False(t, known)
}

func TestAssetStoreAppliesAndNotifiesOnAccept(t *testing.T) {
	s := NewAssetStore()
	var postCalls int
	s.Pre = func(_ *Asset, _ Asset) bool { return true }
	s.Post = func(_ *Asset, _ Asset) { postCalls++ }

	accepted := s.Process(Asset{Name: "rack-6", Parent: "row-5", Operation: AssetCreate})
	require.True(t, accepted)
	assert.Equal(t, 1, postCalls)

	got, known := s.Get("rack-6")
	require.True(t, known)
	assert.Equal(t, "row-5", got.Parent)
}

func TestAssetStoreDeleteRemovesEntry(t *testing.T) {
	s := NewAssetStore()
	s.Process(Asset{Name: "rack-6", Operation: AssetCreate})
	s.Process(Asset{Name: "rack-6", Operation: AssetDelete})

	_, known := s.Get("rack-6")
	assert.False(t, known)
}

func TestAssetStoreClear(t *testing.T) {
	s := NewAssetStore()
	s.Process(Asset{Name: "rack-6", Operation: AssetCreate})
	s.Clear()
	assert.Zero(t, s.Size())
}

func TestAlertStoreResolvedAlertIsRemoved(t *testing.T) {
	s := NewAlertStore()
	a := Alert{Rule: "temp-high", AssetName: "rack-6", State: AlertActive, Severity: SeverityWarning}
	s.Process(a)

	resolved := a
	resolved.State = AlertResolved
	s.Process(resolved)

	_, known := s.Get(a.Key())
	assert.False(t, known)
}

func TestAlertStorePostReceivesPreviousValue(t *testing.T) {
	s := NewAlertStore()
	var seenOld *Alert
	s.Post = func(old *Alert, _ Alert) { seenOld = old }

	a := Alert{Rule: "temp-high", AssetName: "rack-6", State: AlertActive, Severity: SeverityWarning}
	s.Process(a)
	assert.Nil(t, seenOld)

	upgraded := a
	upgraded.Severity = SeverityCritical
	s.Process(upgraded)
	require.NotNil(t, seenOld)
	assert.Equal(t, SeverityWarning, seenOld.Severity)
}
