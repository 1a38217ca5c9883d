// Package alertstats implements the alert-counting aggregator: it
// tracks every known asset and alert, maintains a per-asset tally of
// active warning/critical alerts rolled up through the asset topology,
// and republishes those tallies as metrics on a TTL discipline. The
// package mirrors the single-class-with-mixins shape of the system it
// was modeled on, split here into one file per concern instead of one
// file per class: ProtoStateHolder (stateholder.go), CounterEngine
// (counter.go), MetricPublisher (publisher.go), ResyncController
// (resync.go), and the Aggregator Actor event loop (actor.go).
package alertstats

import "time"

// AssetOp is the operation carried by an asset wire event.
type AssetOp string

const (
	AssetCreate AssetOp = "create"
	AssetUpdate AssetOp = "update"
	AssetDelete AssetOp = "delete"
)

// Asset is the last-seen state of one asset, keyed by Name.
type Asset struct {
	Name      string
	Type      string // "datacenter", "room", "row", "rack", "device", ...
	Subtype   string
	Parent    string // name of the containing asset, "" at the topology root
	Operation AssetOp
}

// Severity is an alert's severity level. Only these two contribute to
// a counter; an ACTIVE alert of any other severity adds nothing (see
// delta in counter.go).
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// AlertState is the lifecycle state of one alert instance.
type AlertState string

const (
	AlertActive      AlertState = "ACTIVE"
	AlertAckWIP      AlertState = "ACK-WIP"
	AlertAckPause    AlertState = "ACK-PAUSE"
	AlertAckIgnore   AlertState = "ACK-IGNORE"
	AlertAckSilence  AlertState = "ACK-SILENCE"
	AlertResolved    AlertState = "RESOLVED"
)

// Alert is the last-seen state of one alert, keyed by (Rule, AssetName).
type Alert struct {
	Rule      string
	AssetName string
	State     AlertState
	Severity  Severity
	Time      time.Time
	TTL       time.Duration
}

// Key identifies this alert's slot in AlertStore.
func (a Alert) Key() string {
	return a.Rule + "@" + a.AssetName
}

// IsInteresting reports whether a counts toward its asset's tally.
// Only ACTIVE alerts are interesting: acknowledged and resolved alerts
// do not contribute, matching the original aggregator's behavior of
// counting untreated alerts only.
func (a Alert) IsInteresting() bool {
	return a.State == AlertActive
}

// Expired reports whether a's TTL has elapsed since a.Time, as of now.
func (a Alert) Expired(now time.Time) bool {
	if a.TTL <= 0 {
		return false
	}
	return now.After(a.Time.Add(a.TTL))
}

// AlertCount is the per-asset tally CounterEngine maintains.
type AlertCount struct {
	Warning  int
	Critical int
	LastSent time.Time
	// NonContainer marks that this bucket belongs to an asset outside
	// the container-prefix allow list (spec.md §4.3): its own value is
	// never published, only rolled into ancestor containers.
	NonContainer bool
}

// containerPrefixes is the exact gate spec.md names for which asset
// names get their own published metric.
var containerPrefixes = []string{"datacenter-", "room-", "row-", "rack-"}

// IsContainerAsset reports whether name belongs to a container class
// whose own tally is published directly.
func IsContainerAsset(name string) bool {
	for _, p := range containerPrefixes {
		if len(name) >= len(p) && name[:len(p)] == p {
			return true
		}
	}
	return false
}
