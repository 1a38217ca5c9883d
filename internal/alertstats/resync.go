package alertstats

import (
	"context"
	"time"

	"github.com/42ity/fty-alert-stats/internal/alertstats/peerqueue"
	"github.com/42ity/fty-alert-stats/internal/bus"
	"github.com/42ity/fty-alert-stats/internal/obslog"
	"github.com/42ity/fty-alert-stats/internal/svcerr"
)

// ResyncState is the ResyncController's lifecycle state (spec.md §4.4).
type ResyncState int

const (
	StateNotReady ResyncState = iota
	StateQuerying
	StateReady
)

func (s ResyncState) String() string {
	switch s {
	case StateNotReady:
		return "not-ready"
	case StateQuerying:
		return "querying"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

const (
	assetAgentAddress = "asset-agent"
	alertListProvider = "fty-alert-list"

	subjectAssetsInContainer = "ASSETS_IN_CONTAINER"
	subjectAssetDetail       = "ASSET_DETAIL"
	subjectAlertsList        = "rfc-alerts-list"
)

// ResyncController drives the not-ready/querying/ready state machine
// that rebuilds this service's view of the world from peers after
// startup or after an explicit/periodic RESYNC trigger (spec.md §4.4).
type ResyncController struct {
	assets  *AssetStore
	alerts  *AlertStore
	counter *CounterEngine
	mailbox bus.Mailbox
	queue   peerqueue.Queue
	throttle *peerqueue.Throttle
	log     *obslog.Logger

	pollerTimeout time.Duration
	peerQueryCap  int

	state        ResyncState
	assetsReady  bool
	alertsReady  bool
	lastResync   time.Time
}

// NewResyncController wires a controller against the shared stores.
func NewResyncController(
	assets *AssetStore,
	alerts *AlertStore,
	counter *CounterEngine,
	mailbox bus.Mailbox,
	queue peerqueue.Queue,
	throttle *peerqueue.Throttle,
	pollerTimeout time.Duration,
	peerQueryCap int,
	log *obslog.Logger,
) *ResyncController {
	return &ResyncController{
		assets:        assets,
		alerts:        alerts,
		counter:       counter,
		mailbox:       mailbox,
		queue:         queue,
		throttle:      throttle,
		pollerTimeout: pollerTimeout,
		peerQueryCap:  peerQueryCap,
		log:           log,
		state:         StateNotReady,
	}
}

// Ready reports whether resync has completed and steady-state
// processing (and metric publishing) may proceed.
func (r *ResyncController) Ready() bool {
	return r.state == StateReady
}

// State returns the controller's current lifecycle state.
func (r *ResyncController) State() ResyncState {
	return r.state
}

// Start clears every store and the peer-query queue, marks both
// halves not-ready, and sends the two mailbox queries that kick off a
// fresh resync (spec.md §4.4 startResynchronization).
func (r *ResyncController) Start(ctx context.Context, now time.Time) error {
	r.assets.Clear()
	r.alerts.Clear()
	if err := r.queue.Reset(ctx); err != nil {
		return svcerr.Wrap(svcerr.CodePeerQueryFailure, "reset peer query queue", err)
	}

	r.assetsReady = false
	r.alertsReady = false
	r.state = StateQuerying
	r.lastResync = now

	if err := r.mailbox.SendRequest(ctx, assetAgentAddress, subjectAssetsInContainer, [][]byte{[]byte("")}); err != nil {
		return svcerr.Wrap(svcerr.CodePeerQueryFailure, "request asset topology", err)
	}
	if err := r.mailbox.SendRequest(ctx, alertListProvider, subjectAlertsList, nil); err != nil {
		return svcerr.Wrap(svcerr.CodePeerQueryFailure, "request alert list", err)
	}

	if r.log != nil {
		r.log.Info("resynchronization started")
	}
	return nil
}

// AssetsListReceived handles the ASSETS_IN_CONTAINER reply: it resets
// the in-flight counter to zero, queues every returned name for an
// ASSET_DETAIL follow-up, and runs the first drain batch (spec.md
// §4.4). assetsReady is not set here unless the drain already leaves
// the queue empty with nothing outstanding (an empty topology) — the
// common case of a non-empty topology only becomes ready once every
// ASSET_DETAIL reply has come back, checked from AssetDetailReceived.
func (r *ResyncController) AssetsListReceived(ctx context.Context, names []string) error {
	if err := r.queue.Reset(ctx); err != nil {
		return svcerr.Wrap(svcerr.CodePeerQueryFailure, "reset peer query queue", err)
	}
	for _, n := range names {
		if err := r.queue.Enqueue(ctx, n); err != nil {
			return err
		}
	}
	return r.drainAndCheckAssetsReady(ctx)
}

// DrainQueries pops as many pending names as the 32-in-flight cap
// allows, throttles the send rate, and issues ASSET_DETAIL requests
// for each (spec.md §4.4 drainOutstandingAssetQueries).
func (r *ResyncController) DrainQueries(ctx context.Context) error {
	names, err := r.queue.Dequeue(ctx, r.peerQueryCap)
	if err != nil {
		return svcerr.Wrap(svcerr.CodePeerQueryFailure, "dequeue peer query batch", err)
	}
	for _, name := range names {
		if r.throttle != nil {
			if err := r.throttle.Wait(ctx); err != nil {
				return err
			}
		}
		if err := r.mailbox.SendRequest(ctx, assetAgentAddress, subjectAssetDetail, [][]byte{[]byte(name)}); err != nil {
			return svcerr.Wrap(svcerr.CodePeerQueryFailure, "request asset detail for "+name, err)
		}
	}
	return nil
}

// AssetDetailReceived marks one ASSET_DETAIL reply as handled, freeing
// a slot in the in-flight cap, drains another batch if the queue still
// has names pending, and marks the asset half ready once the queue is
// empty and nothing remains outstanding (spec.md §4.4).
func (r *ResyncController) AssetDetailReceived(ctx context.Context) error {
	if err := r.queue.MarkOutstanding(ctx, -1); err != nil {
		return err
	}
	return r.drainAndCheckAssetsReady(ctx)
}

func (r *ResyncController) drainAndCheckAssetsReady(ctx context.Context) error {
	if err := r.DrainQueries(ctx); err != nil {
		return err
	}
	pending, err := r.queue.Len(ctx)
	if err != nil {
		return err
	}
	outstanding, err := r.queue.Outstanding(ctx)
	if err != nil {
		return err
	}
	if pending == 0 && outstanding == 0 {
		r.MarkAssetsReady()
	}
	return nil
}

// MarkAssetsReady records that the full asset topology has been
// received and checks whether resync can now complete.
func (r *ResyncController) MarkAssetsReady() {
	r.assetsReady = true
	r.maybeComplete()
}

// MarkAlertsReady records that the full alert list has been received
// and checks whether resync can now complete.
func (r *ResyncController) MarkAlertsReady() {
	r.alertsReady = true
	r.maybeComplete()
}

func (r *ResyncController) maybeComplete() {
	if r.state != StateQuerying {
		return
	}
	if !r.assetsReady || !r.alertsReady {
		return
	}
	r.counter.RecomputeAll(r.alerts)
	r.state = StateReady
	if r.log != nil {
		r.log.Info("resynchronization complete")
	}
}

// Watchdog unwedges a resync that has been Querying for longer than
// twice the poller timeout: it forces both readiness sub-flags true
// and runs a full recompute with whatever state has arrived so far,
// rather than waiting forever on a lost peer reply (spec.md §4.4/§5).
// It never restarts the resync from scratch — that would just as
// easily wedge again against the same unresponsive peer.
func (r *ResyncController) Watchdog(_ context.Context, now time.Time) error {
	if r.state != StateQuerying {
		return nil
	}
	if now.Sub(r.lastResync) <= 2*r.pollerTimeout {
		return nil
	}
	if r.log != nil {
		r.log.WithField("code", svcerr.CodeResyncTimeout).Warn("resync watchdog firing, forcing completion")
	}
	r.assetsReady = true
	r.alertsReady = true
	r.maybeComplete()
	return nil
}
