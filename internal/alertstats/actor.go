package alertstats

import (
	"context"
	"strings"
	"time"

	"github.com/42ity/fty-alert-stats/internal/alertstats/peerqueue"
	"github.com/42ity/fty-alert-stats/internal/bus"
	"github.com/42ity/fty-alert-stats/internal/obslog"
	"github.com/42ity/fty-alert-stats/internal/shm"
	"github.com/42ity/fty-alert-stats/internal/svcerr"
)

// Now is a seam for tests; production code leaves it as time.Now.
var Now = time.Now

// Config bundles the Actor's tunables (spec.md §6).
type Config struct {
	MetricTTL     time.Duration
	PollerTimeout time.Duration
	ResyncPeriod  time.Duration
	PeerQueryCap  int
}

// Actor is the Aggregator Actor: the single-threaded event loop that
// owns every store and drives the three collaborators (ProtoStateHolder
// stores, CounterEngine, MetricPublisher) off the three inboxes
// (spec.md §2, §4.5). It never runs two handlers concurrently — every
// handler below is only ever called from Run's own goroutine;
// TriggerResync and TriggerTick may be called from any goroutine and
// only post onto the control channel.
type Actor struct {
	cfg Config
	log *obslog.Logger

	assets  *AssetStore
	alerts  *AlertStore
	counter *CounterEngine
	pub     *MetricPublisher
	resync  *ResyncController

	streamConsumer bus.StreamConsumer
	mailbox        bus.Mailbox

	// control carries external lifecycle signals: an explicit RESYNC
	// request (from the periodic cron trigger or an operator) and
	// synthetic ticks.
	control chan controlMsg

	stopped chan struct{}
}

type controlMsgKind int

const (
	controlResync controlMsgKind = iota
	controlTick
)

type controlMsg struct {
	kind controlMsgKind
}

// New builds an Actor. streamConsumer and mailbox are the bus
// collaborators; sink is the shared-memory metric sink.
func New(cfg Config, streamConsumer bus.StreamConsumer, mailbox bus.Mailbox, sink shm.Sink, queue peerqueue.Queue, log *obslog.Logger) *Actor {
	assets := NewAssetStore()
	alerts := NewAlertStore()
	counter := NewCounterEngine(assets, log)
	pub := NewMetricPublisher(sink, counter, cfg.MetricTTL, log)
	throttle := peerqueue.NewThrottle(20, 40)
	resync := NewResyncController(assets, alerts, counter, mailbox, queue, throttle, cfg.PollerTimeout, cfg.PeerQueryCap, log)
	pub.Ready = resync.Ready

	a := &Actor{
		cfg:            cfg,
		log:            log,
		assets:         assets,
		alerts:         alerts,
		counter:        counter,
		pub:            pub,
		resync:         resync,
		streamConsumer: streamConsumer,
		mailbox:        mailbox,
		control:        make(chan controlMsg, 8),
		stopped:        make(chan struct{}),
	}

	assets.Pre = a.assetPre
	assets.Post = a.assetPost
	alerts.Pre = a.alertPre
	alerts.Post = a.alertPost

	return a
}

// Resync reports the controller's readiness, exposed for the admin
// server's /readyz handler.
func (a *Actor) Resync() *ResyncController { return a.resync }

// Counters exposes the counter engine for read-only inspection (admin
// server's live feed, tests).
func (a *Actor) Counters() *CounterEngine { return a.counter }

// TriggerResync enqueues an explicit RESYNC request onto the control
// inbox, mirroring an operator's REPUBLISH-adjacent "resync now" ask
// or the periodic supervisor-owned timer.
func (a *Actor) TriggerResync() {
	select {
	case a.control <- controlMsg{kind: controlResync}:
	default:
	}
}

// TriggerTick enqueues a synthetic tick, used by the cron-driven
// Periodic Tick source and by tests that want to drive tick() without
// waiting on a real ticker.
func (a *Actor) TriggerTick() {
	select {
	case a.control <- controlMsg{kind: controlTick}:
	default:
	}
}

// Run subscribes to the asset and alert streams, starts the initial
// resync, and blocks dispatching from the three inboxes until ctx is
// canceled.
func (a *Actor) Run(ctx context.Context) error {
	defer close(a.stopped)

	assetStream, err := a.streamConsumer.Subscribe(ctx, "ASSETS", "")
	if err != nil {
		return svcerr.Wrap(svcerr.CodeBusRegistration, "subscribe ASSETS stream", err)
	}
	alertStream, err := a.streamConsumer.Subscribe(ctx, "ALERTS", "")
	if err != nil {
		return svcerr.Wrap(svcerr.CodeBusRegistration, "subscribe ALERTS stream", err)
	}

	if err := a.resync.Start(ctx, Now()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg := <-a.control:
			a.handleControl(ctx, msg)

		case m := <-assetStream:
			a.handleAssetFrame(ctx, m.Body)

		case m := <-alertStream:
			a.handleAlertFrame(ctx, m.Body)

		case m := <-a.mailbox.Replies():
			a.handleMailbox(ctx, m)
		}
	}
}

// Stopped is closed once Run returns.
func (a *Actor) Stopped() <-chan struct{} { return a.stopped }

func (a *Actor) handleControl(ctx context.Context, msg controlMsg) {
	switch msg.kind {
	case controlResync:
		if err := a.resync.Start(ctx, Now()); err != nil && a.log != nil {
			a.log.WithField("error", err).Error("failed to start resync")
		}
	case controlTick:
		a.tick(ctx)
	}
}

// tick runs the periodic housekeeping spec.md §4.5 assigns the
// Periodic Tick source: purge expired alerts, unwedge a stuck resync,
// and refresh metrics nearing TTL expiry.
func (a *Actor) tick(ctx context.Context) {
	now := Now()

	for _, expired := range a.alerts.ExpiredAsOf(now) {
		resolved := expired
		resolved.State = AlertResolved
		a.alerts.Process(resolved)
	}

	if err := a.resync.Watchdog(ctx, now); err != nil && a.log != nil {
		a.log.WithField("error", err).Warn("resync watchdog failed")
	}

	a.pub.RefreshStale(now)
}

func (a *Actor) handleAssetFrame(ctx context.Context, body []byte) {
	asset, _, err := DecodeStreamFrame(body)
	if err != nil {
		if a.log != nil {
			a.log.WithField("error", err).Debug("dropping malformed asset frame")
		}
		return
	}
	a.assets.Process(*asset)
}

func (a *Actor) handleAlertFrame(ctx context.Context, body []byte) {
	_, alert, err := DecodeStreamFrame(body)
	if err != nil {
		if a.log != nil {
			a.log.WithField("error", err).Debug("dropping malformed alert frame")
		}
		return
	}
	a.alerts.Process(*alert)
}

// assetPre always accepts asset events; hook kept symmetric with the
// original mixin shape even though this service has no reason to
// reject a well-formed asset event.
func (a *Actor) assetPre(_ *Asset, _ Asset) bool { return true }

// assetPost triggers a full counter recompute on every accepted asset
// write (create, update, or delete alike) — see DESIGN.md's Open
// Question decision on why UPDATE is not special-cased.
func (a *Actor) assetPost(_ *Asset, _ Asset) {
	a.counter.RecomputeAll(a.alerts)
	a.pub.RefreshStale(Now())
}

// alertPre always accepts alert events.
func (a *Actor) alertPre(_ *Alert, _ Alert) bool { return true }

// alertPost is wired as the delta-driven recompute plus a recursive
// publish up the ancestor chain for the asset the alert belongs to.
func (a *Actor) alertPost(old *Alert, next Alert) {
	a.counter.RecomputeAlert(old, next)
	a.pub.Publish(next.AssetName, true, Now())
}

func (a *Actor) handleMailbox(ctx context.Context, m bus.MailboxMessage) {
	switch {
	case m.Subject == "REPUBLISH":
		if a.log != nil {
			a.log.WithField("from", m.From).Info("republish requested")
		}
		if !a.resync.Ready() {
			_ = a.mailbox.Reply(ctx, m.From, "REPUBLISH", m.CorrelationID, [][]byte{[]byte("RESYNC")})
			return
		}
		a.counter.RecomputeAll(a.alerts)
		a.pub.RefreshStale(Now())
		_ = a.mailbox.Reply(ctx, m.From, "REPUBLISH", m.CorrelationID, [][]byte{[]byte("OK")})

	case m.Subject == subjectAssetsInContainer:
		names := decodeNameList(m.Frames)
		if err := a.resync.AssetsListReceived(ctx, names); err != nil && a.log != nil {
			a.log.WithField("error", err).Warn("handling asset topology list failed")
		}
		a.pub.RefreshStale(Now())

	case m.Subject == subjectAssetDetail:
		if asset, _, err := decodeSingleAssetFrame(m.Frames); err == nil {
			a.assets.Process(asset)
		}
		if err := a.resync.AssetDetailReceived(ctx); err != nil && a.log != nil {
			a.log.WithField("error", err).Warn("handling asset detail reply failed")
		}
		a.pub.RefreshStale(Now())

	case m.Subject == subjectAlertsList:
		for _, frame := range m.Frames {
			if _, alert, err := DecodeStreamFrame(frame); err == nil && alert != nil {
				a.alerts.Process(*alert)
			}
		}
		a.resync.MarkAlertsReady()
		a.pub.RefreshStale(Now())

	default:
		if a.log != nil {
			a.log.WithField("code", svcerr.CodeUnexpectedMailbox).WithField("subject", m.Subject).Debug("ignoring unexpected mailbox message")
		}
	}
}

func decodeNameList(frames [][]byte) []string {
	if len(frames) == 0 {
		return nil
	}
	raw := string(frames[0])
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func decodeSingleAssetFrame(frames [][]byte) (Asset, bool, error) {
	if len(frames) == 0 {
		return Asset{}, false, svcerr.New(svcerr.CodeDecodeFailure, "empty ASSET_DETAIL reply")
	}
	asset, _, err := DecodeStreamFrame(frames[0])
	if err != nil {
		return Asset{}, false, err
	}
	return *asset, true, nil
}
