// Command fty-alert-stats runs the alert-statistics aggregator: it
// subscribes to the asset and alert streams, maintains a rolled-up
// tally of active alerts per asset, and republishes those tallies as
// metrics. See SPEC_FULL.md for the full design.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v8"
	"github.com/robfig/cron/v3"

	"github.com/42ity/fty-alert-stats/internal/adminserver"
	"github.com/42ity/fty-alert-stats/internal/alertstats"
	"github.com/42ity/fty-alert-stats/internal/alertstats/peerqueue"
	"github.com/42ity/fty-alert-stats/internal/config"
	"github.com/42ity/fty-alert-stats/internal/obslog"
	"github.com/42ity/fty-alert-stats/internal/shm"
	"github.com/42ity/fty-alert-stats/internal/svcerr"
	"github.com/42ity/fty-alert-stats/internal/transport/pgbus"
	"github.com/42ity/fty-alert-stats/pkg/version"
)

func main() {
	fs := flag.NewFlagSet("fty-alert-stats", flag.ContinueOnError)
	configPath := fs.String("c", "", "path to the agent config file")
	verbose := fs.Bool("v", false, "enable debug logging")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if *showVersion {
		fmt.Println(version.FullVersion())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fty-alert-stats: %v\n", err)
		os.Exit(1)
	}

	log := obslog.New(obslog.Config{Level: cfg.LogLevel, Format: "text"})
	if *verbose {
		log.SetVerbose()
	}

	if err := run(cfg, log); err != nil {
		log.WithField("error", err).Error("fty-alert-stats exiting")
		if se, ok := err.(*svcerr.StatsError); ok && svcerr.Fatal(se.Code) {
			os.Exit(1)
		}
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *obslog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	self := "fty-alert-stats"
	transport, err := pgbus.New(cfg.BusDSN, self, log)
	if err != nil {
		return svcerr.Wrap(svcerr.CodeBusRegistration, "connect to message bus", err)
	}
	defer transport.Close()

	sink := shm.NewCacheSink(cfg.Agent.MetricTTL)

	queue := peerqueue.Queue(peerqueue.NewMemoryQueue(cfg.Agent.PeerQueryCap))
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		queue = peerqueue.NewRedisQueue(client, self, cfg.Agent.PeerQueryCap)
	}

	actorCfg := alertstats.Config{
		MetricTTL:     cfg.Agent.MetricTTL,
		PollerTimeout: cfg.Agent.PollerTimeout,
		ResyncPeriod:  cfg.Agent.ResyncPeriod,
		PeerQueryCap:  cfg.Agent.PeerQueryCap,
	}
	actor := alertstats.New(actorCfg, transport, transport, sink, queue, log)

	scheduler := cron.New(cron.WithSeconds())
	if _, err := scheduler.AddFunc(everySpec(cfg.Agent.PollerTimeout), actor.TriggerTick); err != nil {
		return svcerr.Wrap(svcerr.CodeBusRegistration, "schedule periodic tick", err)
	}
	if _, err := scheduler.AddFunc(everySpec(cfg.Agent.ResyncPeriod), actor.TriggerResync); err != nil {
		return svcerr.Wrap(svcerr.CodeBusRegistration, "schedule periodic resync", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	admin := adminserver.New(cfg.AdminListen, actor, log)
	go func() {
		if err := admin.ListenAndServe(); err != nil {
			log.WithField("error", err).Warn("admin server stopped")
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- actor.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.WithField("bus", cfg.BusDSN).Info("fty-alert-stats started")

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig).Info("shutdown signal received")
		cancel()
	case err := <-runErr:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = admin.Shutdown(shutdownCtx)

	select {
	case <-actor.Stopped():
	case <-time.After(10 * time.Second):
	}
	return nil
}

// everySpec builds a robfig/cron "@every" spec from a duration.
func everySpec(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}
