// Package adminserver is the aggregator's small operator-facing HTTP
// surface: health/readiness, a Prometheus scrape endpoint, a
// tick-trigger endpoint, and a websocket feed of counter snapshots.
// None of it sits on the actor's hot path — it only ever reads state
// the actor already owns. Routing follows the chi middleware stack
// the pack's volaticloud-volaticloud server.go sets up, since the
// teacher repo has no router of its own to adapt.
package adminserver

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/42ity/fty-alert-stats/internal/alertstats"
	"github.com/42ity/fty-alert-stats/internal/metrics"
	"github.com/42ity/fty-alert-stats/internal/obslog"
)

// Server is the admin HTTP surface. Build one with New and run it
// with ListenAndServe as a sibling goroutine to the actor's Run.
type Server struct {
	httpServer *http.Server
	actor      *alertstats.Actor
	log        *obslog.Logger
	upgrader   websocket.Upgrader
}

// New builds a Server listening on addr, backed by actor for
// readiness and counter snapshots.
func New(addr string, actor *alertstats.Actor, log *obslog.Logger) *Server {
	s := &Server{
		actor:    actor,
		log:      log,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", metrics.Handler())
	r.Post("/debug/republish", s.handleRepublish)
	r.Get("/ws/counters", s.handleCounterFeed)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type healthzResponse struct {
	Status       string  `json:"status"`
	UptimeSecs   float64 `json:"uptime_seconds"`
	HostUptime   uint64  `json:"host_uptime_seconds,omitempty"`
	ResidentKB   uint64  `json:"resident_kb,omitempty"`
}

var processStart = time.Now()

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthzResponse{Status: "ok", UptimeSecs: time.Since(processStart).Seconds()}

	if hostInfo, err := host.Info(); err == nil {
		resp.HostUptime = hostInfo.Uptime
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			resp.ResidentKB = mem.RSS / 1024
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.actor.Resync().Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": s.actor.Resync().State().String()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleRepublish posts a synthetic tick to the actor (expired-alert
// purge, resync watchdog, refresh of metrics past half their TTL) and
// answers 202 at once. It does not run the full recompute the mailbox
// REPUBLISH subject runs, and it does not report OK or RESYNC.
func (s *Server) handleRepublish(w http.ResponseWriter, r *http.Request) {
	s.actor.TriggerTick()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "republish triggered"})
}

func (s *Server) handleCounterFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.WithField("error", err).Warn("websocket upgrade failed")
		}
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			entries := s.actor.Counters().Entries()
			payload := make(map[string]alertstats.AlertCount, len(entries))
			for asset, bucket := range entries {
				payload[asset] = *bucket
			}
			if err := conn.WriteJSON(payload); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
