package adminserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/42ity/fty-alert-stats/internal/alertstats"
	"github.com/42ity/fty-alert-stats/internal/alertstats/peerqueue"
	"github.com/42ity/fty-alert-stats/internal/bus"
	"github.com/42ity/fty-alert-stats/internal/shm"
)

type noopStreamConsumer struct{}

func (noopStreamConsumer) Subscribe(_ context.Context, _, _ string) (<-chan bus.StreamMessage, error) {
	return make(chan bus.StreamMessage), nil
}

type noopMailbox struct {
	replies chan bus.MailboxMessage
}

func (m *noopMailbox) SendRequest(context.Context, string, string, [][]byte) error { return nil }
func (m *noopMailbox) Reply(context.Context, string, string, string, [][]byte) error {
	return nil
}
func (m *noopMailbox) Replies() <-chan bus.MailboxMessage { return m.replies }

type noopSink struct{}

func (noopSink) WriteMetric(string, string, string, time.Duration) {}
func (noopSink) ReadMetric(string, string) (string, bool)          { return "", false }
func (noopSink) Snapshot() []shm.Metric                            { return nil }

func newTestActor() *alertstats.Actor {
	cfg := alertstats.Config{MetricTTL: time.Minute, PollerTimeout: time.Minute, ResyncPeriod: time.Hour, PeerQueryCap: 32}
	return alertstats.New(cfg, noopStreamConsumer{}, &noopMailbox{replies: make(chan bus.MailboxMessage)}, noopSink{}, peerqueue.NewMemoryQueue(32), nil)
}

func TestHealthzReturnsOK(t *testing.T) {
	actor := newTestActor()
	srv := New(":0", actor, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturnsUnavailableBeforeResync(t *testing.T) {
	actor := newTestActor()
	srv := New(":0", actor, nil)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRepublishTriggersTick(t *testing.T) {
	actor := newTestActor()
	srv := New(":0", actor, nil)

	req := httptest.NewRequest(http.MethodPost, "/debug/republish", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
}
