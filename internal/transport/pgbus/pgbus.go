// Package pgbus is the Postgres LISTEN/NOTIFY backed implementation
// of internal/bus. It is adapted from the teacher's pkg/pgnotify
// package: channels replace the original ZeroMQ-style stream/mailbox
// topics, and pg_notify's 8000-byte payload limit is worked around by
// framing multi-frame mailbox sends as a JSON array instead of one
// NOTIFY per frame.
package pgbus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/42ity/fty-alert-stats/internal/bus"
	"github.com/42ity/fty-alert-stats/internal/obslog"
)

// envelope is the wire shape every NOTIFY payload carries, whether it
// originated from a stream publish or a mailbox send.
type envelope struct {
	Kind          string   `json:"kind"` // "stream" or "mailbox"
	Subject       string   `json:"subject"`
	From          string   `json:"from,omitempty"`
	To            string   `json:"to,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
	Frames        [][]byte `json:"frames"`
}

// Bus is the Postgres-backed transport. It satisfies both
// bus.StreamConsumer and bus.Mailbox.
type Bus struct {
	db       *sql.DB
	listener *pq.Listener
	self     string
	log      *obslog.Logger

	mu         sync.RWMutex
	streamSubs map[string][]chan bus.StreamMessage

	replies chan bus.MailboxMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New dials dsn and starts the background listener loop. self is this
// service's own mailbox address, used to LISTEN on its own channel.
func New(dsn, self string, log *obslog.Logger) (*Bus, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgbus: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgbus: ping: %w", err)
	}
	return NewWithDB(db, dsn, self, log)
}

// NewWithDB builds a Bus over an already-open *sql.DB, letting tests
// substitute a sqlmock connection.
func NewWithDB(db *sql.DB, dsn, self string, log *obslog.Logger) (*Bus, error) {
	reportProblem := func(_ pq.ListenerEventType, err error) {
		if err != nil && log != nil {
			log.WithField("error", err).Warn("pgbus: listener event")
		}
	}
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, reportProblem)

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		db:         db,
		listener:   listener,
		self:       self,
		log:        log,
		streamSubs: make(map[string][]chan bus.StreamMessage),
		replies:    make(chan bus.MailboxMessage, 256),
		ctx:        ctx,
		cancel:     cancel,
	}

	if self != "" {
		if err := listener.Listen(mailboxChannel(self)); err != nil {
			cancel()
			return nil, fmt.Errorf("pgbus: listen mailbox %s: %w", self, err)
		}
	}

	b.wg.Add(1)
	go b.listen()

	return b, nil
}

func mailboxChannel(address string) string {
	return "mbox_" + address
}

// Subscribe implements bus.StreamConsumer. pattern is not applied:
// every subscriber receives every frame published on the stream,
// whatever its subject.
func (b *Bus) Subscribe(ctx context.Context, stream, pattern string) (<-chan bus.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.streamSubs[stream]) == 0 {
		if err := b.listener.Listen(stream); err != nil {
			return nil, fmt.Errorf("pgbus: listen stream %s: %w", stream, err)
		}
	}

	ch := make(chan bus.StreamMessage, 256)
	b.streamSubs[stream] = append(b.streamSubs[stream], ch)
	_ = pattern // every subscriber currently receives the full stream; pattern is reserved for future filtering
	return ch, nil
}

// PublishStream sends a frame to stream under subject. Not part of
// the bus.StreamConsumer interface (producers don't need to consume),
// kept as a concrete method; only this package's tests call it.
func (b *Bus) PublishStream(ctx context.Context, stream, subject string, body []byte) error {
	env := envelope{Kind: "stream", Subject: subject, Frames: [][]byte{body}}
	return b.notify(ctx, stream, env)
}

// SendRequest implements bus.Mailbox.
func (b *Bus) SendRequest(ctx context.Context, to, subject string, frames [][]byte) error {
	env := envelope{Kind: "mailbox", Subject: subject, From: b.self, To: to, Frames: frames}
	return b.notify(ctx, mailboxChannel(to), env)
}

// Reply implements bus.Mailbox.
func (b *Bus) Reply(ctx context.Context, to, subject, correlationID string, frames [][]byte) error {
	env := envelope{Kind: "mailbox", Subject: subject, From: b.self, To: to, CorrelationID: correlationID, Frames: frames}
	return b.notify(ctx, mailboxChannel(to), env)
}

// Replies implements bus.Mailbox.
func (b *Bus) Replies() <-chan bus.MailboxMessage {
	return b.replies
}

func (b *Bus) notify(ctx context.Context, channel string, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("pgbus: marshal envelope: %w", err)
	}
	if _, err := b.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, string(data)); err != nil {
		return fmt.Errorf("pgbus: notify: %w", err)
	}
	return nil
}

// Close stops the listener loop and releases the connection.
func (b *Bus) Close() error {
	b.cancel()
	b.wg.Wait()
	return b.listener.Close()
}

func (b *Bus) listen() {
	defer b.wg.Done()

	ticker := time.NewTicker(90 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return

		case notification := <-b.listener.Notify:
			if notification == nil {
				continue // connection dropped; pq.Listener reconnects on its own
			}
			b.dispatch(notification)

		case <-ticker.C:
			go func() {
				if err := b.listener.Ping(); err != nil && b.log != nil {
					b.log.WithField("error", err).Warn("pgbus: ping failed")
				}
			}()
		}
	}
}

func (b *Bus) dispatch(n *pq.Notification) {
	var env envelope
	if err := json.Unmarshal([]byte(n.Extra), &env); err != nil {
		if b.log != nil {
			b.log.WithField("error", err).WithField("channel", n.Channel).Warn("pgbus: malformed notification")
		}
		return
	}

	switch env.Kind {
	case "mailbox":
		msg := bus.MailboxMessage{
			From:          env.From,
			Subject:       env.Subject,
			Frames:        env.Frames,
			CorrelationID: env.CorrelationID,
		}
		select {
		case b.replies <- msg:
		default:
			if b.log != nil {
				b.log.Warn("pgbus: replies channel full, dropping mailbox message")
			}
		}
	case "stream":
		b.mu.RLock()
		subs := append([]chan bus.StreamMessage(nil), b.streamSubs[n.Channel]...)
		b.mu.RUnlock()

		var body []byte
		if len(env.Frames) > 0 {
			body = env.Frames[0]
		}
		msg := bus.StreamMessage{Stream: n.Channel, Subject: env.Subject, Body: body}
		for _, ch := range subs {
			select {
			case ch <- msg:
			default:
				if b.log != nil {
					b.log.Warn("pgbus: stream subscriber channel full, dropping frame")
				}
			}
		}
	}
}
