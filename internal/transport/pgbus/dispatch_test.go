package pgbus

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/42ity/fty-alert-stats/internal/bus"
)

func TestDispatchRoutesStreamFrameToSubscribers(t *testing.T) {
	b := &Bus{streamSubs: make(map[string][]chan bus.StreamMessage)}
	ch := make(chan bus.StreamMessage, 1)
	b.streamSubs["ASSETS"] = []chan bus.StreamMessage{ch}

	b.dispatch(&pq.Notification{
		Channel: "ASSETS",
		Extra:   `{"kind":"stream","subject":"asset","frames":["eyJ0eXBlIjoicmFjayJ9"]}`,
	})

	select {
	case msg := <-ch:
		assert.Equal(t, "ASSETS", msg.Stream)
		assert.Equal(t, "asset", msg.Subject)
	default:
		t.Fatal("expected a stream message to be delivered")
	}
}

func TestDispatchRoutesMailboxMessageToReplies(t *testing.T) {
	b := &Bus{replies: make(chan bus.MailboxMessage, 1)}

	b.dispatch(&pq.Notification{
		Channel: "mbox_fty-alert-stats",
		Extra:   `{"kind":"mailbox","subject":"REPUBLISH","from":"operator","correlation_id":"abc"}`,
	})

	select {
	case msg := <-b.replies:
		assert.Equal(t, "REPUBLISH", msg.Subject)
		assert.Equal(t, "operator", msg.From)
		assert.Equal(t, "abc", msg.CorrelationID)
	default:
		t.Fatal("expected a mailbox message to be delivered")
	}
}

func TestDispatchIgnoresMalformedPayload(t *testing.T) {
	b := &Bus{replies: make(chan bus.MailboxMessage, 1)}
	require.NotPanics(t, func() {
		b.dispatch(&pq.Notification{Channel: "mbox_x", Extra: "not json"})
	})
	assert.Len(t, b.replies, 0)
}
