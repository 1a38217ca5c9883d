// Package peerqueue implements the bounded outstanding-ASSET_DETAIL-query
// limiter the ResyncController drains from (spec.md §4.4,
// drainOutstandingAssetQueries). The original caps outstanding queries
// at 32 in a process-local counter; this package keeps that behavior
// as the in-memory default and adds a Redis-backed implementation so
// the cap holds across a pool of aggregator replicas. The send-rate
// throttle half wraps the teacher's infrastructure/ratelimit.RateLimiter
// directly rather than re-wrapping x/time/rate.
package peerqueue

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v8"

	"github.com/42ity/fty-alert-stats/infrastructure/ratelimit"
)

// Queue holds asset names awaiting an ASSET_DETAIL round trip and
// tracks how many are currently in flight, so callers never exceed
// the configured cap.
type Queue interface {
	// Enqueue adds name to the pending queue.
	Enqueue(ctx context.Context, name string) error
	// Dequeue pops up to n names, provided doing so would not push
	// Outstanding() past cap. Returns fewer than n if the queue is
	// shorter or the cap is nearly reached.
	Dequeue(ctx context.Context, n int) ([]string, error)
	// MarkOutstanding increments the in-flight counter by delta
	// (delta may be negative, to mark a reply received).
	MarkOutstanding(ctx context.Context, delta int) error
	// Outstanding reports the current in-flight count.
	Outstanding(ctx context.Context) (int, error)
	// Len reports how many names are still pending (not yet dequeued).
	Len(ctx context.Context) (int, error)
	// Reset clears the queue and the in-flight counter, used when a
	// resync restarts.
	Reset(ctx context.Context) error
}

// MemoryQueue is the default, single-process Queue.
type MemoryQueue struct {
	mu          sync.Mutex
	pending     []string
	outstanding int
	cap         int
}

// NewMemoryQueue builds a Queue with the given in-flight cap.
func NewMemoryQueue(cap int) *MemoryQueue {
	return &MemoryQueue{cap: cap}
}

func (q *MemoryQueue) Enqueue(_ context.Context, name string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, name)
	return nil
}

func (q *MemoryQueue) Dequeue(_ context.Context, n int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	room := q.cap - q.outstanding
	if room <= 0 {
		return nil, nil
	}
	if n > room {
		n = room
	}
	if n > len(q.pending) {
		n = len(q.pending)
	}

	out := q.pending[:n]
	q.pending = q.pending[n:]
	q.outstanding += n
	return out, nil
}

func (q *MemoryQueue) MarkOutstanding(_ context.Context, delta int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.outstanding += delta
	if q.outstanding < 0 {
		q.outstanding = 0
	}
	return nil
}

func (q *MemoryQueue) Outstanding(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstanding, nil
}

func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), nil
}

func (q *MemoryQueue) Reset(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	q.outstanding = 0
	return nil
}

// RedisQueue is the distributed Queue, backed by a list (pending
// names) and a counter (outstanding) in Redis, letting several
// aggregator replicas share one 32-in-flight budget.
type RedisQueue struct {
	client      *redis.Client
	pendingKey  string
	outstandKey string
	cap         int
}

// NewRedisQueue builds a Queue against client, namespacing its keys so
// multiple services can share one Redis instance.
func NewRedisQueue(client *redis.Client, namespace string, cap int) *RedisQueue {
	return &RedisQueue{
		client:      client,
		pendingKey:  namespace + ":pending",
		outstandKey: namespace + ":outstanding",
		cap:         cap,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, name string) error {
	return q.client.RPush(ctx, q.pendingKey, name).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, n int) ([]string, error) {
	outstanding, err := q.Outstanding(ctx)
	if err != nil {
		return nil, err
	}
	room := q.cap - outstanding
	if room <= 0 {
		return nil, nil
	}
	if n > room {
		n = room
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		name, err := q.client.LPop(ctx, q.pendingKey).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, name)
	}
	if len(out) > 0 {
		if err := q.MarkOutstanding(ctx, len(out)); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (q *RedisQueue) MarkOutstanding(ctx context.Context, delta int) error {
	if delta == 0 {
		return nil
	}
	if delta > 0 {
		return q.client.IncrBy(ctx, q.outstandKey, int64(delta)).Err()
	}
	return q.client.DecrBy(ctx, q.outstandKey, int64(-delta)).Err()
}

func (q *RedisQueue) Outstanding(ctx context.Context) (int, error) {
	n, err := q.client.Get(ctx, q.outstandKey).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.pendingKey).Result()
	return int(n), err
}

func (q *RedisQueue) Reset(ctx context.Context) error {
	return q.client.Del(ctx, q.pendingKey, q.outstandKey).Err()
}

// Throttle caps the rate of outbound ASSET_DETAIL sends independently
// of the in-flight cap, built directly on the teacher's
// infrastructure/ratelimit.RateLimiter rather than reaching for
// x/time/rate a second time.
type Throttle struct {
	limiter *ratelimit.RateLimiter
}

// NewThrottle builds a Throttle allowing perSecond sends per second,
// bursting up to burst.
func NewThrottle(perSecond float64, burst int) *Throttle {
	return &Throttle{limiter: ratelimit.New(ratelimit.RateLimitConfig{
		RequestsPerSecond: perSecond,
		Burst:             burst,
		Window:            time.Second,
	})}
}

// Wait blocks until a send is permitted or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
