package order

import (
	"context"
	"sync"
	"sync/atomic"
)

// OrderQueue is the buffering surface between order producers (API
// handlers, the strategy signal pipeline) and whatever drains it into an
// order.Manager. Queue and PersistentQueue both satisfy it.
type OrderQueue interface {
	Enqueue(o Order) bool
	Drain(ctx context.Context, handler func(Order))
	Len() int
}

// QueueMetrics tracks in-memory queue throughput.
type QueueMetrics struct {
	Enqueued   uint64
	Dequeued   uint64
	Overflowed uint64
	Dropped    uint64
}

// Queue buffers orders before execution. When the primary channel is full,
// orders spill into an unbounded overflow slice rather than blocking the
// producer; Drain prefers overflow first so nothing waits behind a full
// channel indefinitely.
type Queue struct {
	ch chan Order

	mu       sync.Mutex
	overflow []Order

	metrics QueueMetrics
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 100
	}
	return &Queue{ch: make(chan Order, size)}
}

// Enqueue buffers o, spilling to the overflow slice if the channel is
// full. Always succeeds; the bool return reports whether the fast path
// (direct channel send) was used.
func (q *Queue) Enqueue(o Order) bool {
	select {
	case q.ch <- o:
		atomic.AddUint64(&q.metrics.Enqueued, 1)
		return true
	default:
	}

	q.mu.Lock()
	q.overflow = append(q.overflow, o)
	q.mu.Unlock()
	atomic.AddUint64(&q.metrics.Enqueued, 1)
	atomic.AddUint64(&q.metrics.Overflowed, 1)
	return false
}

func (q *Queue) Chan() <-chan Order {
	return q.ch
}

func (q *Queue) Close() {
	close(q.ch)
}

func (q *Queue) popOverflow() (Order, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.overflow) == 0 {
		return Order{}, false
	}
	o := q.overflow[0]
	q.overflow = q.overflow[1:]
	return o, true
}

// Drain consumes orders with a handler until context is canceled,
// preferring anything waiting in overflow over the channel.
func (q *Queue) Drain(ctx context.Context, handler func(Order)) {
	for {
		if o, ok := q.popOverflow(); ok {
			atomic.AddUint64(&q.metrics.Dequeued, 1)
			handler(o)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case o, ok := <-q.ch:
			if !ok {
				return
			}
			atomic.AddUint64(&q.metrics.Dequeued, 1)
			handler(o)
		}
	}
}

// Len reports the current depth across both the channel and overflow.
func (q *Queue) Len() int {
	q.mu.Lock()
	overflow := len(q.overflow)
	q.mu.Unlock()
	return len(q.ch) + overflow
}

// OverflowLen reports how many orders are currently parked in overflow.
func (q *Queue) OverflowLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.overflow)
}

// GetMetrics returns a snapshot of queue throughput counters.
func (q *Queue) GetMetrics() QueueMetrics {
	return QueueMetrics{
		Enqueued:   atomic.LoadUint64(&q.metrics.Enqueued),
		Dequeued:   atomic.LoadUint64(&q.metrics.Dequeued),
		Overflowed: atomic.LoadUint64(&q.metrics.Overflowed),
		Dropped:    atomic.LoadUint64(&q.metrics.Dropped),
	}
}
