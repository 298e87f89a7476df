package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-core/internal/logging"
)

// Handler processes one delivery of a published payload. An error (or a
// panic, which is recovered and treated as an error) triggers the retry
// policy below.
type Handler func(ctx context.Context, payload any) error

// retryDelays is the backoff schedule for handler retries: one initial
// attempt plus three retries at 1s, 2s, 4s.
var retryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is the in-process publish/subscribe fabric every trading-core
// component communicates through. Delivery is at-least-once: each
// subscriber handler is retried up to len(retryDelays) times with
// exponential backoff before being abandoned; a failing handler never
// blocks delivery to other subscribers of the same topic (error
// isolation), and Publish never blocks the caller on slow handlers
// because each delivery runs on its own goroutine.
type Bus struct {
	mu        sync.Mutex
	subs      map[Event][]subscription
	nextSubID uint64
	shutdown  bool

	// wg tracks in-flight deliveries so Shutdown can drain them.
	wg sync.WaitGroup

	log zerolog.Logger
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[Event][]subscription),
		log:  logging.For("eventbus"),
	}
}

// Subscribe registers handler for topic and returns an idempotent
// unsubscribe function. When the last subscriber of a topic unsubscribes,
// the topic's map entry is removed entirely; no zombie keys accumulate.
func (b *Bus) Subscribe(topic Event, handler Handler) (func(), error) {
	if topic == "" {
		return nil, fmt.Errorf("eventbus: topic must be non-empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("eventbus: handler must not be nil")
	}

	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[topic]
			for i, s := range subs {
				if s.id == id {
					subs = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(subs) == 0 {
				delete(b.subs, topic)
			} else {
				b.subs[topic] = subs
			}
		})
	}
	return unsub, nil
}

// SubscribeChan is a convenience wrapper over Subscribe for callers that
// want a channel instead of a handler callback, matching the teacher's
// original subscription style. The channel send is non-blocking: a slow
// consumer drops new payloads rather than pushing backpressure into the
// bus, and the underlying handler always reports success so a stalled
// reader is never retried or logged as a failure.
func (b *Bus) SubscribeChan(topic Event, buffer int) (<-chan any, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan any, buffer)
	unsub, _ := b.Subscribe(topic, func(_ context.Context, payload any) error {
		select {
		case ch <- payload:
		default:
		}
		return nil
	})
	return ch, func() {
		unsub()
		close(ch)
	}
}

// Publish delivers payload to every current subscriber of topic. Delivery
// happens over a snapshot of the subscriber list taken under the lock, so
// handler code never runs while the lock is held. Each handler is invoked
// on its own goroutine with independent retry/backoff; Publish returns
// once deliveries for this call have been scheduled, not once they've
// completed.
func (b *Bus) Publish(topic Event, data any) {
	if topic == "" {
		return
	}

	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		b.log.Warn().Str("topic", string(topic)).Msg("publish dropped, bus is shut down")
		return
	}
	subs := make([]subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	for _, sub := range subs {
		b.wg.Add(1)
		go b.deliverWithRetry(topic, sub, data)
	}
}

func (b *Bus) deliverWithRetry(topic Event, sub subscription, data any) {
	defer b.wg.Done()

	attempts := 1 + len(retryDelays)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(retryDelays[attempt-1])
		}
		if b.invoke(topic, sub.handler, data) {
			return
		}
	}
	b.log.Warn().Str("topic", string(topic)).Int("attempts", attempts).Msg("subscriber failed, abandoning delivery")
}

// invoke calls the handler once, recovering a panic as a failed attempt
// subject to the same retry policy as a returned error.
func (b *Bus) invoke(topic Event, handler Handler, data any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn().Str("topic", string(topic)).Interface("panic", r).Msg("subscriber panicked")
			ok = false
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := handler(ctx, data); err != nil {
		b.log.Warn().Str("topic", string(topic)).Err(err).Msg("subscriber error, will retry")
		return false
	}
	return true
}

// Shutdown stops accepting new publishes; in-flight deliveries are
// allowed to drain. Safe to call more than once.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	already := b.shutdown
	b.shutdown = true
	b.mu.Unlock()
	if already {
		return
	}
	b.wg.Wait()
}

// HealthStatus is the result of HealthCheck.
type HealthStatus struct {
	Healthy           bool
	ActiveSubscribers int
	TotalTopics       int
	ShutdownRequested bool
}

// HealthCheck reports the bus's current subscriber/topic counts.
func (b *Bus) HealthCheck() HealthStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, subs := range b.subs {
		total += len(subs)
	}
	return HealthStatus{
		Healthy:           !b.shutdown,
		ActiveSubscribers: total,
		TotalTopics:       len(b.subs),
		ShutdownRequested: b.shutdown,
	}
}

// ListTopics returns the topics that currently have at least one
// subscriber.
func (b *Bus) ListTopics() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	topics := make([]Event, 0, len(b.subs))
	for t := range b.subs {
		topics = append(topics, t)
	}
	return topics
}
