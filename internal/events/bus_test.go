package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()

	var count int32
	var wg sync.WaitGroup
	wg.Add(2)

	for i := 0; i < 2; i++ {
		_, err := bus.Subscribe(EventPriceTick, func(_ context.Context, _ any) error {
			atomic.AddInt32(&count, 1)
			wg.Done()
			return nil
		})
		require.NoError(t, err)
	}

	bus.Publish(EventPriceTick, 42)
	waitOrTimeout(t, &wg, time.Second)
	assert.EqualValues(t, 2, atomic.LoadInt32(&count))
}

func TestBusRetriesFailingHandlerThenGivesUp(t *testing.T) {
	bus := NewBus()
	retryDelaysOriginal := retryDelays
	retryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	defer func() { retryDelays = retryDelaysOriginal }()

	var attempts int32
	done := make(chan struct{})
	_, err := bus.Subscribe(EventRiskAlert, func(_ context.Context, _ any) error {
		n := atomic.AddInt32(&attempts, 1)
		if n == 4 {
			close(done)
		}
		return errors.New("boom")
	})
	require.NoError(t, err)

	bus.Publish(EventRiskAlert, nil)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for all retry attempts")
	}
	assert.EqualValues(t, 4, atomic.LoadInt32(&attempts))
}

func TestBusErrorIsolation(t *testing.T) {
	bus := NewBus()
	retryDelaysOriginal := retryDelays
	retryDelays = []time.Duration{time.Millisecond}
	defer func() { retryDelays = retryDelaysOriginal }()

	var goodCalled int32
	_, _ = bus.Subscribe(EventOrderFilled, func(_ context.Context, _ any) error {
		return errors.New("always fails")
	})
	_, _ = bus.Subscribe(EventOrderFilled, func(_ context.Context, _ any) error {
		atomic.AddInt32(&goodCalled, 1)
		return nil
	})

	bus.Publish(EventOrderFilled, nil)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&goodCalled))
}

func TestBusUnsubscribeRemovesZombieTopic(t *testing.T) {
	bus := NewBus()
	unsub, err := bus.Subscribe(EventSignalGenerated, func(_ context.Context, _ any) error { return nil })
	require.NoError(t, err)

	assert.Contains(t, bus.ListTopics(), EventSignalGenerated)
	unsub()
	assert.NotContains(t, bus.ListTopics(), EventSignalGenerated)

	// idempotent
	unsub()
}

func TestBusSubscribeChanIsNonBlocking(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.SubscribeChan(EventPriceTick, 1)
	defer unsub()

	for i := 0; i < 5; i++ {
		bus.Publish(EventPriceTick, i)
	}
	time.Sleep(20 * time.Millisecond)
	select {
	case <-ch:
	default:
		t.Fatal("expected at least one buffered payload")
	}
}

func TestBusShutdownDropsPublishAndDrainsInFlight(t *testing.T) {
	bus := NewBus()
	started := make(chan struct{})
	release := make(chan struct{})
	_, _ = bus.Subscribe(EventOrderCreated, func(_ context.Context, _ any) error {
		close(started)
		<-release
		return nil
	})

	bus.Publish(EventOrderCreated, nil)
	<-started

	shutdownDone := make(chan struct{})
	go func() {
		bus.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		t.Fatal("shutdown returned before in-flight handler finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-shutdownDone

	health := bus.HealthCheck()
	assert.False(t, health.Healthy)
	assert.True(t, health.ShutdownRequested)

	var called int32
	_, _ = bus.Subscribe(EventOrderCreated, func(_ context.Context, _ any) error {
		atomic.AddInt32(&called, 1)
		return nil
	})
	bus.Publish(EventOrderCreated, nil)
	time.Sleep(10 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&called))
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for wait group")
	}
}
