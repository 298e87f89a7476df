package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-core/internal/events"
)

func TestRequestSubscriptionAllowsWhenNoSessionManager(t *testing.T) {
	bus := events.NewBus()
	c := NewCoordinator(bus, 60, 10, 100*time.Millisecond)
	require.NoError(t, c.Start())
	defer c.Stop()

	decision, err := c.RequestSubscription(context.Background(), "BTCUSDT", "market_adapter")
	require.NoError(t, err)
	assert.Equal(t, DecisionAllowed, decision)
}

func TestRequestSubscriptionRateLimited(t *testing.T) {
	bus := events.NewBus()
	c := NewCoordinator(bus, 60, 1, 100*time.Millisecond)
	require.NoError(t, c.Start())
	defer c.Stop()

	c.limiter.Allow() // consume the single burst token directly

	decision, err := c.RequestSubscription(context.Background(), "BTCUSDT", "market_adapter")
	require.NoError(t, err)
	assert.Equal(t, DecisionDeniedRateLimit, decision)
}

func TestRequestSubscriptionRoundTripsThroughSessionManager(t *testing.T) {
	bus := events.NewBus()
	c := NewCoordinator(bus, 60, 10, time.Second)
	require.NoError(t, c.Start())
	defer c.Stop()

	bus.Publish(events.EventSessionManagerRegistered, nil)
	require.Eventually(t, func() bool {
		return c.HealthCheck().SessionManagerRegistered
	}, time.Second, 5*time.Millisecond)

	unsub, err := bus.Subscribe(events.EventSubscriptionCheckRequest, func(_ context.Context, payload any) error {
		data := payload.(map[string]any)
		bus.Publish(events.EventSubscriptionCheckResponse, map[string]any{
			"request_id": data["request_id"],
			"allowed":    false,
			"reason":     "circuit breaker open for symbol",
		})
		return nil
	})
	require.NoError(t, err)
	defer unsub()

	decision, err := c.RequestSubscription(context.Background(), "ETHUSDT", "market_adapter")
	require.NoError(t, err)
	assert.Equal(t, DecisionDeniedCircuitOpen, decision)
}

func TestRequestSubscriptionFailsOpenOnTimeout(t *testing.T) {
	bus := events.NewBus()
	c := NewCoordinator(bus, 60, 10, 20*time.Millisecond)
	require.NoError(t, c.Start())
	defer c.Stop()

	bus.Publish(events.EventSessionManagerRegistered, nil)
	require.Eventually(t, func() bool {
		return c.HealthCheck().SessionManagerRegistered
	}, time.Second, 5*time.Millisecond)

	// No responder subscribed to subscription.check_request: the round
	// trip never completes and the call must fail open after the timeout.
	start := time.Now()
	decision, err := c.RequestSubscription(context.Background(), "BTCUSDT", "market_adapter")
	require.NoError(t, err)
	assert.Equal(t, DecisionAllowed, decision)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestCircuitBreakerCacheDeniesWithoutRoundTrip(t *testing.T) {
	bus := events.NewBus()
	c := NewCoordinator(bus, 60, 10, time.Second)
	require.NoError(t, c.Start())
	defer c.Stop()

	bus.Publish(events.EventSessionManagerRegistered, nil)
	bus.Publish(events.EventCircuitBreakerStateChanged, map[string]any{
		"symbol": "BTCUSDT",
		"state":  "open",
	})

	require.Eventually(t, func() bool {
		return c.GetCircuitBreakerState("BTCUSDT").State == "open"
	}, time.Second, 5*time.Millisecond)

	decision, err := c.RequestSubscription(context.Background(), "BTCUSDT", "market_adapter")
	require.NoError(t, err)
	assert.Equal(t, DecisionDeniedCircuitOpen, decision)
}

func TestNotifySubscriptionSuccessTracksActiveSymbols(t *testing.T) {
	bus := events.NewBus()
	c := NewCoordinator(bus, 60, 10, time.Second)
	require.NoError(t, c.Start())
	defer c.Stop()

	c.NotifySubscriptionSuccess("BTCUSDT")
	assert.Contains(t, c.GetActiveSymbols(), "BTCUSDT")

	c.RequestUnsubscription("BTCUSDT")
	assert.NotContains(t, c.GetActiveSymbols(), "BTCUSDT")
}

func TestSessionTrackingFollowsStartAndCompleteEvents(t *testing.T) {
	bus := events.NewBus()
	c := NewCoordinator(bus, 60, 10, time.Second)
	require.NoError(t, c.Start())
	defer c.Stop()

	bus.Publish(events.EventSessionStarted, map[string]any{"session_id": "exec_1"})
	require.Eventually(t, func() bool { return c.IsSessionActive("exec_1") }, time.Second, 5*time.Millisecond)

	bus.Publish(events.EventSessionCompleted, map[string]any{"session_id": "exec_1"})
	require.Eventually(t, func() bool { return !c.IsSessionActive("exec_1") }, time.Second, 5*time.Millisecond)
}
