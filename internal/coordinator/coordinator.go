// Package coordinator implements the mediator that breaks the circular
// dependency between the live market adapter and the session manager: the
// adapter asks "may I subscribe to this symbol", the coordinator answers
// without either side holding a reference to the other, forwarding the
// question over the event bus to whatever has registered as the session
// manager.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"trading-core/internal/events"
	"trading-core/internal/execution"
	"trading-core/internal/logging"
)

// Coordinator mediates LiveMarketAdapter <-> SessionManager coordination.
// A LiveMarketAdapter calls RequestSubscription before subscribing to a
// symbol; the Coordinator checks its local rate limiter and circuit
// breaker cache, then — if a session manager has registered — round-trips
// a subscription.check_request/response pair over the bus and relays the
// decision back. No session manager, or no response within the decision
// timeout, both fail open: losing a gate check is preferable to losing
// market data.
type Coordinator struct {
	bus             *events.Bus
	log             zerolog.Logger
	limiter         *rate.Limiter
	decisionTimeout time.Duration

	mu                       sync.Mutex
	subscriptions            map[string]*subscriptionState
	circuitBreakers          map[string]CircuitBreakerState
	activeSessions           map[string]bool
	sessionManagerRegistered bool
	pending                  map[string]pendingRequest

	unsubs []func()
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewCoordinator builds a coordinator admitting ratePerMinute subscription
// requests per minute (burstable by burst) and waiting up to
// decisionTimeout for a session manager's response before failing open.
func NewCoordinator(bus *events.Bus, ratePerMinute, burst int, decisionTimeout time.Duration) *Coordinator {
	if decisionTimeout <= 0 {
		decisionTimeout = 5 * time.Second
	}
	if burst <= 0 {
		burst = ratePerMinute
	}
	return &Coordinator{
		bus:             bus,
		log:             logging.For("coordinator"),
		limiter:         rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0), burst),
		decisionTimeout: decisionTimeout,
		subscriptions:   make(map[string]*subscriptionState),
		circuitBreakers: make(map[string]CircuitBreakerState),
		activeSessions:  make(map[string]bool),
		pending:         make(map[string]pendingRequest),
	}
}

// Start subscribes the coordinator to the bus topics it mediates and
// launches the stale pending-request sweeper.
func (c *Coordinator) Start() error {
	subs := []struct {
		topic   events.Event
		handler events.Handler
	}{
		{events.EventSessionManagerRegistered, c.onSessionManagerRegistered},
		{events.EventSessionStarted, c.onSessionStarted},
		{events.EventSessionCompleted, c.onSessionStopped},
		{events.EventCircuitBreakerStateChanged, c.onCircuitBreakerChanged},
		{events.EventSubscriptionCheckResponse, c.onSubscriptionCheckResponse},
	}
	for _, s := range subs {
		unsub, err := c.bus.Subscribe(s.topic, s.handler)
		if err != nil {
			return fmt.Errorf("coordinator: subscribe %s: %w", s.topic, err)
		}
		c.unsubs = append(c.unsubs, unsub)
	}

	c.stop = make(chan struct{})
	c.wg.Add(1)
	go c.sweepStaleRequests()

	c.log.Info().Msg("trading coordinator started")
	return nil
}

// Stop unsubscribes from the bus and cancels the sweeper. Safe to call
// once; calling it without a prior Start is a no-op.
func (c *Coordinator) Stop() {
	if c.stop != nil {
		close(c.stop)
		c.wg.Wait()
		c.stop = nil
	}
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
	c.log.Info().Msg("trading coordinator stopped")
}

// RequestSubscription asks permission to subscribe to symbol on behalf of
// requesterID. Denials short-circuit locally (rate limit, cached circuit
// breaker state); otherwise the request is forwarded to the session
// manager and the call blocks until a response arrives, the decision
// timeout elapses, or ctx is cancelled — the latter two both fail open.
func (c *Coordinator) RequestSubscription(ctx context.Context, symbol, requesterID string) (SubscriptionDecision, error) {
	if !c.limiter.Allow() {
		c.log.Warn().Str("symbol", symbol).Msg("subscription request rate limited")
		return DecisionDeniedRateLimit, nil
	}

	c.mu.Lock()
	registered := c.sessionManagerRegistered
	cb, hasCB := c.circuitBreakers[symbol]
	c.mu.Unlock()

	if hasCB && cb.State == "open" {
		c.log.Info().Str("symbol", symbol).Msg("circuit open, denying subscription")
		return DecisionDeniedCircuitOpen, nil
	}

	if !registered {
		c.log.Warn().Str("symbol", symbol).Msg("no session manager registered, allowing by default")
		return DecisionAllowed, nil
	}

	requestID := fmt.Sprintf("%s_%d", symbol, time.Now().UnixNano())
	ch := make(chan SubscriptionDecision, 1)
	c.mu.Lock()
	c.pending[requestID] = pendingRequest{ch: ch, createdAt: time.Now()}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	c.bus.Publish(events.EventSubscriptionCheckRequest, map[string]any{
		"request_id":   requestID,
		"symbol":       symbol,
		"requester_id": requesterID,
		"timestamp":    time.Now(),
	})

	timer := time.NewTimer(c.decisionTimeout)
	defer timer.Stop()

	select {
	case decision := <-ch:
		return decision, nil
	case <-timer.C:
		c.log.Warn().Str("symbol", symbol).Dur("timeout", c.decisionTimeout).Msg("subscription check timed out, failing open")
		return DecisionAllowed, nil
	case <-ctx.Done():
		return DecisionAllowed, ctx.Err()
	}
}

// NotifySubscriptionSuccess records that symbol is now subscribed and
// publishes subscription.success for anyone tracking live coverage.
func (c *Coordinator) NotifySubscriptionSuccess(symbol string) {
	c.mu.Lock()
	st := c.subscriptionFor(symbol)
	st.IsSubscribed = true
	st.FailureCount = 0
	c.mu.Unlock()

	c.bus.Publish(events.EventSubscriptionSuccess, map[string]any{"symbol": symbol, "timestamp": time.Now()})
}

// NotifySubscriptionFailure records a subscription failure and publishes
// subscription.failure with the running failure count for the symbol.
func (c *Coordinator) NotifySubscriptionFailure(symbol, reason string) {
	c.mu.Lock()
	st := c.subscriptionFor(symbol)
	st.FailureCount++
	st.LastFailureReason = reason
	failureCount := st.FailureCount
	c.mu.Unlock()

	c.log.Warn().Str("symbol", symbol).Str("error", reason).Int("failure_count", failureCount).Msg("subscription failed")
	c.bus.Publish(events.EventSubscriptionFailure, map[string]any{
		"symbol": symbol, "error": reason, "failure_count": failureCount, "timestamp": time.Now(),
	})
}

// RequestUnsubscription marks symbol as no longer subscribed.
func (c *Coordinator) RequestUnsubscription(symbol string) {
	c.mu.Lock()
	if st, ok := c.subscriptions[symbol]; ok {
		st.IsSubscribed = false
	}
	c.mu.Unlock()
	c.bus.Publish(events.EventSubscriptionUnsubscribed, map[string]any{"symbol": symbol, "timestamp": time.Now()})
}

func (c *Coordinator) subscriptionFor(symbol string) *subscriptionState {
	st, ok := c.subscriptions[symbol]
	if !ok {
		st = &subscriptionState{Symbol: symbol}
		c.subscriptions[symbol] = st
	}
	return st
}

// IsSessionActive reports whether sessionID is tracked as running, or
// whether any session is running when sessionID is empty.
func (c *Coordinator) IsSessionActive(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sessionID == "" {
		return len(c.activeSessions) > 0
	}
	return c.activeSessions[sessionID]
}

// GetActiveSymbols returns the symbols currently marked subscribed.
func (c *Coordinator) GetActiveSymbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for symbol, st := range c.subscriptions {
		if st.IsSubscribed {
			out = append(out, symbol)
		}
	}
	return out
}

// GetCircuitBreakerState returns the last known breaker state for symbol,
// defaulting to closed when nothing has been reported yet.
func (c *Coordinator) GetCircuitBreakerState(symbol string) CircuitBreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.circuitBreakers[symbol]; ok {
		return cb
	}
	return CircuitBreakerState{State: "closed"}
}

// GetRateLimitStatus reports the coordinator's current admission budget.
func (c *Coordinator) GetRateLimitStatus() RateLimitStatus {
	return RateLimitStatus{
		TokensAvailable: c.limiter.Tokens(),
		Burst:           c.limiter.Burst(),
	}
}

// HealthCheck reports the coordinator's current bookkeeping state.
func (c *Coordinator) HealthCheck() HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	subscribed := 0
	for _, st := range c.subscriptions {
		if st.IsSubscribed {
			subscribed++
		}
	}
	return HealthStatus{
		Healthy:                  c.stop != nil,
		SessionManagerRegistered: c.sessionManagerRegistered,
		ActiveSessions:           len(c.activeSessions),
		ActiveSubscriptions:      subscribed,
		PendingRequests:          len(c.pending),
		RateLimit:                c.GetRateLimitStatus(),
	}
}

func (c *Coordinator) onSessionManagerRegistered(_ context.Context, _ any) error {
	c.mu.Lock()
	c.sessionManagerRegistered = true
	c.mu.Unlock()
	c.log.Info().Msg("session manager registered")
	return nil
}

func (c *Coordinator) onSessionStarted(_ context.Context, payload any) error {
	id := sessionIDOf(payload)
	if id == "" {
		return nil
	}
	c.mu.Lock()
	c.activeSessions[id] = true
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) onSessionStopped(_ context.Context, payload any) error {
	id := sessionIDOf(payload)
	if id == "" {
		return nil
	}
	c.mu.Lock()
	delete(c.activeSessions, id)
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) onCircuitBreakerChanged(_ context.Context, payload any) error {
	data, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	symbol, _ := data["symbol"].(string)
	if symbol == "" {
		return nil
	}
	state, _ := data["state"].(string)
	var failureCount int
	switch fc := data["failure_count"].(type) {
	case int:
		failureCount = fc
	case float64:
		failureCount = int(fc)
	}

	c.mu.Lock()
	c.circuitBreakers[symbol] = CircuitBreakerState{State: state, FailureCount: failureCount, UpdatedAt: time.Now()}
	c.mu.Unlock()
	c.log.Debug().Str("symbol", symbol).Str("state", state).Msg("circuit breaker state updated")
	return nil
}

func (c *Coordinator) onSubscriptionCheckResponse(_ context.Context, payload any) error {
	data, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	requestID, _ := data["request_id"].(string)
	if requestID == "" {
		return nil
	}

	c.mu.Lock()
	p, found := c.pending[requestID]
	c.mu.Unlock()
	if !found {
		return nil
	}

	allowed, _ := data["allowed"].(bool)
	decision := DecisionAllowed
	if !allowed {
		reason := strings.ToLower(fmt.Sprintf("%v", data["reason"]))
		switch {
		case strings.Contains(reason, "rate"):
			decision = DecisionDeniedRateLimit
		case strings.Contains(reason, "circuit"):
			decision = DecisionDeniedCircuitOpen
		case strings.Contains(reason, "quota"):
			decision = DecisionDeniedQuotaExceeded
		default:
			decision = DecisionDeniedNoSession
		}
	}

	select {
	case p.ch <- decision:
	default:
	}
	return nil
}

func (c *Coordinator) sweepStaleRequests() {
	defer c.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.purgeStaleRequests()
		}
	}
}

// purgeStaleRequests is a defensive backstop: RequestSubscription already
// removes its own pending entry via defer as soon as it returns, so this
// only catches entries left behind by a caller that never returns (e.g. a
// goroutine leak upstream).
func (c *Coordinator) purgeStaleRequests() {
	cutoff := time.Now().Add(-2 * c.decisionTimeout)
	c.mu.Lock()
	defer c.mu.Unlock()
	purged := 0
	for id, p := range c.pending {
		if p.createdAt.Before(cutoff) {
			delete(c.pending, id)
			purged++
		}
	}
	if purged > 0 {
		c.log.Debug().Int("count", purged).Msg("purged stale subscription requests")
	}
}

func sessionIDOf(payload any) string {
	switch p := payload.(type) {
	case *execution.Session:
		if p != nil {
			return p.ID
		}
	case map[string]any:
		if id, ok := p["session_id"].(string); ok {
			return id
		}
	}
	return ""
}
