package coordinator

import "time"

// SubscriptionDecision is the coordinator's answer to a subscription
// request, mirroring the reasons a session manager can deny one.
type SubscriptionDecision string

const (
	DecisionAllowed             SubscriptionDecision = "allowed"
	DecisionDeniedRateLimit     SubscriptionDecision = "denied_rate_limit"
	DecisionDeniedCircuitOpen   SubscriptionDecision = "denied_circuit_open"
	DecisionDeniedQuotaExceeded SubscriptionDecision = "denied_quota_exceeded"
	DecisionDeniedNoSession     SubscriptionDecision = "denied_no_session"
)

type subscriptionState struct {
	Symbol            string
	IsSubscribed      bool
	LastRequestTime   time.Time
	FailureCount      int
	LastFailureReason string
}

// CircuitBreakerState is the last state reported for a symbol over
// circuit_breaker.state_changed; State is "closed" until a breaker event
// says otherwise.
type CircuitBreakerState struct {
	State        string
	FailureCount int
	UpdatedAt    time.Time
}

// RateLimitStatus reports the coordinator's local admission-control
// budget. Token-bucket accounting reports tokens available rather than a
// fixed-window count, since that's what golang.org/x/time/rate tracks.
type RateLimitStatus struct {
	TokensAvailable float64
	Burst           int
}

// HealthStatus is the result of Coordinator.HealthCheck.
type HealthStatus struct {
	Healthy                  bool
	SessionManagerRegistered bool
	ActiveSessions           int
	ActiveSubscriptions      int
	PendingRequests          int
	RateLimit                RateLimitStatus
}

type pendingRequest struct {
	ch        chan SubscriptionDecision
	createdAt time.Time
}
