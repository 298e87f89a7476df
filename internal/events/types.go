package events

// Event enumerates the canonical topics inside the trading core.
//
// New topics should be added here, never constructed ad hoc, so
// ListTopics() has a single source of truth to reason about.
type Event string

const (
	// Market data (normalised exchange adapter output).
	EventPriceTick            Event = "market.price_update"
	EventOrderbookUpdate      Event = "market.orderbook_update"
	EventPriceBatchUpdate     Event = "market.price_batch_update"
	EventOrderbookBatchUpdate Event = "market.orderbook_batch_update"

	// Streaming Indicator Engine.
	EventIndicatorUpdated Event = "indicator.updated"

	// Strategy Evaluator.
	EventSignalGenerated Event = "signal_generated"

	// Order Manager.
	EventOrderCreated         Event = "order_created"
	EventOrderSubmitted       Event = "order.submitted"
	EventOrderAccepted        Event = "order.accepted"
	EventOrderRejected        Event = "order.rejected"
	EventOrderFilled          Event = "order_filled"
	EventOrderPartiallyFilled Event = "order.partially_filled"
	EventOrderCancelled       Event = "order_cancelled"
	EventOrderUpdate          Event = "order_update"

	// Position Sync.
	EventPositionOpened Event = "position_opened"
	EventPositionUpdate Event = "position_updated"
	EventPositionClosed Event = "position_closed"

	// Risk.
	EventRiskAlert Event = "risk_alert"

	// Execution Controller lifecycle.
	EventSessionStarting   Event = "execution.session_starting"
	EventSessionStarted    Event = "execution.session_started"
	EventSessionStopping   Event = "execution.session_stopping"
	EventSessionCompleted  Event = "execution.session_completed"
	EventSessionError      Event = "execution.session_error"
	EventExecutionProgress Event = "execution.progress_update"
	EventExecutionMetrics  Event = "execution.metrics_update"

	// Trading Coordinator request/response correlation.
	EventSubscriptionCheckRequest  Event = "subscription.check_request"
	EventSubscriptionCheckResponse Event = "subscription.check_response"
	EventSubscriptionSuccess       Event = "subscription.success"
	EventSubscriptionFailure       Event = "subscription.failure"
	EventSubscriptionUnsubscribed  Event = "subscription.unsubscribed"
	EventSessionManagerRegistered  Event = "session.manager_registered"

	// Circuit breaker.
	EventCircuitBreakerStateChanged Event = "circuit_breaker.state_changed"

	// Legacy teacher names kept as aliases so existing call sites compile
	// unchanged against the canonical topics above.
	EventStrategySignal Event = EventSignalGenerated
	EventPositionChange Event = EventPositionUpdate
)

// AllTopics lists every canonical topic; used by tests and by anything
// that wants to pre-declare subscriptions.
func AllTopics() []Event {
	return []Event{
		EventPriceTick, EventOrderbookUpdate, EventPriceBatchUpdate, EventOrderbookBatchUpdate,
		EventIndicatorUpdated,
		EventSignalGenerated,
		EventOrderCreated, EventOrderSubmitted, EventOrderAccepted, EventOrderRejected,
		EventOrderFilled, EventOrderPartiallyFilled, EventOrderCancelled, EventOrderUpdate,
		EventPositionOpened, EventPositionUpdate, EventPositionClosed,
		EventRiskAlert,
		EventSessionStarting, EventSessionStarted, EventSessionStopping, EventSessionCompleted, EventSessionError,
		EventExecutionProgress, EventExecutionMetrics,
		EventSubscriptionCheckRequest, EventSubscriptionCheckResponse,
		EventSubscriptionSuccess, EventSubscriptionFailure, EventSubscriptionUnsubscribed,
		EventSessionManagerRegistered,
		EventCircuitBreakerStateChanged,
	}
}
