package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"trading-core/internal/events"
	"trading-core/internal/logging"
	"trading-core/internal/order"
	"trading-core/pkg/tsdb"

	"github.com/rs/zerolog"
)

// PreStartFunc runs after a session is created but before its DataSource
// begins streaming. The Controller's Start wires this to strategy
// activation + indicator variant registration so every indicator a
// strategy depends on is already bound to the symbol before the first
// tick can arrive — closing the race where an early tick would otherwise
// find no subscriber and be silently dropped by the indicator engine.
type PreStartFunc func(ctx context.Context, sessionID string, symbols []string) error

// Controller owns at most one Session at a time and enforces the
// execution state machine, the symbol lease table, and the live/paper/
// backtest order.Manager swap around it.
type Controller struct {
	mu sync.Mutex

	bus      *events.Bus
	log      zerolog.Logger
	leases   *symbolLeases
	preStart PreStartFunc

	liveManager   order.Manager
	activeManager order.Manager

	session   *Session
	cancelRun context.CancelFunc
	stopOnce  *sync.Once
	store     *tsdb.Store
}

// NewController builds an execution controller. liveManager is the
// order.Manager bound for LIVE/PAPER sessions; BACKTEST sessions swap in a
// fresh order.BacktestManager for the session's lifetime and restore
// liveManager on stop.
func NewController(bus *events.Bus, liveManager order.Manager, store *tsdb.Store, preStart PreStartFunc) *Controller {
	return &Controller{
		bus:           bus,
		log:           logging.For("execution"),
		leases:        newSymbolLeases(),
		preStart:      preStart,
		liveManager:   liveManager,
		activeManager: liveManager,
		store:         store,
	}
}

// CurrentSession returns the active session, or nil.
func (c *Controller) CurrentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// ActiveManager returns the order.Manager bound for the current session —
// the order-queue drain in cmd/trading-core reads this for every queued
// order, so it always dispatches to whichever manager the Controller has
// live for the running session's mode.
func (c *Controller) ActiveManager() order.Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeManager
}

// CreateSession allocates a new session id, acquires its symbol leases,
// and leaves it in StateIdle awaiting Start.
func (c *Controller) CreateSession(mode Mode, symbols []string, params map[string]any) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		c.leases.purgeStale(c.session.ID)
	}

	id := fmt.Sprintf("exec_%s_%s", time.Now().UTC().Format("20060102_150405"), uuid.NewString()[:8])
	if err := c.leases.acquire(id, symbols); err != nil {
		return "", err
	}

	c.session = newSession(id, mode, symbols, params)
	c.log.Info().Str("session_id", id).Str("mode", string(mode)).Strs("symbols", symbols).Msg("execution session created")
	c.persistSession(c.session)
	return id, nil
}

// Start transitions the session to STARTING, runs the pre-start hook,
// swaps in a backtest order manager if applicable, then launches the
// processing loop against the given DataSource.
func (c *Controller) Start(ctx context.Context, sessionID string, ds DataSource) error {
	c.mu.Lock()
	if c.session == nil || c.session.ID != sessionID {
		c.mu.Unlock()
		return fmt.Errorf("execution: session %s not found", sessionID)
	}
	if !canTransition(c.session.Status, StateStarting) {
		c.mu.Unlock()
		return &InvalidTransitionError{From: c.session.Status, To: StateStarting}
	}
	c.session.Status = StateStarting
	c.session.StartTime = time.Now()
	session := c.session
	c.stopOnce = &sync.Once{}
	c.mu.Unlock()

	if c.preStart != nil {
		if err := c.preStart(ctx, session.ID, session.Symbols); err != nil {
			c.fail(session, err)
			return err
		}
	}

	c.mu.Lock()
	if session.Mode == ModeBacktest {
		c.activeManager = order.NewBacktestManager(initialBalanceOf(session.Parameters), feeRateOf(session.Parameters))
	} else {
		c.activeManager = c.liveManager
	}
	c.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelRun = cancel
	c.session.Status = StateRunning
	c.mu.Unlock()

	c.persistSession(session)
	go c.runLoop(runCtx, session, ds)
	return nil
}

func (c *Controller) runLoop(ctx context.Context, session *Session, ds DataSource) {
	defer c.cleanup(session, ds)

	if err := ds.StartStream(ctx); err != nil {
		c.fail(session, err)
		return
	}
	c.publish(events.EventSessionStarted, session)

	for {
		c.mu.Lock()
		status := c.session.Status
		c.mu.Unlock()

		switch status {
		case StateStopping, StateStopped, StateError:
			return
		case StatePaused:
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		batch, err := ds.NextBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Stop() cancelled the run context; this is a requested
				// shutdown, not a data-source failure.
				return
			}
			c.fail(session, err)
			return
		}
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return
			default:
			}
			continue
		}

		c.updateProgress(session, ds)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *Controller) updateProgress(session *Session, ds DataSource) {
	p := ds.Progress()
	if p == nil {
		return
	}
	c.mu.Lock()
	session.Progress = *p
	c.mu.Unlock()
	c.publish(events.EventExecutionProgress, map[string]any{"session_id": session.ID, "progress": *p})
}

func (c *Controller) fail(session *Session, err error) {
	c.mu.Lock()
	if c.session != nil && c.session.ID == session.ID {
		c.session.Status = StateError
		c.session.Error = err.Error()
		c.session.EndTime = time.Now()
	}
	c.mu.Unlock()
	c.log.Error().Err(err).Str("session_id", session.ID).Msg("execution session error")
	c.publish(events.EventSessionError, map[string]any{"session_id": session.ID, "error": err.Error()})
	c.persistSession(session)
}

func (c *Controller) cleanup(session *Session, ds DataSource) {
	_ = ds.StopStream(context.Background())
	c.leases.releaseAllFor(session.ID)

	c.mu.Lock()
	if c.session != nil && c.session.ID == session.ID && c.session.Status != StateError {
		c.session.Status = StateStopped
		c.session.EndTime = time.Now()
		c.session.Progress = 100.0
	}
	c.activeManager = c.liveManager
	c.mu.Unlock()

	c.publish(events.EventSessionCompleted, session)
	c.persistSession(session)
}

// Stop requests a graceful stop. Idempotent: a second concurrent call for
// the same session observes the first call's sync.Once and returns
// without publishing a duplicate completion event.
func (c *Controller) Stop(sessionID string) error {
	c.mu.Lock()
	if c.session == nil || c.session.ID != sessionID {
		c.mu.Unlock()
		return nil
	}
	if c.session.Status == StateStopped {
		c.mu.Unlock()
		return nil
	}
	if !canTransition(c.session.Status, StateStopping) {
		if c.session.Status == StateStarting || c.session.Status == StateIdle {
			c.session.Status = StateStopping
		}
	} else {
		c.session.Status = StateStopping
	}
	cancel := c.cancelRun
	once := c.stopOnce
	c.mu.Unlock()

	if once == nil {
		return nil
	}
	once.Do(func() {
		c.publish(events.EventSessionStopping, map[string]any{"session_id": sessionID})
		if cancel != nil {
			cancel()
		}
	})
	return nil
}

// Pause/Resume move a RUNNING session to PAUSED and back.
func (c *Controller) Pause(sessionID string) error {
	return c.transitionCurrent(sessionID, StatePaused, events.Event("execution.session_paused"))
}

func (c *Controller) Resume(sessionID string) error {
	return c.transitionCurrent(sessionID, StateRunning, events.Event("execution.session_resumed"))
}

func (c *Controller) transitionCurrent(sessionID string, to State, evt events.Event) error {
	c.mu.Lock()
	if c.session == nil || c.session.ID != sessionID {
		c.mu.Unlock()
		return fmt.Errorf("execution: session %s not found", sessionID)
	}
	if !canTransition(c.session.Status, to) {
		from := c.session.Status
		c.mu.Unlock()
		return &InvalidTransitionError{From: from, To: to}
	}
	c.session.Status = to
	session := c.session
	c.mu.Unlock()
	c.publish(evt, session)
	return nil
}

func (c *Controller) publish(topic events.Event, payload any) {
	if c.bus != nil {
		c.bus.Publish(topic, payload)
	}
}

// persistSession upserts the session's current state for operator
// dashboards and post-mortem queries; best-effort, never blocks the state
// machine on a store error.
func (c *Controller) persistSession(session *Session) {
	if c.store == nil || session == nil {
		return
	}
	symbols, _ := json.Marshal(session.Symbols)
	params, _ := json.Marshal(session.Parameters)
	metrics, _ := json.Marshal(session.Metrics)
	row := tsdb.SessionRow{
		SessionID:  session.ID,
		Mode:       string(session.Mode),
		Symbols:    symbols,
		Status:     string(session.Status),
		Parameters: params,
		Progress:   session.Progress,
		Metrics:    metrics,
	}
	if !session.StartTime.IsZero() {
		row.StartTime = &session.StartTime
	}
	if !session.EndTime.IsZero() {
		row.EndTime = &session.EndTime
	}
	if session.Error != "" {
		row.ErrorMessage = &session.Error
	}
	if err := c.store.UpsertSession(context.Background(), row); err != nil {
		c.log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to persist session row")
	}
}

func initialBalanceOf(params map[string]any) float64 {
	if v, ok := params["initial_balance"].(float64); ok {
		return v
	}
	return 10000.0
}

func feeRateOf(params map[string]any) float64 {
	if v, ok := params["fee_rate"].(float64); ok {
		return v
	}
	return 0.0004
}
