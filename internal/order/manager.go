package order

import "context"

// Manager is the order-submission surface the Strategy Evaluator and the
// Execution Controller depend on. LiveManager, PaperManager and
// BacktestManager all satisfy it so the Execution Controller can hot-swap
// the implementation bound to a running session without touching callers.
type Manager interface {
	Submit(ctx context.Context, o Order) error
}

// LiveManager submits orders to the configured exchange gateway and
// persists them via Executor.
type LiveManager struct {
	exec *Executor
}

func NewLiveManager(exec *Executor) *LiveManager {
	return &LiveManager{exec: exec}
}

func (m *LiveManager) Submit(ctx context.Context, o Order) error {
	return m.exec.Handle(ctx, o)
}

// PaperManager submits orders through the dry-run simulator: persisted to
// DB and published on the bus like a live fill, but never sent to an
// external gateway.
type PaperManager struct {
	dryRun *DryRunExecutor
}

func NewPaperManager(dryRun *DryRunExecutor) *PaperManager {
	return &PaperManager{dryRun: dryRun}
}

func (m *PaperManager) Submit(ctx context.Context, o Order) error {
	return m.dryRun.Execute(ctx, o)
}

// BacktestManager fills orders purely in memory against the mock
// executor's book, with no DB writes and no bus events, for high-throughput
// historical replay.
type BacktestManager struct {
	mock    *MockExecutor
	feeRate float64
}

func NewBacktestManager(initialBalance, feeRate float64) *BacktestManager {
	return &BacktestManager{mock: NewMockExecutor(initialBalance), feeRate: feeRate}
}

func (m *BacktestManager) Submit(ctx context.Context, o Order) error {
	return m.mock.Execute(o, m.feeRate)
}

// PrintState exposes the backtest book for post-run inspection/reporting.
func (m *BacktestManager) PrintState() {
	m.mock.printState()
}
