package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-core/internal/events"
	"trading-core/internal/order"
)

type stubDataSource struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	batches  [][]DataPoint
	progress float64
}

func (s *stubDataSource) StartStream(ctx context.Context) error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *stubDataSource) NextBatch(ctx context.Context) ([]DataPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

func (s *stubDataSource) StopStream(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

func (s *stubDataSource) Progress() *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.progress
	return &p
}

func TestStateTransitionsEnforced(t *testing.T) {
	assert.True(t, canTransition(StateIdle, StateStarting))
	assert.False(t, canTransition(StateIdle, StateRunning))
	assert.True(t, canTransition(StateStopping, StateStarting))
	assert.False(t, canTransition(StateStopped, StateRunning))
}

func TestSymbolLeaseConflict(t *testing.T) {
	leases := newSymbolLeases()
	require.NoError(t, leases.acquire("session-a", []string{"BTCUSDT"}))

	err := leases.acquire("session-b", []string{"BTCUSDT", "ETHUSDT"})
	require.Error(t, err)
	var conflict *ErrSymbolConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"BTCUSDT"}, conflict.Symbols)

	leases.release("session-a", []string{"BTCUSDT"})
	require.NoError(t, leases.acquire("session-b", []string{"BTCUSDT", "ETHUSDT"}))
}

func TestSymbolLeasePurgeStale(t *testing.T) {
	leases := newSymbolLeases()
	require.NoError(t, leases.acquire("old-session", []string{"BTCUSDT"}))
	leases.purgeStale("new-session")
	require.NoError(t, leases.acquire("new-session", []string{"BTCUSDT"}))
}

func TestCreateSessionAcquiresLeasesAndRejectsConflict(t *testing.T) {
	bus := events.NewBus()
	ctrl := NewController(bus, order.NewBacktestManager(1000, 0), nil, nil)

	id, err := ctrl.CreateSession(ModeBacktest, []string{"BTCUSDT"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = ctrl.CreateSession(ModeBacktest, []string{"BTCUSDT"}, nil)
	require.Error(t, err)
	var conflict *ErrSymbolConflict
	require.ErrorAs(t, err, &conflict)
}

func TestStopIsIdempotent(t *testing.T) {
	bus := events.NewBus()
	ctrl := NewController(bus, order.NewBacktestManager(1000, 0), nil, nil)

	id, err := ctrl.CreateSession(ModeBacktest, []string{"BTCUSDT"}, nil)
	require.NoError(t, err)

	ds := &stubDataSource{}
	require.NoError(t, ctrl.Start(context.Background(), id, ds))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ctrl.Stop(id)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		s := ctrl.CurrentSession()
		return s != nil && s.Status == StateStopped
	}, 2*time.Second, 10*time.Millisecond)
}

func TestActiveManagerSwapsForBacktest(t *testing.T) {
	bus := events.NewBus()
	live := order.NewBacktestManager(500, 0)
	ctrl := NewController(bus, live, nil, nil)

	id, err := ctrl.CreateSession(ModeBacktest, []string{"BTCUSDT"}, nil)
	require.NoError(t, err)

	ds := &stubDataSource{}
	require.NoError(t, ctrl.Start(context.Background(), id, ds))

	require.Eventually(t, func() bool {
		return ctrl.ActiveManager() != nil
	}, time.Second, 10*time.Millisecond)

	_ = ctrl.Stop(id)
	require.Eventually(t, func() bool {
		s := ctrl.CurrentSession()
		return s != nil && s.Status == StateStopped
	}, 2*time.Second, 10*time.Millisecond)

	restored, ok := ctrl.ActiveManager().(*order.BacktestManager)
	require.True(t, ok)
	assert.Same(t, live, restored)
}
