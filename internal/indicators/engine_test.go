package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-core/internal/events"
)

func TestWindowNormalizeCorrectsInverted(t *testing.T) {
	w := Window{T1: 5, T2: 30}
	norm, corrected := w.Normalize()
	assert.True(t, corrected)
	assert.Equal(t, 30.0, norm.T1)
	assert.Equal(t, 5.0, norm.T2)
}

func TestWindowNormalizeLeavesValidWindowAlone(t *testing.T) {
	w := Window{T1: 60, T2: 10}
	norm, corrected := w.Normalize()
	assert.False(t, corrected)
	assert.Equal(t, 60.0, norm.T1)
	assert.Equal(t, 10.0, norm.T2)
}

func TestVariantRegistryCreateAndShare(t *testing.T) {
	bts := NewBaseTypeRegistry()
	vr := NewVariantRegistry(bts)

	v1, err := vr.CreateVariant("TWPA", VariantPrice, map[string]float64{"t1": 60, "t2": 0}, "tester")
	require.NoError(t, err)
	v2, err := vr.CreateVariant("TWPA", VariantPrice, map[string]float64{"t1": 60, "t2": 0}, "tester")
	require.NoError(t, err)

	assert.NotEqual(t, v1.ID, v2.ID)
	assert.True(t, vr.SharesCalculation(v1))
	assert.True(t, vr.SharesCalculation(v2))
}

func TestVariantRegistryRejectsUnknownBaseType(t *testing.T) {
	bts := NewBaseTypeRegistry()
	vr := NewVariantRegistry(bts)
	_, err := vr.CreateVariant("NOT_A_REAL_TYPE", VariantGeneral, nil, "tester")
	assert.ErrorIs(t, err, ErrUnknownIndicator)
}

func TestVariantRegistryRejectsUnknownParameter(t *testing.T) {
	bts := NewBaseTypeRegistry()
	vr := NewVariantRegistry(bts)
	_, err := vr.CreateVariant("TWPA", VariantGeneral, map[string]float64{"bogus": 1}, "tester")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestVariantRegistryDeleteVariant(t *testing.T) {
	bts := NewBaseTypeRegistry()
	vr := NewVariantRegistry(bts)
	v, err := vr.CreateVariant("VWAP", VariantGeneral, nil, "tester")
	require.NoError(t, err)

	require.NoError(t, vr.DeleteVariant(v.ID))
	_, err = vr.GetVariant(v.ID)
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestEngineIgnoresUnboundSymbol(t *testing.T) {
	bus := events.NewBus()
	eng := NewEngine(bus, nil)
	defer eng.Shutdown()

	now := time.Now()
	bus.Publish(events.EventPriceTick, PriceUpdatePayload{Tick: Tick{Symbol: "BTCUSDT", Timestamp: now, Price: 100}})
	time.Sleep(20 * time.Millisecond)

	// no panics, no indicators registered for BTCUSDT, nothing to assert
	// beyond survival — the engine must not error on an unbound symbol.
}

func TestEngineAddIndicatorToSessionAndEventDrivenCompute(t *testing.T) {
	bus := events.NewBus()
	eng := NewEngine(bus, nil)
	defer eng.Shutdown()

	v, err := eng.Variants().CreateVariant("TWPA", VariantPrice, map[string]float64{"t1": 60, "t2": 0}, "tester")
	require.NoError(t, err)

	_, err = eng.AddIndicatorToSession("sess-1", "BTCUSDT", v.ID, "1m", nil)
	require.NoError(t, err)

	ch, unsub := bus.SubscribeChan(events.EventIndicatorUpdated, 4)
	defer unsub()

	now := time.Now()
	bus.Publish(events.EventPriceTick, PriceUpdatePayload{Tick: Tick{Symbol: "BTCUSDT", Timestamp: now, Price: 100, Volume: 1}})

	select {
	case payload := <-ch:
		upd, ok := payload.(IndicatorUpdatePayload)
		require.True(t, ok)
		assert.Equal(t, "BTCUSDT", upd.Symbol)
		assert.True(t, upd.Value.Valid)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for indicator.updated")
	}
}

func TestEngineRemoveSessionIndicators(t *testing.T) {
	eng := NewEngine(nil, nil)
	v, err := eng.Variants().CreateVariant("VWAP", VariantGeneral, nil, "tester")
	require.NoError(t, err)

	_, err = eng.AddIndicatorToSession("sess-1", "ETHUSDT", v.ID, "1m", nil)
	require.NoError(t, err)

	eng.mu.RLock()
	n := len(eng.indicatorsBySym["ETHUSDT"])
	eng.mu.RUnlock()
	assert.Equal(t, 1, n)

	eng.RemoveSessionIndicators("sess-1")

	eng.mu.RLock()
	_, exists := eng.indicatorsBySym["ETHUSDT"]
	eng.mu.RUnlock()
	assert.False(t, exists)
}

func TestTWPASingleTick(t *testing.T) {
	buf := NewSymbolBuffer("BTCUSDT", 100)
	now := time.Now()
	buf.PushTick(Tick{Symbol: "BTCUSDT", Timestamp: now, Price: 50})

	v := twpa(buf, now.Add(time.Second), map[string]float64{"t1": 60, "t2": 0})
	require.True(t, v.Valid)
	assert.Equal(t, 50.0, v.Value)
}

func TestVWAPWeightsByVolume(t *testing.T) {
	buf := NewSymbolBuffer("BTCUSDT", 100)
	now := time.Now()
	buf.PushTick(Tick{Symbol: "BTCUSDT", Timestamp: now.Add(-2 * time.Second), Price: 100, Volume: 1})
	buf.PushTick(Tick{Symbol: "BTCUSDT", Timestamp: now.Add(-1 * time.Second), Price: 200, Volume: 3})

	v := vwap(buf, now, map[string]float64{"t1": 60, "t2": 0})
	require.True(t, v.Valid)
	assert.InDelta(t, 175.0, v.Value, 0.01)
}

func TestBidAskImbalanceNullWithoutOrderbook(t *testing.T) {
	buf := NewSymbolBuffer("BTCUSDT", 100)
	v := bidAskImbalance(buf, time.Now(), nil)
	assert.False(t, v.Valid)
}

func TestBidAskImbalanceComputed(t *testing.T) {
	buf := NewSymbolBuffer("BTCUSDT", 100)
	buf.PushOrderbook(OrderbookSnapshot{
		Symbol:    "BTCUSDT",
		Timestamp: time.Now(),
		Bids:      []OrderbookLevel{{Price: 99, Qty: 10}},
		Asks:      []OrderbookLevel{{Price: 101, Qty: 5}},
	})
	v := bidAskImbalance(buf, time.Now(), nil)
	require.True(t, v.Valid)
	assert.InDelta(t, 5.0/15.0, v.Value, 1e-9)
}

func TestBaseTypeValidateParamsAppliesDefault(t *testing.T) {
	bts := NewBaseTypeRegistry()
	bt, err := bts.Get("TWPA")
	require.NoError(t, err)
	resolved, err := bt.ValidateParams(map[string]float64{})
	require.NoError(t, err)
	assert.Equal(t, 60.0, resolved["t1"])
	assert.Equal(t, 0.0, resolved["t2"])
}
