package indicators

import "sync"

// windowParams is the parameter schema shared by every windowed base
// type: t1/t2 seconds-back-from-now.
var windowParams = []ParamSchema{
	{Name: "t1", Required: false, Default: 60},
	{Name: "t2", Required: false, Default: 0},
}

// BaseTypeRegistry holds the calculation functions available to variants.
// Seeded at construction with the taxonomy from the indicator engine
// design and left open for callers to register more via Register.
type BaseTypeRegistry struct {
	mu    sync.RWMutex
	types map[string]BaseType
}

// NewBaseTypeRegistry builds a registry pre-populated with the standard
// taxonomy.
func NewBaseTypeRegistry() *BaseTypeRegistry {
	r := &BaseTypeRegistry{types: make(map[string]BaseType)}
	for _, bt := range defaultBaseTypes() {
		r.types[bt.Name] = bt
	}
	return r
}

// Register adds or replaces a base type definition.
func (r *BaseTypeRegistry) Register(bt BaseType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[bt.Name] = bt
}

// Get looks up a base type by name.
func (r *BaseTypeRegistry) Get(name string) (BaseType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bt, ok := r.types[name]
	if !ok {
		return BaseType{}, ErrUnknownIndicator
	}
	return bt, nil
}

// Names lists every registered base type name.
func (r *BaseTypeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	return names
}

func defaultBaseTypes() []BaseType {
	return []BaseType{
		{Name: "TWPA", Category: "price_aggregate", Params: windowParams, Compute: twpa},
		{Name: "VWAP", Category: "price_aggregate", Params: windowParams, Compute: vwap},
		{Name: "MAX_PRICE", Category: "price_aggregate", Params: windowParams, Compute: maxPrice},
		{Name: "MIN_PRICE", Category: "price_aggregate", Params: windowParams, Compute: minPrice},
		{Name: "VELOCITY", Category: "velocity", Params: windowParams, Compute: velocity},
		{Name: "PRICE_VELOCITY", Category: "velocity", Params: windowParams, Compute: priceVelocity},
		{Name: "VELOCITY_CASCADE", Category: "velocity", Params: windowParams, Compute: velocityCascade},
		{Name: "VOLUME_SURGE", Category: "volume", Params: windowParams, Compute: volumeSurge},
		{Name: "VOLUME_ACCELERATION", Category: "volume", Params: windowParams, Compute: volumeAcceleration},
		{Name: "BID_ASK_IMBALANCE", Category: "orderbook", Params: windowParams, Compute: bidAskImbalance},
		{Name: "MID_PRICE_VELOCITY", Category: "orderbook", Params: windowParams, Compute: midPriceVelocity},
		{Name: "TOTAL_LIQUIDITY", Category: "orderbook", Params: windowParams, Compute: totalLiquidity},
		{Name: "MOMENTUM_REVERSAL_INDEX", Category: "composite_risk", Params: windowParams, Compute: momentumReversalIndex},
		{Name: "DUMP_EXHAUSTION_SCORE", Category: "composite_risk", Params: windowParams, Compute: dumpExhaustionScore},
		{Name: "LIQUIDITY_DRAIN_INDEX", Category: "composite_risk", Params: windowParams, Compute: liquidityDrainIndex},
		{
			Name:     "SMA_SHORT",
			Category: "legacy_preset",
			Params:   append(append([]ParamSchema{}, windowParams...), ParamSchema{Name: "period", Required: false, Default: 9}),
			Compute:  smaBaseType,
		},
		{
			Name:     "SMA_LONG",
			Category: "legacy_preset",
			Params:   append(append([]ParamSchema{}, windowParams...), ParamSchema{Name: "period", Required: false, Default: 21}),
			Compute:  smaBaseType,
		},
		{
			Name:     "RSI",
			Category: "legacy_preset",
			Params:   append(append([]ParamSchema{}, windowParams...), ParamSchema{Name: "period", Required: false, Default: 14}),
			Compute:  rsiBaseType,
		},
	}
}
