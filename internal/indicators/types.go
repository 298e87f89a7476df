package indicators

import (
	"fmt"
	"time"
)

// VariantType classifies what an indicator variant is used for by the
// strategy evaluator; purely informational at the engine level.
type VariantType string

const (
	VariantGeneral    VariantType = "general"
	VariantRisk       VariantType = "risk"
	VariantPrice      VariantType = "price"
	VariantStopLoss   VariantType = "stop_loss"
	VariantTakeProfit VariantType = "take_profit"
	VariantCloseOrder VariantType = "close_order"
)

// Tick is one normalized trade/price update for a symbol.
type Tick struct {
	Symbol      string
	Timestamp   time.Time
	Price       float64
	Volume      float64
	QuoteVolume float64
}

// OrderbookLevel is one price/qty rung of an order book side.
type OrderbookLevel struct {
	Price float64
	Qty   float64
}

// OrderbookSnapshot is a normalized order book update for a symbol. At
// least the top 3 levels per side are retained by the ring buffer.
type OrderbookSnapshot struct {
	Symbol    string
	Timestamp time.Time
	Bids      []OrderbookLevel
	Asks      []OrderbookLevel
}

// Window is a {t1, t2} seconds-back-from-now window. t1 must be > t2 >= 0;
// Normalize enforces that and reports whether it had to correct the input.
type Window struct {
	T1 float64
	T2 float64
}

// Normalize applies t1' = max(t1,t2), t2' = min(t1,t2) and reports whether
// correction was necessary.
func (w Window) Normalize() (norm Window, corrected bool) {
	t1, t2 := w.T1, w.T2
	if t1 < 0 {
		t1 = 0
	}
	if t2 < 0 {
		t2 = 0
	}
	hi, lo := t1, t2
	if lo > hi {
		hi, lo = lo, hi
	}
	corrected = hi != w.T1 || lo != w.T2
	return Window{T1: hi, T2: lo}, corrected
}

// Bounds returns the half-open interval (now-t1, now-t2] for the window,
// using an already-normalized window.
func (w Window) Bounds(now time.Time) (start, end time.Time) {
	start = now.Add(-time.Duration(w.T1 * float64(time.Second)))
	end = now.Add(-time.Duration(w.T2 * float64(time.Second)))
	return start, end
}

// IndicatorValue is one computed point. Value holds either a scalar
// (float64) or a structured blob (map[string]float64) depending on the
// base type. Null values (Valid=false) are permitted and must never be
// persisted.
type IndicatorValue struct {
	Timestamp  time.Time
	Value      float64
	Blob       map[string]float64
	Valid      bool
	Confidence float64
	Metadata   map[string]string
}

// NullValue is the canonical "no data yet" result for a computation.
func NullValue() IndicatorValue {
	return IndicatorValue{Valid: false}
}

// ScalarValue wraps a computed float as a valid indicator value.
func ScalarValue(ts time.Time, v float64) IndicatorValue {
	return IndicatorValue{Timestamp: ts, Value: v, Valid: true, Confidence: 1}
}

// ParamSchema describes one accepted parameter of a base type.
type ParamSchema struct {
	Name     string
	Required bool
	Default  float64
}

// BaseType is a registered indicator calculation: its name, parameter
// schema, category, and the function that computes a value given a
// symbol's buffered history and the resolved parameters.
type BaseType struct {
	Name     string
	Category string
	Params   []ParamSchema
	Compute  ComputeFunc
}

// ComputeFunc computes one indicator value from the buffered ticks/book
// snapshots for a symbol as of "now", given resolved parameters.
type ComputeFunc func(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue

// ValidateParams checks supplied params against schema, filling in
// defaults for anything omitted.
func (bt BaseType) ValidateParams(supplied map[string]float64) (map[string]float64, error) {
	resolved := make(map[string]float64, len(bt.Params))
	for _, p := range bt.Params {
		if v, ok := supplied[p.Name]; ok {
			resolved[p.Name] = v
			continue
		}
		if p.Required {
			return nil, fmt.Errorf("%w: missing required parameter %q for %s", ErrInvalidParameter, p.Name, bt.Name)
		}
		resolved[p.Name] = p.Default
	}
	for k := range supplied {
		if _, known := resolved[k]; !known {
			found := false
			for _, p := range bt.Params {
				if p.Name == k {
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("%w: unknown parameter %q for %s", ErrInvalidParameter, k, bt.Name)
			}
		}
	}
	return resolved, nil
}

// Variant is an immutable, registered (base_type, parameters) combination.
type Variant struct {
	ID         string
	BaseType   string
	Type       VariantType
	Parameters map[string]float64
	CreatedBy  string
	CreatedAt  time.Time
}

// shareKey identifies calculation-sharing eligibility: two variants with
// the same base type and parameters may share a runtime calc instance.
func (v Variant) shareKey() string {
	return fmt.Sprintf("%s:%v", v.BaseType, sortedParamString(v.Parameters))
}

func sortedParamString(params map[string]float64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	// simple insertion sort; parameter maps are always small.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	s := ""
	for _, k := range keys {
		s += fmt.Sprintf("%s=%v;", k, params[k])
	}
	return s
}
