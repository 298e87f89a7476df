package indicators

import (
	"math"
	"time"

	"trading-core/internal/logging"
)

// windowOf resolves the {t1,t2} parameters from a params map, defaulting
// t2 to 0 (now) when omitted, and returns the normalized window bounds.
// An auto-corrected window is logged as a warning.
func windowOf(params map[string]float64, now time.Time) (start, end time.Time, corrected bool) {
	w := Window{T1: params["t1"], T2: params["t2"]}
	norm, corrected := w.Normalize()
	if corrected {
		logging.For("sie").Warn().Float64("t1", w.T1).Float64("t2", w.T2).
			Float64("t1_corrected", norm.T1).Float64("t2_corrected", norm.T2).Msg("window auto-corrected")
	}
	start, end = norm.Bounds(now)
	return start, end, corrected
}

// twpa computes the time-weighted price average over the contained
// ticks: segments by inter-tick gaps, value = sum(price_i * dt_i) / sum(dt_i).
func twpa(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	start, end, _ := windowOf(params, now)
	ticks := buf.TicksInRange(start, end)
	if len(ticks) == 0 {
		return NullValue()
	}
	if len(ticks) == 1 {
		return ScalarValue(ticks[0].Timestamp, ticks[0].Price)
	}

	var weightedSum, totalDt float64
	for i := 1; i < len(ticks); i++ {
		dt := ticks[i].Timestamp.Sub(ticks[i-1].Timestamp).Seconds()
		if dt <= 0 {
			continue
		}
		weightedSum += ticks[i-1].Price * dt
		totalDt += dt
	}
	if totalDt == 0 {
		return ScalarValue(ticks[len(ticks)-1].Timestamp, ticks[len(ticks)-1].Price)
	}
	return ScalarValue(ticks[len(ticks)-1].Timestamp, weightedSum/totalDt)
}

// vwap computes the volume-weighted average price over the window.
func vwap(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	start, end, _ := windowOf(params, now)
	ticks := buf.TicksInRange(start, end)
	if len(ticks) == 0 {
		return NullValue()
	}

	var priceVol, vol float64
	for _, t := range ticks {
		priceVol += t.Price * t.Volume
		vol += t.Volume
	}
	if vol == 0 {
		return NullValue()
	}
	return ScalarValue(ticks[len(ticks)-1].Timestamp, priceVol/vol)
}

func maxPrice(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	start, end, _ := windowOf(params, now)
	ticks := buf.TicksInRange(start, end)
	if len(ticks) == 0 {
		return NullValue()
	}
	max := ticks[0].Price
	for _, t := range ticks {
		if t.Price > max {
			max = t.Price
		}
	}
	return ScalarValue(ticks[len(ticks)-1].Timestamp, max)
}

func minPrice(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	start, end, _ := windowOf(params, now)
	ticks := buf.TicksInRange(start, end)
	if len(ticks) == 0 {
		return NullValue()
	}
	min := ticks[0].Price
	for _, t := range ticks {
		if t.Price < min {
			min = t.Price
		}
	}
	return ScalarValue(ticks[len(ticks)-1].Timestamp, min)
}

// velocity is the difference between the current window's mean tick price
// and that of a baseline window shifted earlier by the same span, divided by the
// elapsed time between window midpoints.
func velocity(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	curStart, curEnd, _ := windowOf(params, now)
	span := curEnd.Sub(curStart)
	baseEnd := curStart
	baseStart := baseEnd.Add(-span)

	curTicks := buf.TicksInRange(curStart, curEnd)
	baseTicks := buf.TicksInRange(baseStart, baseEnd)
	if len(curTicks) == 0 || len(baseTicks) == 0 {
		return NullValue()
	}

	curAvg := avgPrice(curTicks)
	baseAvg := avgPrice(baseTicks)
	dt := curEnd.Sub(baseStart).Seconds() / 2
	if dt <= 0 {
		return NullValue()
	}
	return ScalarValue(now, (curAvg-baseAvg)/dt)
}

// priceVelocity is an alias algorithm over raw first/last price in the
// window rather than averages, matching the "instantaneous" variant.
func priceVelocity(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	start, end, _ := windowOf(params, now)
	ticks := buf.TicksInRange(start, end)
	if len(ticks) < 2 {
		return NullValue()
	}
	first, last := ticks[0], ticks[len(ticks)-1]
	dt := last.Timestamp.Sub(first.Timestamp).Seconds()
	if dt <= 0 {
		return NullValue()
	}
	return ScalarValue(last.Timestamp, (last.Price-first.Price)/dt)
}

// velocityCascade reports three velocities (short/medium/long windows
// derived from t1) as a blob, useful for momentum-cascade strategies.
func velocityCascade(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	base := params["t1"]
	if base <= 0 {
		base = 60
	}
	short := velocity(buf, now, map[string]float64{"t1": base / 3, "t2": 0})
	medium := velocity(buf, now, map[string]float64{"t1": base, "t2": 0})
	long := velocity(buf, now, map[string]float64{"t1": base * 3, "t2": 0})
	if !short.Valid && !medium.Valid && !long.Valid {
		return NullValue()
	}
	return IndicatorValue{
		Timestamp: now,
		Blob: map[string]float64{
			"short":  short.Value,
			"medium": medium.Value,
			"long":   long.Value,
		},
		Valid:      true,
		Confidence: 1,
	}
}

// volumeSurge is the ratio of the current window's summed volume to a
// baseline window's summed volume, immediately preceding it.
func volumeSurge(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	curStart, curEnd, _ := windowOf(params, now)
	span := curEnd.Sub(curStart)
	baseEnd := curStart
	baseStart := baseEnd.Add(-span)

	curVol := sumVolume(buf.TicksInRange(curStart, curEnd))
	baseVol := sumVolume(buf.TicksInRange(baseStart, baseEnd))
	if baseVol == 0 {
		return NullValue()
	}
	return ScalarValue(now, curVol/baseVol)
}

// volumeAcceleration is the rate of change of volumeSurge between two
// consecutive evaluations one window-span apart.
func volumeAcceleration(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	curStart, curEnd, _ := windowOf(params, now)
	span := curEnd.Sub(curStart)

	cur := volumeSurge(buf, now, params)
	prev := volumeSurge(buf, now.Add(-span), params)
	if !cur.Valid || !prev.Valid {
		return NullValue()
	}
	return ScalarValue(now, cur.Value-prev.Value)
}

func bidAskImbalance(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	ob, ok := buf.LatestOrderbook()
	if !ok {
		return NullValue()
	}
	bidQty := sumQty(ob.Bids)
	askQty := sumQty(ob.Asks)
	total := bidQty + askQty
	if total == 0 {
		return NullValue()
	}
	return ScalarValue(ob.Timestamp, (bidQty-askQty)/total)
}

func midPriceVelocity(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	start, end, _ := windowOf(params, now)
	books := buf.OrderbooksInRange(start, end)
	if len(books) < 2 {
		return NullValue()
	}
	first := midPrice(books[0])
	last := midPrice(books[len(books)-1])
	if math.IsNaN(first) || math.IsNaN(last) {
		return NullValue()
	}
	dt := books[len(books)-1].Timestamp.Sub(books[0].Timestamp).Seconds()
	if dt <= 0 {
		return NullValue()
	}
	return ScalarValue(books[len(books)-1].Timestamp, (last-first)/dt)
}

func totalLiquidity(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	ob, ok := buf.LatestOrderbook()
	if !ok {
		return NullValue()
	}
	return ScalarValue(ob.Timestamp, sumQty(ob.Bids)+sumQty(ob.Asks))
}

// momentumReversalIndex is a composite risk indicator: the product of a
// normalized velocity reversal signal and an imbalance flip, bounded to
// [-1, 1]. Low-precedent composite; documented as design-level in the
// taxonomy rather than a textbook formula.
func momentumReversalIndex(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	vel := velocity(buf, now, params)
	imb := bidAskImbalance(buf, now, params)
	if !vel.Valid || !imb.Valid {
		return NullValue()
	}
	score := clamp(-sign(vel.Value)*imb.Value, -1, 1)
	return ScalarValue(now, score)
}

// dumpExhaustionScore combines volume deceleration with a negative
// velocity to estimate whether a sell-off is running out of volume.
func dumpExhaustionScore(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	vel := velocity(buf, now, params)
	volAccel := volumeAcceleration(buf, now, params)
	if !vel.Valid || !volAccel.Valid {
		return NullValue()
	}
	if vel.Value >= 0 {
		return ScalarValue(now, 0)
	}
	score := clamp(-volAccel.Value, 0, 1)
	return ScalarValue(now, score)
}

// liquidityDrainIndex measures the fractional decline in total book
// liquidity between the start and end of the window.
func liquidityDrainIndex(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	start, end, _ := windowOf(params, now)
	books := buf.OrderbooksInRange(start, end)
	if len(books) < 2 {
		return NullValue()
	}
	firstLiq := sumQty(books[0].Bids) + sumQty(books[0].Asks)
	lastLiq := sumQty(books[len(books)-1].Bids) + sumQty(books[len(books)-1].Asks)
	if firstLiq == 0 {
		return NullValue()
	}
	return ScalarValue(books[len(books)-1].Timestamp, (firstLiq-lastLiq)/firstLiq)
}

// smaBaseType adapts the teacher's fixed-count SMA into a window-based
// base type kept for backward-compatible strategy presets.
func smaBaseType(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	period := int(params["period"])
	start, end, _ := windowOf(map[string]float64{"t1": params["t1"], "t2": params["t2"]}, now)
	ticks := buf.TicksInRange(start, end)
	prices := make([]float64, len(ticks))
	for i, t := range ticks {
		prices[i] = t.Price
	}
	v := SMA(prices, period)
	if v == 0 && len(prices) < period {
		return NullValue()
	}
	return ScalarValue(now, v)
}

func rsiBaseType(buf *SymbolBuffer, now time.Time, params map[string]float64) IndicatorValue {
	period := int(params["period"])
	start, end, _ := windowOf(map[string]float64{"t1": params["t1"], "t2": params["t2"]}, now)
	ticks := buf.TicksInRange(start, end)
	prices := make([]float64, len(ticks))
	for i, t := range ticks {
		prices[i] = t.Price
	}
	if len(prices) < period+1 {
		return NullValue()
	}
	return ScalarValue(now, RSI(prices, period))
}

func avgPrice(ticks []Tick) float64 {
	if len(ticks) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range ticks {
		sum += t.Price
	}
	return sum / float64(len(ticks))
}

func sumVolume(ticks []Tick) float64 {
	sum := 0.0
	for _, t := range ticks {
		sum += t.Volume
	}
	return sum
}

func sumQty(levels []OrderbookLevel) float64 {
	sum := 0.0
	for _, l := range levels {
		sum += l.Qty
	}
	return sum
}

func midPrice(ob OrderbookSnapshot) float64 {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return math.NaN()
	}
	return (ob.Bids[0].Price + ob.Asks[0].Price) / 2
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sign(v float64) float64 {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}
