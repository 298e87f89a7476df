package risk

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Allocation is one entry in a BudgetConfig: either a fixed notional cap
// or a percentage of the global cap, matching the two shapes
// start_execution's budget block accepts ("500" vs "25%").
type Allocation struct {
	Notional  float64
	Percent   float64
	IsPercent bool
}

// Resolve returns the allocation's notional ceiling against globalCap.
func (a Allocation) Resolve(globalCap float64) float64 {
	if a.IsPercent {
		return globalCap * a.Percent
	}
	return a.Notional
}

// ParseAllocation accepts either a bare number or a "NN%" string, the two
// shapes the original budget block parses out of a JSON/YAML allocations
// map.
func ParseAllocation(v any) (Allocation, error) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if strings.HasSuffix(s, "%") {
			pct, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
			if err != nil {
				return Allocation{}, fmt.Errorf("risk: invalid percent allocation %q: %w", val, err)
			}
			return Allocation{Percent: pct / 100.0, IsPercent: true}, nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Allocation{}, fmt.Errorf("risk: invalid allocation %q: %w", val, err)
		}
		return Allocation{Notional: n}, nil
	case float64:
		return Allocation{Notional: val}, nil
	case int:
		return Allocation{Notional: float64(val)}, nil
	default:
		return Allocation{}, fmt.Errorf("risk: unsupported allocation type %T", v)
	}
}

// BudgetConfig caps the total notional a session's strategies may have
// open at once, apportioned across allocation keys (typically
// strategy-instance IDs or symbols).
type BudgetConfig struct {
	GlobalCap   float64
	Allocations map[string]Allocation
}

// ValidationError reports a budget (or other session-startup) validation
// failure distinctly from a transient error, so callers can surface it as
// a rejected configuration rather than retry.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

type budgetState struct {
	mu    sync.Mutex
	cfg   *BudgetConfig
	inUse map[string]float64
}

// SetBudget installs the budget configuration that UseBudget/ReleaseBudget
// and ValidateBudgetOnStart enforce against. A nil or zero-value cfg
// disables budget enforcement entirely (global cap of 0 means unset, per
// the original's permissive MVP behavior).
func (m *Manager) SetBudget(cfg BudgetConfig) {
	m.budget.mu.Lock()
	defer m.budget.mu.Unlock()
	m.budget.cfg = &cfg
	m.budget.inUse = make(map[string]float64, len(cfg.Allocations))
}

// ValidateBudgetOnStart sums every allocation resolved against GlobalCap
// and rejects the configuration if the total exceeds it. Called once at
// session startup; a misconfigured budget must fail fast rather than let
// UseBudget calls silently over-commit later.
func (m *Manager) ValidateBudgetOnStart() error {
	m.budget.mu.Lock()
	defer m.budget.mu.Unlock()

	cfg := m.budget.cfg
	if cfg == nil || cfg.GlobalCap <= 0 {
		return nil
	}

	var total float64
	for _, alloc := range cfg.Allocations {
		total += alloc.Resolve(cfg.GlobalCap)
	}
	if total > cfg.GlobalCap {
		return &ValidationError{Reason: fmt.Sprintf(
			"budget_cap_exceeded: total_alloc=%.2f > global_cap=%.2f", total, cfg.GlobalCap)}
	}
	return nil
}

// UseBudget reserves notional against key's allocation, failing if doing
// so would exceed that allocation's resolved ceiling. Called on the
// signal-to-order path in cmd/trading-core before an order is placed.
func (m *Manager) UseBudget(key string, notional float64) error {
	m.budget.mu.Lock()
	defer m.budget.mu.Unlock()

	cfg := m.budget.cfg
	if cfg == nil || cfg.GlobalCap <= 0 {
		return nil
	}
	alloc, ok := cfg.Allocations[key]
	if !ok {
		return nil
	}

	ceiling := alloc.Resolve(cfg.GlobalCap)
	used := m.budget.inUse[key]
	if used+notional > ceiling {
		return &ValidationError{Reason: fmt.Sprintf(
			"budget_exceeded: key=%s used=%.2f requested=%.2f ceiling=%.2f", key, used, notional, ceiling)}
	}
	m.budget.inUse[key] = used + notional
	return nil
}

// ReleaseBudget returns notional to key's available allocation. Its only
// caller, the signal-to-order path in cmd/trading-core, releases a
// reservation when the balance lock that follows UseBudget fails; closing
// a position does not release budget. Usage never goes negative even if
// release amounts are double-counted by a caller bug upstream.
func (m *Manager) ReleaseBudget(key string, notional float64) {
	m.budget.mu.Lock()
	defer m.budget.mu.Unlock()

	used := m.budget.inUse[key] - notional
	if used < 0 {
		used = 0
	}
	m.budget.inUse[key] = used
}

// BudgetUsage returns a snapshot of current per-key usage.
func (m *Manager) BudgetUsage() map[string]float64 {
	m.budget.mu.Lock()
	defer m.budget.mu.Unlock()
	out := make(map[string]float64, len(m.budget.inUse))
	for k, v := range m.budget.inUse {
		out[k] = v
	}
	return out
}
