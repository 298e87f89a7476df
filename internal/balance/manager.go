package balance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trading-core/internal/logging"
)

var log = logging.For("balance")

// ExchangeClient fetches the account balance from an exchange adapter.
type ExchangeClient interface {
	GetBalance(ctx context.Context) (Balance, error)
}

// Balance represents account balance.
type Balance struct {
	Total     float64
	Available float64
	Locked    float64
}

// Manager tracks this session's single account balance, either synced
// periodically from an exchange adapter or fixed for dry-run/backtest use.
type Manager struct {
	exchange     ExchangeClient
	cache        *balanceCache
	syncInterval time.Duration
}

type balanceCache struct {
	total     float64
	available float64
	locked    float64
	lastSync  time.Time
	mu        sync.RWMutex
}

// NewManager creates a new balance manager. A nil exchange client runs in
// fixed-balance mode; call SetInitialBalance to seed it.
func NewManager(exchange ExchangeClient, syncInterval time.Duration) *Manager {
	return &Manager{
		exchange:     exchange,
		cache:        &balanceCache{},
		syncInterval: syncInterval,
	}
}

// Start begins periodic balance sync against the configured exchange.
func (m *Manager) Start(ctx context.Context) {
	m.Sync(ctx)

	ticker := time.NewTicker(m.syncInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := m.Sync(ctx); err != nil {
					log.Error().Err(err).Msg("balance sync failed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Sync fetches the latest balance from the exchange adapter.
func (m *Manager) Sync(ctx context.Context) error {
	if m.exchange == nil {
		return nil
	}

	bal, err := m.exchange.GetBalance(ctx)
	if err != nil {
		return err
	}

	m.cache.mu.Lock()
	m.cache.total = bal.Total
	m.cache.available = bal.Available
	m.cache.locked = bal.Locked
	m.cache.lastSync = time.Now()
	m.cache.mu.Unlock()

	log.Debug().Float64("total", bal.Total).Float64("available", bal.Available).
		Float64("locked", bal.Locked).Msg("balance synced")

	return nil
}

// GetAvailable returns available balance.
func (m *Manager) GetAvailable() float64 {
	m.cache.mu.RLock()
	defer m.cache.mu.RUnlock()
	return m.cache.available
}

// Lock reserves balance for an order.
func (m *Manager) Lock(amount float64) error {
	m.cache.mu.Lock()
	defer m.cache.mu.Unlock()

	if amount > m.cache.available {
		return fmt.Errorf("insufficient balance: need %.2f, have %.2f", amount, m.cache.available)
	}

	m.cache.available -= amount
	m.cache.locked += amount

	log.Debug().Float64("amount", amount).Float64("available", m.cache.available).Msg("balance locked")
	return nil
}

// Unlock releases previously locked balance.
func (m *Manager) Unlock(amount float64) {
	m.cache.mu.Lock()
	defer m.cache.mu.Unlock()

	m.cache.locked -= amount
	m.cache.available += amount

	log.Debug().Float64("amount", amount).Float64("available", m.cache.available).Msg("balance unlocked")
}

// Deduct removes balance after an order fills (buy side).
func (m *Manager) Deduct(amount float64) {
	m.cache.mu.Lock()
	defer m.cache.mu.Unlock()

	m.cache.locked -= amount
	m.cache.total -= amount

	log.Debug().Float64("amount", amount).Float64("total", m.cache.total).Msg("balance deducted")
}

// Add credits balance after an order fills (sell side).
func (m *Manager) Add(amount float64) {
	m.cache.mu.Lock()
	defer m.cache.mu.Unlock()

	m.cache.total += amount
	m.cache.available += amount

	log.Debug().Float64("amount", amount).Float64("total", m.cache.total).Msg("balance added")
}

// GetBalance returns a point-in-time balance snapshot.
func (m *Manager) GetBalance() Balance {
	m.cache.mu.RLock()
	defer m.cache.mu.RUnlock()

	return Balance{
		Total:     m.cache.total,
		Available: m.cache.available,
		Locked:    m.cache.locked,
	}
}

// SetInitialBalance seeds the balance for dry-run/backtest mode.
func (m *Manager) SetInitialBalance(amount float64) {
	m.cache.mu.Lock()
	defer m.cache.mu.Unlock()

	m.cache.total = amount
	m.cache.available = amount
	m.cache.locked = 0

	log.Info().Float64("amount", amount).Msg("initial balance set")
}
