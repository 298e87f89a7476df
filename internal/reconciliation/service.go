package reconciliation

import (
	"context"
	"math"
	"sync"
	"time"

	"trading-core/internal/logging"
	"trading-core/internal/state"
	"trading-core/pkg/db"
)

var log = logging.For("reconciliation")

// ExchangeClient interface for reconciliation
type ExchangeClient interface {
	GetPositions(ctx context.Context) (map[string]Position, error)
}

// Position from exchange
type Position struct {
	Symbol   string
	Quantity float64
}

// Service handles periodic reconciliation
type Service struct {
	exchange ExchangeClient
	stateMgr *state.Manager
	database *db.Database
	interval time.Duration
	autoSync bool
	mu       sync.Mutex
}

// ReconciliationReport contains reconciliation results
type ReconciliationReport struct {
	Timestamp     time.Time
	PositionDiffs []PositionDiff
	HasDiffs      bool
	SyncedCount   int
}

// PositionDiff represents a position difference
type PositionDiff struct {
	Symbol      string
	LocalQty    float64
	ExchangeQty float64
	Difference  float64
	Synced      bool
}

// NewService creates a new reconciliation service
func NewService(exchange ExchangeClient, stateMgr *state.Manager, database *db.Database, interval time.Duration) *Service {
	return &Service{
		exchange: exchange,
		stateMgr: stateMgr,
		database: database,
		interval: interval,
		autoSync: true,
	}
}

// SetAutoSync enables or disables auto-sync
func (s *Service) SetAutoSync(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoSync = enabled
	log.Info().Bool("auto_sync", enabled).Msg("reconciliation auto-sync updated")
}

// Start begins periodic reconciliation
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				report, err := s.Reconcile(ctx)
				if err != nil {
					log.Error().Err(err).Msg("reconciliation check failed")
					continue
				}

				s.handleReport(ctx, report)

			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info().Dur("interval", s.interval).Bool("auto_sync", s.autoSync).Msg("reconciliation service started")
}

// Reconcile performs reconciliation check
func (s *Service) Reconcile(ctx context.Context) (*ReconciliationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exchange == nil {
		// No exchange in dry-run mode
		return &ReconciliationReport{
			Timestamp: time.Now(),
			HasDiffs:  false,
		}, nil
	}

	report := &ReconciliationReport{
		Timestamp:     time.Now(),
		PositionDiffs: []PositionDiff{},
	}

	// Get exchange positions
	exchangePos, err := s.exchange.GetPositions(ctx)
	if err != nil {
		return nil, err
	}

	// Compare each exchange position with local
	for symbol, exPos := range exchangePos {
		localPos := s.stateMgr.Position(symbol)

		if math.Abs(localPos.Qty-exPos.Quantity) > 0.0001 {
			diff := PositionDiff{
				Symbol:      symbol,
				LocalQty:    localPos.Qty,
				ExchangeQty: exPos.Quantity,
				Difference:  localPos.Qty - exPos.Quantity,
				Synced:      false,
			}

			// Auto-sync if enabled
			if s.autoSync {
				if s.syncPosition(ctx, symbol, exPos.Quantity) {
					diff.Synced = true
					report.SyncedCount++
				}
			}

			report.PositionDiffs = append(report.PositionDiffs, diff)
			report.HasDiffs = true
		}
	}

	return report, nil
}

// syncPosition syncs local position to match exchange
func (s *Service) syncPosition(ctx context.Context, symbol string, exchangeQty float64) bool {
	// Get current local position
	localPos := s.stateMgr.Position(symbol)

	// Calculate the difference
	diff := exchangeQty - localPos.Qty

	if math.Abs(diff) < 0.0001 {
		return false // No sync needed
	}

	// Keep existing average price if available, otherwise use a 1.0 placeholder
	avgPrice := localPos.AvgPrice
	if avgPrice == 0 && exchangeQty != 0 {
		avgPrice = 1.0 // Placeholder price for positions without price history
	}

	log.Debug().Str("symbol", symbol).Float64("from", localPos.Qty).Float64("to", exchangeQty).
		Float64("diff", diff).Msg("syncing position")

	if err := s.stateMgr.SetPosition(ctx, symbol, exchangeQty, avgPrice); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("sync position failed")
		return false
	}

	log.Info().Str("symbol", symbol).Float64("qty", exchangeQty).Msg("position synced")
	return true
}

// handleReport processes reconciliation report
func (s *Service) handleReport(ctx context.Context, report *ReconciliationReport) {
	if report.HasDiffs {
		for _, diff := range report.PositionDiffs {
			log.Warn().Str("symbol", diff.Symbol).Float64("local", diff.LocalQty).
				Float64("exchange", diff.ExchangeQty).Float64("diff", diff.Difference).
				Bool("synced", diff.Synced).Msg("position mismatch")
		}

		if report.SyncedCount > 0 {
			log.Info().Int("count", report.SyncedCount).Msg("auto-synced positions")
		}

		// Save report to database for audit trail
		s.saveReport(ctx, report)
	} else {
		log.Debug().Msg("reconciliation OK, all positions match")
	}
}

// saveReport saves reconciliation report to database (placeholder)
func (s *Service) saveReport(ctx context.Context, report *ReconciliationReport) {
	// TODO: Implement database save
	// This should create an audit trail of all reconciliation events
}
