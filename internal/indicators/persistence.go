package indicators

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"trading-core/internal/logging"
	"trading-core/pkg/tsdb"

	"github.com/rs/zerolog"
)

// TSDBSink forwards computed indicator values into pkg/tsdb, skipping
// null values and batching on flush. It implements PersistenceSink.
type TSDBSink struct {
	store *tsdb.Store
	log   zerolog.Logger

	mu      sync.Mutex
	pending []tsdb.IndicatorRow
}

// NewTSDBSink builds a sink writing into store.
func NewTSDBSink(store *tsdb.Store) *TSDBSink {
	return &TSDBSink{store: store, log: logging.For("sie.persistence")}
}

// WriteIndicatorValue buffers v for the next Flush. Null values are
// dropped per the "must not be persisted" invariant.
func (s *TSDBSink) WriteIndicatorValue(ctx context.Context, sessionID, symbol, variantID string, v IndicatorValue) error {
	if !v.Valid {
		return nil
	}

	row := tsdb.IndicatorRow{
		SessionID:  sessionID,
		Symbol:     symbol,
		VariantID:  variantID,
		Timestamp:  v.Timestamp,
		Confidence: v.Confidence,
	}
	if v.Blob != nil {
		blob, err := json.Marshal(v.Blob)
		if err != nil {
			return err
		}
		row.Blob = blob
	} else {
		val := v.Value
		row.Value = &val
	}

	s.mu.Lock()
	s.pending = append(s.pending, row)
	shouldFlush := len(s.pending) >= flushBatchSize
	s.mu.Unlock()

	if shouldFlush {
		return s.Flush(ctx)
	}
	return nil
}

const flushBatchSize = 200

// Flush writes every pending row as a single batch insert. Safe to call
// on a timer from the scheduler as well as opportunistically from
// WriteIndicatorValue.
func (s *TSDBSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	rows := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}
	if err := s.store.BatchInsertIndicators(ctx, rows); err != nil {
		s.log.Warn().Err(err).Int("rows", len(rows)).Msg("indicator batch persistence failed")
		return err
	}
	return nil
}

// StartPeriodicFlush runs Flush on interval until ctx is cancelled.
func (s *TSDBSink) StartPeriodicFlush(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = s.Flush(context.Background())
				return
			case <-ticker.C:
				_ = s.Flush(ctx)
			}
		}
	}()
}
