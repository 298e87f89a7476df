package order

import (
	"context"
	"fmt"
	"time"

	"trading-core/internal/events"
	"trading-core/internal/logging"
	"trading-core/internal/monitor"
	"trading-core/pkg/db"
	exchange "trading-core/pkg/exchanges/common"

	"github.com/google/uuid"
)

var log = logging.For("order")

// Executor persists orders, sends them to the session's exchange gateway, and emits updates.
// One process trades through one exchange connection, so there is no per-order
// or per-strategy gateway routing.
type Executor struct {
	DB      *db.Database
	Bus     *events.Bus
	Gateway exchange.Gateway // the session's single exchange adapter

	Exchange     string // name/id for logging
	Testnet      bool
	SkipExchange bool // when true, never call external gateways (used by dry-run wrapper)

	Metrics *monitor.SystemMetrics // optional; nil unless wired by the caller
}

func NewExecutor(database *db.Database, bus *events.Bus, gw exchange.Gateway, venue string, testnet bool) *Executor {
	return &Executor{
		DB:       database,
		Bus:      bus,
		Gateway:  gw,
		Exchange: venue,
		Testnet:  testnet,
	}
}

func (e *Executor) Handle(ctx context.Context, o Order) error {
	if e.DB == nil {
		err := fmt.Errorf("executor: DB not configured")
		log.Error().Err(err).Msg("executor misconfigured")
		return err
	}

	// Build exchange request with all advanced parameters
	req := exchange.OrderRequest{
		Symbol:       o.Symbol,
		Side:         exchange.Side(o.Side),
		Type:         exchange.OrderType(o.Type),
		Qty:          o.Qty,
		Price:        o.Price,
		StopPrice:    o.StopPrice,
		TimeInForce:  exchange.TimeInForce(o.TimeInForce),
		IcebergQty:   o.IcebergQty,
		ClientID:     o.ID,
		ReduceOnly:   o.ReduceOnly,
		PositionSide: o.PositionSide,
		Market:       exchange.MarketType(o.Market),
		// Futures-specific
		WorkingType:     o.WorkingType,
		PriceProtect:    o.PriceProtect,
		ActivationPrice: o.ActivationPrice,
		CallbackRate:    o.CallbackRate,
	}

	if e.Bus != nil {
		e.Bus.Publish(events.EventOrderSubmitted, o)
	}

	var exchID string
	status := "NEW"
	filled := false
	var execErr error

	if e.SkipExchange {
		log.Debug().Str("order_id", o.ID).Msg("skip exchange enabled, not submitting")
	} else if e.Gateway != nil {
		res, err := e.Gateway.SubmitOrder(ctx, req)
		if err != nil {
			log.Error().Err(err).Str("venue", e.Exchange).Str("order_id", o.ID).Msg("submit to exchange failed")
			status = "REJECTED"
			execErr = err
			if e.Bus != nil {
				e.Bus.Publish(events.EventOrderRejected, err.Error())
			}
		} else {
			exchID = res.ExchangeOrderID
			status = string(res.Status)
			if e.Bus != nil {
				e.Bus.Publish(events.EventOrderAccepted, o)
				if res.Status == exchange.StatusFilled {
					e.Bus.Publish(events.EventOrderFilled, o)
					filled = true
				}
			}
		}
	} else {
		log.Warn().Str("order_id", o.ID).Msg("no exchange gateway configured, marking order rejected")
		status = "REJECTED"
		execErr = fmt.Errorf("no gateway configured")
		if e.Bus != nil {
			e.Bus.Publish(events.EventOrderRejected, "no gateway configured")
		}
	}

	model := db.Order{
		ID:                 o.ID,
		StrategyInstanceID: o.StrategyInstanceID,
		Symbol:             o.Symbol,
		Side:               o.Side,
		Price:              o.Price,
		Qty:                o.Qty,
		Status:             status,
		CreatedAt:          time.Now(),
	}
	if err := e.DB.CreateOrder(ctx, model); err != nil {
		log.Error().Err(err).Str("order_id", model.ID).Msg("store order failed")
		return err
	}

	// If filled, store a trade row (price may be 0 for market; will be reconciled later)
	if filled {
		trade := db.Trade{
			ID:        uuid.NewString(),
			OrderID:   model.ID,
			Symbol:    model.Symbol,
			Side:      model.Side,
			Price:     model.Price,
			Qty:       model.Qty,
			Fee:       0,
			CreatedAt: time.Now(),
		}
		if err := e.DB.CreateTrade(ctx, trade); err != nil {
			log.Error().Err(err).Str("order_id", model.ID).Msg("store trade failed")
		}

		if model.StrategyInstanceID != "" {
			if err := e.DB.UpdateStrategyPosition(ctx, model.StrategyInstanceID, model.Symbol, model.Side, model.Qty, model.Price); err != nil {
				log.Error().Err(err).Str("strategy_id", model.StrategyInstanceID).Msg("update strategy position failed")
			}
		}
	}

	log.Debug().Str("symbol", model.Symbol).Str("side", model.Side).Float64("qty", model.Qty).
		Str("exchange_order_id", exchID).Msg("order stored")

	if e.Bus != nil {
		e.Bus.Publish(events.EventOrderUpdate, model)
	}

	return execErr
}
