package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"trading-core/internal/api"
	"trading-core/internal/balance"
	"trading-core/internal/coordinator"
	"trading-core/internal/engine"
	"trading-core/internal/events"
	"trading-core/internal/execution"
	"trading-core/internal/indicators"
	"trading-core/internal/logging"
	"trading-core/internal/market"
	"trading-core/internal/monitor"
	"trading-core/internal/order"
	"trading-core/internal/persistence"
	"trading-core/internal/reconciliation"
	"trading-core/internal/risk"
	"trading-core/internal/state"
	"trading-core/internal/strategy"
	"trading-core/pkg/cache"
	"trading-core/pkg/config"
	"trading-core/pkg/db"
	exfutcoin "trading-core/pkg/exchanges/binance/futures_coin"
	exfutusdt "trading-core/pkg/exchanges/binance/futures_usdt"
	exspot "trading-core/pkg/exchanges/binance/spot"
	exchange "trading-core/pkg/exchanges/common"
	marketbinance "trading-core/pkg/market/binance"
	"trading-core/pkg/tsdb"
)

type exposureCache struct {
	mu  sync.RWMutex
	val float64
	ts  time.Time
	ttl time.Duration
}

func (e *exposureCache) get(compute func() float64) float64 {
	e.mu.RLock()
	if time.Since(e.ts) < e.ttl && e.ttl > 0 {
		val := e.val
		e.mu.RUnlock()
		return val
	}
	e.mu.RUnlock()

	val := compute()
	e.mu.Lock()
	e.val = val
	e.ts = time.Now()
	e.mu.Unlock()
	return val
}

func main() {
	log := logging.For("main")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	dbPath := cfg.DBPath
	if cfg.DryRun && cfg.DryRunDBPath != "" {
		dbPath = cfg.DryRunDBPath
	}
	log.Info().Str("port", cfg.Port).Str("db_path", dbPath).Msg("starting trading-core")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("db init failed")
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatal().Err(err).Msg("db migrations failed")
	}

	// Time-series store (signals/orders/positions/indicators history).
	// Optional: an empty TSDB_DSN runs with bus-only visibility into these
	// events and no durable history.
	var tsStore *tsdb.Store
	if cfg.TSDBDSN != "" {
		tsStore, err = tsdb.Open(ctx, cfg.TSDBDSN)
		if err != nil {
			log.Error().Err(err).Msg("tsdb connect failed, continuing without time-series history")
			tsStore = nil
		} else {
			defer tsStore.Close()
			log.Info().Msg("tsdb connected")
		}
	}

	// In-memory state seeded from DB
	stateMgr := state.NewManager(database)
	if err := stateMgr.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("state load failed")
	}

	var indicatorSink indicators.PersistenceSink
	if tsStore != nil {
		sink := indicators.NewTSDBSink(tsStore)
		sink.StartPeriodicFlush(ctx, 2*time.Second)
		indicatorSink = sink
	}
	indEngine := indicators.NewEngine(bus, indicatorSink)

	// Risk managers
	riskMgr, err := risk.NewManager(database.DB)
	if err != nil {
		log.Warn().Err(err).Msg("risk manager init failed, falling back to in-memory config")
		riskMgr = risk.NewInMemory(risk.DefaultConfig())
	}
	cfgCopy := riskMgr.GetConfig()
	log.Info().Float64("default_stop_loss_pct", cfgCopy.DefaultStopLoss*100).
		Float64("default_take_profit_pct", cfgCopy.DefaultTakeProfit*100).Msg("risk manager initialized")
	if cfg.RiskBudgetGlobalCap > 0 {
		riskMgr.SetBudget(risk.BudgetConfig{GlobalCap: cfg.RiskBudgetGlobalCap})
		if err := riskMgr.ValidateBudgetOnStart(); err != nil {
			log.Fatal().Err(err).Msg("risk budget validation failed")
		}
	}
	stopLossMgr := risk.NewStopLossManager()
	priceCache := cache.NewShardedPriceCache()
	expCache := &exposureCache{ttl: 1 * time.Second}

	// Exchange gateway: the single exchange adapter this session trades
	// against, chosen from the configured venue.
	var exchGateway exchange.Gateway
	venue := "none"
	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v2.0-dev"
	}
	switch {
	case cfg.EnableBinanceTrading:
		venue = "binance-spot"
		exchGateway = exspot.New(exspot.Config{
			APIKey:    cfg.BinanceAPIKey,
			APISecret: cfg.BinanceAPISecret,
			Testnet:   false,
		})
	case cfg.EnableBinanceUSDTFutures:
		venue = "binance-usdtfut"
		exchGateway = exfutusdt.NewClient(exfutusdt.Config{
			APIKey:    cfg.BinanceUSDTKey,
			APISecret: cfg.BinanceUSDTSecret,
			Testnet:   false,
		})
	case cfg.EnableBinanceCoinFutures:
		venue = "binance-coinfut"
		exchGateway = exfutcoin.NewClient(exfutcoin.Config{
			APIKey:    cfg.BinanceCoinKey,
			APISecret: cfg.BinanceCoinSecret,
			Testnet:   false,
		})
	}

	// Balance manager with exchange integration (global account)
	var balanceMgr *balance.Manager
	useFixedBalance := cfg.DryRun || strings.EqualFold(cfg.BalanceSource, "fixed")
	if useFixedBalance {
		balanceMgr = balance.NewManager(nil, 30*time.Second)
		initial := cfg.DryRunInitialBalance
		if initial <= 0 {
			initial = 10000.0
		}
		balanceMgr.SetInitialBalance(initial)
		log.Info().Float64("initial_balance", initial).Msg("balance initialized (fixed)")
	} else {
		if balClient, ok := exchGateway.(balance.ExchangeClient); ok {
			balanceMgr = balance.NewManager(balClient, 30*time.Second)
			balanceMgr.Start(ctx)
			log.Info().Msg("balance manager started (exchange-backed)")
		} else {
			balanceMgr = balance.NewManager(nil, 30*time.Second)
			balanceMgr.SetInitialBalance(10000.0)
			log.Warn().Msg("no balance API support, falling back to fixed balance")
		}
	}

	// Order flow with dry-run wrapper
	var orderQueue order.OrderQueue
	enableWal := cfg.EnableOrderWAL && (!cfg.DryRun || cfg.DryRunEnableOrderWAL)
	walPath := cfg.OrderWALPath
	if cfg.DryRun && cfg.DryRunEnableOrderWAL {
		walPath = cfg.DryRunOrderWALPath
	}
	if enableWal {
		pq, err := order.NewPersistentQueue(walPath, 200)
		if err != nil {
			log.Warn().Err(err).Msg("persistent order queue init failed, falling back to in-memory queue")
			orderQueue = order.NewQueue(200)
		} else {
			if err := pq.Recover(); err != nil {
				log.Warn().Err(err).Msg("order WAL recovery error")
			}
			orderQueue = pq
			log.Info().Str("path", walPath).Msg("order WAL enabled")
		}
	} else {
		orderQueue = order.NewQueue(200)
	}
	// System metrics for monitoring
	sysMetrics := monitor.NewSystemMetrics()

	exec := order.NewExecutor(database, bus, exchGateway, venue, cfg.BinanceTestnet)
	exec.Metrics = sysMetrics
	mode := order.ModeProduction
	if cfg.DryRun || !cfg.ExecutionEnabled {
		mode = order.ModeDryRun
		log.Info().Msg("running in dry-run mode")
	}
	dryRunner := order.NewDryRunExecutor(mode, exec, cfg.DryRunInitialBalance, order.DryRunSimConfig{
		FeeRate:             cfg.DryRunFeeRate,
		SlippageBps:         cfg.DryRunSlippageBps,
		GatewayLatencyMinMs: cfg.DryRunGwLatencyMinMs,
		GatewayLatencyMaxMs: cfg.DryRunGwLatencyMaxMs,
	})
	asyncExec := order.NewAsyncExecutorWithDryRun(dryRunner, 4)

	// Reconciliation service (only in production mode)
	if !cfg.DryRun {
		if reconClient, ok := exchGateway.(reconciliation.ExchangeClient); ok {
			reconService := reconciliation.NewService(reconClient, stateMgr, database, 5*time.Minute)
			reconService.Start(ctx)
			log.Info().Msg("reconciliation service started")
		} else {
			log.Info().Msg("reconciliation not supported by configured gateway")
		}
	}

	// Market data (mock first, real later)
	binanceClient := marketbinance.NewClient(cfg.BinanceAPIKey, cfg.BinanceAPISecret, false)
	streamClient := marketbinance.NewStreamClient(false)
	if cfg.UseMockFeed {
		mock := market.MockFeed{
			Bus:        bus,
			Symbols:    cfg.BinanceSymbols,
			StartPrice: 100,
			Step:       0.8,
			Interval:   time.Second,
		}
		mock.Start(ctx)
		log.Info().Msg("mock feed started")
	} else {
		feed := market.Feed{
			Client:   binanceClient,
			Stream:   streamClient,
			Bus:      bus,
			Symbols:  cfg.BinanceSymbols,
			Interval: "1m",
		}
		feed.Start(ctx)
		log.Info().Msg("binance feed started")
	}

	// Trading Coordinator: gates live market subscriptions behind the
	// session manager's circuit-breaker/rate-limit state, failing open
	// when no session manager is registered or it doesn't answer in time.
	coord := coordinator.NewCoordinator(bus, 120, 20, 500*time.Millisecond)
	if err := coord.Start(); err != nil {
		log.Fatal().Err(err).Msg("trading coordinator start failed")
	}
	defer coord.Stop()

	// Trading Persistence: durable record of every signal/order/position
	// event, independent of which mode produced it.
	var tradingWriter *persistence.TradingWriter
	if tsStore != nil {
		tradingWriter = persistence.NewTradingWriter(bus, tsStore)
		if err := tradingWriter.Start(); err != nil {
			log.Error().Err(err).Msg("trading persistence writer start failed")
		} else {
			defer tradingWriter.Stop()
		}
	}

	// Price cache subscriber (for risk pricing + trailing stop + auto-close)
	priceSub, unsubPrice := bus.SubscribeChan(events.EventPriceTick, 100)
	defer unsubPrice()
	filledSub, unsubFilled := bus.SubscribeChan(events.EventOrderFilled, 100)
	defer unsubFilled()

	// Helper function to handle stop loss trigger
	handleStopLossTrigger := func(symbol string, decision *risk.StopLossDecision) {
		pos := stateMgr.Position(symbol)
		qty := math.Abs(pos.Qty)
		if qty > 0 {
			closeSide := oppositeSide(sideFromQty(pos.Qty))
			orderQueue.Enqueue(order.Order{
				ID:        uuid.NewString(),
				Symbol:    symbol,
				Side:      closeSide,
				Type:      "MARKET",
				Qty:       qty,
				Status:    "NEW",
				CreatedAt: time.Now(),
				Market:    marketFromVenue(venue),
			})
			log.Info().Str("symbol", symbol).Str("side", closeSide).Float64("qty", qty).
				Str("reason", decision.Reason).Msg("stop loss triggered")
		}
	}

	go func() {
		for msg := range priceSub {
			var symbol string
			var price float64

			switch v := msg.(type) {
			case marketbinance.Kline:
				symbol, price = v.Symbol, v.Close
			case struct {
				Symbol string
				Close  float64
			}:
				symbol, price = v.Symbol, v.Close
			default:
				continue
			}

			if symbol == "" {
				continue
			}

			priceCache.Set(symbol, price)

			if decision := stopLossMgr.UpdatePrice(symbol, price); decision != nil && decision.Triggered {
				handleStopLossTrigger(symbol, decision)
			}
		}
	}()

	// Filled orders -> update positions and risk metrics (price fallback to latest cache)
	go func() {
		for msg := range filledSub {
			var (
				symbol string
				side   string
				qty    float64
				price  float64
				fillID string
			)
			switch v := msg.(type) {
			case order.Order:
				symbol, side, qty, price = v.Symbol, v.Side, v.Qty, v.Price
				fillID = v.ID
			case struct {
				ID     string
				Symbol string
				Side   string
				Qty    float64
				Price  float64
			}:
				symbol, side, qty, price = v.Symbol, v.Side, v.Qty, v.Price
				fillID = v.ID
			default:
				log.Warn().Interface("payload", msg).Msg("unknown order_filled payload type")
				continue
			}

			fillPrice := price
			if fillPrice == 0 {
				if p, ok := priceCache.Get(symbol); ok && p > 0 {
					fillPrice = p
					log.Debug().Str("symbol", symbol).Float64("price", fillPrice).Msg("using cached price for fill")
				}
			}
			if fillPrice == 0 {
				fillPrice = 1
				log.Warn().Str("symbol", symbol).Msg("fill price zero, using guard value")
			}

			prev := stateMgr.Position(symbol)
			_, _ = stateMgr.RecordFill(ctx, symbol, side, qty, fillPrice)
			newPos := stateMgr.Position(symbol)

			var pnl float64
			closeQty := math.Min(math.Abs(prev.Qty), qty)
			if closeQty > 0 {
				switch {
				case prev.Qty > 0 && strings.ToUpper(side) == "SELL":
					pnl = (fillPrice - prev.AvgPrice) * closeQty
				case prev.Qty < 0 && strings.ToUpper(side) == "BUY":
					pnl = (prev.AvgPrice - fillPrice) * closeQty
				}
				log.Info().Float64("pnl", pnl).Str("symbol", symbol).Str("side", side).
					Float64("qty", closeQty).Float64("price", fillPrice).Msg("realized pnl")
			} else {
				log.Info().Str("symbol", symbol).Str("side", side).Float64("qty", qty).
					Float64("price", fillPrice).Msg("position opened")
			}

			var fee float64
			if fillID != "" {
				row := database.DB.QueryRowContext(ctx,
					"SELECT COALESCE(SUM(fee),0) FROM trades WHERE order_id = ?", fillID)
				_ = row.Scan(&fee)
			}
			netPnL := pnl - fee

			if err := riskMgr.UpdateMetrics(risk.TradeResult{
				Symbol: symbol,
				Side:   side,
				Size:   qty,
				Price:  fillPrice,
				PnL:    netPnL,
				Fee:    fee,
			}); err != nil {
				log.Warn().Err(err).Msg("risk metrics update failed")
			}

			orderValue := qty * fillPrice
			if strings.ToUpper(side) == "BUY" {
				balanceMgr.Deduct(orderValue)
			} else if strings.ToUpper(side) == "SELL" {
				balanceMgr.Add(orderValue)
			}

			if math.Abs(newPos.Qty) < 0.0001 {
				stopLossMgr.RemovePosition(symbol)
				log.Info().Str("symbol", symbol).Msg("position closed")
			} else {
				log.Info().Str("symbol", symbol).Float64("qty", newPos.Qty).
					Float64("avg_price", newPos.AvgPrice).Msg("position updated")
			}
		}
	}()

	// Strategy evaluation: the DSL Evaluator reacts to indicator updates on
	// the bus; the loader Engine reads strategy_instances rows, builds the
	// matching condition-group preset, and registers the indicator
	// variants each needs before activating it on the Evaluator.
	evaluator := strategy.NewEvaluator(bus)
	defer evaluator.Shutdown()
	stratLoader := strategy.NewEngine(database.DB, evaluator, indEngine)

	// Load strategies from YAML config and sync to DB, then activate
	// every active instance for the configured symbols.
	if stratConfigs, err := strategy.LoadConfig("strategies.yaml"); err != nil {
		log.Warn().Err(err).Msg("strategy config load failed")
	} else if err := strategy.SyncConfigToDB(database.DB, stratConfigs); err != nil {
		log.Warn().Err(err).Msg("strategy config sync failed")
	} else {
		log.Info().Int("count", len(stratConfigs)).Msg("strategy config synced")
	}

	// Execution Controller: owns the single running session (live, in this
	// process), wiring the strategy loader's ActivateAll as its pre-start
	// hook so every indicator a strategy needs is registered before the
	// live data source starts streaming ticks.
	preStart := func(ctx context.Context, sessionID string, symbols []string) error {
		return stratLoader.ActivateAll(sessionID, symbols)
	}
	execController := execution.NewController(bus, order.NewLiveManager(exec), tsStore, preStart)
	sessionID, err := execController.CreateSession(execution.ModeLive, cfg.BinanceSymbols, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("execution session creation failed")
	}
	liveDS := execution.NewLiveDataSource(bus, cfg.BinanceSymbols)
	if err := execController.Start(ctx, sessionID, liveDS); err != nil {
		log.Fatal().Err(err).Msg("execution session start failed")
	}
	defer func() {
		if err := execController.Stop(sessionID); err != nil {
			log.Warn().Err(err).Msg("execution session stop failed")
		}
	}()
	for _, symbol := range cfg.BinanceSymbols {
		if _, err := coord.RequestSubscription(ctx, symbol, "market_adapter"); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("subscription request failed")
		}
	}

	sigStream, unsubSig := bus.SubscribeChan(events.EventStrategySignal, 100)
	defer unsubSig()
	go func() {
		for msg := range sigStream {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Interface("panic", r).Msg("signal processing panic")
						bus.Publish(events.EventRiskAlert, fmt.Sprintf("Signal processing panic: %v", r))
					}
				}()

				sig, ok := msg.(strategy.Signal)
				if !ok {
					return
				}
				if !sig.Triggered || sig.Action == "" || sig.Action == strategy.ActionCancel || sig.Action == strategy.ActionLockSymbol {
					return
				}

				// Resolve configured order size (if any) from the
				// strategy_instances row's parameters.
				var paramsJSON sql.NullString
				if err := database.DB.QueryRowContext(ctx, `
					SELECT parameters FROM strategy_instances WHERE id = ?
				`, sig.StrategyID).Scan(&paramsJSON); err != nil && err != sql.ErrNoRows {
					log.Warn().Err(err).Str("strategy_id", sig.StrategyID).Msg("strategy parameters lookup failed")
				}
				orderSize := riskMgr.GetConfig().MinOrderSize
				if paramsJSON.Valid {
					var params map[string]float64
					if err := json.Unmarshal([]byte(paramsJSON.String), &params); err == nil {
						if s, ok := params["size"]; ok && s > 0 {
							orderSize = s
						}
					}
				}

				price, _ := priceCache.Get(sig.Symbol)
				pos := stateMgr.Position(sig.Symbol)
				position := risk.Position{
					Symbol:        pos.Symbol,
					Side:          sideFromQty(pos.Qty),
					EntryPrice:    pos.AvgPrice,
					CurrentPrice:  price,
					Quantity:      pos.Qty,
					Value:         pos.Qty * price,
					UnrealizedPnL: (price - pos.AvgPrice) * pos.Qty,
				}
				balSource := balanceMgr
				balSnap := balSource.GetBalance()
				totalExposure := expCache.get(func() float64 {
					sum := 0.0
					for _, p := range stateMgr.Positions() {
						px, _ := priceCache.Get(p.Symbol)
						sum += math.Abs(p.Qty * px)
					}
					return sum
				})
				account := risk.Account{
					Balance:          balSnap.Total,
					AvailableBalance: balSnap.Available,
					LockedBalance:    balSnap.Locked,
					TotalExposure:    totalExposure,
				}

				signalInput := risk.SignalInput{
					Symbol: sig.Symbol,
					Action: string(sig.Action),
					Size:   orderSize,
					Price:  price,
				}

				decision := riskMgr.EvaluateFull(signalInput, position, account, sig.StrategyID)
				if !decision.Allowed {
					log.Info().Str("reason", decision.Reason).Msg("signal rejected by risk manager")
					bus.Publish(events.EventRiskAlert, decision.Reason)
					return
				}
				if decision.Warning != "" {
					log.Warn().Str("warning", decision.Warning).Msg("risk warning")
				}

				size := decision.AdjustedSize
				if size == 0 {
					size = orderSize
				}

				finalOrderValue := size * price
				if err := riskMgr.UseBudget(sig.StrategyID, finalOrderValue); err != nil {
					log.Info().Err(err).Str("strategy_id", sig.StrategyID).Msg("signal rejected by budget manager")
					bus.Publish(events.EventRiskAlert, fmt.Sprintf("Budget exceeded: %v", err))
					return
				}
				if err := balSource.Lock(finalOrderValue); err != nil {
					riskMgr.ReleaseBudget(sig.StrategyID, finalOrderValue)
					log.Warn().Err(err).Msg("balance lock failed")
					bus.Publish(events.EventRiskAlert, fmt.Sprintf("Insufficient balance: %v", err))
					return
				}

				stopCfg := riskMgr.GetConfig()
				stopLossMgr.AddPosition(risk.StopLossPosition{
					Symbol:         sig.Symbol,
					Side:           sideFromAction(string(sig.Action)),
					EntryPrice:     price,
					CurrentPrice:   price,
					StopLoss:       decision.StopLoss,
					TakeProfit:     decision.TakeProfit,
					TrailingStop:   stopCfg.UseTrailingStop,
					TrailingOffset: stopCfg.TrailingPercent,
				})

				o := order.Order{
					ID:                 uuid.NewString(),
					StrategyInstanceID: sig.StrategyID,
					Symbol:             sig.Symbol,
					Side:               string(sig.Action),
					Type:               "MARKET",
					Qty:                size,
					Status:             "NEW",
					CreatedAt:          time.Now(),
					Market:             marketFromVenue(venue),
					StopPrice:          decision.StopLoss,
					ActivationPrice:    decision.TakeProfit,
				}
				orderQueue.Enqueue(o)
			}()
		}
	}()

	go orderQueue.Drain(ctx, func(o order.Order) {
		execController.ActiveManager().Submit(ctx, o)
		asyncExec.ExecuteAsync(ctx, o)
	})

	// Monitor async execution results
	go func() {
		for result := range asyncExec.Results() {
			if !result.Success {
				log.Error().Str("order_id", result.OrderID).Err(result.Error).Msg("async execution failed")
				sysMetrics.IncrementErrors()
			} else {
				sysMetrics.IncrementOrders()
			}
			sysMetrics.OrderLatency.RecordDuration(result.Latency)
		}
	}()

	// Start Spot User Data Stream (only when using spot gateway)
	if cfg.EnableBinanceTrading && cfg.BinanceAPIKey != "" && cfg.BinanceAPISecret != "" && !cfg.DryRun {
		spotStream := order.NewSpotUserStream(exspot.New(exspot.Config{
			APIKey:    cfg.BinanceAPIKey,
			APISecret: cfg.BinanceAPISecret,
			Testnet:   cfg.BinanceTestnet,
		}), database, bus, cfg.BinanceTestnet)
		spotStream.Start(ctx)
	}
	// Start Futures User Data Stream (USDT)
	if cfg.EnableBinanceUSDTFutures && cfg.BinanceUSDTKey != "" && cfg.BinanceUSDTSecret != "" && !cfg.DryRun {
		usdtStream := order.NewFuturesUserStream(exfutusdt.NewClient(exfutusdt.Config{
			APIKey:    cfg.BinanceUSDTKey,
			APISecret: cfg.BinanceUSDTSecret,
			Testnet:   cfg.BinanceTestnet,
		}), database, bus, cfg.BinanceTestnet, false)
		usdtStream.Start(ctx)
	}
	// Start Futures User Data Stream (COIN)
	if cfg.EnableBinanceCoinFutures && cfg.BinanceCoinKey != "" && cfg.BinanceCoinSecret != "" && !cfg.DryRun {
		coinStream := order.NewFuturesUserStream(exfutcoin.NewClient(exfutcoin.Config{
			APIKey:    cfg.BinanceCoinKey,
			APISecret: cfg.BinanceCoinSecret,
			Testnet:   cfg.BinanceTestnet,
		}), database, bus, cfg.BinanceTestnet, true)
		coinStream.Start(ctx)
	}

	// Create Engine Service (Phase 1 Architecture)
	engService := engine.NewImpl(engine.Config{
		StratEngine: stratLoader,
		RiskMgr:     riskMgr,
		BalanceMgr:  balanceMgr,
		OrderQueue:  orderQueue,
		Bus:         bus,
		DB:          database,
		Meta: engine.SystemStatus{
			Mode: func() string {
				if cfg.DryRun {
					return "DRY_RUN"
				}
				return "LIVE"
			}(),
			DryRun:      cfg.DryRun,
			Venue:       venue,
			Symbols:     cfg.BinanceSymbols,
			UseMockFeed: cfg.UseMockFeed,
			Version:     buildVersion,
		},
	})
	log.Info().Msg("engine service initialized")

	// API
	server := api.NewServer(
		bus,
		database,
		engService,
		sysMetrics,
		orderQueue,
		api.SystemMeta{
			DryRun:      cfg.DryRun,
			Venue:       venue,
			Symbols:     cfg.BinanceSymbols,
			UseMockFeed: cfg.UseMockFeed,
			Version:     buildVersion,
		},
		cfg.JWTSecret,
		execController,
		tsStore,
	)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("api server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("shutting down")
}

func sideFromQty(qty float64) string {
	if qty > 0 {
		return "LONG"
	}
	if qty < 0 {
		return "SHORT"
	}
	return ""
}

func sideFromAction(action string) string {
	if strings.ToUpper(action) == "BUY" {
		return "LONG"
	}
	if strings.ToUpper(action) == "SELL" {
		return "SHORT"
	}
	return ""
}

func marketFromVenue(venue string) string {
	switch venue {
	case "binance-spot":
		return string(exchange.MarketSpot)
	case "binance-usdtfut":
		return string(exchange.MarketUSDTFut)
	case "binance-coinfut":
		return string(exchange.MarketCoinFut)
	default:
		return ""
	}
}

// oppositeSide returns SELL for BUY and BUY for SELL.
func oppositeSide(side string) string {
	switch strings.ToUpper(side) {
	case "BUY":
		return "SELL"
	case "SELL":
		return "BUY"
	default:
		return ""
	}
}
