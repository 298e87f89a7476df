package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trading-core/internal/api"
	"trading-core/internal/balance"
	"trading-core/internal/engine"
	"trading-core/internal/events"
	"trading-core/internal/monitor"
	"trading-core/internal/order"
	"trading-core/internal/risk"
	"trading-core/internal/strategy"
	"trading-core/pkg/db"
	exchange "trading-core/pkg/exchanges/common"
)

// doRequest performs a JSON HTTP request with an optional bearer token and
// decodes the response body into out (if non-nil).
func doRequest(t *testing.T, client *http.Client, method, url, token string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

// delayedGateway simulates a slow exchange gateway so tests can verify that
// order submission does not block the API response path.
type delayedGateway struct {
	delay time.Duration
}

func (g *delayedGateway) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	time.Sleep(g.delay)
	return exchange.OrderResult{
		Status:          exchange.StatusFilled,
		ExchangeOrderID: "ex-" + req.ClientID,
	}, nil
}

func (g *delayedGateway) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	return nil
}

// newHighLatencyTestServer wires a test server with AsyncExecutor and a slow gateway.
func newHighLatencyTestServer(t *testing.T, delay time.Duration) (*httptest.Server, func()) {
	t.Helper()

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	bus := events.NewBus()
	riskMgr := risk.NewInMemory(risk.DefaultConfig())

	balMgr := balance.NewManager(nil, 30*time.Second)
	balMgr.SetInitialBalance(10000.0)

	// Order queue + async executor against the session's single, slow gateway.
	orderQueue := order.NewQueue(200)
	exec := order.NewExecutor(database, bus, &delayedGateway{delay: delay}, "fake", false)
	asyncExec := order.NewAsyncExecutor(exec, 4)

	ctx, cancel := context.WithCancel(context.Background())
	go orderQueue.Drain(ctx, func(o order.Order) {
		asyncExec.ExecuteAsync(ctx, o)
	})

	stratEngine := strategy.NewEngine(database.DB, strategy.NewEvaluator(bus), nil)
	engService := engine.NewImpl(engine.Config{
		StratEngine: stratEngine,
		RiskMgr:     riskMgr,
		BalanceMgr:  balMgr,
		OrderQueue:  orderQueue,
		Bus:         bus,
		DB:          database,
		Meta: engine.SystemStatus{
			Mode:        "TEST",
			DryRun:      true,
			Venue:       "binance-spot",
			Symbols:     []string{"BTCUSDT"},
			UseMockFeed: true,
			Version:     "test",
		},
	})

	sysMetrics := monitor.NewSystemMetrics()

	server := api.NewServer(
		bus,
		database,
		engService,
		sysMetrics,
		orderQueue,
		api.SystemMeta{
			DryRun:      true,
			Venue:       "binance-spot",
			Symbols:     []string{"BTCUSDT"},
			UseMockFeed: true,
			Version:     "test",
		},
		"test-jwt-secret",
		nil,
		nil,
	)

	httpServer := httptest.NewServer(server.Router)

	cleanup := func() {
		cancel()
		httpServer.Close()
		_ = database.Close()
	}
	return httpServer, cleanup
}

// TestHighLatencyAsyncOrders verifies that even with a slow gateway, the API
// responds quickly and orders are eventually persisted.
func TestHighLatencyAsyncOrders(t *testing.T) {
	delay := 500 * time.Millisecond
	srv, cleanup := newHighLatencyTestServer(t, delay)
	defer cleanup()

	client := srv.Client()
	baseURL := srv.URL

	token, err := api.IssueOperatorToken("test-jwt-secret", time.Hour)
	if err != nil {
		t.Fatalf("IssueOperatorToken: %v", err)
	}

	// Rapidly send multiple orders; total API time should be far less than
	// N*delay since submission to the gateway happens asynchronously.
	const totalOrders = 5
	start := time.Now()
	for i := 0; i < totalOrders; i++ {
		status := doRequest(t, client, http.MethodPost, baseURL+"/api/v1/orders", token,
			map[string]any{
				"symbol": "BTCUSDT",
				"side":   "BUY",
				"type":   "LIMIT",
				"price":  30000.0,
				"qty":    0.01,
			}, nil)
		if status != http.StatusAccepted && status != http.StatusCreated && status != http.StatusOK {
			t.Fatalf("order %d failed, status=%d", i, status)
		}
	}
	elapsed := time.Since(start)
	if elapsed >= delay*2 {
		t.Fatalf("orders were blocked by gateway delay: elapsed=%v", elapsed)
	}

	// Wait for background processing to catch up with the simulated gateway delay.
	time.Sleep(delay * 2)

	var orders []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	status := doRequest(t, client, http.MethodGet, baseURL+"/api/v1/orders", token, nil, &orders)
	if status != http.StatusOK {
		t.Fatalf("get orders failed, status=%d", status)
	}
	if len(orders) < totalOrders {
		t.Fatalf("expected at least %d orders, got %d", totalOrders, len(orders))
	}
}
