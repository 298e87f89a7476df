package api

import (
	"net/http"
	"time"

	"trading-core/internal/engine"
	"trading-core/internal/events"
	"trading-core/internal/execution"
	"trading-core/internal/monitor"
	"trading-core/internal/order"
	"trading-core/pkg/db"
	"trading-core/pkg/tsdb"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the event bus.
type Server struct {
	Router *gin.Engine
	Bus    *events.Bus
	DB     *db.Database

	// Engine service interface (Phase 1 architecture)
	Engine engine.Service

	// Execution session control (START_BACKTEST/START_TRADING/
	// START_DATA_COLLECTION/STOP_EXECUTION/PAUSE_EXECUTION/RESUME_EXECUTION).
	// TSStore is nil when no time-series store is configured, in which case
	// backtest sessions are rejected at the handler (no history to replay).
	ExecController *execution.Controller
	TSStore        *tsdb.Store

	// Monitoring (kept as they provide direct metrics access)
	Metrics    *monitor.SystemMetrics
	OrderQueue order.OrderQueue

	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	DryRun      bool
	Venue       string
	Symbols     []string
	UseMockFeed bool
	Version     string
}

// NewServer creates API server with Engine service interface.
func NewServer(
	bus *events.Bus,
	database *db.Database,
	eng engine.Service,
	metrics *monitor.SystemMetrics,
	orderQueue order.OrderQueue,
	meta SystemMeta,
	jwtSecret string,
	execController *execution.Controller,
	tsStore *tsdb.Store,
) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())        // Panic recovery (first)
	r.Use(RequestIDMiddleware()) // Request ID tracking
	r.Use(RequestLogger(metrics)) // Request logging (after ID is set)
	r.Use(RateLimitMiddleware()) // Rate limiting
	// Security headers handled by Nginx
	r.Use(TimeoutMiddleware(30 * time.Second)) // Request timeout (30s)
	r.Use(CORSMiddleware())                    // CORS (last before routes)

	s := &Server{
		Router:         r,
		Bus:            bus,
		DB:             database,
		Engine:         eng,
		ExecController: execController,
		TSStore:        tsStore,
		Metrics:        metrics,
		OrderQueue:     orderQueue,
		JWTSecret:      jwtSecret,
		Meta:           meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api/v1")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)
		api.GET("/queue/metrics", s.getQueueMetrics)

		// Protected API: the operator command surface.
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/strategies", s.getStrategies)
			protected.GET("/orders", s.getOrders)
			protected.GET("/positions", s.getPositions)
			protected.GET("/balance", s.getBalance)
			protected.GET("/risk", s.getRiskMetrics)
			protected.GET("/strategies/:id/performance", s.getStrategyPerformance)

			protected.POST("/strategies", s.createStrategy)
			protected.POST("/orders", s.createOrder)

			// Strategy Actions
			protected.POST("/strategies/:id/start", s.startStrategy)
			protected.POST("/strategies/:id/pause", s.pauseStrategy)
			protected.POST("/strategies/:id/stop", s.stopStrategy)
			protected.POST("/strategies/:id/panic", s.panicSellStrategy)
			protected.PUT("/strategies/:id/params", s.updateStrategyParams)

			// Execution session control: START_BACKTEST, START_TRADING,
			// START_DATA_COLLECTION, STOP_EXECUTION, PAUSE_EXECUTION,
			// RESUME_EXECUTION.
			protected.GET("/execution/session", s.getExecutionSession)
			protected.POST("/execution/backtest", s.startBacktest)
			protected.POST("/execution/trading", s.startTrading)
			protected.POST("/execution/data-collection", s.startDataCollection)
			protected.POST("/execution/:id/stop", s.stopExecution)
			protected.POST("/execution/:id/pause", s.pauseExecution)
			protected.POST("/execution/:id/resume", s.resumeExecution)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
