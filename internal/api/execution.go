package api

import (
	"net/http"
	"time"

	"trading-core/internal/execution"

	"github.com/gin-gonic/gin"
)

type startBacktestRequest struct {
	Symbols []string       `json:"symbols" binding:"required,min=1"`
	Start   time.Time      `json:"start" binding:"required"`
	End     time.Time      `json:"end" binding:"required"`
	Params  map[string]any `json:"params"`
}

type startTradingRequest struct {
	Mode    string         `json:"mode" binding:"required,oneof=paper live"`
	Symbols []string       `json:"symbols" binding:"required,min=1"`
	Params  map[string]any `json:"params"`
}

type startDataCollectionRequest struct {
	Symbols []string       `json:"symbols" binding:"required,min=1"`
	Params  map[string]any `json:"params"`
}

func (s *Server) execControllerOrError(c *gin.Context) *execution.Controller {
	if s.ExecController == nil {
		respondError(c, http.StatusServiceUnavailable, "EXECUTION_UNAVAILABLE", "execution controller not configured")
		return nil
	}
	return s.ExecController
}

// getExecutionSession reports the currently active session, if any.
func (s *Server) getExecutionSession(c *gin.Context) {
	ctrl := s.execControllerOrError(c)
	if ctrl == nil {
		return
	}
	session := ctrl.CurrentSession()
	if session == nil {
		c.JSON(http.StatusOK, gin.H{"session": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// startBacktest implements START_BACKTEST: replays recorded prices for
// (start, end] from the time-series store.
func (s *Server) startBacktest(c *gin.Context) {
	ctrl := s.execControllerOrError(c)
	if ctrl == nil {
		return
	}
	if s.TSStore == nil {
		respondError(c, http.StatusServiceUnavailable, "TSDB_UNAVAILABLE", "no time-series store configured for backtest replay")
		return
	}

	var req startBacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	if !req.End.After(req.Start) {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "end must be after start")
		return
	}

	sessionID, err := ctrl.CreateSession(execution.ModeBacktest, req.Symbols, req.Params)
	if err != nil {
		respondError(c, http.StatusConflict, "SESSION_CONFLICT", err.Error())
		return
	}

	ds := execution.NewHistoricalReplayDataSource(s.TSStore, req.Symbols, req.Start, req.End)
	if err := ctrl.Start(c.Request.Context(), sessionID, ds); err != nil {
		respondError(c, http.StatusInternalServerError, "EXECUTION_ERROR", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"session_id": sessionID})
}

// startTrading implements START_TRADING for paper or live mode, streaming
// from the live exchange adapter via the event bus.
func (s *Server) startTrading(c *gin.Context) {
	ctrl := s.execControllerOrError(c)
	if ctrl == nil {
		return
	}

	var req startTradingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	mode := execution.ModePaper
	if req.Mode == "live" {
		mode = execution.ModeLive
	}

	sessionID, err := ctrl.CreateSession(mode, req.Symbols, req.Params)
	if err != nil {
		respondError(c, http.StatusConflict, "SESSION_CONFLICT", err.Error())
		return
	}

	ds := execution.NewLiveDataSource(s.Bus, req.Symbols)
	if err := ctrl.Start(c.Request.Context(), sessionID, ds); err != nil {
		respondError(c, http.StatusInternalServerError, "EXECUTION_ERROR", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"session_id": sessionID})
}

// startDataCollection implements START_DATA_COLLECTION: a session that
// records the live feed for its symbol set without trading against it.
func (s *Server) startDataCollection(c *gin.Context) {
	ctrl := s.execControllerOrError(c)
	if ctrl == nil {
		return
	}

	var req startDataCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	sessionID, err := ctrl.CreateSession(execution.ModeCollect, req.Symbols, req.Params)
	if err != nil {
		respondError(c, http.StatusConflict, "SESSION_CONFLICT", err.Error())
		return
	}

	ds := execution.NewLiveDataSource(s.Bus, req.Symbols)
	if err := ctrl.Start(c.Request.Context(), sessionID, ds); err != nil {
		respondError(c, http.StatusInternalServerError, "EXECUTION_ERROR", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"session_id": sessionID})
}

// stopExecution implements STOP_EXECUTION.
func (s *Server) stopExecution(c *gin.Context) {
	ctrl := s.execControllerOrError(c)
	if ctrl == nil {
		return
	}
	id := c.Param("id")
	if err := ctrl.Stop(id); err != nil {
		respondError(c, http.StatusInternalServerError, "EXECUTION_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "status": "stopping"})
}

// pauseExecution implements PAUSE_EXECUTION.
func (s *Server) pauseExecution(c *gin.Context) {
	ctrl := s.execControllerOrError(c)
	if ctrl == nil {
		return
	}
	id := c.Param("id")
	if err := ctrl.Pause(id); err != nil {
		respondError(c, http.StatusConflict, "EXECUTION_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "status": "paused"})
}

// resumeExecution implements RESUME_EXECUTION.
func (s *Server) resumeExecution(c *gin.Context) {
	ctrl := s.execControllerOrError(c)
	if ctrl == nil {
		return
	}
	id := c.Param("id")
	if err := ctrl.Resume(id); err != nil {
		respondError(c, http.StatusConflict, "EXECUTION_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "status": "running"})
}
