package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo/battlearena/internal/battle"
	"github.com/neo/battlearena/internal/judging"
	"github.com/neo/battlearena/internal/logging"
)

// generateBattleHandler forces a creation attempt and reports why nothing
// was created, if so
func (s *Server) generateBattleHandler(c *gin.Context) {
	created, err := s.orchestrator.TriggerBattleGeneration(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"battle": created})
}

func (s *Server) getConfigHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"config": s.orchestrator.GetConfig()})
}

// updateConfigHandler applies a partial config change. Reconciliation runs
// right away so a new duration takes effect without waiting for a trigger.
func (s *Server) updateConfigHandler(c *gin.Context) {
	var update battle.ConfigUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	if update.DurationHours == nil && update.MaxParticipants == nil && update.WinBonus == nil {
		badRequest(c, "No config fields to update", nil)
		return
	}

	cfg, err := s.orchestrator.UpdateConfig(update)
	if err != nil {
		badRequest(c, "Invalid config", err)
		return
	}

	if err := s.orchestrator.EnsureConsistentState(c.Request.Context()); err != nil {
		logging.Warn("Reconciliation after config update failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

func (s *Server) statusHandler(c *gin.Context) {
	status, err := s.orchestrator.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// judgeHandler runs the local judge for a remote orchestrator
func (s *Server) judgeHandler(c *gin.Context) {
	var req judging.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	if req.Battle == nil {
		badRequest(c, "battle is required", nil)
		return
	}

	result, err := s.judge.Judge(c.Request.Context(), req.Battle, req.Casts)
	if errors.Is(err, judging.ErrNoCasts) {
		c.JSON(http.StatusOK, judging.Result{})
		return
	}
	if err != nil {
		logging.Error("Judging request failed", map[string]interface{}{
			"battle_id": req.Battle.ID,
			"error":     err.Error(),
		})
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": ErrorResponse{
			Status:    http.StatusBadGateway,
			Message:   "Judge unavailable",
			Path:      c.Request.URL.Path,
			Timestamp: time.Now(),
			RequestID: c.GetString("RequestID"),
			ErrorCode: "judge_failed",
		}})
		return
	}
	if result == nil {
		result = &judging.Result{}
	}
	c.JSON(http.StatusOK, result)
}
