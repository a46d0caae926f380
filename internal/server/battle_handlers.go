package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo/battlearena/internal/auth"
	"github.com/neo/battlearena/internal/database"
	"github.com/neo/battlearena/internal/logging"
)

// NoBattleMessage is shown when no battle is running
const NoBattleMessage = "No active battle, check back soon"

// currentBattleHandler reconciles state on every call, then reports the
// running battle. No battle is a normal answer, not an error.
func (s *Server) currentBattleHandler(c *gin.Context) {
	ctx := c.Request.Context()

	if err := s.orchestrator.EnsureConsistentState(ctx); err != nil {
		logging.Warn("Reconciliation on request failed", map[string]interface{}{
			"request_id": c.GetString("RequestID"),
			"error":      err.Error(),
		})
	}

	current, err := s.orchestrator.GetCurrentBattle(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	if current == nil {
		c.JSON(http.StatusOK, gin.H{"battle": nil, "message": NoBattleMessage})
		return
	}

	participants, err := s.db.CountParticipants(ctx, current.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"battle":            current,
		"participants":      participants,
		"remaining_seconds": int(current.Remaining(time.Now()).Seconds()),
	})
}

// reconcileHandler is the target of the external worker
func (s *Server) reconcileHandler(c *gin.Context) {
	if err := s.orchestrator.EnsureConsistentState(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listBattlesHandler(c *gin.Context) {
	params := GetPaginationParams(c)
	filter := GetFilterParams(c)

	battles, total, err := s.db.ListBattles(c.Request.Context(), filter.BattleFilter(params))
	if err != nil {
		respondError(c, err)
		return
	}

	params.Total = total
	SendPaginatedResponse(c, params, battles)
}

func (s *Server) getBattleHandler(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	b, err := s.db.GetBattle(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	winners, err := s.db.GetWinners(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	casts, err := s.db.GetCastsForBattle(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if winners == nil {
		winners = []*database.Winner{}
	}
	if casts == nil {
		casts = []*database.Cast{}
	}

	c.JSON(http.StatusOK, gin.H{
		"battle":  b,
		"winners": winners,
		"casts":   casts,
	})
}

func (s *Server) leaderboardHandler(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	users, err := s.db.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if users == nil {
		users = []*database.User{}
	}
	c.JSON(http.StatusOK, gin.H{"leaders": users})
}

// identity returns the caller set by the auth middleware
func identity(c *gin.Context) (string, string) {
	userID, _ := auth.GetUserID(c)
	username, _ := auth.GetUsername(c)
	if strings.TrimSpace(username) == "" {
		username = userID
	}
	return userID, username
}

func (s *Server) joinBattleHandler(c *gin.Context) {
	userID, username := identity(c)

	participation, err := s.orchestrator.JoinBattle(c.Request.Context(), userID, username)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"participation": participation})
}

type castRequest struct {
	Content string `json:"content" binding:"required"`
	Side    string `json:"side" binding:"required"`
}

func (s *Server) createCastHandler(c *gin.Context) {
	var req castRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}

	userID, _ := identity(c)
	cast, err := s.orchestrator.CreateSubmission(c.Request.Context(), userID, req.Content, req.Side)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"cast": cast})
}

func (s *Server) likeCastHandler(c *gin.Context) {
	ctx := c.Request.Context()
	userID, username := identity(c)

	if _, err := s.db.UpsertUser(ctx, userID, username); err != nil {
		respondError(c, err)
		return
	}

	likes, err := s.db.LikeCast(ctx, c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cast_id": c.Param("id"), "likes": likes})
}
