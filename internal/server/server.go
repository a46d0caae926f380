// Package server exposes the battle arena over HTTP and a websocket event
// stream.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/neo/battlearena/internal/auth"
	"github.com/neo/battlearena/internal/battle"
	"github.com/neo/battlearena/internal/config"
	"github.com/neo/battlearena/internal/database"
	"github.com/neo/battlearena/internal/events"
	"github.com/neo/battlearena/internal/judging"
	"github.com/neo/battlearena/internal/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Orchestrator is the slice of the battle manager the API drives
type Orchestrator interface {
	EnsureConsistentState(ctx context.Context) error
	GetCurrentBattle(ctx context.Context) (*database.Battle, error)
	JoinBattle(ctx context.Context, userID, username string) (*database.Participation, error)
	CreateSubmission(ctx context.Context, userID, content, side string) (*database.Cast, error)
	TriggerBattleGeneration(ctx context.Context) (*database.Battle, error)
	GetConfig() config.Battle
	UpdateConfig(update battle.ConfigUpdate) (config.Battle, error)
	Status(ctx context.Context) (battle.Status, error)
}

var _ Orchestrator = (*battle.Manager)(nil)

// Options wires a Server to the rest of the process
type Options struct {
	Orchestrator   Orchestrator
	DB             database.DatabaseInterface
	Events         *events.Broadcaster
	Auth           *auth.Auth
	Judge          judging.Judge
	AdminTokenHash string
	AllowedOrigins []string
}

// Server is the HTTP front of the battle arena
type Server struct {
	router       *gin.Engine
	orchestrator Orchestrator
	db           database.DatabaseInterface
	events       *events.Broadcaster
	auth         *auth.Auth
	judge        judging.Judge
	upgrader     websocket.Upgrader
	httpServer   *http.Server
}

// NewServer creates a new HTTP server with WebSocket support
func NewServer(opts Options) *Server {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(RecoveryMiddleware())
	router.Use(LoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(ErrorHandler())
	router.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	judge := opts.Judge
	if judge == nil {
		judge = judging.LikesJudge{}
	}
	broadcaster := opts.Events
	if broadcaster == nil {
		broadcaster = events.NewBroadcaster()
	}

	s := &Server{
		router:       router,
		orchestrator: opts.Orchestrator,
		db:           opts.DB,
		events:       broadcaster,
		auth:         opts.Auth,
		judge:        judge,
		upgrader: websocket.Upgrader{
			CheckOrigin:       originChecker(opts.AllowedOrigins),
			EnableCompression: true,
		},
	}
	s.setupRoutes(opts.AdminTokenHash)
	return s
}

func (s *Server) setupRoutes(adminTokenHash string) {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/ws/battle", s.handleBattleWebSocket)

	api := s.router.Group("/api")
	{
		api.GET("/battle/current", s.currentBattleHandler)
		api.POST("/battle/reconcile", s.reconcileHandler)
		api.GET("/battles", s.listBattlesHandler)
		api.GET("/battles/:id", s.getBattleHandler)
		api.GET("/leaderboard", s.leaderboardHandler)

		protected := api.Group("")
		protected.Use(s.auth.Middleware())
		{
			protected.POST("/battle/join", s.joinBattleHandler)
			protected.POST("/battle/casts", s.createCastHandler)
			protected.POST("/casts/:id/like", s.likeCastHandler)
		}

		admin := api.Group("")
		admin.Use(auth.AdminMiddleware(adminTokenHash))
		{
			admin.POST("/admin/battle/generate", s.generateBattleHandler)
			admin.GET("/admin/config", s.getConfigHandler)
			admin.PATCH("/admin/config", s.updateConfigHandler)
			admin.GET("/admin/status", s.statusHandler)
			admin.POST("/judge", s.judgeHandler)
		}
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", auth.AdminHeader, "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return func(r *http.Request) bool { return true }
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until Shutdown is called
func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info("HTTP server listening", map[string]interface{}{"addr": addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Open
// websockets end when the broadcaster closes.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	response := gin.H{
		"status":      "ok",
		"subscribers": s.events.SubscriberCount(),
	}
	if status, err := s.orchestrator.Status(c.Request.Context()); err == nil {
		response["orchestrator_running"] = status.Running
	}
	c.JSON(http.StatusOK, response)
}
