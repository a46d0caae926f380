package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neo/battlearena/internal/auth"
	"github.com/neo/battlearena/internal/battle"
	"github.com/neo/battlearena/internal/config"
	"github.com/neo/battlearena/internal/database"
	"github.com/neo/battlearena/internal/events"
	"github.com/neo/battlearena/internal/logging"
	"github.com/neo/battlearena/internal/server"
	"github.com/neo/battlearena/internal/worker"
	"github.com/spf13/cobra"
)

var (
	servePort      string
	embeddedWorker bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the battle arena server",
	Long: `Start the HTTP and WebSocket server together with the battle orchestrator.
On startup the orchestrator reconciles once: it completes a battle that
expired while the process was down, arms the timer of a running one, or
creates the first battle.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(".env"); os.IsNotExist(err) {
			fmt.Println("Warning: .env file not found, using the environment only")
		}
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "port to listen on (overrides PORT)")
	serveCmd.Flags().BoolVar(&embeddedWorker, "worker", true, "run the reconciliation poker in-process")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("battled")
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Port = servePort
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret, err = auth.GenerateRandomKey(32)
		if err != nil {
			return err
		}
		logging.Warn("JWT_SECRET not set, using a random secret; tokens will not survive a restart")
	}
	if cfg.AdminTokenHash == "" && cfg.AdminToken != "" {
		if cfg.AdminTokenHash, err = auth.HashAdminToken(cfg.AdminToken); err != nil {
			return err
		}
	}
	if cfg.AdminTokenHash == "" {
		logging.Warn("No admin token configured, admin routes are disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	cooldowns, closeCooldowns, err := newCooldownStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeCooldowns()

	topics, err := newTopicProvider(cfg, db)
	if err != nil {
		return err
	}
	completionJudge, localJudge, err := newJudges(cfg)
	if err != nil {
		return err
	}

	runtimeStore, err := config.NewRuntimeStore(cfg.RuntimeConfigPath, cfg.Battle)
	if err != nil {
		return err
	}

	broadcaster := events.NewBroadcaster()
	manager, err := battle.New(db, topics, completionJudge, broadcaster, cooldowns, runtimeStore.Battle(),
		battle.WithCooldownWindow(cfg.TopicCooldown),
		battle.WithRetryDelay(cfg.CompletionRetryDelay),
		battle.WithConfigSink(runtimeStore),
	)
	if err != nil {
		return err
	}
	if err := manager.Start(ctx); err != nil {
		// A failed first pass is retried by the timer, worker or next request
		logging.Error("Initial reconciliation failed", map[string]interface{}{"error": err.Error()})
	}

	srv := server.NewServer(server.Options{
		Orchestrator:   manager,
		DB:             db,
		Events:         broadcaster,
		Auth:           auth.New(auth.Config{JWTSecret: cfg.JWTSecret}),
		Judge:          localJudge,
		AdminTokenHash: cfg.AdminTokenHash,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	if embeddedWorker {
		go worker.NewPoker(cfg.WorkerInterval, manager).Run(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(":" + cfg.Port); err != nil {
			errChan <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errChan:
		logging.Error("Server stopped unexpectedly", map[string]interface{}{"error": runErr.Error()})
	case sig := <-sigChan:
		logging.Info("Shutting down", map[string]interface{}{"signal": sig.String()})
	}

	cancel()
	manager.Stop()
	broadcaster.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Forced shutdown", map[string]interface{}{"error": err.Error()})
	} else {
		logging.Info("Shutdown completed gracefully")
	}

	if runErr != nil {
		return fmt.Errorf("server error: %w", runErr)
	}
	return nil
}
