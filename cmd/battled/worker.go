package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/neo/battlearena/internal/logging"
	"github.com/neo/battlearena/internal/worker"
	"github.com/spf13/cobra"
)

var workerTarget string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Poke a running server's reconcile endpoint on an interval",
	Long: `Run the external reconciliation worker. It calls POST /api/battle/reconcile
on the target server every WORKER_INTERVAL so expired battles are completed
even when the server's own timers were lost.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig("worker")
		if err != nil {
			return err
		}
		if workerTarget != "" {
			cfg.WorkerTargetURL = workerTarget
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logging.Info("Reconciliation worker targeting server", map[string]interface{}{
			"target": cfg.WorkerTargetURL,
		})
		reconciler := worker.NewHTTPReconciler(cfg.WorkerTargetURL, cfg.AdminToken, cfg.WorkerInterval)
		worker.NewPoker(cfg.WorkerInterval, reconciler).Run(ctx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().StringVar(&workerTarget, "target", "", "base URL of the server (overrides WORKER_TARGET_URL)")
}
