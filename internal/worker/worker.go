// Package worker pokes the orchestrator on a fixed interval so expired
// battles close even when no timer or request is around to notice.
package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/neo/battlearena/internal/auth"
	"github.com/neo/battlearena/internal/logging"
)

// Reconciler is anything that can run one reconciliation pass
type Reconciler interface {
	EnsureConsistentState(ctx context.Context) error
}

// ReconcilerFunc adapts a function to Reconciler
type ReconcilerFunc func(ctx context.Context) error

// EnsureConsistentState implements Reconciler
func (f ReconcilerFunc) EnsureConsistentState(ctx context.Context) error {
	return f(ctx)
}

// Poker calls a Reconciler every interval until its context ends
type Poker struct {
	interval   time.Duration
	timeout    time.Duration
	reconciler Reconciler
}

// NewPoker creates a poker. Each pass gets at most one interval to finish.
func NewPoker(interval time.Duration, reconciler Reconciler) *Poker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poker{
		interval:   interval,
		timeout:    interval,
		reconciler: reconciler,
	}
}

// Run pokes once immediately and then on every tick. Failures and panics
// are logged and never stop the loop. Returns when ctx is done.
func (p *Poker) Run(ctx context.Context) {
	logging.LogSchedulerEvent("worker_started", map[string]interface{}{
		"interval": p.interval.String(),
	})

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poke(ctx)
	for {
		select {
		case <-ctx.Done():
			logging.LogSchedulerEvent("worker_stopped", nil)
			return
		case <-ticker.C:
			p.poke(ctx)
		}
	}
}

func (p *Poker) poke(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Panic in reconciliation worker", map[string]interface{}{
				"panic": r,
			})
		}
	}()

	pokeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	if err := p.reconciler.EnsureConsistentState(pokeCtx); err != nil {
		logging.Warn("Reconciliation poke failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	logging.Debug("Reconciliation poke done", map[string]interface{}{
		"duration": time.Since(start).String(),
	})
}

// HTTPReconciler pokes a running server's reconcile endpoint
type HTTPReconciler struct {
	url        string
	adminToken string
	client     *http.Client
}

var _ Reconciler = (*HTTPReconciler)(nil)

// NewHTTPReconciler targets baseURL, e.g. http://localhost:8080
func NewHTTPReconciler(baseURL, adminToken string, timeout time.Duration) *HTTPReconciler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPReconciler{
		url:        strings.TrimRight(baseURL, "/") + "/api/battle/reconcile",
		adminToken: adminToken,
		client:     &http.Client{Timeout: timeout},
	}
}

// EnsureConsistentState implements Reconciler
func (r *HTTPReconciler) EnsureConsistentState(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, nil)
	if err != nil {
		return err
	}
	if r.adminToken != "" {
		req.Header.Set(auth.AdminHeader, r.adminToken)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", r.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("reconcile returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
