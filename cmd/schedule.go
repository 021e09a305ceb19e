package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/inovacc/labelr/internal/model"
	"github.com/inovacc/labelr/internal/reconcile"
	"github.com/spf13/cobra"
)

// decideFunc asks the reconciler for one decision
type decideFunc func(ctx context.Context, r *reconcile.Reconciler) (reconcile.Result, error)

// schedule runs decide against a single-worker pool and, when a run was
// enqueued, waits for it to finish so it is not drained on exit.
func schedule(cmd *cobra.Command, decide decideFunc) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, 1)
	if err != nil {
		return err
	}

	defer func() { _ = a.close() }()

	done := make(chan *model.Run, 1)

	a.pool.OnComplete(func(run *model.Run) {
		done <- run
	})

	if err := a.pool.Start(ctx); err != nil {
		return err
	}

	result, err := decide(ctx, a.reconciler)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, result.Decision.Message())

	if result.RunID == "" {
		return nil
	}

	_, _ = fmt.Fprintf(out, "Run %s queued, waiting for it to finish...\n", result.RunID)

	select {
	case run := <-done:
		if run.Status == model.RunFailed {
			return fmt.Errorf("run %s failed: %s", run.ID, run.Error)
		}

		_, _ = fmt.Fprintf(out, "Run %s %s\n", run.ID, run.Status)
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}
