package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/inovacc/labelr/internal/config"
	"github.com/inovacc/labelr/internal/notify"
	"github.com/inovacc/labelr/internal/session"
	"github.com/inovacc/labelr/internal/store"
	"github.com/inovacc/labelr/internal/web"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr string
	serveGops bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web service and the run pool",
	Long: `Start the HTTP service (OAuth login, train/classify API, webhook) together
with the worker pool that executes training and classification runs.

The process stops on SIGINT or SIGTERM. Runs in flight are cancelled and
runs still queued are marked failed; the reconciler re-arms both once their
timeout has passed.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveGops, "gops", false, "Start the gops diagnostics agent")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	if serveGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			return fmt.Errorf("failed to start gops agent: %w", err)
		}

		defer agent.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg)
}

// serve runs the web server and the run pool until ctx is cancelled
func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg, 0)
	if err != nil {
		return err
	}

	defer func() {
		if err := a.close(); err != nil {
			slog.Error("failed to close", "error", err)
		}
	}()

	if err := failInterruptedRuns(ctx, a.store); err != nil {
		return err
	}

	if cfg.Server.WebhookSecret == "" {
		slog.Warn("server.webhook_secret is not set, webhook deliveries will be rejected")
	}

	sessions, err := session.Open(cfg.Server.SessionPath, cfg.Server.SessionTTL)
	if err != nil {
		return err
	}

	defer func() { _ = sessions.Close() }()

	sessions.WithSecureCookies(strings.HasPrefix(cfg.Server.BaseURL, "https://"))

	if purged, err := sessions.Purge(); err != nil {
		slog.Warn("failed to purge expired sessions", "error", err)
	} else if purged > 0 {
		slog.Info("purged expired sessions", slog.Int("count", purged))
	}

	dispatcher, err := newDispatcher(cfg.Notify)
	if err != nil {
		return err
	}

	defer dispatcher.Wait()

	a.pool.OnComplete(dispatcher.RunFinished)

	server := web.New(web.Config{
		Addr:          cfg.Server.Addr,
		BaseURL:       cfg.Server.BaseURL,
		WebhookSecret: cfg.Server.WebhookSecret,
	}, a.reconciler, a.tracker, a.store, sessions).
		WithLogger(slog.Default().With(slog.String("component", "web")))

	g, gctx := errgroup.WithContext(ctx)

	if err := a.pool.Start(gctx); err != nil {
		return err
	}

	g.Go(func() error {
		return server.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.pool.Stop()

		return nil
	})

	slog.Info("labelr started",
		slog.String("addr", cfg.Server.Addr),
		slog.String("database", cfg.Database.Path))

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("labelr stopped")

	return nil
}

// failInterruptedRuns marks runs left queued or running by a previous
// server as failed. Only the server owns the run pool across restarts;
// one-shot commands sharing the database must not touch its runs.
func failInterruptedRuns(ctx context.Context, db *store.Store) error {
	interrupted, err := db.FailInterruptedRuns(ctx)
	if err != nil {
		return err
	}

	if interrupted > 0 {
		slog.Warn("marked interrupted runs as failed", slog.Int64("count", interrupted))
	}

	return nil
}

// newDispatcher builds the run notifier from cfg
func newDispatcher(cfg config.NotifyConfig) (*notify.Dispatcher, error) {
	dispatcher := notify.NewDispatcher(cfg.OnlyFailures).
		WithLogger(slog.Default().With(slog.String("component", "notify")))

	if cfg.SlackWebhookURL == "" {
		return dispatcher, nil
	}

	if err := notify.ValidateWebhookURL(cfg.SlackWebhookURL); err != nil {
		return nil, err
	}

	dispatcher.Register(notify.NewSlackSender(cfg.SlackWebhookURL, notify.WithChannel(cfg.SlackChannel)))

	return dispatcher, nil
}
