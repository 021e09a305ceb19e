package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/inovacc/labelr/internal/config"
	"github.com/inovacc/labelr/internal/openreq"
	"github.com/inovacc/labelr/internal/reconcile"
	"github.com/inovacc/labelr/internal/runner"
	"github.com/inovacc/labelr/internal/store"
	"github.com/inovacc/labelr/internal/tracker"
)

// app holds the components shared by serve, train and classify
type app struct {
	cfg        *config.Config
	store      *store.Store
	tracker    *tracker.Client
	classifier *openreq.Client
	executor   *runner.Executor
	pool       *runner.Pool
	reconciler *reconcile.Reconciler
}

// newApp opens local state and builds the collaborators from cfg
func newApp(cfg *config.Config, workers int) (*app, error) {
	logger := slog.Default()

	var pem []byte

	if cfg.GitHub.PrivateKeyPath != "" {
		data, err := os.ReadFile(cfg.GitHub.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read github app private key: %w", err)
		}

		pem = data
	}

	gh, err := tracker.New(tracker.Config{
		AppID:               cfg.GitHub.AppID,
		PrivateKeyPEM:       pem,
		ClientID:            cfg.GitHub.ClientID,
		ClientSecret:        cfg.GitHub.ClientSecret,
		PersonalAccessToken: cfg.GitHub.PersonalAccessToken,
		APIURL:              cfg.GitHub.APIURL,
		MaxPages:            cfg.GitHub.MaxPages,
	})
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	classifier := openreq.New(cfg.OpenReq.BaseURL, cfg.OpenReq.Timeout).
		WithLogger(logger.With(slog.String("component", "openreq")))

	gh.WithLogger(logger.With(slog.String("component", "tracker")))

	executor := runner.NewExecutor(gh, classifier, db, cfg.Reconcile.ConfidenceThreshold).
		WithLogger(logger.With(slog.String("component", "executor")))

	if workers <= 0 {
		workers = cfg.Runner.Workers
	}

	pool := runner.NewPool(executor, db, runner.PoolConfig{
		Workers:    workers,
		QueueSize:  cfg.Runner.QueueSize,
		RunTimeout: cfg.Runner.RunTimeout,
	}).WithLogger(logger.With(slog.String("component", "pool")))

	reconciler := reconcile.New(db, db, gh, classifier, pool, reconcile.Config{
		TrainingTimeout:       cfg.Reconcile.TrainingTimeout,
		ClassificationTimeout: cfg.Reconcile.ClassificationTimeout,
	}).WithLogger(logger.With(slog.String("component", "reconciler")))

	return &app{
		cfg:        cfg,
		store:      db,
		tracker:    gh,
		classifier: classifier,
		executor:   executor,
		pool:       pool,
		reconciler: reconciler,
	}, nil
}

// close stops the pool and closes the database
func (a *app) close() error {
	a.pool.Stop()

	return a.store.Close()
}

// openStore opens only the database, for read-only commands
func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	return store.Open(cfg.Database.Path)
}
