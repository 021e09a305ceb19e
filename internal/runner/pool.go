package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inovacc/labelr/internal/model"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffered queue is saturated
	ErrQueueFull = errors.New("run queue is full")

	// ErrPoolStopped is returned by Enqueue when the pool is not running
	ErrPoolStopped = errors.New("run pool is not running")
)

// PoolConfig contains configuration for the worker pool
type PoolConfig struct {
	Workers    int           // Number of concurrent runs
	QueueSize  int           // Runs buffered before Enqueue fails
	RunTimeout time.Duration // Upper bound of a single run; 0 disables it
}

// DefaultPoolConfig returns sensible defaults for the pool
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:    4,
		QueueSize:  64,
		RunTimeout: 30 * time.Minute,
	}
}

// Runner performs one job
type Runner interface {
	Run(ctx context.Context, job model.Job) error
}

// History persists the state of each run
type History interface {
	CreateRun(ctx context.Context, run *model.Run) error
	UpdateRunStatus(ctx context.Context, id string, status model.RunStatus, errMsg string) error
}

type task struct {
	run *model.Run
	job model.Job
}

// Pool drains the run queue with a fixed number of workers
type Pool struct {
	runner     Runner
	history    History
	config     PoolConfig
	logger     *slog.Logger
	mu         sync.RWMutex
	running    bool
	ctx        context.Context // Start context; workers exit when it is done
	queue      chan task
	stopCh     chan struct{}
	stoppedCh  chan struct{}
	onComplete func(*model.Run) // Callback when a run reaches a terminal state
}

// NewPool creates a new worker pool
func NewPool(runner Runner, history History, config PoolConfig) *Pool {
	if config.Workers < 1 {
		config.Workers = 1
	}

	if config.QueueSize < 0 {
		config.QueueSize = 0
	}

	return &Pool{
		runner:  runner,
		history: history,
		config:  config,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger for the pool
func (p *Pool) WithLogger(logger *slog.Logger) *Pool {
	p.logger = logger
	return p
}

// OnComplete sets a callback for when a run finishes
func (p *Pool) OnComplete(fn func(*model.Run)) *Pool {
	p.onComplete = fn
	return p
}

// Start launches the workers
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()

	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("pool already running")
	}

	p.running = true
	p.ctx = ctx
	p.queue = make(chan task, p.config.QueueSize)
	p.stopCh = make(chan struct{})
	p.stoppedCh = make(chan struct{})

	queue, stopCh, stoppedCh := p.queue, p.stopCh, p.stoppedCh
	p.mu.Unlock()

	p.logger.Info("starting run pool",
		"workers", p.config.Workers,
		"queue_size", p.config.QueueSize)

	var wg sync.WaitGroup

	for i := range p.config.Workers {
		wg.Add(1)

		go func() {
			defer wg.Done()
			p.work(ctx, i, queue, stopCh)
		}()
	}

	go func() {
		wg.Wait()

		// Workers also exit when ctx is cancelled; stop accepting runs
		// before the queue is drained.
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()

		p.drain(queue)
		close(stoppedCh)
	}()

	return nil
}

// Stop stops the workers and waits for in-flight runs to finish. Runs
// still queued are marked failed.
func (p *Pool) Stop() {
	p.mu.Lock()

	if p.stoppedCh == nil {
		p.mu.Unlock()
		return
	}

	if p.running {
		p.running = false
		close(p.stopCh)
	}

	stoppedCh := p.stoppedCh
	p.mu.Unlock()

	<-stoppedCh
	p.logger.Info("run pool stopped")
}

// IsRunning returns whether the pool accepts runs
func (p *Pool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.running
}

// Enqueue records job as a queued run and hands it to the workers. It
// never blocks.
func (p *Pool) Enqueue(job model.Job) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running || p.ctx.Err() != nil {
		return "", ErrPoolStopped
	}

	run := &model.Run{
		ID:     uuid.NewString(),
		Kind:   job.Kind,
		Repo:   job.Repo,
		Model:  job.Model,
		Batch:  job.Batch,
		Status: model.RunQueued,
	}

	ctx := context.Background()

	if err := p.history.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("recording run: %w", err)
	}

	select {
	case p.queue <- task{run: run, job: job}:
	default:
		if err := p.history.UpdateRunStatus(ctx, run.ID, model.RunFailed, ErrQueueFull.Error()); err != nil {
			p.logger.Error("failed to record rejected run", "run", run.ID, "error", err)
		}

		return "", ErrQueueFull
	}

	p.logger.Debug("run enqueued",
		"run", run.ID,
		"kind", string(run.Kind),
		"repo", run.Repo)

	return run.ID, nil
}

// work is the loop of one worker
func (p *Pool) work(ctx context.Context, id int, queue <-chan task, stopCh <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			p.execute(ctx, id, t)
		}
	}
}

// execute runs one task and records its outcome
func (p *Pool) execute(ctx context.Context, worker int, t task) {
	run := t.run
	logger := p.logger.With(
		slog.String("run", run.ID),
		slog.String("kind", string(run.Kind)),
		slog.String("repo", run.Repo),
		slog.Int("worker", worker),
	)

	if err := p.history.UpdateRunStatus(ctx, run.ID, model.RunRunning, ""); err != nil {
		logger.Error("failed to record run start", "error", err)
	}

	run.Status = model.RunRunning
	run.StartedAt = time.Now()

	runCtx := ctx

	if p.config.RunTimeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, p.config.RunTimeout)
		defer cancel()
	}

	err := p.safeRun(runCtx, t.job)

	run.FinishedAt = time.Now()

	if err != nil {
		run.Status = model.RunFailed
		run.Error = err.Error()

		logger.Error("run failed",
			slog.Duration("duration", run.FinishedAt.Sub(run.StartedAt)),
			"error", err)
	} else {
		run.Status = model.RunSucceeded

		logger.Info("run succeeded",
			slog.Duration("duration", run.FinishedAt.Sub(run.StartedAt)))
	}

	// Record the outcome even when the pool context is gone
	if err := p.history.UpdateRunStatus(context.WithoutCancel(ctx), run.ID, run.Status, run.Error); err != nil {
		logger.Error("failed to record run outcome", "error", err)
	}

	if p.onComplete != nil {
		p.onComplete(run)
	}
}

// safeRun converts a panicking run into a failed one
func (p *Pool) safeRun(ctx context.Context, job model.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()

	return p.runner.Run(ctx, job)
}

// drain fails every run left in the queue after the workers exited
func (p *Pool) drain(queue <-chan task) {
	for {
		select {
		case t := <-queue:
			if err := p.history.UpdateRunStatus(context.Background(), t.run.ID, model.RunFailed, "pool stopped"); err != nil {
				p.logger.Error("failed to record dropped run", "run", t.run.ID, "error", err)
			}
		default:
			return
		}
	}
}
