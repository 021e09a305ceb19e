// Package notify announces finished runs to chat channels.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/inovacc/labelr/internal/model"
)

// Sender delivers a run notification to one destination.
type Sender interface {
	Send(ctx context.Context, run *model.Run) error

	// Name returns the sender's name for logging purposes.
	Name() string
}

// Dispatcher routes finished runs to registered senders.
type Dispatcher struct {
	senders      []Sender
	mu           sync.RWMutex
	onlyFailures bool
	timeout      time.Duration
	logger       *slog.Logger
	wg           sync.WaitGroup
}

// NewDispatcher creates a dispatcher. With onlyFailures set, succeeded
// runs are not announced.
func NewDispatcher(onlyFailures bool) *Dispatcher {
	return &Dispatcher{
		onlyFailures: onlyFailures,
		timeout:      30 * time.Second,
		logger:       slog.Default(),
	}
}

// WithLogger sets a custom logger
func (d *Dispatcher) WithLogger(logger *slog.Logger) *Dispatcher {
	d.logger = logger
	return d
}

// Register adds a sender to the dispatcher.
func (d *Dispatcher) Register(sender Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.senders = append(d.senders, sender)
}

// HasSenders returns true if any senders are registered.
func (d *Dispatcher) HasSenders() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.senders) > 0
}

// RunFinished sends run to every sender in the background. It matches
// the runner pool's completion callback.
func (d *Dispatcher) RunFinished(run *model.Run) {
	if !run.Status.Terminal() {
		return
	}

	if d.onlyFailures && run.Status != model.RunFailed {
		return
	}

	d.mu.RLock()
	senders := make([]Sender, len(d.senders))
	copy(senders, d.senders)
	d.mu.RUnlock()

	snapshot := *run

	for _, sender := range senders {
		d.wg.Add(1)

		go func() {
			defer d.wg.Done()
			d.sendWithRecover(sender, &snapshot)
		}()
	}
}

// Wait blocks until in-flight notifications are delivered.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// sendWithRecover sends a notification and recovers from panics.
func (d *Dispatcher) sendWithRecover(sender Sender, run *model.Run) {
	logger := d.logger.With(slog.String("sender", sender.Name()), slog.String("run", run.ID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("notify: panic in sender", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := sender.Send(ctx, run); err != nil {
		logger.Warn("notify: failed to send", "error", err)
	}
}
