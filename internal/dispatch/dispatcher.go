// Package dispatch runs workflows asynchronously behind a bounded queue and
// tracks their status.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shpitdev/inbound-lead-agent/internal/lead"
	"github.com/shpitdev/inbound-lead-agent/internal/workflow"
	"golang.org/x/time/rate"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
)

var (
	ErrQueueFull = errors.New("dispatch queue is full")
	ErrClosed    = errors.New("dispatcher is closed")
)

// Runner executes one workflow run.
type Runner interface {
	Run(ctx context.Context, runID string, l lead.Lead) (workflow.Outcome, error)
}

type Options struct {
	Workers   int
	QueueSize int
	// RateLimitRPS caps run starts per second across workers. <=0 disables.
	RateLimitRPS float64
	// NewID overrides run id generation.
	NewID func() string
}

type job struct {
	runID string
	lead  lead.Lead
}

// Dispatcher is a fire-and-forget trigger: Submit queues a run and returns
// its id without waiting for the outcome.
type Dispatcher struct {
	runner   Runner
	registry *Registry
	limiter  *rate.Limiter
	newID    func() string
	logger   *slog.Logger

	queue  chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func New(runner Runner, registry *Registry, opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry(0)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		runner:   runner,
		registry: registry,
		newID:    opts.NewID,
		logger:   logger.With("component", "dispatch"),
		queue:    make(chan job, opts.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	if opts.RateLimitRPS > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	d.logger.Info("dispatcher started",
		"workers", opts.Workers,
		"queue_size", opts.QueueSize,
		"rate_limit_rps", opts.RateLimitRPS,
	)
	return d
}

func (d *Dispatcher) Registry() *Registry { return d.registry }

// Submit queues a run for l. It never blocks.
func (d *Dispatcher) Submit(l lead.Lead) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return "", ErrClosed
	}

	runID := d.newID()
	d.registry.Add(runID)
	select {
	case d.queue <- job{runID: runID, lead: l}:
		return runID, nil
	default:
		d.registry.Remove(runID)
		return "", ErrQueueFull
	}
}

// Ready reports whether Submit can accept work.
func (d *Dispatcher) Ready() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.closed
}

// Close stops accepting work and waits for queued and in-flight runs. When
// ctx expires first, in-flight runs are cancelled and ctx.Err is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info("dispatcher drained")
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		d.logger.Warn("dispatcher shutdown timed out; in-flight runs cancelled")
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		d.runOne(j)
	}
}

func (d *Dispatcher) runOne(j job) {
	logger := d.logger.With("run_id", j.runID)
	if d.limiter != nil {
		if err := d.limiter.Wait(d.ctx); err != nil {
			d.registry.Fail(j.runID, err)
			logger.Warn("run not started", "error", err)
			return
		}
	}
	if err := d.ctx.Err(); err != nil {
		d.registry.Fail(j.runID, err)
		return
	}

	start := time.Now()
	out, err := d.runner.Run(d.ctx, j.runID, j.lead)
	state := out.State
	if state == "" || !state.Terminal() {
		state = workflow.StateCompleted
		if err != nil {
			state = workflow.StateFailed
		}
	}
	if err != nil && out.Err == nil {
		out.Err = err
	}
	d.registry.Observe(j.runID, state, out)
	logger.Debug("run finished", "state", state, "elapsed", time.Since(start).Round(time.Millisecond))
}
