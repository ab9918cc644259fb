// Package queue is the bounded worker pool that executes submitted runs.
// Submission returns immediately; workers drive the pipeline spine, and a
// sweeper reclaims zombie runs.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/woninglens/woninglens/internal/runstore"
)

// Pool bounds. The worker count also bounds concurrent AI calls: there is
// no separate queue for AI work.
const (
	DefaultWorkers = 4
	MaxWorkers     = 10
	// DefaultZombieTTL is how long a running run may go without a
	// heartbeat before the sweeper marks it failed.
	DefaultZombieTTL = 30 * time.Minute
	// sweepInterval is how often the zombie sweeper runs
	sweepInterval = time.Minute
	// queueCapacity bounds the pending-run backlog
	queueCapacity = 64
)

// Runner executes one run to completion. The context is cancelled when the
// run is cancelled externally or the pool shuts down.
type Runner interface {
	Run(ctx context.Context, runID string)
}

// Pool is the bounded worker pool.
type Pool struct {
	store     *runstore.Store
	runner    Runner
	workers   int
	zombieTTL time.Duration
	logger    zerolog.Logger

	jobs   chan string
	mu     sync.Mutex
	cancel map[string]context.CancelFunc

	rootCtx  context.Context
	rootStop context.CancelFunc
	wg       sync.WaitGroup
}

// NewPool creates a pool. workers is clamped to [1, MaxWorkers]; zero
// selects the default.
func NewPool(store *runstore.Store, runner Runner, workers int, zombieTTL time.Duration, logger zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	if zombieTTL <= 0 {
		zombieTTL = DefaultZombieTTL
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Pool{
		store:     store,
		runner:    runner,
		workers:   workers,
		zombieTTL: zombieTTL,
		logger:    logger.With().Str("component", "worker_pool").Logger(),
		jobs:      make(chan string, queueCapacity),
		cancel:    map[string]context.CancelFunc{},
		rootCtx:   ctx,
		rootStop:  stop,
	}
}

// Start launches the workers and the zombie sweeper.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.wg.Add(1)
	go p.sweeper()
	p.logger.Info().Int("workers", p.workers).Msg("worker pool started")
}

// Stop cancels all in-flight runs and waits for workers to drain.
func (p *Pool) Stop() {
	p.rootStop()
	p.wg.Wait()
}

// Submit enqueues a run. It returns false when the backlog is full; the
// run then stays queued and the caller polls the run store.
func (p *Pool) Submit(runID string) bool {
	select {
	case p.jobs <- runID:
		return true
	default:
		p.logger.Warn().Str("run_id", runID).Msg("backlog full, run stays queued")
		return false
	}
}

// Cancel cancels a running run. The spine observes the cancellation at its
// next phase boundary or chapter.
func (p *Pool) Cancel(runID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.cancel[runID]; ok {
		cancel()
		return true
	}
	return false
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	logger := p.logger.With().Int("worker", id).Logger()
	for {
		select {
		case <-p.rootCtx.Done():
			return
		case runID := <-p.jobs:
			ctx, cancel := context.WithCancel(p.rootCtx)
			p.mu.Lock()
			p.cancel[runID] = cancel
			p.mu.Unlock()

			logger.Info().Str("run_id", runID).Msg("run picked up")
			p.runner.Run(ctx, runID)

			p.mu.Lock()
			delete(p.cancel, runID)
			p.mu.Unlock()
			cancel()
		}
	}
}

func (p *Pool) sweeper() {
	defer p.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.rootCtx.Done():
			return
		case <-ticker.C:
			if swept := p.store.SweepZombies(p.zombieTTL); len(swept) > 0 {
				p.logger.Warn().Strs("run_ids", swept).Msg("zombie runs transitioned to error")
			}
		}
	}
}
