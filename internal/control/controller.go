// Package control owns the crawl run state: it accepts seeds, pauses and resumes
// the crawl loop, and guarantees that at most one worker runs at a time.
package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/frontier-crawler/internal/clock/system"
	"github.com/JakeFAU/frontier-crawler/internal/crawler"
	"github.com/JakeFAU/frontier-crawler/internal/metrics"
	"github.com/JakeFAU/frontier-crawler/internal/progress"
	"github.com/JakeFAU/frontier-crawler/internal/worker"
)

// Errors returned by Controller operations.
var (
	ErrInvalidSeed = errors.New("invalid seed")
	ErrRunning     = errors.New("crawl is running")
	ErrShutdown    = errors.New("controller is shut down")
)

// Runner drives the crawl loop against a scheduler. *worker.Worker satisfies it.
type Runner interface {
	Run(ctx context.Context, sched worker.Scheduler)
}

// SeedRequest starts (or extends) a crawl from URL.
type SeedRequest struct {
	URL      string
	MaxDepth int
	// Reset clears the frontier before the seed is stored.
	Reset bool
}

// SeedResult reports what EnqueueSeed did.
type SeedResult struct {
	URL      string `json:"url"`
	Inserted bool   `json:"inserted"`
	Status   Status `json:"status"`
}

// Status is a point-in-time snapshot of the frontier and the run flags.
type Status struct {
	crawler.Counts
	IsRunning bool `json:"is_running"`
	IsPaused  bool `json:"is_paused"`
}

// RunState holds the run flags. It is only read or written under the
// controller mutex.
type RunState struct {
	Running bool
	Paused  bool
}

// Controller serializes control operations on a single mutex. The worker asks it
// for work through Next, so the decision to stop the loop and the decision to
// spawn a new one can never interleave.
type Controller struct {
	store  crawler.FrontierStore
	runner Runner
	events progress.Emitter
	clock  crawler.Clock
	logger *zap.Logger

	mu     sync.Mutex
	state  RunState
	resume chan struct{}
	done   chan struct{}
	gen    uint64
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

var _ worker.Scheduler = (*Controller)(nil)

// New constructs a Controller. events, clock and logger may be nil.
func New(
	store crawler.FrontierStore,
	runner Runner,
	events progress.Emitter,
	clock crawler.Clock,
	logger *zap.Logger,
) *Controller {
	if events == nil {
		events = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	close(done)
	metrics.SetWorkerRunning(false)
	metrics.SetPaused(false)
	return &Controller{
		store:  store,
		runner: runner,
		events: events,
		clock:  clock,
		logger: logger.Named("control"),
		resume: make(chan struct{}),
		done:   done,
		ctx:    ctx,
		cancel: cancel,
	}
}

// EnqueueSeed validates and stores a depth-0 seed, then makes sure a worker is
// running to crawl it.
func (c *Controller) EnqueueSeed(ctx context.Context, req SeedRequest) (SeedResult, error) {
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		return SeedResult{}, fmt.Errorf("%w: please provide a start URL", ErrInvalidSeed)
	}
	seedURL, err := crawler.NormalizeURL(raw)
	if err != nil {
		return SeedResult{}, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	if req.MaxDepth < 1 {
		return SeedResult{}, fmt.Errorf("%w: max depth must be at least 1", ErrInvalidSeed)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return SeedResult{}, ErrShutdown
	}
	if req.Reset {
		if err := c.resetLocked(ctx); err != nil {
			return SeedResult{}, err
		}
	}

	inserted, err := c.store.Enqueue(ctx, crawler.Candidate{
		URL:            seedURL,
		MaxDepth:       req.MaxDepth,
		Classification: crawler.ClassCrawlable,
	})
	if err != nil {
		return SeedResult{}, fmt.Errorf("enqueue seed: %w", err)
	}
	if inserted {
		evt := c.event(progress.StageSeed)
		evt.URL = seedURL
		evt.MaxDepth = req.MaxDepth
		evt.Classification = string(crawler.ClassCrawlable)
		c.events.Emit(evt)
	}
	c.logger.Info("seed accepted",
		zap.String("url", seedURL),
		zap.Int("max_depth", req.MaxDepth),
		zap.Bool("inserted", inserted),
	)

	if !c.state.Running {
		c.spawnLocked()
	}

	status, err := c.statusLocked(ctx)
	if err != nil {
		return SeedResult{}, err
	}
	return SeedResult{URL: seedURL, Inserted: inserted, Status: status}, nil
}

// Pause stops the worker from dequeuing. A fetch already in flight completes.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Paused {
		return
	}
	c.state.Paused = true
	c.resume = make(chan struct{})
	metrics.SetPaused(true)
	c.events.Emit(c.event(progress.StagePaused))
	c.logger.Info("crawl paused")
}

// Resume clears the pause flag, waking a blocked worker or spawning one if
// pending work exists and nothing is running.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Paused {
		c.state.Paused = false
		close(c.resume)
		metrics.SetPaused(false)
		c.events.Emit(c.event(progress.StageResumed))
		c.logger.Info("crawl resumed")
	}
	if c.state.Running || c.closed {
		return nil
	}
	counts, err := c.store.Counts(ctx)
	if err != nil {
		return fmt.Errorf("count frontier: %w", err)
	}
	if counts.Pending > 0 {
		c.spawnLocked()
	}
	return nil
}

// Status returns the frontier counts together with the run flags.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked(ctx)
}

// State returns a copy of the run flags.
func (c *Controller) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset deletes every work item. It is refused while a worker is running.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetLocked(ctx)
}

// Done returns a channel that is closed once the current worker has exited. When
// no worker is running the channel is already closed.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Shutdown cancels the running worker and waits for it to exit. Items in flight
// are released and stay pending.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.cancel()
	c.mu.Unlock()

	exited := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(exited)
	}()
	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for worker: %w", ctx.Err())
	}
}

// Next implements worker.Scheduler. It blocks while the crawl is paused and
// otherwise dequeues under the controller lock. An empty frontier, a storage
// error or cancellation clears the running flag and ends the loop.
func (c *Controller) Next(ctx context.Context) (crawler.WorkItem, bool) {
	for {
		c.mu.Lock()
		if ctx.Err() != nil {
			c.stopLocked("cancelled")
			c.mu.Unlock()
			return crawler.WorkItem{}, false
		}
		if c.state.Paused {
			wake := c.resume
			c.mu.Unlock()
			select {
			case <-wake:
				continue
			case <-ctx.Done():
				continue
			}
		}

		item, ok, err := c.store.DequeueNext(ctx)
		switch {
		case err != nil:
			c.logger.Error("dequeue failed; stopping crawl loop", zap.Error(err))
			c.stopLocked("storage error")
		case !ok:
			c.stopLocked("frontier drained")
		}
		c.mu.Unlock()
		return item, err == nil && ok
	}
}

func (c *Controller) spawnLocked() {
	c.gen++
	gen := c.gen
	done := make(chan struct{})
	c.done = done
	c.state.Running = true
	metrics.SetWorkerRunning(true)
	c.events.Emit(c.event(progress.StageRunStart))
	c.logger.Info("worker started", zap.Uint64("generation", gen))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		defer func() {
			c.mu.Lock()
			if c.gen == gen && c.state.Running {
				c.stopLocked("worker exited")
			}
			c.mu.Unlock()
		}()
		c.runner.Run(c.ctx, c)
	}()
}

func (c *Controller) stopLocked(reason string) {
	if !c.state.Running {
		return
	}
	c.state.Running = false
	metrics.SetWorkerRunning(false)
	evt := c.event(progress.StageRunStop)
	evt.Note = reason
	c.events.Emit(evt)
	c.logger.Info("worker stopped", zap.String("reason", reason), zap.Uint64("generation", c.gen))
}

func (c *Controller) resetLocked(ctx context.Context) error {
	if c.state.Running {
		return ErrRunning
	}
	if err := c.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset frontier: %w", err)
	}
	c.events.Emit(c.event(progress.StageReset))
	c.logger.Info("frontier reset")
	return nil
}

func (c *Controller) statusLocked(ctx context.Context) (Status, error) {
	counts, err := c.store.Counts(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("count frontier: %w", err)
	}
	return Status{Counts: counts, IsRunning: c.state.Running, IsPaused: c.state.Paused}, nil
}

func (c *Controller) event(stage progress.Stage) progress.Event {
	return progress.NewEvent(stage, c.clock.Now())
}
