// Package worker implements the crawl loop: dequeue, fetch, record the outcome,
// and expand the frontier with newly discovered links.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/frontier-crawler/internal/crawler"
	"github.com/JakeFAU/frontier-crawler/internal/metrics"
	"github.com/JakeFAU/frontier-crawler/internal/progress"
)

// Scheduler hands the worker its next item. Next blocks while the crawl is
// paused and returns false once the loop must stop.
type Scheduler interface {
	Next(ctx context.Context) (crawler.WorkItem, bool)
}

// Outcome describes what happened to a dequeued item.
type Outcome string

// Possible outcomes of Process.
const (
	OutcomeCrawled  Outcome = "crawled"
	OutcomeFailed   Outcome = "failed"
	OutcomeReleased Outcome = "released"
)

const releaseTimeout = 5 * time.Second

// Worker executes one work item at a time against its collaborators.
type Worker struct {
	store     crawler.FrontierStore
	fetcher   crawler.Fetcher
	extractor crawler.LinkExtractor
	throttle  crawler.Throttle
	clock     crawler.Clock
	events    progress.Emitter
	logger    *zap.Logger
}

// New constructs a Worker. throttle and events may be nil.
func New(
	store crawler.FrontierStore,
	fetcher crawler.Fetcher,
	extractor crawler.LinkExtractor,
	throttle crawler.Throttle,
	clock crawler.Clock,
	events progress.Emitter,
	logger *zap.Logger,
) *Worker {
	if events == nil {
		events = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		throttle:  throttle,
		clock:     clock,
		events:    events,
		logger:    logger.Named("worker"),
	}
}

// Run processes items until the scheduler reports there is nothing left to do.
func (w *Worker) Run(ctx context.Context, sched Scheduler) {
	for {
		item, ok := sched.Next(ctx)
		if !ok {
			return
		}
		w.Process(ctx, item)
	}
}

// Process fetches a single claimed item, records its terminal status and, while
// the item is within its depth budget, enqueues the links found on the page.
// If ctx ends before the outcome is known the claim is released and the item
// stays pending.
func (w *Worker) Process(ctx context.Context, item crawler.WorkItem) Outcome {
	logger := w.logger.With(zap.String("url", item.URL), zap.Int("depth", item.Depth))

	if w.throttle != nil {
		if err := w.throttle.Wait(ctx, item.URL); err != nil {
			if ctx.Err() != nil {
				return w.release(ctx, item, logger)
			}
			logger.Warn("throttle wait failed", zap.Error(err))
		}
	}

	start := time.Now()
	resp, err := w.fetcher.Fetch(ctx, crawler.FetchRequest{URL: item.URL, Depth: item.Depth})
	elapsed := time.Since(start)
	if ctx.Err() != nil {
		return w.release(ctx, item, logger)
	}
	if err != nil {
		metrics.ObserveFetch(false, elapsed)
		logger.Info("fetch failed", zap.Int("status_code", resp.StatusCode), zap.Error(err))
		w.markTerminal(ctx, item, crawler.StatusFailed, logger)
		w.emitOutcome(progress.StageFailed, item, resp, elapsed, err.Error())
		return OutcomeFailed
	}

	metrics.ObserveFetch(true, elapsed)
	w.markTerminal(ctx, item, crawler.StatusCrawled, logger)
	w.emitOutcome(progress.StageCrawled, item, resp, elapsed, "")

	if item.Expandable() {
		base := resp.URL
		if base == "" {
			base = item.URL
		}
		w.expand(ctx, item, resp.Body, base, logger)
	}
	return OutcomeCrawled
}

func (w *Worker) expand(ctx context.Context, item crawler.WorkItem, body []byte, base string, logger *zap.Logger) {
	links, err := w.extractor.ExtractLinks(body, base)
	if err != nil {
		logger.Debug("link extraction failed; treating page as a leaf", zap.Error(err))
		return
	}

	seen := make(map[string]struct{}, len(links))
	discovered := 0
	for _, link := range links {
		normalized, err := crawler.NormalizeURL(link)
		if err != nil {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}

		class := crawler.Classify(normalized)
		inserted, err := w.store.Enqueue(ctx, crawler.Candidate{
			URL:            normalized,
			ParentURL:      item.URL,
			Depth:          item.Depth + 1,
			MaxDepth:       item.MaxDepth,
			Classification: class,
		})
		if err != nil {
			logger.Error("enqueue discovered link failed", zap.String("link", normalized), zap.Error(err))
			continue
		}
		metrics.ObserveDiscovery(string(class), inserted)
		if !inserted {
			continue
		}
		discovered++
		evt := progress.NewEvent(progress.StageDiscovered, w.clock.Now())
		evt.URL = normalized
		evt.ParentURL = item.URL
		evt.Depth = item.Depth + 1
		evt.MaxDepth = item.MaxDepth
		evt.Classification = string(class)
		w.events.Emit(evt)
	}
	logger.Debug("expanded page", zap.Int("links", len(links)), zap.Int("new", discovered))
}

func (w *Worker) markTerminal(ctx context.Context, item crawler.WorkItem, outcome crawler.Status, logger *zap.Logger) {
	err := w.store.MarkTerminal(ctx, item.URL, outcome)
	switch {
	case err == nil:
		metrics.ObserveTransition(string(outcome))
	case errors.Is(err, crawler.ErrNotPending):
		logger.Warn("item was no longer pending", zap.String("outcome", string(outcome)))
	default:
		logger.Error("mark terminal failed", zap.String("outcome", string(outcome)), zap.Error(err))
	}
}

func (w *Worker) release(ctx context.Context, item crawler.WorkItem, logger *zap.Logger) Outcome {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := w.store.Release(ctx, item.URL); err != nil {
		logger.Error("release claim failed", zap.Error(err))
	}
	metrics.ObserveTransition(string(OutcomeReleased))
	logger.Info("crawl interrupted; item left pending")
	return OutcomeReleased
}

func (w *Worker) emitOutcome(
	stage progress.Stage,
	item crawler.WorkItem,
	resp crawler.FetchResponse,
	elapsed time.Duration,
	note string,
) {
	evt := progress.NewEvent(stage, w.clock.Now())
	evt.URL = item.URL
	evt.ParentURL = item.ParentURL
	evt.Depth = item.Depth
	evt.MaxDepth = item.MaxDepth
	evt.Classification = string(item.Classification)
	evt.StatusCode = resp.StatusCode
	evt.Bytes = int64(len(resp.Body))
	evt.Dur = elapsed
	evt.Note = note
	w.events.Emit(evt)
}
