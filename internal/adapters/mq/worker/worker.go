// Package worker drains engagement events, applies them to counters and
// keeps the global feed index in step.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/feedrank/internal/adapters/mq/queue"
	"github.com/okian/feedrank/internal/adapters/repository"
	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/scoring"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	metricsUpdateInterval   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Event is what workers read off the queue.
type Event = queue.Event

// Catalog resolves the metadata of the video an event targets.
type Catalog interface {
	Get(ctx context.Context, id string) (model.Video, error)
}

// Counters applies event deltas atomically.
type Counters interface {
	Apply(ctx context.Context, videoID string, d model.Delta) (model.Counters, error)
	Get(ctx context.Context, videoID string) (model.Counters, error)
}

// Index receives the rescored video.
type Index interface {
	Upsert(ctx context.Context, v model.ScoredVideo) error
	Remove(ctx context.Context, videoID string) error
}

// Locker serializes work on one video across workers and other writers of
// the index.
type Locker interface {
	Lock(videoID string) (unlock func())
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue() <-chan Event
}

// Deps are the collaborators every worker writes through.
type Deps struct {
	Catalog  Catalog
	Counters Counters
	Index    Index
	Scorer   scoring.Scorer // engagement scorer used for the global index
	Locks    Locker         // optional; without it same-video events may upsert out of order
}

// Worker processes events until its queue closes.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker after it drains what is already buffered.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue Queue
	deps  Deps
	name  string
	now   func() time.Time

	onProcessed func()

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, deps Deps, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		deps:     deps,
		name:     "worker",
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			w.drain(ctx, events)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		}
	}
}

func (w *InMemoryWorker) drain(ctx context.Context, events <-chan Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		default:
			return
		}
	}
}

func (w *InMemoryWorker) handle(ctx context.Context, ev Event) { //nolint:gocritic // hugeParam: Event is passed by value off the channel
	metrics.RecordQueueDequeue()
	if err := w.processEvent(ctx, ev); err != nil {
		w.logger.Error(ctx, "error processing event",
			logger.String("event_id", ev.EventID),
			logger.String("video_id", ev.VideoID),
			logger.Error(err),
		)
		return
	}
	if w.onProcessed != nil {
		w.onProcessed()
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processEvent applies one event and rescores its video. Events for unknown
// videos are dropped. The video's lock is held from the catalog read to the
// index write so the index always ends on the latest counters.
func (w *InMemoryWorker) processEvent(ctx context.Context, ev Event) error { //nolint:gocritic // hugeParam: Event is passed by value off the channel
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if w.deps.Locks != nil {
		unlock := w.deps.Locks.Lock(ev.VideoID)
		defer unlock()
	}

	v, err := w.deps.Catalog.Get(ctx, ev.VideoID)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.RecordErrorByComponent("worker", "unknown_video")
		w.logger.Warn(ctx, "dropping event for unknown video",
			logger.String("event_id", ev.EventID),
			logger.String("video_id", ev.VideoID),
		)
		return nil
	}
	if err != nil {
		w.fail("catalog_error")
		return fmt.Errorf("load video %s: %w", ev.VideoID, err)
	}

	var counters model.Counters
	if d := ev.Kind.Delta(); d.IsZero() {
		counters, err = w.deps.Counters.Get(ctx, ev.VideoID)
	} else {
		counters, err = w.deps.Counters.Apply(ctx, ev.VideoID, d)
	}
	if err != nil {
		w.fail("counter_error")
		return fmt.Errorf("apply %s to %s: %w", ev.Kind, ev.VideoID, err)
	}
	v = v.WithCounters(counters)

	if !v.Eligible() {
		if err := w.deps.Index.Remove(ctx, v.ID); err != nil {
			w.fail("index_error")
			return fmt.Errorf("remove %s from index: %w", v.ID, err)
		}
		metrics.RecordEventProcessed()
		return nil
	}

	scoreStart := time.Now()
	res, err := w.deps.Scorer.Score(ctx, scoring.Input{Video: v, Now: w.now()})
	metrics.RecordScoringLatency(string(scoring.ModeEngagement), float64(time.Since(scoreStart).Microseconds())/1000)
	if err != nil {
		metrics.RecordScoringError()
		w.fail("scoring_error")
		return fmt.Errorf("score video %s: %w", v.ID, err)
	}

	if err := w.deps.Index.Upsert(ctx, model.ScoredVideo{Video: v, Score: res.Score}); err != nil {
		w.fail("index_error")
		return fmt.Errorf("index video %s: %w", v.ID, err)
	}

	metrics.RecordEventProcessed()
	w.logger.Debug(ctx, "event applied",
		logger.String("event_id", ev.EventID),
		logger.String("video_id", v.ID),
		logger.String("kind", string(ev.Kind)),
		logger.Float64("score", res.Score),
	)
	return nil
}

func (w *InMemoryWorker) fail(kind string) {
	metrics.RecordWorkerError()
	metrics.RecordErrorByComponent("worker", kind)
	metrics.RecordErrorByType(kind, "high")
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup

	processedCount    atomic.Int64
	lastProcessedTime time.Time

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers. Options are applied to
// every worker; each worker gets its own name.
func NewPool(workerCount int, q Queue, deps Deps, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             q,
		shutdown:          make(chan struct{}),
		lastProcessedTime: time.Now(),
		logger:            logger.Get().Named("worker-pool"),
	}

	for i := range workerCount {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, deps, workerOpts...)
		w.onProcessed = p.RecordProcessedMessage
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0)
	return p
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}

	p.wg.Add(1)
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	now := time.Now()
	if elapsed := now.Sub(p.lastProcessedTime).Seconds(); elapsed > 0 {
		metrics.UpdateWorkerMessagesPerSecond(float64(p.processedCount.Swap(0)) / elapsed)
	}
	p.lastProcessedTime = now
}

// RecordProcessedMessage increments the processed message count.
func (p *Pool) RecordProcessedMessage() {
	p.processedCount.Add(1)
}

// Shutdown closes the queue, lets the workers drain it and waits for them
// until ctx or the pool shutdown timeout expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	p.shutdownOnce.Do(func() { close(p.shutdown) })
	p.wg.Wait()
	metrics.UpdateWorkerCount(0)

	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
