// Package service wires the feed components together and implements the
// operations the HTTP API exposes.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/feedrank/internal/adapters/external/relevance"
	eventqueue "github.com/okian/feedrank/internal/adapters/mq/queue"
	workerpool "github.com/okian/feedrank/internal/adapters/mq/worker"
	"github.com/okian/feedrank/internal/adapters/repository"
	"github.com/okian/feedrank/internal/domain/dedupe"
	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/scoring"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

const (
	defaultQueueSize       = 100_000
	defaultDedupeSize      = 500_000
	defaultRescoreInterval = time.Minute
	stopTimeout            = 30 * time.Second
)

// pipeline holds the components that only exist while the service runs.
type pipeline struct {
	index   *repository.TreapIndex
	deduper dedupe.Deduper
	queue   *eventqueue.InMemoryQueue
	pool    *workerpool.Pool
}

// Service implements the API dependencies for the feed.
type Service struct {
	mu sync.Mutex

	catalog   repository.Catalog
	counters  repository.CounterStore
	history   repository.HistoryStore
	relevance *relevance.Client
	locks     *repository.KeyedLocker

	engagement      *scoring.Engagement
	engagementOpts  []scoring.Option
	trending        *scoring.Trending
	personalization *scoring.Personalization

	workerCount     int
	queueSize       int
	dedupeSize      int
	rescoreInterval time.Duration
	backend         string
	now             func() time.Time

	pipe        atomic.Pointer[pipeline]
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastRescore atomic.Int64

	logger logger.Logger
}

// New constructs a Service. Stores default to in-memory implementations.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU() * 4,
		queueSize:       defaultQueueSize,
		dedupeSize:      defaultDedupeSize,
		rescoreInterval: defaultRescoreInterval,
		backend:         "memory",
		now:             time.Now,
		trending:        scoring.NewTrending(),
		personalization: scoring.NewPersonalization(),
		locks:           repository.NewKeyedLocker(0),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.catalog == nil {
		s.catalog = repository.NewMemoryCatalog()
	}
	if s.counters == nil {
		s.counters = repository.NewMemoryCounters()
	}
	if s.history == nil {
		s.history = repository.NewMemoryHistory(s.catalog)
	}
	if s.relevance == nil {
		s.relevance = relevance.New("")
	}
	s.engagement = scoring.NewEngagement(s.engagementOpts...)
	return s
}

// Start builds the event pipeline, rebuilds the feed index from the catalog
// and starts the workers and the rescore loop. The service keeps running
// until Stop, independent of ctx cancellation.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipe.Load() != nil {
		return nil
	}

	s.logger.Info(ctx, "starting feed service",
		logger.String("backend", s.backend),
		logger.Bool("relevance", s.relevance.Enabled()),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &pipeline{
		index:   repository.NewTreapIndex(runCtx),
		deduper: dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize)),
		queue:   eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize)),
	}
	p.pool = workerpool.NewPool(s.workerCount, p.queue, workerpool.Deps{
		Catalog:  s.catalog,
		Counters: s.counters,
		Index:    p.index,
		Scorer:   s.engagement,
		Locks:    s.locks,
	}, workerpool.WithClock(s.now))

	if err := s.rebuild(ctx, p); err != nil {
		cancel()
		_ = p.index.Close()
		return fmt.Errorf("initial rescore: %w", err)
	}

	p.pool.Start(runCtx)
	s.cancel = cancel
	s.pipe.Store(p)

	if s.rescoreInterval > 0 {
		s.wg.Add(1)
		go s.rescoreLoop(runCtx)
	}

	s.logger.Info(ctx, "feed service started",
		logger.Int("workers", p.pool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Int("indexed", p.index.Count(ctx)),
	)
	return nil
}

// Stop drains the event queue and shuts down background work.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pipe.Swap(nil)
	if p == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping feed service")

	if err := p.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	s.cancel()
	s.wg.Wait()
	_ = p.index.Close()

	s.logger.Info(ctx, "feed service stopped")
}

func (s *Service) running() (*pipeline, error) {
	p := s.pipe.Load()
	if p == nil {
		return nil, ErrNotStarted
	}
	return p, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	ctx := context.Background()
	stats := map[string]any{
		"started":     false,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"backend":     s.backend,
		"relevance":   s.relevance.Enabled(),
	}
	if s.relevance.Enabled() {
		stats["relevanceBreaker"] = s.relevance.State()
	}

	p := s.pipe.Load()
	if p == nil {
		return stats
	}

	queueLen := p.queue.Len()
	indexed := p.index.Count(ctx)
	stats["started"] = true
	stats["queueLength"] = queueLen
	stats["indexedVideos"] = indexed
	stats["dedupeEntries"] = p.deduper.Size()
	if last := s.lastRescore.Load(); last > 0 {
		stats["lastRescore"] = time.Unix(last, 0).UTC().Format(time.RFC3339)
	}

	metrics.UpdateFeedIndexSize(indexed)
	return stats
}

// Videos scored for the global feed carry the authoritative counters.
func (s *Service) withCounters(ctx context.Context, videos []model.Video) ([]model.Video, error) {
	if len(videos) == 0 {
		return videos, nil
	}
	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}
	counters, err := s.counters.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load counters: %w", err)
	}
	for i, v := range videos {
		videos[i] = v.WithCounters(counters[v.ID])
	}
	return videos, nil
}

// candidates lists eligible videos with their current counters.
func (s *Service) candidates(ctx context.Context, excludeOwner string) ([]model.Video, error) {
	videos, err := s.catalog.List(ctx, repository.CandidateQuery{ExcludeOwnerID: excludeOwner})
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return s.withCounters(ctx, videos)
}
