package service

import (
	"time"

	"github.com/okian/feedrank/internal/adapters/external/relevance"
	"github.com/okian/feedrank/internal/adapters/repository"
	"github.com/okian/feedrank/internal/domain/scoring"
	"github.com/okian/feedrank/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRescoreInterval sets how often the global feed index is rebuilt. Zero
// disables the periodic pass.
func WithRescoreInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.rescoreInterval = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock every scoring pass captures its instant from.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEngagementOptions configures the engagement scorer.
func WithEngagementOptions(opts ...scoring.Option) Option {
	return func(s *Service) {
		s.engagementOpts = append(s.engagementOpts, opts...)
	}
}

// WithCatalog replaces the in-memory catalog.
func WithCatalog(c repository.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithCounterStore replaces the in-memory counter store.
func WithCounterStore(c repository.CounterStore) Option {
	return func(s *Service) {
		if c != nil {
			s.counters = c
		}
	}
}

// WithHistoryStore replaces the in-memory watch history.
func WithHistoryStore(h repository.HistoryStore) Option {
	return func(s *Service) {
		if h != nil {
			s.history = h
		}
	}
}

// WithRelevance enables the external relevance scorer.
func WithRelevance(c *relevance.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.relevance = c
		}
	}
}

// WithBackendName labels the storage backend in stats.
func WithBackendName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.backend = name
		}
	}
}
