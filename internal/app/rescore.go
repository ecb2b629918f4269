package service

import (
	"context"
	"time"

	"github.com/okian/feedrank/internal/domain/feed"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

// Rescore rebuilds the global feed index from the catalog so recency boosts
// follow the clock even for videos that receive no events.
func (s *Service) Rescore(ctx context.Context) error {
	p, err := s.running()
	if err != nil {
		return err
	}
	return s.rebuild(ctx, p)
}

func (s *Service) rebuild(ctx context.Context, p *pipeline) error {
	start := time.Now()

	// writes after this mark are newer than the snapshot and survive the swap
	since := p.index.Generation()
	videos, err := s.candidates(ctx, "")
	if err != nil {
		metrics.RecordFeedIndexError()
		return err
	}
	now := s.now()
	items, err := feed.ScoreAll(ctx, s.engagement, videos, nil, now)
	if err != nil {
		metrics.RecordScoringError()
		return err
	}
	if err := p.index.RebuildSince(ctx, items, since); err != nil {
		metrics.RecordFeedIndexError()
		return err
	}

	s.lastRescore.Store(now.Unix())
	metrics.UpdateCatalogSize(len(videos))
	metrics.RecordRescore(float64(time.Since(start).Microseconds())/1000, time.Now().Unix())
	s.logger.Debug(ctx, "feed index rebuilt",
		logger.Int("videos", len(items)),
		logger.Duration("took", time.Since(start)),
	)
	return nil
}

func (s *Service) rescoreLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.rescoreInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p := s.pipe.Load()
			if p == nil {
				return
			}
			if err := s.rebuild(ctx, p); err != nil && ctx.Err() == nil {
				s.logger.Error(ctx, "rescore failed", logger.Error(err))
			}
		}
	}
}
