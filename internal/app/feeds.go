package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/feedrank/internal/adapters/repository"
	"github.com/okian/feedrank/internal/domain/feed"
	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/scoring"
	"github.com/okian/feedrank/internal/domain/types"
	"github.com/okian/feedrank/pkg/metrics"
)

// FeedQuery selects a page of a feed.
type FeedQuery struct {
	Cursor string
	Limit  int
	// UserID excludes the user's own videos; the personalized feed also
	// scores against the user's watch history.
	UserID string
}

func invalidPaging(err error) error {
	for _, target := range []error{
		feed.ErrInvalidCursor, feed.ErrInvalidLimit,
		repository.ErrInvalidCursor, repository.ErrInvalidLimit,
	} {
		if errors.Is(err, target) {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	return err
}

// Feed returns a page of the global feed from the materialized index.
func (s *Service) Feed(ctx context.Context, q FeedQuery) (types.FeedPage, error) {
	p, err := s.running()
	if err != nil {
		return types.FeedPage{}, err
	}
	metrics.RecordFeedRequest(string(scoring.ModeEngagement))

	page, err := p.index.Page(ctx, repository.PageQuery{
		Cursor:         q.Cursor,
		Limit:          q.Limit,
		ExcludeOwnerID: q.UserID,
	})
	if err != nil {
		return types.FeedPage{}, invalidPaging(err)
	}
	return page, nil
}

// PersonalizedFeed ranks every eligible video not owned by q.UserID against
// the user's affinity profile.
func (s *Service) PersonalizedFeed(ctx context.Context, q FeedQuery) (types.FeedPage, error) {
	if strings.TrimSpace(q.UserID) == "" {
		return types.FeedPage{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	metrics.RecordFeedRequest(string(scoring.ModePersonalized))

	profile, err := s.history.Profile(ctx, q.UserID)
	if err != nil {
		return types.FeedPage{}, fmt.Errorf("load profile: %w", err)
	}
	return s.rankCandidates(ctx, s.personalization, profile, q)
}

// TrendingFeed ranks eligible videos by decayed engagement.
func (s *Service) TrendingFeed(ctx context.Context, q FeedQuery) (types.FeedPage, error) {
	metrics.RecordFeedRequest(string(scoring.ModeTrending))
	return s.rankCandidates(ctx, s.trending, nil, q)
}

func (s *Service) rankCandidates(ctx context.Context, scorer scoring.Scorer, profile *model.AffinityProfile, q FeedQuery) (types.FeedPage, error) {
	if q.Limit < 1 {
		return types.FeedPage{}, fmt.Errorf("%w: %w: %d", ErrInvalidInput, feed.ErrInvalidLimit, q.Limit)
	}
	videos, err := s.candidates(ctx, q.UserID)
	if err != nil {
		return types.FeedPage{}, err
	}
	page, err := feed.Rank(ctx, scorer, videos, profile, s.now(), q.Cursor, q.Limit)
	if err != nil {
		return types.FeedPage{}, invalidPaging(err)
	}
	return types.FeedPage{
		Entries:    types.FromScored(page.Items, page.Offset+1),
		NextCursor: page.NextCursor,
	}, nil
}

// Rank returns a video's position and score in the global feed.
func (s *Service) Rank(ctx context.Context, videoID string) (types.Entry, error) {
	p, err := s.running()
	if err != nil {
		return types.Entry{}, err
	}
	return p.index.Rank(ctx, videoID)
}
