// Package feed assembles ranked feeds from scored candidate videos.
package feed

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/scoring"
)

// Page is one window of a ranked feed.
type Page struct {
	Items []model.ScoredVideo
	// Offset is the 0-based position of the first item in the full ranking.
	Offset int
	// NextCursor is the ID of the first item of the next page, empty on the last page.
	NextCursor string
}

// ScoreAll scores every video with the same instant so a batch cannot
// straddle a recency boundary.
func ScoreAll(ctx context.Context, s scoring.Scorer, videos []model.Video, profile *model.AffinityProfile, now time.Time) ([]model.ScoredVideo, error) {
	out := make([]model.ScoredVideo, 0, len(videos))
	for _, v := range videos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.Score(ctx, scoring.Input{Video: v, Profile: profile, Now: now})
		if err != nil {
			return nil, fmt.Errorf("score video %s: %w", v.ID, err)
		}
		out = append(out, model.ScoredVideo{Video: v, Score: res.Score})
	}
	return out, nil
}

// Compare orders by score descending, then newest first, then ID ascending.
func Compare(a, b model.ScoredVideo) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := b.Video.CreatedAt.Compare(a.Video.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.Video.ID, b.Video.ID)
}

// Sort orders items in feed order.
func Sort(items []model.ScoredVideo) {
	slices.SortFunc(items, Compare)
}

// Paginate returns the page starting at the item whose ID is cursor, or at the
// start when cursor is empty.
func Paginate(items []model.ScoredVideo, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		return Page{}, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	start := 0
	if cursor != "" {
		start = slices.IndexFunc(items, func(it model.ScoredVideo) bool { return it.Video.ID == cursor })
		if start < 0 {
			return Page{}, fmt.Errorf("%w: %s", ErrInvalidCursor, cursor)
		}
	}
	end := min(start+limit, len(items))

	page := Page{Items: slices.Clone(items[start:end]), Offset: start}
	if end < len(items) {
		page.NextCursor = items[end].Video.ID
	}
	return page, nil
}

// Rank ranks videos with s at now and returns the requested page.
func Rank(ctx context.Context, s scoring.Scorer, videos []model.Video, profile *model.AffinityProfile, now time.Time, cursor string, limit int) (Page, error) {
	scored, err := ScoreAll(ctx, s, videos, profile, now)
	if err != nil {
		return Page{}, err
	}
	Sort(scored)
	return Paginate(scored, cursor, limit)
}
