package loadgen

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/scoring"
	"github.com/okian/feedrank/pkg/logger"
)

const scoreTolerance = 1e-6

// verifyOrder checks that entries are ranked 1..n by score descending, then
// newest first, then video id ascending.
func verifyOrder(entries []Entry) error {
	if len(entries) == 0 {
		return ErrNothingToVerify
	}
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: entry %d has rank %d", ErrOrderViolation, i, e.Rank)
		}
		if i == 0 {
			continue
		}
		if !ranksAhead(entries[i-1], e) {
			return fmt.Errorf("%w: %s ranked ahead of %s", ErrOrderViolation, entries[i-1].VideoID, e.VideoID)
		}
	}
	return nil
}

func ranksAhead(a, b Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.VideoID < b.VideoID
}

// verifyScores recomputes the engagement score of every listed video from the
// expected counters and fails when any listed score disagrees. Videos not in
// expected are skipped.
func verifyScores(ctx context.Context, entries []Entry, expected map[string]model.Video, now time.Time, w Weights, stats *Stats) error {
	eng := scoring.NewEngagement(w.options()...)
	mismatches := 0
	for _, e := range entries {
		v, ok := expected[e.VideoID]
		if !ok {
			continue
		}
		want := eng.Compute(v, now)
		if math.Abs(want-e.Score) > scoreTolerance {
			mismatches++
			logger.Get().Error(ctx, "score differs from expected",
				logger.String("videoID", e.VideoID),
				logger.Float64("expected", want),
				logger.Float64("actual", e.Score))
		}
	}
	stats.ScoreMismatches = mismatches
	if mismatches > 0 {
		return fmt.Errorf("%w: %d of %d entries", ErrScoreMismatch, mismatches, len(entries))
	}
	return nil
}

// displayTopVideos logs the head of the feed.
func displayTopVideos(ctx context.Context, entries []Entry, verbose bool) {
	topN := min(10, len(entries))
	log := logger.Get()
	for _, e := range entries[:topN] {
		log.Info(ctx, "top video",
			logger.Int("rank", e.Rank),
			logger.String("videoID", e.VideoID),
			logger.String("ownerID", e.OwnerID),
			logger.Float64("score", e.Score))
	}

	if verbose && len(entries) > 0 {
		log.Info(ctx, "score statistics",
			logger.Float64("average", calculateAverageScore(entries)),
			logger.Float64("maximum", entries[0].Score),
			logger.Float64("minimum", entries[len(entries)-1].Score))
	}
}

// calculateAverageScore calculates the average score of entries.
func calculateAverageScore(entries []Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range entries {
		sum += e.Score
	}
	return sum / float64(len(entries))
}
