package scoring

import (
	"context"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
)

const (
	trendingLikeWeight    = 3
	trendingCommentWeight = 2
	trendingDailyDecay    = 0.95
)

// Trending scores recent engagement with an exponential daily decay:
//
//	(views + likes*3 - dislikes + comments*2) * 0.95^(ageHours/24)
type Trending struct{}

// NewTrending creates a trending scorer.
func NewTrending() *Trending {
	return &Trending{}
}

// Compute returns the trending score of v at now. Videos with an unknown
// creation time score zero.
func (t *Trending) Compute(v model.Video, now time.Time) float64 {
	if v.CreatedAt.IsZero() {
		return 0
	}
	engagement := float64(NonNegative(v.ViewCount)) +
		float64(NonNegative(v.LikeCount))*trendingLikeWeight -
		float64(NonNegative(v.DislikeCount)) +
		float64(NonNegative(v.CommentCount))*trendingCommentWeight

	return engagement * ExpDecay(trendingDailyDecay, AgeHours(v.CreatedAt, now)/hoursPerDay)
}

// Score implements Scorer.
func (t *Trending) Score(_ context.Context, in Input) (Result, error) {
	return Result{VideoID: in.Video.ID, Score: t.Compute(in.Video, in.Now)}, nil
}
