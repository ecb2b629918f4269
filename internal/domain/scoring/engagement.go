package scoring

import (
	"context"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
)

const (
	defaultViewWeight    = 1
	defaultLikeWeight    = 5
	defaultDislikeWeight = 3
	defaultBoostWeek     = 100
	defaultBoostMonth    = 50

	week  = 7 * hoursPerDay * time.Hour
	month = 30 * hoursPerDay * time.Hour
)

// Engagement scores a video for the global feed:
//
//	views*1 + likes*5 - dislikes*3 + recencyBoost
//
// The result may be negative when dislikes dominate.
type Engagement struct {
	viewWeight    float64
	likeWeight    float64
	dislikeWeight float64
	boostWeek     float64
	boostMonth    float64
}

// NewEngagement creates an engagement scorer with default weights.
func NewEngagement(opts ...Option) *Engagement {
	e := &Engagement{
		viewWeight:    defaultViewWeight,
		likeWeight:    defaultLikeWeight,
		dislikeWeight: defaultDislikeWeight,
		boostWeek:     defaultBoostWeek,
		boostMonth:    defaultBoostMonth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute returns the engagement score of v at now.
func (e *Engagement) Compute(v model.Video, now time.Time) float64 {
	views := float64(NonNegative(v.ViewCount))
	likes := float64(NonNegative(v.LikeCount))
	dislikes := float64(NonNegative(v.DislikeCount))

	return views*e.viewWeight + likes*e.likeWeight - dislikes*e.dislikeWeight + e.RecencyBoost(v.CreatedAt, now)
}

// RecencyBoost is a step function of age: under a week gets the week boost,
// under a month the month boost, otherwise nothing. Bounds are exclusive, so
// a video exactly seven days old gets the month boost. Future timestamps get
// the week boost and an unknown timestamp gets none.
func (e *Engagement) RecencyBoost(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	age := now.Sub(createdAt)
	switch {
	case age < week:
		return e.boostWeek
	case age < month:
		return e.boostMonth
	default:
		return 0
	}
}

// Score implements Scorer.
func (e *Engagement) Score(_ context.Context, in Input) (Result, error) {
	return Result{VideoID: in.Video.ID, Score: e.Compute(in.Video, in.Now)}, nil
}
