package scoring

import (
	"context"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
)

const (
	categoryCap   = 40
	tagCap        = 40
	qualityCap    = 10
	recencyCap    = 10
	recencyPerDay = 1
)

// Breakdown holds the individual contributions of a personalization score.
type Breakdown struct {
	Category float64
	Tags     float64
	Quality  float64
	Recency  float64
	Total    float64 // rounded to two decimals
}

// Personalization scores a video against a user's affinity profile. Scores
// are in [0, 100].
type Personalization struct{}

// NewPersonalization creates a personalization scorer.
func NewPersonalization() *Personalization {
	return &Personalization{}
}

// Breakdown computes each contribution and the rounded total. A nil profile
// behaves like an empty one.
func (p *Personalization) Breakdown(v model.Video, profile *model.AffinityProfile, now time.Time) Breakdown {
	if profile == nil {
		profile = model.NewAffinityProfile()
	}
	// floored to 1 so an empty history never divides by zero
	total := float64(max(1, NonNegative(profile.TotalWatched)))

	b := Breakdown{
		Category: categoryAffinity(v.Category, profile.WatchedCategories, total),
		Tags:     tagAffinity(v.Tags, profile.WatchedTags, total),
		Quality:  engagementQuality(v.LikeCount, v.DislikeCount),
		Recency:  linearRecency(v.CreatedAt, now),
	}
	b.Total = Round2(b.Category + b.Tags + b.Quality + b.Recency)
	return b
}

// Score implements Scorer.
func (p *Personalization) Score(_ context.Context, in Input) (Result, error) {
	return Result{VideoID: in.Video.ID, Score: p.Breakdown(in.Video, in.Profile, in.Now).Total}, nil
}

func categoryAffinity(category string, watched map[string]int64, total float64) float64 {
	if category == "" {
		return 0
	}
	count, ok := watched[category]
	if !ok {
		return 0
	}
	return Clamp(SafeRatio(float64(NonNegative(count)), total)*categoryCap, 0, categoryCap)
}

func tagAffinity(tags []string, watched map[string]int64, total float64) float64 {
	if len(tags) == 0 || len(watched) == 0 {
		return 0
	}
	var sum float64
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if count, ok := watched[t]; ok {
			sum += SafeRatio(float64(NonNegative(count)), total)
		}
	}
	return Clamp(sum*tagCap, 0, tagCap)
}

func engagementQuality(likes, dislikes int64) float64 {
	l := float64(NonNegative(likes))
	d := float64(NonNegative(dislikes))
	return Clamp(SafeRatio(l, l+d)*qualityCap, 0, qualityCap)
}

// linearRecency decays from 10 to 0 over the first ten days.
func linearRecency(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	return Clamp(recencyCap-AgeHours(createdAt, now)/hoursPerDay*recencyPerDay, 0, recencyCap)
}
