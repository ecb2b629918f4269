package scoring

// Option applies a configuration option to the Engagement scorer.
type Option func(*Engagement)

// WithWeights sets the per-counter weights. Negative values are ignored.
func WithWeights(view, like, dislike float64) Option {
	return func(e *Engagement) {
		if view >= 0 {
			e.viewWeight = view
		}
		if like >= 0 {
			e.likeWeight = like
		}
		if dislike >= 0 {
			e.dislikeWeight = dislike
		}
	}
}

// WithRecencyBoosts sets the boosts for videos younger than a week and a month.
// Negative values are ignored.
func WithRecencyBoosts(week, month float64) Option {
	return func(e *Engagement) {
		if week >= 0 {
			e.boostWeek = week
		}
		if month >= 0 {
			e.boostMonth = month
		}
	}
}
