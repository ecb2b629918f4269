package repository

import "time"

// Option applies a configuration option to the TreapIndex.
type Option func(*TreapIndex)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *TreapIndex) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithPriorities overrides the source of treap priorities. Intended for
// reproducible tree shapes in tests.
func WithPriorities(next func() uint64) Option {
	return func(s *TreapIndex) {
		if next != nil {
			s.priority = next
		}
	}
}
