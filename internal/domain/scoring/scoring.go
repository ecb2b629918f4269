// Package scoring computes feed ranking scores for candidate videos.
//
// All scorers are pure: the result depends only on the video, the optional
// affinity profile and the supplied instant. Callers scoring a batch should
// capture one instant and pass it to every call.
package scoring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
)

// Mode names a built-in scorer.
type Mode string

// Built-in scoring modes.
const (
	ModeEngagement   Mode = "engagement"
	ModeTrending     Mode = "trending"
	ModePersonalized Mode = "personalized"
)

// Input carries everything a scorer may use.
type Input struct {
	Video   model.Video
	Profile *model.AffinityProfile // read by the personalized and relevance scorers
	Now     time.Time
}

// Result contains the computed score for a video.
type Result struct {
	VideoID string
	Score   float64
}

// Scorer computes a score from an input.
type Scorer interface {
	// Score computes a score, honoring ctx for cancellation.
	Score(ctx context.Context, in Input) (Result, error)
}

// ParseMode validates s as a scoring mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeEngagement, ModeTrending, ModePersonalized:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// ByName returns the built-in scorer for name. Options configure the
// engagement scorer and are ignored by the others.
func ByName(name string, opts ...Option) (Scorer, error) {
	mode, err := ParseMode(name)
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeTrending:
		return NewTrending(), nil
	case ModePersonalized:
		return NewPersonalization(), nil
	default:
		return NewEngagement(opts...), nil
	}
}
