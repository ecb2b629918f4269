package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/scoring"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

// ModeRelevance asks the external relevance model, falling back to the
// engagement scorer when it is disabled or failing.
const ModeRelevance = "relevance"

// ScoreRequest describes a stateless scoring call.
type ScoreRequest struct {
	Mode    string
	Video   model.Video
	Profile *model.AffinityProfile
	// UserID loads the profile from watch history when Profile is nil.
	UserID string
}

// ScoreResult is the outcome of ScoreOne.
type ScoreResult struct {
	VideoID   string
	Mode      string
	Score     float64
	Fallback  bool
	Breakdown *scoring.Breakdown
}

// ScoreOne scores a single video without touching any feed.
func (s *Service) ScoreOne(ctx context.Context, req ScoreRequest) (ScoreResult, error) {
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = string(scoring.ModeEngagement)
	}
	if strings.TrimSpace(req.Video.ID) == "" {
		return ScoreResult{}, fmt.Errorf("%w: video id is required", ErrInvalidInput)
	}

	profile := req.Profile
	if profile == nil && req.UserID != "" {
		p, err := s.history.Profile(ctx, req.UserID)
		if err != nil {
			return ScoreResult{}, fmt.Errorf("load profile: %w", err)
		}
		profile = p
	}

	now := s.now()
	in := scoring.Input{Video: req.Video, Profile: profile, Now: now}
	start := time.Now()
	defer func() {
		metrics.RecordScoringLatency(mode, float64(time.Since(start).Microseconds())/1000)
	}()

	if mode == ModeRelevance {
		res, err := s.relevance.Score(ctx, in)
		if err == nil {
			return ScoreResult{VideoID: req.Video.ID, Mode: mode, Score: res.Score}, nil
		}
		s.logger.Debug(ctx, "relevance unavailable, using engagement", logger.Error(err))
		return ScoreResult{
			VideoID:  req.Video.ID,
			Mode:     string(scoring.ModeEngagement),
			Score:    s.engagement.Compute(req.Video, now),
			Fallback: true,
		}, nil
	}

	parsed, err := scoring.ParseMode(mode)
	if err != nil {
		return ScoreResult{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	out := ScoreResult{VideoID: req.Video.ID, Mode: string(parsed)}
	switch parsed {
	case scoring.ModePersonalized:
		b := s.personalization.Breakdown(req.Video, profile, now)
		out.Score = b.Total
		out.Breakdown = &b
	case scoring.ModeTrending:
		out.Score = s.trending.Compute(req.Video, now)
	default:
		out.Score = s.engagement.Compute(req.Video, now)
	}
	return out, nil
}
