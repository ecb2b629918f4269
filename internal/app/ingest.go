package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	eventqueue "github.com/okian/feedrank/internal/adapters/mq/queue"
	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

func validateID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s must be a uuid", ErrInvalidInput, field)
	}
	return nil
}

func validateVideo(v model.Video) error {
	if err := validateID("id", v.ID); err != nil {
		return err
	}
	if strings.TrimSpace(v.OwnerID) == "" {
		return fmt.Errorf("%w: owner_id is required", ErrInvalidInput)
	}
	switch v.Visibility {
	case model.VisibilityPublic, model.VisibilityUnlisted, model.VisibilityPrivate:
	default:
		return fmt.Errorf("%w: unknown visibility %q", ErrInvalidInput, v.Visibility)
	}
	if v.ViewCount < 0 || v.LikeCount < 0 || v.DislikeCount < 0 || v.CommentCount < 0 {
		return fmt.Errorf("%w: counters must not be negative", ErrInvalidInput)
	}
	return nil
}

// PutVideo registers or updates a video's metadata and reports whether it is
// new. Counters on a new video seed the counter store; counters on an update
// are ignored. The video's place in the global feed is updated immediately.
func (s *Service) PutVideo(ctx context.Context, v model.Video) (bool, error) {
	p, err := s.running()
	if err != nil {
		return false, err
	}
	if v.Visibility == "" {
		v.Visibility = model.VisibilityPublic
	}
	if err := validateVideo(v); err != nil {
		return false, err
	}

	unlock := s.locks.Lock(v.ID)
	defer unlock()

	created, err := s.catalog.Put(ctx, v)
	if err != nil {
		return false, fmt.Errorf("put video %s: %w", v.ID, err)
	}

	var counters model.Counters
	if seed := v.Counters(); created && seed != (model.Counters{}) {
		counters, err = s.counters.Apply(ctx, v.ID, model.Delta(seed))
	} else {
		counters, err = s.counters.Get(ctx, v.ID)
	}
	if err != nil {
		return created, fmt.Errorf("counters for %s: %w", v.ID, err)
	}
	v = v.WithCounters(counters)

	if !v.Eligible() {
		return created, p.index.Remove(ctx, v.ID)
	}
	scored := s.engagement.Compute(v, s.now())
	if err := p.index.Upsert(ctx, model.ScoredVideo{Video: v, Score: scored}); err != nil {
		return created, fmt.Errorf("index video %s: %w", v.ID, err)
	}
	return created, nil
}

// Enqueue accepts an engagement event for asynchronous processing. It reports
// true when the event ID was seen before and the event was skipped. A full
// queue yields ErrBackpressure and the event may be retried.
func (s *Service) Enqueue(ctx context.Context, ev model.EngagementEvent) (bool, error) {
	p, err := s.running()
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(ev.EventID) == "" {
		return false, fmt.Errorf("%w: event_id is required", ErrInvalidInput)
	}
	if err := validateID("video_id", ev.VideoID); err != nil {
		return false, err
	}
	if _, err := model.ParseEventKind(string(ev.Kind)); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if _, err := s.catalog.Get(ctx, ev.VideoID); err != nil {
		return false, fmt.Errorf("event %s: %w", ev.EventID, err)
	}

	if p.deduper.SeenAndRecord(ctx, ev.EventID) {
		metrics.RecordEventDuplicate()
		s.logger.Debug(ctx, "duplicate event skipped", logger.String("event_id", ev.EventID))
		return true, nil
	}

	if err := p.queue.Enqueue(ctx, ev); err != nil {
		// forget the ID so the client can retry
		p.deduper.Unrecord(ctx, ev.EventID)
		if errors.Is(err, eventqueue.ErrFull) || errors.Is(err, eventqueue.ErrClosed) {
			return false, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return false, err
	}
	return false, nil
}

// RecordWatch adds a video to a user's watch history.
func (s *Service) RecordWatch(ctx context.Context, r model.WatchRecord) error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if err := validateID("video_id", r.VideoID); err != nil {
		return err
	}
	if r.WatchedAt.IsZero() {
		r.WatchedAt = s.now()
	}
	if _, err := s.catalog.Get(ctx, r.VideoID); err != nil {
		return fmt.Errorf("watch %s: %w", r.VideoID, err)
	}
	if err := s.history.RecordWatch(ctx, r); err != nil {
		return fmt.Errorf("record watch: %w", err)
	}
	return nil
}
