package repository

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/metrics"
)

// MemoryCatalog is an in-memory Catalog.
type MemoryCatalog struct {
	mu     sync.RWMutex
	videos map[string]model.Video
}

// NewMemoryCatalog returns an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{videos: make(map[string]model.Video)}
}

// Put stores v without its counters and reports whether the id was new.
func (c *MemoryCatalog) Put(_ context.Context, v model.Video) (bool, error) {
	if v.ID == "" {
		return false, fmt.Errorf("%w: empty id", ErrInvalidVideo)
	}
	v = v.WithCounters(model.Counters{})
	v.Tags = slices.Clone(v.Tags)

	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.videos[v.ID]
	c.videos[v.ID] = v
	return !exists, nil
}

// Get returns the video or ErrNotFound.
func (c *MemoryCatalog) Get(_ context.Context, id string) (model.Video, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.videos[id]
	if !ok {
		return model.Video{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return v, nil
}

// List returns eligible videos ordered by id, skipping q.ExcludeOwnerID.
func (c *MemoryCatalog) List(_ context.Context, q CandidateQuery) ([]model.Video, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency("catalog", float64(time.Since(start).Microseconds())/1000)
	}()

	c.mu.RLock()
	out := make([]model.Video, 0, len(c.videos))
	for _, v := range c.videos {
		if !v.Eligible() || (q.ExcludeOwnerID != "" && v.OwnerID == q.ExcludeOwnerID) {
			continue
		}
		out = append(out, v)
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.Video) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// counterCell holds one video's counters. All four fields change together
// under mu so every read sees a single applied state.
type counterCell struct {
	mu       sync.Mutex
	counters model.Counters
}

func (c *counterCell) apply(d model.Delta) (model.Counters, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, clamped := c.counters.ApplyFloored(d)
	c.counters = next
	return next, clamped
}

func (c *counterCell) snapshot() model.Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}

// MemoryCounters is an in-memory CounterStore.
type MemoryCounters struct {
	cells sync.Map // videoID -> *counterCell
}

// NewMemoryCounters returns an empty counter store.
func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{}
}

func (m *MemoryCounters) cell(id string) *counterCell {
	if c, ok := m.cells.Load(id); ok {
		return c.(*counterCell) //nolint:forcetypeassert // map only holds cells
	}
	c, _ := m.cells.LoadOrStore(id, &counterCell{})
	return c.(*counterCell) //nolint:forcetypeassert // map only holds cells
}

// Apply adds d to the video's counters, flooring each at zero, and returns
// the resulting counters.
func (m *MemoryCounters) Apply(_ context.Context, videoID string, d model.Delta) (model.Counters, error) {
	if videoID == "" {
		return model.Counters{}, fmt.Errorf("%w: empty id", ErrInvalidVideo)
	}
	out, clamped := m.cell(videoID).apply(d)
	if clamped {
		metrics.RecordCounterClamped("memory")
	}
	return out, nil
}

// Get returns the video's counters, zero when it has none.
func (m *MemoryCounters) Get(_ context.Context, videoID string) (model.Counters, error) {
	c, ok := m.cells.Load(videoID)
	if !ok {
		return model.Counters{}, nil
	}
	return c.(*counterCell).snapshot(), nil //nolint:forcetypeassert // map only holds cells
}

// GetMany returns counters for every id, zero for unknown ones.
func (m *MemoryCounters) GetMany(ctx context.Context, videoIDs []string) (map[string]model.Counters, error) {
	out := make(map[string]model.Counters, len(videoIDs))
	for _, id := range videoIDs {
		c, _ := m.Get(ctx, id)
		out[id] = c
	}
	return out, nil
}

// MemoryHistory is an in-memory HistoryStore that resolves watched videos
// through a Catalog.
type MemoryHistory struct {
	catalog Catalog

	mu      sync.RWMutex
	watches map[string]map[string]time.Time // userID -> videoID -> last watched
}

// NewMemoryHistory returns an empty history backed by catalog.
func NewMemoryHistory(catalog Catalog) *MemoryHistory {
	return &MemoryHistory{catalog: catalog, watches: make(map[string]map[string]time.Time)}
}

// RecordWatch stores the latest watch time per user and video.
func (h *MemoryHistory) RecordWatch(_ context.Context, r model.WatchRecord) error {
	if r.UserID == "" || r.VideoID == "" {
		return fmt.Errorf("%w: watch record needs user and video", ErrInvalidVideo)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	byVideo, ok := h.watches[r.UserID]
	if !ok {
		byVideo = make(map[string]time.Time)
		h.watches[r.UserID] = byVideo
	}
	byVideo[r.VideoID] = r.WatchedAt
	return nil
}

// Profile aggregates one watch per distinct video. Videos missing from the
// catalog are skipped.
func (h *MemoryHistory) Profile(ctx context.Context, userID string) (*model.AffinityProfile, error) {
	h.mu.RLock()
	ids := make([]string, 0, len(h.watches[userID]))
	for id := range h.watches[userID] {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	p := model.NewAffinityProfile()
	for _, id := range ids {
		v, err := h.catalog.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		p.Add(v)
	}
	return p, nil
}
