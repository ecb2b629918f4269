// Package repository holds the storage collaborators of the feed: the video
// catalog, engagement counters, watch history and the ranked feed index.
package repository

import (
	"context"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/types"
)

// CandidateQuery filters catalog listings. Only eligible videos are listed.
type CandidateQuery struct {
	ExcludeOwnerID string // drop videos owned by this user
}

// Catalog stores video metadata. Counters live in a CounterStore; catalog
// reads may carry stale or zero counters.
type Catalog interface {
	// Put inserts or replaces a video's metadata and reports whether the
	// video is new. Counters on v are ignored.
	Put(ctx context.Context, v model.Video) (bool, error)
	// Get returns ErrNotFound for unknown videos.
	Get(ctx context.Context, id string) (model.Video, error)
	// List returns eligible videos ordered by ID.
	List(ctx context.Context, q CandidateQuery) ([]model.Video, error)
}

// CounterStore keeps engagement counters. Apply is atomic and never lets a
// counter drop below zero.
type CounterStore interface {
	Apply(ctx context.Context, videoID string, d model.Delta) (model.Counters, error)
	// Get returns zero counters for videos never touched.
	Get(ctx context.Context, videoID string) (model.Counters, error)
	GetMany(ctx context.Context, videoIDs []string) (map[string]model.Counters, error)
}

// HistoryStore records watches and aggregates them into affinity profiles.
// Re-watching a video refreshes its timestamp without counting twice.
type HistoryStore interface {
	RecordWatch(ctx context.Context, r model.WatchRecord) error
	Profile(ctx context.Context, userID string) (*model.AffinityProfile, error)
}

// PageQuery selects a window of the feed index.
type PageQuery struct {
	Cursor         string // ID of the first video of the page; empty starts at the top
	Limit          int
	ExcludeOwnerID string
}

// FeedIndex is a materialized, ordered global feed.
type FeedIndex interface {
	Upsert(ctx context.Context, v model.ScoredVideo) error
	Remove(ctx context.Context, videoID string) error
	// Rebuild atomically replaces the whole index.
	Rebuild(ctx context.Context, items []model.ScoredVideo) error
	// Rank returns the 1-based position of a video. ErrNotFound if absent.
	Rank(ctx context.Context, videoID string) (types.Entry, error)
	Page(ctx context.Context, q PageQuery) (types.FeedPage, error)
	Count(ctx context.Context) int
}

var (
	_ Catalog      = (*MemoryCatalog)(nil)
	_ CounterStore = (*MemoryCounters)(nil)
	_ HistoryStore = (*MemoryHistory)(nil)
	_ FeedIndex    = (*TreapIndex)(nil)
	_ CounterStore = (*RedisCounters)(nil)
	_ Catalog      = (*Postgres)(nil)
	_ HistoryStore = (*Postgres)(nil)
	_ CounterStore = postgresCounters{}
)
