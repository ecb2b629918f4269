package repository

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/feedrank/internal/domain/feed"
	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/types"
	"github.com/okian/feedrank/pkg/metrics"
)

// Treap-based, in-memory FeedIndex.
//
// In-order traversal yields feed order: score DESC, createdAt DESC, ID ASC.
// Priorities are random so the expected depth is O(log n) regardless of the
// score distribution. Subtree sizes give order-statistic rank in O(log n).

type node struct {
	item  model.ScoredVideo
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// before reports whether a ranks ahead of b.
func before(a, b model.ScoredVideo) bool {
	return feed.Compare(a, b) < 0
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, item model.ScoredVideo, prio uint64) *node {
	if n == nil {
		return &node{item: item, prio: prio, size: 1}
	}
	if before(item, n.item) {
		n.left = insert(n.left, item, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, item, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, key model.ScoredVideo) *node {
	if n == nil {
		return nil
	}
	switch c := feed.Compare(key, n.item); {
	case c < 0:
		n.left = deleteNode(n.left, key)
	case c > 0:
		n.right = deleteNode(n.right, key)
	default:
		// rotate the higher priority child up until the node is a leaf
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, key)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, key)
		}
	}
	fix(n)
	return n
}

// position returns the 0-based in-order index of key, which must be present.
func position(n *node, key model.ScoredVideo) int {
	pos := 0
	for n != nil {
		switch c := feed.Compare(key, n.item); {
		case c < 0:
			n = n.left
		case c > 0:
			pos += nsize(n.left) + 1
			n = n.right
		default:
			return pos + nsize(n.left)
		}
	}
	return -1
}

// walkFrom visits nodes in order starting at the skip-th one until fn returns false.
func walkFrom(n *node, skip int, fn func(pos int, n *node) bool) {
	walk(n, skip, 0, fn)
}

func walk(n *node, skip, offset int, fn func(int, *node) bool) bool {
	if n == nil {
		return true
	}
	left := nsize(n.left)
	if skip > left {
		return walk(n.right, skip-left-1, offset+left+1, fn)
	}
	if skip < left {
		if !walk(n.left, skip, offset, fn) {
			return false
		}
	}
	if !fn(offset+left, n) {
		return false
	}
	return walk(n.right, 0, offset+left+1, fn)
}

// TreapIndex implements FeedIndex.
type TreapIndex struct {
	mu   sync.RWMutex
	root *node
	byID map[string]model.ScoredVideo

	// gen counts writes; touched holds the generation of the last Upsert or
	// Remove per video so RebuildSince can keep newer writes.
	gen     uint64
	touched map[string]uint64

	metricsUpdateInterval time.Duration
	priority              func() uint64

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTreapIndex constructs an empty index and starts its metrics updater,
// which stops on ctx cancellation or Close.
func NewTreapIndex(ctx context.Context, opts ...Option) *TreapIndex {
	s := &TreapIndex{
		byID:                  make(map[string]model.ScoredVideo),
		touched:               make(map[string]uint64),
		metricsUpdateInterval: 5 * time.Second,
		priority:              rand.Uint64,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops background goroutines.
func (s *TreapIndex) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Upsert inserts v or moves it to its new position in O(log n) expected time.
func (s *TreapIndex) Upsert(_ context.Context, v model.ScoredVideo) error {
	if v.Video.ID == "" {
		metrics.RecordFeedIndexError()
		return fmt.Errorf("%w: empty id", ErrInvalidVideo)
	}
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency("feed_index", float64(time.Since(start).Microseconds())/1000)
	}()

	s.mu.Lock()
	if old, ok := s.byID[v.Video.ID]; ok {
		s.root = deleteNode(s.root, old)
	}
	s.byID[v.Video.ID] = v
	s.root = insert(s.root, v, s.priority())
	s.gen++
	s.touched[v.Video.ID] = s.gen
	n := len(s.byID)
	s.mu.Unlock()

	metrics.RecordFeedIndexUpdate()
	metrics.UpdateFeedIndexSize(n)
	return nil
}

// Remove drops a video. Removing an absent video is not an error.
func (s *TreapIndex) Remove(_ context.Context, videoID string) error {
	s.mu.Lock()
	if old, ok := s.byID[videoID]; ok {
		s.root = deleteNode(s.root, old)
		delete(s.byID, videoID)
	}
	s.gen++
	s.touched[videoID] = s.gen
	n := len(s.byID)
	s.mu.Unlock()

	metrics.UpdateFeedIndexSize(n)
	return nil
}

// Generation returns the current write generation. Pass it to RebuildSince
// before reading the snapshot the rebuild is made from.
func (s *TreapIndex) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Rebuild replaces the index contents.
func (s *TreapIndex) Rebuild(ctx context.Context, items []model.ScoredVideo) error {
	return s.RebuildSince(ctx, items, math.MaxUint64)
}

// RebuildSince replaces the index contents with items, except for videos
// upserted or removed after generation since: those keep their live state.
// The new tree is built before the lock is taken so readers only block for
// the merge and swap.
func (s *TreapIndex) RebuildSince(ctx context.Context, items []model.ScoredVideo, since uint64) error {
	var root *node
	byID := make(map[string]model.ScoredVideo, len(items))
	for i, it := range items {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if it.Video.ID == "" {
			continue
		}
		if old, ok := byID[it.Video.ID]; ok {
			root = deleteNode(root, old)
		}
		byID[it.Video.ID] = it
		root = insert(root, it, s.priority())
	}

	s.mu.Lock()
	for id, g := range s.touched {
		if g <= since {
			delete(s.touched, id)
			continue
		}
		if stale, ok := byID[id]; ok {
			root = deleteNode(root, stale)
			delete(byID, id)
		}
		if live, ok := s.byID[id]; ok {
			byID[id] = live
			root = insert(root, live, s.priority())
		}
	}
	s.root = root
	s.byID = byID
	n := len(byID)
	s.mu.Unlock()

	metrics.UpdateFeedIndexSize(n)
	return nil
}

// Rank returns the 1-based position and score of a video in O(log n).
func (s *TreapIndex) Rank(_ context.Context, videoID string) (types.Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency("feed_index", float64(time.Since(start).Microseconds())/1000)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.byID[videoID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return types.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, videoID)
	}
	return entryAt(position(s.root, it)+1, it), nil
}

// Page returns up to q.Limit entries starting at q.Cursor. Ranks are global
// positions, so they skip over videos removed by ExcludeOwnerID.
func (s *TreapIndex) Page(_ context.Context, q PageQuery) (types.FeedPage, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency("feed_index", float64(time.Since(start).Microseconds())/1000)
	}()

	if q.Limit < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return types.FeedPage{}, fmt.Errorf("%w: %d", ErrInvalidLimit, q.Limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	skip := 0
	if q.Cursor != "" {
		it, ok := s.byID[q.Cursor]
		if !ok {
			metrics.RecordErrorByComponent("repository", "invalid_cursor")
			return types.FeedPage{}, fmt.Errorf("%w: %s", ErrInvalidCursor, q.Cursor)
		}
		skip = position(s.root, it)
	}

	page := types.FeedPage{Entries: make([]types.Entry, 0, q.Limit)}
	walkFrom(s.root, skip, func(pos int, n *node) bool {
		if q.ExcludeOwnerID != "" && n.item.Video.OwnerID == q.ExcludeOwnerID {
			return true
		}
		if len(page.Entries) == q.Limit {
			page.NextCursor = n.item.Video.ID
			return false
		}
		page.Entries = append(page.Entries, entryAt(pos+1, n.item))
		return true
	})
	return page, nil
}

// Count returns the number of indexed videos.
func (s *TreapIndex) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func entryAt(rank int, it model.ScoredVideo) types.Entry {
	return types.Entry{
		Rank:      rank,
		VideoID:   it.Video.ID,
		OwnerID:   it.Video.OwnerID,
		Score:     it.Score,
		CreatedAt: it.Video.CreatedAt,
	}
}

func (s *TreapIndex) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateFeedIndexSize(s.Count(ctx))
			}
		}
	}()
}
