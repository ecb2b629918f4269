package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/okian/feedrank/internal/domain/feed"
	"github.com/okian/feedrank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // fixed test clock

func sv(id, owner string, score float64, age time.Duration) model.ScoredVideo {
	return model.ScoredVideo{Video: model.Video{ID: id, OwnerID: owner, CreatedAt: base.Add(-age)}, Score: score}
}

func newTestIndex(ctx context.Context) *TreapIndex {
	rng := rand.New(rand.NewPCG(1, 2))
	return NewTreapIndex(ctx, WithPriorities(rng.Uint64), WithMetricsUpdateInterval(time.Hour))
}

func pageIDs(idx *TreapIndex, q PageQuery) ([]string, string, error) {
	p, err := idx.Page(context.Background(), q)
	if err != nil {
		return nil, "", err
	}
	out := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		out[i] = e.VideoID
	}
	return out, p.NextCursor, nil
}

func TestTreapIndex(t *testing.T) {
	Convey("Given a feed index", t, func() {
		ctx := context.Background()
		idx := newTestIndex(ctx)
		Reset(func() { _ = idx.Close() })

		for _, it := range []model.ScoredVideo{
			sv("a", "u1", 100, time.Hour),
			sv("b", "u2", 300, time.Hour),
			sv("c", "u1", 200, time.Hour),
			sv("d", "u3", 200, 2*time.Hour),
			sv("e", "u2", 200, time.Hour),
		} {
			So(idx.Upsert(ctx, it), ShouldBeNil)
		}

		Convey("When reading the first page", func() {
			ids, next, err := pageIDs(idx, PageQuery{Limit: 3})

			Convey("Then order is score desc, newest first, then ID asc", func() {
				So(err, ShouldBeNil)
				So(ids, ShouldResemble, []string{"b", "c", "e"})
				So(next, ShouldEqual, "d")
			})
		})

		Convey("When following the cursor", func() {
			ids, next, err := pageIDs(idx, PageQuery{Cursor: "d", Limit: 3})

			Convey("Then the rest of the feed is returned", func() {
				So(err, ShouldBeNil)
				So(ids, ShouldResemble, []string{"d", "a"})
				So(next, ShouldBeEmpty)
			})
		})

		Convey("When excluding an owner", func() {
			p, err := idx.Page(ctx, PageQuery{Limit: 2, ExcludeOwnerID: "u2"})

			Convey("Then their videos are skipped and ranks stay global", func() {
				So(err, ShouldBeNil)
				So(p.Entries, ShouldHaveLength, 2)
				So(p.Entries[0].VideoID, ShouldEqual, "c")
				So(p.Entries[0].Rank, ShouldEqual, 2)
				So(p.Entries[1].VideoID, ShouldEqual, "d")
				So(p.NextCursor, ShouldEqual, "a")
			})
		})

		Convey("When ranking videos", func() {
			e, err := idx.Rank(ctx, "d")

			Convey("Then rank is the 1-based position", func() {
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 4)
				So(e.Score, ShouldEqual, 200)
				So(e.OwnerID, ShouldEqual, "u3")
			})
		})

		Convey("When a video's score changes", func() {
			So(idx.Upsert(ctx, sv("a", "u1", 1000, time.Hour)), ShouldBeNil)

			Convey("Then it moves without duplication", func() {
				So(idx.Count(ctx), ShouldEqual, 5)
				e, err := idx.Rank(ctx, "a")
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 1)
			})
		})

		Convey("When a video is removed", func() {
			So(idx.Remove(ctx, "b"), ShouldBeNil)
			So(idx.Remove(ctx, "missing"), ShouldBeNil)

			Convey("Then it is gone", func() {
				_, err := idx.Rank(ctx, "b")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(idx.Count(ctx), ShouldEqual, 4)
			})

			Convey("Then it is no longer a valid cursor", func() {
				_, err := idx.Page(ctx, PageQuery{Cursor: "b", Limit: 1})
				So(errors.Is(err, ErrInvalidCursor), ShouldBeTrue)
			})
		})

		Convey("When rebuilt", func() {
			So(idx.Rebuild(ctx, []model.ScoredVideo{sv("x", "u9", 1, 0), sv("y", "u9", 2, 0)}), ShouldBeNil)

			Convey("Then only the new contents remain", func() {
				ids, _, err := pageIDs(idx, PageQuery{Limit: 10})
				So(err, ShouldBeNil)
				So(ids, ShouldResemble, []string{"y", "x"})
			})
		})

		Convey("When writes land between the snapshot and the rebuild", func() {
			since := idx.Generation()
			snapshot := []model.ScoredVideo{sv("a", "u1", 1, 0), sv("b", "u2", 2, 0), sv("c", "u3", 3, 0)}
			So(idx.Upsert(ctx, sv("a", "u1", 500, 0)), ShouldBeNil)
			So(idx.Remove(ctx, "c"), ShouldBeNil)
			So(idx.RebuildSince(ctx, snapshot, since), ShouldBeNil)

			Convey("Then the newer writes survive", func() {
				a, err := idx.Rank(ctx, "a")
				So(err, ShouldBeNil)
				So(a.Score, ShouldEqual, 500)
				So(a.Rank, ShouldEqual, 1)
				_, err = idx.Rank(ctx, "c")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(idx.Count(ctx), ShouldEqual, 2)
			})

			Convey("Then a later rebuild from a fresh snapshot wins", func() {
				So(idx.RebuildSince(ctx, []model.ScoredVideo{sv("a", "u1", 7, 0)}, idx.Generation()), ShouldBeNil)
				a, err := idx.Rank(ctx, "a")
				So(err, ShouldBeNil)
				So(a.Score, ShouldEqual, 7)
				So(idx.Count(ctx), ShouldEqual, 1)
			})
		})

		Convey("When the limit is invalid", func() {
			_, err := idx.Page(ctx, PageQuery{Limit: 0})

			Convey("Then ErrInvalidLimit is returned", func() {
				So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)
			})
		})

		Convey("When upserting a video without an ID", func() {
			err := idx.Upsert(ctx, model.ScoredVideo{})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, ErrInvalidVideo), ShouldBeTrue)
			})
		})
	})
}

func TestTreapIndexMatchesSortedOrder(t *testing.T) {
	Convey("Given many random upserts", t, func() {
		ctx := context.Background()
		idx := newTestIndex(ctx)
		Reset(func() { _ = idx.Close() })

		rng := rand.New(rand.NewPCG(7, 7))
		latest := map[string]model.ScoredVideo{}
		for range 3000 {
			id := fmt.Sprintf("v%03d", rng.IntN(500))
			it := sv(id, "u", float64(rng.IntN(50)), time.Duration(rng.IntN(10))*time.Hour)
			latest[id] = it
			So(idx.Upsert(ctx, it), ShouldBeNil)
		}

		want := make([]model.ScoredVideo, 0, len(latest))
		for _, it := range latest {
			want = append(want, it)
		}
		sort.Slice(want, func(i, j int) bool { return feed.Compare(want[i], want[j]) < 0 })

		Convey("Then paging the whole index reproduces the sorted order", func() {
			var got []string
			cursor := ""
			for {
				ids, next, err := pageIDs(idx, PageQuery{Cursor: cursor, Limit: 37})
				So(err, ShouldBeNil)
				got = append(got, ids...)
				if next == "" {
					break
				}
				cursor = next
			}
			So(len(got), ShouldEqual, len(want))
			for i := range want {
				if got[i] != want[i].Video.ID {
					So(got[i], ShouldEqual, want[i].Video.ID)
				}
			}
		})

		Convey("Then every rank agrees with the sorted position", func() {
			for i, it := range want {
				e, err := idx.Rank(ctx, it.Video.ID)
				So(err, ShouldBeNil)
				if e.Rank != i+1 {
					So(e.Rank, ShouldEqual, i+1)
				}
			}
		})

		Convey("Then the tree stays shallow", func() {
			So(depth(idx.root), ShouldBeLessThan, 60)
		})
	})
}

func TestTreapIndexConcurrency(t *testing.T) {
	Convey("Given concurrent writers and readers", t, func() {
		ctx := context.Background()
		idx := NewTreapIndex(ctx)
		Reset(func() { _ = idx.Close() })

		var wg sync.WaitGroup
		for w := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range 200 {
					_ = idx.Upsert(ctx, sv(fmt.Sprintf("w%d-%d", w, i%50), "u", float64(i), 0))
					_, _ = idx.Page(ctx, PageQuery{Limit: 10})
					_, _ = idx.Rank(ctx, fmt.Sprintf("w%d-%d", w, i%50))
				}
			}()
		}
		wg.Wait()

		So(idx.Count(ctx), ShouldEqual, 8*50)
		So(nsize(idx.root), ShouldEqual, 8*50)
	})
}

func depth(n *node) int {
	if n == nil {
		return 0
	}
	return 1 + max(depth(n.left), depth(n.right))
}
