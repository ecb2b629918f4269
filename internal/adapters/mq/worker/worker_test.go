package worker_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/okian/feedrank/internal/adapters/mq/queue"
	"github.com/okian/feedrank/internal/adapters/mq/worker"
	"github.com/okian/feedrank/internal/adapters/repository"
	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/scoring"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fixture struct {
	queue    *queue.InMemoryQueue
	catalog  *repository.MemoryCatalog
	counters *repository.MemoryCounters
	index    *repository.TreapIndex
	deps     worker.Deps
}

func newFixture(ctx context.Context) *fixture {
	f := &fixture{
		queue:    queue.NewInMemoryQueue(queue.WithCapacity(1024)),
		catalog:  repository.NewMemoryCatalog(),
		counters: repository.NewMemoryCounters(),
		index:    repository.NewTreapIndex(ctx),
	}
	f.deps = worker.Deps{
		Catalog:  f.catalog,
		Counters: f.counters,
		Index:    f.index,
		Scorer:   scoring.NewEngagement(),
	}
	return f
}

func (f *fixture) put(ctx context.Context, id string, createdAt time.Time) {
	_, _ = f.catalog.Put(ctx, model.Video{
		ID:         id,
		OwnerID:    "owner-" + id,
		CreatedAt:  createdAt,
		Visibility: model.VisibilityPublic,
		Approved:   true,
	})
}

func (f *fixture) send(ctx context.Context, id, videoID string, kind model.EventKind) {
	_ = f.queue.Enqueue(ctx, model.EngagementEvent{EventID: id, VideoID: videoID, Kind: kind, TS: fixedNow})
}

// eventually polls cond until it holds or a second passes.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

type failingCounters struct{}

func (failingCounters) Apply(context.Context, string, model.Delta) (model.Counters, error) {
	return model.Counters{}, errors.New("counter store down")
}

func (failingCounters) Get(context.Context, string) (model.Counters, error) {
	return model.Counters{}, errors.New("counter store down")
}

// laggingCounters delays every Apply result the way a remote store does, so
// workers finishing out of order is likely.
type laggingCounters struct {
	*repository.MemoryCounters
}

func (c laggingCounters) Apply(ctx context.Context, id string, d model.Delta) (model.Counters, error) {
	out, err := c.MemoryCounters.Apply(ctx, id, d)
	time.Sleep(time.Duration(rand.IntN(200)) * time.Microsecond)
	return out, err
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f := newFixture(ctx)
		defer f.index.Close()

		now := func() time.Time { return fixedNow }
		f.put(ctx, "v1", fixedNow.Add(-40*24*time.Hour))
		f.put(ctx, "v2", fixedNow.Add(-time.Hour))

		convey.Convey("When engagement events arrive", func() {
			w := worker.NewInMemoryWorker(f.queue, f.deps, worker.WithName("test-worker"), worker.WithClock(now))
			go w.Run(ctx)

			f.send(ctx, "e1", "v1", model.KindView)
			f.send(ctx, "e2", "v1", model.KindLike)
			f.send(ctx, "e3", "v1", model.KindDislike)

			convey.Convey("Then counters and the index reflect them", func() {
				ok := eventually(func() bool {
					c, _ := f.counters.Get(ctx, "v1")
					return c.Dislikes == 1
				})
				convey.So(ok, convey.ShouldBeTrue)

				c, _ := f.counters.Get(ctx, "v1")
				convey.So(c, convey.ShouldResemble, model.Counters{Views: 1, Likes: 1, Dislikes: 1})

				entry, err := f.index.Rank(ctx, "v1")
				convey.So(err, convey.ShouldBeNil)
				// 1 + 5 - 3, no recency boost at 40 days
				convey.So(entry.Score, convey.ShouldEqual, 3)
			})

			convey.Convey("And retractions never drive counters negative", func() {
				f.send(ctx, "e4", "v2", model.KindUnlike)
				f.send(ctx, "e5", "v2", model.KindUnlike)

				ok := eventually(func() bool {
					_, err := f.index.Rank(ctx, "v2")
					return err == nil
				})
				convey.So(ok, convey.ShouldBeTrue)

				c, _ := f.counters.Get(ctx, "v2")
				convey.So(c.Likes, convey.ShouldEqual, 0)

				entry, _ := f.index.Rank(ctx, "v2")
				convey.So(entry.Score, convey.ShouldEqual, 100)
			})

			convey.Convey("And events for unknown videos are dropped", func() {
				f.send(ctx, "e6", "missing", model.KindView)
				f.send(ctx, "e7", "v2", model.KindView)

				ok := eventually(func() bool {
					c, _ := f.counters.Get(ctx, "v2")
					return c.Views == 1
				})
				convey.So(ok, convey.ShouldBeTrue)

				c, _ := f.counters.Get(ctx, "missing")
				convey.So(c, convey.ShouldResemble, model.Counters{})
				_, err := f.index.Rank(ctx, "missing")
				convey.So(errors.Is(err, repository.ErrNotFound), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a video becomes ineligible", func() {
			w := worker.NewInMemoryWorker(f.queue, f.deps, worker.WithClock(now))
			go w.Run(ctx)

			f.send(ctx, "e1", "v1", model.KindView)
			convey.So(eventually(func() bool { return f.index.Count(ctx) == 1 }), convey.ShouldBeTrue)

			v, _ := f.catalog.Get(ctx, "v1")
			v.Visibility = model.VisibilityPrivate
			_, _ = f.catalog.Put(ctx, v)
			f.send(ctx, "e2", "v1", model.KindView)

			convey.Convey("Then the next event removes it from the index", func() {
				convey.So(eventually(func() bool { return f.index.Count(ctx) == 0 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the counter store fails", func() {
			deps := f.deps
			deps.Counters = failingCounters{}
			w := worker.NewInMemoryWorker(f.queue, deps, worker.WithClock(now))
			go w.Run(ctx)

			f.send(ctx, "e1", "v1", model.KindLike)

			convey.Convey("Then the worker keeps running and nothing is indexed", func() {
				convey.So(eventually(func() bool { return f.queue.Len() == 0 }), convey.ShouldBeTrue)
				time.Sleep(20 * time.Millisecond)
				convey.So(f.index.Count(ctx), convey.ShouldEqual, 0)

				shutdownCtx, stop := context.WithTimeout(ctx, time.Second)
				defer stop()
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerShutdown(t *testing.T) {
	convey.Convey("Given a worker that was never started", t, func() {
		ctx := context.Background()
		f := newFixture(ctx)
		defer f.index.Close()
		w := worker.NewInMemoryWorker(f.queue, f.deps)

		convey.Convey("When shutdown is bounded by a short deadline", func() {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			err := w.Shutdown(shutdownCtx)

			convey.Convey("Then it reports the timeout", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f := newFixture(ctx)
		defer f.index.Close()

		const videos = 20
		for i := range videos {
			f.put(ctx, fmt.Sprintf("v%02d", i), fixedNow.Add(-60*24*time.Hour))
		}

		pool := worker.NewPool(4, f.queue, f.deps, worker.WithClock(func() time.Time { return fixedNow }))
		convey.So(pool.Size(), convey.ShouldEqual, 4)
		pool.Start(ctx)

		convey.Convey("When many events are sent concurrently and the pool shuts down", func() {
			var wg sync.WaitGroup
			for g := range 5 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := range videos {
						f.send(ctx, fmt.Sprintf("%d-%d", g, i), fmt.Sprintf("v%02d", i), model.KindLike)
					}
				}()
			}
			wg.Wait()

			shutdownCtx, stop := context.WithTimeout(ctx, 5*time.Second)
			defer stop()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then every buffered event is applied exactly once", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(f.index.Count(ctx), convey.ShouldEqual, videos)
				for i := range videos {
					c, _ := f.counters.Get(ctx, fmt.Sprintf("v%02d", i))
					convey.So(c.Likes, convey.ShouldEqual, 5)
				}
				entry, _ := f.index.Rank(ctx, "v00")
				convey.So(entry.Score, convey.ShouldEqual, 25)
			})

			convey.Convey("And the queue rejects further events", func() {
				err := f.queue.Enqueue(ctx, model.EngagementEvent{EventID: "late", VideoID: "v00", Kind: model.KindView})
				convey.So(errors.Is(err, queue.ErrClosed), convey.ShouldBeTrue)
			})
		})
	})
}

func TestWorkerPoolSameVideoOrdering(t *testing.T) {
	convey.Convey("Given many workers and one hot video behind a slow counter store", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		const events = 2000
		for trial := range 3 {
			f := newFixture(ctx)
			q := queue.NewInMemoryQueue(queue.WithCapacity(events))
			f.put(ctx, "hot", fixedNow.Add(-60*24*time.Hour))
			f.deps.Counters = laggingCounters{f.counters}
			f.deps.Locks = repository.NewKeyedLocker(0)

			pool := worker.NewPool(16, q, f.deps, worker.WithClock(func() time.Time { return fixedNow }))
			pool.Start(ctx)
			for i := range events {
				convey.So(q.Enqueue(ctx, model.EngagementEvent{EventID: fmt.Sprintf("%d-%d", trial, i), VideoID: "hot", Kind: model.KindView}), convey.ShouldBeNil)
			}

			shutdownCtx, stop := context.WithTimeout(ctx, 10*time.Second)
			convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
			stop()

			c, err := f.counters.Get(ctx, "hot")
			convey.So(err, convey.ShouldBeNil)
			convey.So(c.Views, convey.ShouldEqual, events)

			entry, err := f.index.Rank(ctx, "hot")
			convey.So(err, convey.ShouldBeNil)
			convey.So(entry.Score, convey.ShouldEqual, float64(events))
			_ = f.index.Close()
		}
	})
}
