package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/okian/feedrank/internal/adapters/http/api"
	service "github.com/okian/feedrank/internal/app"
	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/types"
	"github.com/okian/feedrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// mockDependencies records calls and returns canned results.
type mockDependencies struct {
	putErr     error
	created    bool
	putVideos  []model.Video
	enqueueErr error
	duplicate  bool
	events     []model.EngagementEvent
	watchErr   error
	watches    []model.WatchRecord
	page       types.FeedPage
	feedErr    error
	queries    []service.FeedQuery
	rank       types.Entry
	rankErr    error
	score      service.ScoreResult
	scoreErr   error
	scoreReqs  []service.ScoreRequest
}

func (m *mockDependencies) PutVideo(_ context.Context, v model.Video) (bool, error) {
	m.putVideos = append(m.putVideos, v)
	return m.created, m.putErr
}

func (m *mockDependencies) Enqueue(_ context.Context, ev model.EngagementEvent) (bool, error) {
	m.events = append(m.events, ev)
	return m.duplicate, m.enqueueErr
}

func (m *mockDependencies) RecordWatch(_ context.Context, r model.WatchRecord) error {
	m.watches = append(m.watches, r)
	return m.watchErr
}

func (m *mockDependencies) Feed(_ context.Context, q service.FeedQuery) (types.FeedPage, error) {
	m.queries = append(m.queries, q)
	return m.page, m.feedErr
}

func (m *mockDependencies) PersonalizedFeed(ctx context.Context, q service.FeedQuery) (types.FeedPage, error) {
	return m.Feed(ctx, q)
}

func (m *mockDependencies) TrendingFeed(ctx context.Context, q service.FeedQuery) (types.FeedPage, error) {
	return m.Feed(ctx, q)
}

func (m *mockDependencies) Rank(_ context.Context, _ string) (types.Entry, error) {
	return m.rank, m.rankErr
}

func (m *mockDependencies) ScoreOne(_ context.Context, req service.ScoreRequest) (service.ScoreResult, error) {
	m.scoreReqs = append(m.scoreReqs, req)
	return m.score, m.scoreErr
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

func newMux(deps api.Dependencies, maxLimit int) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]any{"started": true}}, maxLimit).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(&mockDependencies{}, 50)

		Convey("Then health exposes Prometheus metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "feedrank_feed_")
		})

		Convey("And stats are served as JSON", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("And wrong methods are not found", func() {
			So(do(mux, http.MethodGet, "/events", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/feed", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/stats", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestEventsHandler(t *testing.T) {
	Convey("Given the events endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, 50)
		videoID := uuid.NewString()
		valid := fmt.Sprintf(`{"event_id":"e1","video_id":%q,"kind":"like","ts":"2025-06-01T12:00:00Z"}`, videoID)

		Convey("When a valid event is posted", func() {
			w := do(mux, http.MethodPost, "/events", valid)

			Convey("Then it is accepted and forwarded", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(deps.events, ShouldHaveLength, 1)
				So(deps.events[0].Kind, ShouldEqual, model.KindLike)
				So(deps.events[0].TS.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)), ShouldBeTrue)
			})
		})

		Convey("When the event is a duplicate", func() {
			deps.duplicate = true
			w := do(mux, http.MethodPost, "/events", valid)

			Convey("Then it is acknowledged with 200", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"duplicate":true`)
			})
		})

		Convey("When the queue is full", func() {
			deps.enqueueErr = fmt.Errorf("%w: queue full", service.ErrBackpressure)
			w := do(mux, http.MethodPost, "/events", valid)

			Convey("Then it answers 429", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(errorCode(w), ShouldEqual, "backpressure")
			})
		})

		Convey("When the video is unknown", func() {
			deps.enqueueErr = fmt.Errorf("event e1: %w", service.ErrNotFound)
			w := do(mux, http.MethodPost, "/events", valid)

			Convey("Then it answers 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the payload is malformed", func() {
			cases := []string{
				`not json`,
				`{}`,
				`{"event_id":"e1","video_id":"v","kind":"like"}`,
				`{"event_id":"e1","video_id":"v","kind":"like","ts":"yesterday"}`,
				`{"event_id":"e1","video_id":"v","kind":"share","ts":"2025-06-01T12:00:00Z"}`,
				`{"event_id":"e1","video_id":"v","kind":"like","ts":"2025-06-01T12:00:00Z","extra":1}`,
			}
			for _, body := range cases {
				w := do(mux, http.MethodPost, "/events", body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
			So(deps.events, ShouldBeEmpty)
		})
	})
}

func TestVideosAndHistoryHandlers(t *testing.T) {
	Convey("Given the video and history endpoints", t, func() {
		deps := &mockDependencies{created: true}
		mux := newMux(deps, 50)
		id := uuid.NewString()

		Convey("When a new video is posted without approval", func() {
			w := do(mux, http.MethodPost, "/videos",
				fmt.Sprintf(`{"id":%q,"owner_id":"u1","created_at":"2025-05-30T00:00:00Z","tags":["a","b"],"like_count":3}`, id))

			Convey("Then it is created as approved", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(deps.putVideos, ShouldHaveLength, 1)
				So(deps.putVideos[0].Approved, ShouldBeTrue)
				So(deps.putVideos[0].LikeCount, ShouldEqual, 3)
				So(deps.putVideos[0].Tags, ShouldResemble, []string{"a", "b"})
			})
		})

		Convey("When an existing video is hidden", func() {
			deps.created = false
			w := do(mux, http.MethodPost, "/videos", fmt.Sprintf(`{"id":%q,"owner_id":"u1","approved":false}`, id))

			Convey("Then it is updated with 200", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.putVideos[0].Approved, ShouldBeFalse)
				So(deps.putVideos[0].CreatedAt.IsZero(), ShouldBeTrue)
			})
		})

		Convey("When the service rejects the video", func() {
			deps.putErr = fmt.Errorf("%w: id must be a uuid", service.ErrInvalidInput)
			w := do(mux, http.MethodPost, "/videos", `{"id":"x","owner_id":"u1"}`)

			Convey("Then it answers 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When a watch is posted", func() {
			w := do(mux, http.MethodPost, "/history", fmt.Sprintf(`{"user_id":"u2","video_id":%q}`, id))

			Convey("Then it is recorded", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(deps.watches, ShouldHaveLength, 1)
				So(deps.watches[0].WatchedAt.IsZero(), ShouldBeTrue)
			})
		})

		Convey("When a watch misses its user", func() {
			w := do(mux, http.MethodPost, "/history", fmt.Sprintf(`{"video_id":%q}`, id))

			Convey("Then it answers 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(deps.watches, ShouldBeEmpty)
			})
		})
	})
}

func TestFeedHandlers(t *testing.T) {
	Convey("Given the feed endpoints", t, func() {
		deps := &mockDependencies{page: types.FeedPage{
			Entries:    []types.Entry{{Rank: 1, VideoID: "v1", Score: 100}},
			NextCursor: "v2",
		}}
		mux := newMux(deps, 50)

		Convey("When the limit is omitted", func() {
			w := do(mux, http.MethodGet, "/feed", "")

			Convey("Then the default of 20 is used", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.queries[0].Limit, ShouldEqual, 20)
				var page types.FeedPage
				So(json.Unmarshal(w.Body.Bytes(), &page), ShouldBeNil)
				So(page.NextCursor, ShouldEqual, "v2")
				So(page.Entries[0].VideoID, ShouldEqual, "v1")
			})
		})

		Convey("When query parameters are given", func() {
			do(mux, http.MethodGet, "/feed?limit=5&cursor=abc&exclude_user=u1", "")
			do(mux, http.MethodGet, "/feed/personalized?user_id=u2&limit=7", "")
			do(mux, http.MethodGet, "/feed/trending?limit=3&user_id=ignored", "")

			Convey("Then they reach the service", func() {
				So(deps.queries, ShouldResemble, []service.FeedQuery{
					{Cursor: "abc", Limit: 5, UserID: "u1"},
					{Limit: 7, UserID: "u2"},
					{Limit: 3},
				})
			})
		})

		Convey("When the limit is out of range", func() {
			tooBig := do(mux, http.MethodGet, "/feed?limit=51", "")
			zero := do(mux, http.MethodGet, "/feed?limit=0", "")
			junk := do(mux, http.MethodGet, "/feed/trending?limit=ten", "")

			Convey("Then the request is rejected", func() {
				So(tooBig.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(tooBig), ShouldEqual, "limit_exceeded")
				So(zero.Code, ShouldEqual, http.StatusBadRequest)
				So(junk.Code, ShouldEqual, http.StatusBadRequest)
				So(deps.queries, ShouldBeEmpty)
			})
		})

		Convey("When the cursor is unknown", func() {
			deps.feedErr = fmt.Errorf("%w: invalid cursor", service.ErrInvalidInput)
			w := do(mux, http.MethodGet, "/feed?cursor=nope", "")

			Convey("Then it answers 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the page is empty", func() {
			deps.page = types.FeedPage{}
			w := do(mux, http.MethodGet, "/feed/trending", "")

			Convey("Then entries encode as an empty list", func() {
				So(w.Body.String(), ShouldContainSubstring, `"entries":[]`)
			})
		})
	})
}

func TestRankHandler(t *testing.T) {
	Convey("Given the rank endpoint", t, func() {
		deps := &mockDependencies{rank: types.Entry{Rank: 3, VideoID: "v1", Score: 42}}
		mux := newMux(deps, 50)

		Convey("When the video is indexed", func() {
			w := do(mux, http.MethodGet, "/rank/v1", "")

			Convey("Then its entry is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"rank":3`)
			})
		})

		Convey("When the video is missing", func() {
			deps.rankErr = fmt.Errorf("%w: v1", service.ErrNotFound)
			w := do(mux, http.MethodGet, "/rank/v1", "")

			Convey("Then it answers 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(errorCode(w), ShouldEqual, "not_found")
			})
		})

		Convey("When the path is malformed", func() {
			So(do(mux, http.MethodGet, "/rank/", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/rank/a/b", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the service is not running", func() {
			deps.rankErr = service.ErrNotStarted
			w := do(mux, http.MethodGet, "/rank/v1", "")

			Convey("Then it answers 503", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})
	})
}

func TestScoreHandler(t *testing.T) {
	Convey("Given the score endpoint", t, func() {
		deps := &mockDependencies{score: service.ScoreResult{VideoID: "v1", Mode: "personalized", Score: 57.5}}
		mux := newMux(deps, 50)

		Convey("When a profile is supplied", func() {
			w := do(mux, http.MethodPost, "/score", `{
				"mode": "personalized",
				"video": {"id": "v1", "category": "music", "tags": ["jazz"]},
				"profile": {"watched_categories": {"music": 2}, "watched_tags": {"jazz": 1}, "total_watched": 2}
			}`)

			Convey("Then it reaches the service as an affinity profile", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.scoreReqs, ShouldHaveLength, 1)
				p := deps.scoreReqs[0].Profile
				So(p, ShouldNotBeNil)
				So(p.WatchedCategories["music"], ShouldEqual, 2)
				So(p.TotalWatched, ShouldEqual, 2)
				So(w.Body.String(), ShouldContainSubstring, `"score":57.5`)
			})
		})

		Convey("When the mode is unknown", func() {
			deps.scoreErr = fmt.Errorf("%w: unknown scoring mode", service.ErrInvalidInput)
			w := do(mux, http.MethodPost, "/score", `{"mode":"random","video":{"id":"v1"}}`)

			Convey("Then it answers 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestEndToEnd(t *testing.T) {
	Convey("Given the API in front of a running service", t, func() {
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithQueueSize(100),
			service.WithClock(func() time.Time { return now }),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		api.NewServer(svc, svc, 50).Register(context.Background(), mux)

		a, b := uuid.NewString(), uuid.NewString()
		So(do(mux, http.MethodPost, "/videos", fmt.Sprintf(`{"id":%q,"owner_id":"u1","created_at":"2025-04-01T00:00:00Z"}`, a)).Code, ShouldEqual, http.StatusCreated)
		So(do(mux, http.MethodPost, "/videos", fmt.Sprintf(`{"id":%q,"owner_id":"u2","created_at":"2025-05-31T00:00:00Z"}`, b)).Code, ShouldEqual, http.StatusCreated)

		Convey("When likes are posted for the older video", func() {
			for i := range 25 {
				body := fmt.Sprintf(`{"event_id":"like-%d","video_id":%q,"kind":"like","ts":"2025-06-01T11:00:00Z"}`, i, a)
				So(do(mux, http.MethodPost, "/events", body).Code, ShouldEqual, http.StatusAccepted)
			}

			Convey("Then it overtakes the fresh video in the global feed", func() {
				deadline := time.Now().Add(2 * time.Second)
				var page types.FeedPage
				for time.Now().Before(deadline) {
					w := do(mux, http.MethodGet, "/feed?limit=2", "")
					_ = json.Unmarshal(w.Body.Bytes(), &page)
					if len(page.Entries) == 2 && page.Entries[0].VideoID == a {
						break
					}
					time.Sleep(5 * time.Millisecond)
				}
				So(page.Entries, ShouldHaveLength, 2)
				So(page.Entries[0].VideoID, ShouldEqual, a)
				So(page.Entries[0].Score, ShouldEqual, 125)
				So(page.Entries[1].Score, ShouldEqual, 100)
			})
		})

		Convey("When an event targets an unregistered video", func() {
			body := fmt.Sprintf(`{"event_id":"x","video_id":%q,"kind":"view","ts":"2025-06-01T11:00:00Z"}`, uuid.NewString())

			Convey("Then it answers 404", func() {
				So(do(mux, http.MethodPost, "/events", body).Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}
