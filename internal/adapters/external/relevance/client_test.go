package relevance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/scoring"
	"github.com/okian/feedrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func input() scoring.Input {
	return scoring.Input{Video: model.Video{ID: "v1", Category: "music", Tags: []string{"jazz", "live"}}}
}

func TestClient(t *testing.T) {
	Convey("Given a relevance upstream", t, func() {
		ctx := context.Background()
		var calls atomic.Int32
		var got request
		status := http.StatusOK
		payload := `{"score": 0.42}`

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(payload))
		}))
		defer srv.Close()

		Convey("When the upstream answers", func() {
			res, err := New(srv.URL).Score(ctx, input())

			Convey("Then the score and request body round trip", func() {
				So(err, ShouldBeNil)
				So(res.VideoID, ShouldEqual, "v1")
				So(res.Score, ShouldEqual, 0.42)
				So(got.Category, ShouldEqual, "music")
				So(got.Tags, ShouldResemble, []string{"jazz", "live"})
			})
		})

		Convey("When the input carries a watch profile", func() {
			in := input()
			in.Profile = &model.AffinityProfile{
				WatchedCategories: map[string]int64{"music": 4, "news": 1, "sports": 4},
				WatchedTags: map[string]int64{
					"a": 1, "b": 2, "c": 3, "d": 4, "e": 5, "f": 6, "g": 6,
				},
				TotalWatched: 9,
			}
			_, err := New(srv.URL).Score(ctx, in)

			Convey("Then the top categories and tags are sent", func() {
				So(err, ShouldBeNil)
				So(got.UserCategories, ShouldResemble, []string{"music", "sports", "news"})
				So(got.UserTags, ShouldResemble, []string{"f", "g", "e", "d", "c"})
				So(got.UserWatched, ShouldEqual, 9)
			})
		})

		Convey("When the input has no profile", func() {
			_, err := New(srv.URL).Score(ctx, input())

			Convey("Then no user fields are sent", func() {
				So(err, ShouldBeNil)
				So(got.UserCategories, ShouldBeNil)
				So(got.UserTags, ShouldBeNil)
				So(got.UserWatched, ShouldEqual, 0)
			})
		})

		Convey("When the upstream score is out of range", func() {
			payload = `{"score": 7}`
			res, err := New(srv.URL).Score(ctx, input())

			Convey("Then it is clamped to one", func() {
				So(err, ShouldBeNil)
				So(res.Score, ShouldEqual, 1)
			})
		})

		Convey("When the response has no score", func() {
			payload = `{}`
			_, err := New(srv.URL).Score(ctx, input())

			Convey("Then it is a bad response", func() {
				So(errors.Is(err, ErrBadResponse), ShouldBeTrue)
			})
		})

		Convey("When the upstream keeps failing", func() {
			status = http.StatusInternalServerError
			c := New(srv.URL, WithTripAfter(2), WithOpenTimeout(time.Minute))

			_, err1 := c.Score(ctx, input())
			_, err2 := c.Score(ctx, input())
			_, err3 := c.Score(ctx, input())

			Convey("Then the breaker opens and stops calling upstream", func() {
				So(errors.Is(err1, ErrUpstream), ShouldBeTrue)
				So(errors.Is(err2, ErrUpstream), ShouldBeTrue)
				So(errors.Is(err3, ErrBreakerOpen), ShouldBeTrue)
				So(calls.Load(), ShouldEqual, 2)
				So(c.State(), ShouldEqual, "open")
			})
		})

		Convey("When the upstream is slower than the timeout", func() {
			slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
			}))
			defer slow.Close()

			_, err := New(slow.URL, WithTimeout(20*time.Millisecond)).Score(ctx, input())

			Convey("Then the call fails as an upstream error", func() {
				So(errors.Is(err, ErrUpstream), ShouldBeTrue)
			})
		})
	})

	Convey("Given a client without a URL", t, func() {
		c := New("")

		Convey("Then it is disabled", func() {
			So(c.Enabled(), ShouldBeFalse)
			_, err := c.Score(context.Background(), input())
			So(errors.Is(err, ErrDisabled), ShouldBeTrue)
		})
	})
}
