package model_test

import (
	"errors"
	"testing"

	"github.com/okian/feedrank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEventKind(t *testing.T) {
	Convey("Given engagement kinds", t, func() {
		Convey("When parsing known kinds", func() {
			k, err := model.ParseEventKind(" Like ")

			Convey("Then they normalize", func() {
				So(err, ShouldBeNil)
				So(k, ShouldEqual, model.KindLike)
			})
		})

		Convey("When parsing an unknown kind", func() {
			_, err := model.ParseEventKind("share")

			Convey("Then ErrUnknownEventKind is returned", func() {
				So(errors.Is(err, model.ErrUnknownEventKind), ShouldBeTrue)
			})
		})

		Convey("Then each kind maps to a single unit delta", func() {
			So(model.KindView.Delta(), ShouldResemble, model.Delta{Views: 1})
			So(model.KindUnlike.Delta(), ShouldResemble, model.Delta{Likes: -1})
			So(model.KindUndislike.Delta(), ShouldResemble, model.Delta{Dislikes: -1})
			So(model.KindUncomment.Delta(), ShouldResemble, model.Delta{Comments: -1})
			So(model.EventKind("bogus").Delta().IsZero(), ShouldBeTrue)
		})
	})
}

func TestCountersApplyFloored(t *testing.T) {
	Convey("Given counters at zero likes", t, func() {
		c := model.Counters{Views: 3}

		Convey("When an unlike races ahead of its like", func() {
			next, clamped := c.ApplyFloored(model.KindUnlike.Delta())

			Convey("Then the counter floors at zero", func() {
				So(clamped, ShouldBeTrue)
				So(next.Likes, ShouldEqual, 0)
				So(next.Views, ShouldEqual, 3)
			})
		})

		Convey("When a view is applied", func() {
			next, clamped := c.ApplyFloored(model.KindView.Delta())

			Convey("Then it increments without clamping", func() {
				So(clamped, ShouldBeFalse)
				So(next.Views, ShouldEqual, 4)
			})
		})
	})
}

func TestVideo(t *testing.T) {
	Convey("Given a video", t, func() {
		v := model.Video{ID: "v1", Visibility: model.VisibilityPublic, Approved: true}

		Convey("Then eligibility requires public and approved", func() {
			So(v.Eligible(), ShouldBeTrue)
			v.Approved = false
			So(v.Eligible(), ShouldBeFalse)
			v.Approved = true
			v.Visibility = model.VisibilityUnlisted
			So(v.Eligible(), ShouldBeFalse)
		})

		Convey("Then counters round trip", func() {
			c := model.Counters{Views: 1, Likes: 2, Dislikes: 3, Comments: 4}
			So(v.WithCounters(c).Counters(), ShouldResemble, c)
		})
	})
}

func TestBuildAffinityProfile(t *testing.T) {
	Convey("Given a watch history", t, func() {
		watched := []model.Video{
			{Category: "Gaming", Tags: []string{"fps", "fps", "pc"}},
			{Category: "Gaming", Tags: []string{"pc"}},
			{Category: "", Tags: nil},
		}

		Convey("When the profile is built", func() {
			p := model.BuildAffinityProfile(watched)

			Convey("Then every record counts once and tags are a set", func() {
				So(p.TotalWatched, ShouldEqual, 3)
				So(p.WatchedCategories, ShouldResemble, map[string]int64{"Gaming": 2})
				So(p.WatchedTags, ShouldResemble, map[string]int64{"fps": 1, "pc": 2})
				So(p.Empty(), ShouldBeFalse)
			})
		})

		Convey("Then an empty history yields an empty profile", func() {
			So(model.BuildAffinityProfile(nil).Empty(), ShouldBeTrue)
			var nilProfile *model.AffinityProfile
			So(nilProfile.Empty(), ShouldBeTrue)
		})
	})
}
