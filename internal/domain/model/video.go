// Package model contains domain models passed between layers.
package model

import "time"

// Visibility values for a video.
const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityPrivate  = "private"
)

// Video is a candidate for feed inclusion. Counters may be negative when an
// upstream store raced; scorers coalesce them to zero.
type Video struct {
	ID           string
	OwnerID      string
	ViewCount    int64
	LikeCount    int64
	DislikeCount int64
	CommentCount int64
	CreatedAt    time.Time // zero means unknown
	Category     string    // empty means none
	Tags         []string  // a set; order and duplicates are irrelevant
	Visibility   string
	Approved     bool
}

// Eligible reports whether the video may appear in any feed.
func (v Video) Eligible() bool {
	return v.Approved && v.Visibility == VisibilityPublic
}

// Counters returns the engagement counters of the video.
func (v Video) Counters() Counters {
	return Counters{
		Views:    v.ViewCount,
		Likes:    v.LikeCount,
		Dislikes: v.DislikeCount,
		Comments: v.CommentCount,
	}
}

// WithCounters returns a copy of v carrying c.
func (v Video) WithCounters(c Counters) Video {
	v.ViewCount = c.Views
	v.LikeCount = c.Likes
	v.DislikeCount = c.Dislikes
	v.CommentCount = c.Comments
	return v
}

// Counters are the aggregate engagement counts of one video.
type Counters struct {
	Views    int64
	Likes    int64
	Dislikes int64
	Comments int64
}

// Delta is a signed change to Counters.
type Delta struct {
	Views    int64
	Likes    int64
	Dislikes int64
	Comments int64
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// ApplyFloored adds d to c, flooring each field at zero. The second return
// value reports whether any field was floored.
func (c Counters) ApplyFloored(d Delta) (Counters, bool) {
	var clamped bool
	add := func(cur, delta int64) int64 {
		n := cur + delta
		if n < 0 {
			clamped = true
			return 0
		}
		return n
	}
	return Counters{
		Views:    add(c.Views, d.Views),
		Likes:    add(c.Likes, d.Likes),
		Dislikes: add(c.Dislikes, d.Dislikes),
		Comments: add(c.Comments, d.Comments),
	}, clamped
}

// ScoredVideo pairs a video with a score computed at a single instant.
type ScoredVideo struct {
	Video Video
	Score float64
}
