// Package types contains common types used across the application.
package types

import (
	"time"

	"github.com/okian/feedrank/internal/domain/model"
)

// Entry is a ranked position in a feed.
type Entry struct {
	Rank      int       `json:"rank"`
	VideoID   string    `json:"video_id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedPage is a page of entries and the cursor for the next one.
type FeedPage struct {
	Entries    []Entry `json:"entries"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// FromScored converts ordered scored videos to entries ranked from firstRank.
func FromScored(items []model.ScoredVideo, firstRank int) []Entry {
	out := make([]Entry, len(items))
	for i, it := range items {
		out[i] = Entry{
			Rank:      firstRank + i,
			VideoID:   it.Video.ID,
			OwnerID:   it.Video.OwnerID,
			Score:     it.Score,
			CreatedAt: it.Video.CreatedAt,
		}
	}
	return out
}
