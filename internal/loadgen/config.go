package loadgen

import (
	"time"

	"github.com/okian/feedrank/internal/domain/scoring"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL       string        // Base URL of the service
	NumVideos     int           // Number of videos to register
	NumOwners     int           // Number of distinct owners
	NumEvents     int           // Number of engagement events to submit
	TopN          int           // Number of feed entries to verify
	Workers       int           // Number of concurrent workers
	Timeout       time.Duration // HTTP request timeout
	SettleTimeout time.Duration // How long to wait for the event queue to drain
	Seed          uint64        // Seed for the generator; zero picks one from the clock
	Weights       Weights       // Engagement weights the service runs with; zero value means defaults
	OutputFile    string        // Output file for generated events; empty skips saving
	Verbose       bool          // Enable verbose logging
}

// Weights mirrors the service's engagement scoring configuration.
type Weights struct {
	View       float64
	Like       float64
	Dislike    float64
	BoostWeek  float64
	BoostMonth float64
}

// DefaultWeights returns the service's default engagement weights.
func DefaultWeights() Weights {
	return Weights{View: 1, Like: 5, Dislike: 3, BoostWeek: 100, BoostMonth: 50}
}

func (w Weights) options() []scoring.Option {
	if w == (Weights{}) {
		w = DefaultWeights()
	}
	return []scoring.Option{
		scoring.WithWeights(w.View, w.Like, w.Dislike),
		scoring.WithRecencyBoosts(w.BoostWeek, w.BoostMonth),
	}
}

// Video is the registration payload for POST /videos.
type Video struct {
	ID           string   `json:"id"`
	OwnerID      string   `json:"owner_id"`
	ViewCount    int64    `json:"view_count"`
	LikeCount    int64    `json:"like_count"`
	DislikeCount int64    `json:"dislike_count"`
	CommentCount int64    `json:"comment_count"`
	CreatedAt    string   `json:"created_at"`
	Category     string   `json:"category"`
	Tags         []string `json:"tags"`
	Visibility   string   `json:"visibility"`
}

// Event is the payload for POST /events.
type Event struct {
	EventID string `json:"event_id"`
	VideoID string `json:"video_id"`
	Kind    string `json:"kind"`
	TS      string `json:"ts"`
}

// Entry is a ranked feed entry as returned by the service.
type Entry struct {
	Rank      int       `json:"rank"`
	VideoID   string    `json:"video_id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedPage is a page of feed entries.
type FeedPage struct {
	Entries    []Entry `json:"entries"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// AckResponse represents the response from event submission.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds run statistics.
type Stats struct {
	VideosRegistered int
	VideosFailed     int
	EventsGenerated  int
	EventsSubmitted  int
	EventsSuccessful int
	EventsDuplicate  int
	EventsFailed     int
	FeedEntries      int
	RanksRetrieved   int
	ScoreMismatches  int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
