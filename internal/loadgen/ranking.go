package loadgen

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/feedrank/pkg/logger"
)

// feedPageLimit stays within the service default max_feed_limit.
const feedPageLimit = 50

type statsResponse struct {
	QueueLength int `json:"queueLength"`
}

// waitForDrain polls /stats until the event queue has been empty for two
// consecutive polls or the settle timeout expires.
func waitForDrain(ctx context.Context, config *Config, client *HTTPClient) error {
	logger.Get().Info(ctx, "waiting for events to be processed", logger.Duration("timeout", config.SettleTimeout))

	ctx, cancel := context.WithTimeout(ctx, config.SettleTimeout)
	defer cancel()

	ticker := time.NewTicker(SettlePollInterval)
	defer ticker.Stop()

	empty := 0
	for {
		var st statsResponse
		if err := client.getJSON(ctx, "/stats", nil, &st); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrNotSettled, ctx.Err())
			}
			return err
		}
		if st.QueueLength == 0 {
			empty++
		} else {
			empty = 0
		}
		if empty >= 2 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %d events pending", ErrNotSettled, st.QueueLength)
		case <-ticker.C:
		}
	}
}

// fetchFeed pages through the global feed until topN entries are collected
// or the feed ends.
func fetchFeed(ctx context.Context, client *HTTPClient, topN int) ([]Entry, error) {
	entries := make([]Entry, 0, topN)
	cursor := ""
	for len(entries) < topN {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(min(feedPageLimit, topN-len(entries))))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var page FeedPage
		if err := client.getJSON(ctx, "/feed", q, &page); err != nil {
			return nil, fmt.Errorf("fetch feed: %w", err)
		}
		entries = append(entries, page.Entries...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return entries, nil
}

// retrieveRanks looks up every feed entry through /rank and reports entries
// whose rank or score disagree with the feed.
func retrieveRanks(ctx context.Context, config *Config, client *HTTPClient, feed []Entry, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "retrieving ranks", logger.Int("count", len(feed)))

	var retrieved, mismatched atomic.Int64
	fanOut(ctx, config.Workers, len(feed), func(i int) {
		want := feed[i]
		var got Entry
		if err := client.getJSON(ctx, "/rank/"+url.PathEscape(want.VideoID), nil, &got); err != nil {
			log.Warn(ctx, "failed to get rank", logger.String("videoID", want.VideoID), logger.Error(err))
			return
		}
		retrieved.Add(1)
		if got.Rank != want.Rank || got.Score != want.Score {
			mismatched.Add(1)
			log.Warn(ctx, "rank disagrees with feed",
				logger.String("videoID", want.VideoID),
				logger.Int("feedRank", want.Rank),
				logger.Int("rank", got.Rank),
				logger.Float64("feedScore", want.Score),
				logger.Float64("score", got.Score))
		}
	})

	stats.RanksRetrieved = int(retrieved.Load())
	if n := mismatched.Load(); n > 0 {
		return fmt.Errorf("%w: %d entries", ErrRankMismatch, n)
	}
	return ctx.Err()
}
