package loadgen

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/feedrank/pkg/logger"
)

// fanOut runs fn over n indices with the configured number of workers.
func fanOut(ctx context.Context, workers, n int, fn func(i int)) {
	workers = max(1, min(workers, n))
	indices := make(chan int, workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				if ctx.Err() != nil {
					continue
				}
				fn(i)
			}
		}()
	}

	go func() {
		defer close(indices)
		for i := range n {
			select {
			case <-ctx.Done():
				return
			case indices <- i:
			}
		}
	}()

	wg.Wait()
}

// registerVideos stores every video of the plan.
func registerVideos(ctx context.Context, config *Config, client *HTTPClient, videos []Video, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "registering videos", logger.Int("count", len(videos)), logger.Int("workers", config.Workers))

	var ok, failed atomic.Int64
	fanOut(ctx, config.Workers, len(videos), func(i int) {
		status, body, err := client.Post(ctx, "/videos", videos[i])
		if err != nil || (status != http.StatusCreated && status != http.StatusOK) {
			failed.Add(1)
			if config.Verbose {
				log.Warn(ctx, "failed to register video",
					logger.String("videoID", videos[i].ID),
					logger.Int("status", status),
					logger.String("body", string(body)),
					logger.Error(err))
			}
			return
		}
		ok.Add(1)
	})

	stats.VideosRegistered = int(ok.Load())
	stats.VideosFailed = int(failed.Load())
	log.Info(ctx, "video registration completed",
		logger.Int("registered", stats.VideosRegistered),
		logger.Int("failed", stats.VideosFailed))
	return ctx.Err()
}

// submitEvents submits events concurrently using a worker pool.
func submitEvents(ctx context.Context, config *Config, client *HTTPClient, events []Event, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "submitting events", logger.Int("count", len(events)), logger.Int("workers", config.Workers))

	var (
		submitted, successful, duplicate, failed atomic.Int64
		lastReport                               atomic.Int64
	)

	fanOut(ctx, config.Workers, len(events), func(i int) {
		switch submitSingleEvent(ctx, client, events[i]) {
		case resultSuccess:
			successful.Add(1)
		case resultDuplicate:
			duplicate.Add(1)
		default:
			failed.Add(1)
		}
		total := submitted.Add(1)

		now := time.Now().UnixNano()
		last := lastReport.Load()
		if config.Verbose && now-last >= int64(progressInterval) && lastReport.CompareAndSwap(last, now) {
			log.Info(ctx, "progress",
				logger.Int64("submitted", total),
				logger.Int("of", len(events)),
				logger.Int64("success", successful.Load()),
				logger.Int64("duplicate", duplicate.Load()),
				logger.Int64("failed", failed.Load()))
		}
	})

	stats.EventsSubmitted = int(submitted.Load())
	stats.EventsSuccessful = int(successful.Load())
	stats.EventsDuplicate = int(duplicate.Load())
	stats.EventsFailed = int(failed.Load())

	log.Info(ctx, "event submission completed",
		logger.Int("successful", stats.EventsSuccessful),
		logger.Int("duplicate", stats.EventsDuplicate),
		logger.Int("failed", stats.EventsFailed))
	return ctx.Err()
}

// submitSingleEvent submits a single event and returns the outcome.
func submitSingleEvent(ctx context.Context, client *HTTPClient, event Event) string {
	status, body, err := client.Post(ctx, "/events", event)
	if err != nil {
		return resultFailed
	}

	switch status {
	case http.StatusAccepted:
		return resultSuccess
	case http.StatusOK:
		var ack AckResponse
		if err := json.Unmarshal(body, &ack); err == nil && !ack.Duplicate {
			return resultSuccess
		}
		return resultDuplicate
	default:
		return resultFailed
	}
}
