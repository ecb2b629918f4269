package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/feedrank/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Run executes a complete load run: register videos, submit events, wait for
// the queue to drain, then verify the feed.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting feedrank load run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("videos", config.NumVideos),
		logger.Int("events", config.NumEvents),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Int("topN", config.TopN),
		logger.Bool("verbose", config.Verbose))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	if err := checkServiceHealth(ctx, client); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	plan, err := generatePlan(ctx, config, stats.StartTime, stats)
	if err != nil {
		return fmt.Errorf("workload generation failed: %w", err)
	}

	if err := registerVideos(ctx, config, client, plan.Videos, stats); err != nil {
		return fmt.Errorf("video registration failed: %w", err)
	}

	if err := submitEvents(ctx, config, client, plan.Events, stats); err != nil {
		return fmt.Errorf("event submission failed: %w", err)
	}

	if err := waitForDrain(ctx, config, client); err != nil {
		return err
	}

	feed, err := fetchFeed(ctx, client, config.TopN)
	if err != nil {
		return err
	}
	stats.FeedEntries = len(feed)

	if err := verifyOrder(feed); err != nil {
		return fmt.Errorf("feed verification failed: %w", err)
	}
	if err := retrieveRanks(ctx, config, client, feed, stats); err != nil {
		return fmt.Errorf("rank verification failed: %w", err)
	}
	if err := verifyScores(ctx, feed, plan.Expected, time.Now(), config.Weights, stats); err != nil {
		return fmt.Errorf("score verification failed: %w", err)
	}
	displayTopVideos(ctx, feed, config.Verbose)

	if config.OutputFile != "" {
		if err := savePlan(ctx, config.OutputFile, plan); err != nil {
			log.Warn(ctx, "failed to save workload", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	log.Info(ctx, "load run completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	logger.Get().Info(ctx, "checking service health")

	status, _, err := client.Get(ctx, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	// the health endpoint serves Prometheus metrics; any 200 is healthy
	if status != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, status)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// savePlan writes the generated videos and events to a JSON file.
func savePlan(ctx context.Context, filename string, plan *Plan) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(struct {
		Videos []Video `json:"videos"`
		Events []Event `json:"events"`
	}{plan.Videos, plan.Events}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workload: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Info(ctx, "workload saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, eventsPerSecond float64

	if stats.EventsSubmitted > 0 {
		successRate = float64(stats.EventsSuccessful) / float64(stats.EventsSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("videosRegistered", stats.VideosRegistered),
		logger.Int("videosFailed", stats.VideosFailed),
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("eventsSuccessful", stats.EventsSuccessful),
		logger.Int("eventsDuplicate", stats.EventsDuplicate),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("feedEntries", stats.FeedEntries),
		logger.Int("ranksRetrieved", stats.RanksRetrieved),
		logger.Int("scoreMismatches", stats.ScoreMismatches),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
