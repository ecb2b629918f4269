// Package relevance calls an external relevance model over HTTP. Results are
// in [0, 1]; callers fall back to a local scorer on any error.
package relevance

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/feedrank/internal/domain/scoring"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

const (
	breakerName        = "relevance"
	defaultTimeout     = 800 * time.Millisecond
	defaultTripAfter   = 5
	defaultOpenTimeout = 30 * time.Second
	maxResponseBytes   = 1 << 16
	profileTopN        = 5
)

type request struct {
	VideoID  string   `json:"video_id"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`

	UserCategories []string `json:"user_categories,omitempty"`
	UserTags       []string `json:"user_tags,omitempty"`
	UserWatched    int64    `json:"user_watched,omitempty"`
}

func newRequest(in scoring.Input) request {
	r := request{
		VideoID:  in.Video.ID,
		Category: in.Video.Category,
		Tags:     in.Video.Tags,
	}
	if p := in.Profile; p != nil {
		r.UserCategories = topKeys(p.WatchedCategories, profileTopN)
		r.UserTags = topKeys(p.WatchedTags, profileTopN)
		r.UserWatched = p.TotalWatched
	}
	return r
}

// topKeys returns up to n keys by count descending, ties by key ascending.
func topKeys(counts map[string]int64, n int) []string {
	keys := slices.Collect(maps.Keys(counts))
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

type response struct {
	Score *float64 `json:"score"`
}

// Client scores videos with a remote relevance model.
type Client struct {
	url         string
	http        *http.Client
	timeout     time.Duration
	tripAfter   uint32
	openTimeout time.Duration

	cb     *gobreaker.CircuitBreaker[float64]
	logger logger.Logger
}

var _ scoring.Scorer = (*Client)(nil)

// New builds a client for url. An empty url yields a disabled client whose
// Score always returns ErrDisabled.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:         url,
		http:        &http.Client{},
		timeout:     defaultTimeout,
		tripAfter:   defaultTripAfter,
		openTimeout: defaultOpenTimeout,
		logger:      logger.Get().Named("relevance"),
	}
	for _, opt := range opts {
		opt(c)
	}

	metrics.UpdateExternalBreakerState(int(gobreaker.StateClosed))
	c.cb = gobreaker.NewCircuitBreaker[float64](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     c.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.tripAfter
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			metrics.UpdateExternalBreakerState(int(to))
			c.logger.Warn(context.Background(), "breaker state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
	return c
}

// Enabled reports whether an upstream URL is configured.
func (c *Client) Enabled() bool { return c.url != "" }

// State returns the current breaker state name.
func (c *Client) State() string { return c.cb.State().String() }

// Score asks the upstream model for the relevance of in.Video.
func (c *Client) Score(ctx context.Context, in scoring.Input) (scoring.Result, error) {
	if !c.Enabled() {
		return scoring.Result{}, ErrDisabled
	}

	score, err := c.cb.Execute(func() (float64, error) {
		return c.call(ctx, in)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordExternalCall("rejected")
		return scoring.Result{}, fmt.Errorf("%w: %w", ErrBreakerOpen, err)
	case err != nil:
		metrics.RecordExternalCall("failure")
		metrics.RecordErrorByComponent("relevance", "call_failed")
		return scoring.Result{}, err
	}

	metrics.RecordExternalCall("success")
	return scoring.Result{VideoID: in.Video.ID, Score: scoring.Clamp(score, 0, 1)}, nil
}

func (c *Client) call(ctx context.Context, in scoring.Input) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(newRequest(in))
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	c.logger.Debug(ctx, "relevance call",
		logger.String("video_id", in.Video.ID),
		logger.Int("status", resp.StatusCode),
		logger.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return 0, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var out response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if out.Score == nil {
		return 0, fmt.Errorf("%w: missing score", ErrBadResponse)
	}
	return *out.Score, nil
}
