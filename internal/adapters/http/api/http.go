// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/feedrank/internal/app"
	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/types"
)

const (
	defaultFeedLimit = 20
	defaultMaxLimit  = 50
	maxBodyBytes     = 1 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	VideoDependencies
	EventDependencies
	HistoryDependencies
	FeedDependencies
	RankDependencies
	ScoreDependencies
}

// Entry mirrors the read shape returned by feed queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	videosHandler  *VideosHandler
	eventsHandler  *EventsHandler
	historyHandler *HistoryHandler
	feedHandler    *FeedHandler
	rankHandler    *RankHandler
	scoreHandler   *ScoreHandler
}

// NewServer creates a new API server with all handlers. maxLimit bounds the
// page size of every feed; values below one fall back to 50.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	if maxLimit < 1 {
		maxLimit = defaultMaxLimit
	}
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		videosHandler:  NewVideosHandler(deps),
		eventsHandler:  NewEventsHandler(deps),
		historyHandler: NewHistoryHandler(deps),
		feedHandler:    NewFeedHandler(deps, maxLimit),
		rankHandler:    NewRankHandler(deps),
		scoreHandler:   NewScoreHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/videos", MetricsMiddleware(s.videosHandler.HandlePutVideo, "videos"))
	mux.HandleFunc("/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("/history", MetricsMiddleware(s.historyHandler.HandlePostWatch, "history"))
	mux.HandleFunc("/feed", MetricsMiddleware(s.feedHandler.HandleGlobal, "feed"))
	mux.HandleFunc("/feed/personalized", MetricsMiddleware(s.feedHandler.HandlePersonalized, "feed_personalized"))
	mux.HandleFunc("/feed/trending", MetricsMiddleware(s.feedHandler.HandleTrending, "feed_trending"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("/score", MetricsMiddleware(s.scoreHandler.HandleScore, "score"))
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeJSON reads a bounded JSON body and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeServiceError maps service sentinels to status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, model.ErrUnknownEventKind):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
