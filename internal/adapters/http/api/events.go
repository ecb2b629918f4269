package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
)

// EventDependencies defines the interface for event processing dependencies.
type EventDependencies interface {
	// Enqueue accepts an event for async processing and reports duplicates.
	Enqueue(ctx context.Context, ev model.EngagementEvent) (bool, error)
}

// eventRequest mirrors the OpenAPI schema for POST /events.
type eventRequest struct {
	EventID string `json:"event_id"`
	VideoID string `json:"video_id"`
	Kind    string `json:"kind"`
	TS      string `json:"ts"`
}

func (e eventRequest) toModel() (model.EngagementEvent, error) {
	switch {
	case strings.TrimSpace(e.EventID) == "":
		return model.EngagementEvent{}, errors.New("missing event_id")
	case strings.TrimSpace(e.VideoID) == "":
		return model.EngagementEvent{}, errors.New("missing video_id")
	case strings.TrimSpace(e.TS) == "":
		return model.EngagementEvent{}, errors.New("missing ts")
	}
	ts, err := time.Parse(time.RFC3339, e.TS)
	if err != nil {
		return model.EngagementEvent{}, errors.New("invalid ts; must be RFC3339")
	}
	kind, err := model.ParseEventKind(e.Kind)
	if err != nil {
		return model.EngagementEvent{}, err
	}
	return model.EngagementEvent{EventID: e.EventID, VideoID: e.VideoID, Kind: kind, TS: ts}, nil
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvent handles POST /events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	ev, err := req.toModel()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	duplicate, err := h.deps.Enqueue(r.Context(), ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
