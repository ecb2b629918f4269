package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
)

// HistoryDependencies records watches.
type HistoryDependencies interface {
	RecordWatch(ctx context.Context, r model.WatchRecord) error
}

type watchRequest struct {
	UserID    string `json:"user_id"`
	VideoID   string `json:"video_id"`
	WatchedAt string `json:"watched_at"`
}

// HistoryHandler handles watch history requests.
type HistoryHandler struct {
	deps HistoryDependencies
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps HistoryDependencies) *HistoryHandler {
	return &HistoryHandler{deps: deps}
}

// HandlePostWatch handles POST /history requests. An absent watched_at means now.
func (h *HistoryHandler) HandlePostWatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_watch"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req watchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.VideoID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("user_id and video_id are required")))
		return
	}

	rec := model.WatchRecord{UserID: req.UserID, VideoID: req.VideoID}
	if req.WatchedAt != "" {
		ts, err := time.Parse(time.RFC3339, req.WatchedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("invalid watched_at; must be RFC3339")))
			return
		}
		rec.WatchedAt = ts
	}

	if err := h.deps.RecordWatch(r.Context(), rec); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "recorded"})
}
