package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
)

// VideoDependencies registers candidate videos.
type VideoDependencies interface {
	PutVideo(ctx context.Context, v model.Video) (bool, error)
}

// videoRequest mirrors the OpenAPI schema for POST /videos.
type videoRequest struct {
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
	Approved     *bool    `json:"approved"`
}

// toModel converts the request. An empty created_at means unknown; approval
// defaults to true.
func (v videoRequest) toModel() (model.Video, error) {
	out := model.Video{
		ID:           v.ID,
		OwnerID:      v.OwnerID,
		ViewCount:    v.ViewCount,
		LikeCount:    v.LikeCount,
		DislikeCount: v.DislikeCount,
		CommentCount: v.CommentCount,
		Category:     v.Category,
		Tags:         v.Tags,
		Visibility:   v.Visibility,
		Approved:     true,
	}
	if v.Approved != nil {
		out.Approved = *v.Approved
	}
	if v.CreatedAt != "" {
		ts, err := time.Parse(time.RFC3339, v.CreatedAt)
		if err != nil {
			return model.Video{}, errors.New("invalid created_at; must be RFC3339")
		}
		out.CreatedAt = ts
	}
	return out, nil
}

type videoResponse struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// VideosHandler handles video registration.
type VideosHandler struct {
	deps VideoDependencies
}

// NewVideosHandler creates a new videos handler.
func NewVideosHandler(deps VideoDependencies) *VideosHandler {
	return &VideosHandler{deps: deps}
}

// HandlePutVideo handles POST /videos requests.
func (h *VideosHandler) HandlePutVideo(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_video"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req videoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	v, err := req.toModel()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	created, err := h.deps.PutVideo(r.Context(), v)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, videoResponse{ID: v.ID, Created: created})
}
