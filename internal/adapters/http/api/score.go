package api

import (
	"context"
	"net/http"

	service "github.com/okian/feedrank/internal/app"
	"github.com/okian/feedrank/internal/domain/model"
)

// ScoreDependencies scores a single video on demand.
type ScoreDependencies interface {
	ScoreOne(ctx context.Context, req service.ScoreRequest) (service.ScoreResult, error)
}

type profileRequest struct {
	WatchedCategories map[string]int64 `json:"watched_categories"`
	WatchedTags       map[string]int64 `json:"watched_tags"`
	TotalWatched      int64            `json:"total_watched"`
}

type scoreRequest struct {
	Mode    string          `json:"mode"`
	UserID  string          `json:"user_id"`
	Video   videoRequest    `json:"video"`
	Profile *profileRequest `json:"profile"`
}

type breakdownResponse struct {
	Category float64 `json:"category"`
	Tags     float64 `json:"tags"`
	Quality  float64 `json:"quality"`
	Recency  float64 `json:"recency"`
	Total    float64 `json:"total"`
}

type scoreResponse struct {
	VideoID   string             `json:"video_id"`
	Mode      string             `json:"mode"`
	Score     float64            `json:"score"`
	Fallback  bool               `json:"fallback,omitempty"`
	Breakdown *breakdownResponse `json:"breakdown,omitempty"`
}

// ScoreHandler handles stateless scoring requests.
type ScoreHandler struct {
	deps ScoreDependencies
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps ScoreDependencies) *ScoreHandler {
	return &ScoreHandler{deps: deps}
}

// HandleScore handles POST /score requests.
func (h *ScoreHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.score"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req scoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	v, err := req.Video.toModel()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	sreq := service.ScoreRequest{Mode: req.Mode, Video: v, UserID: req.UserID}
	if req.Profile != nil {
		p := model.NewAffinityProfile()
		for k, n := range req.Profile.WatchedCategories {
			p.WatchedCategories[k] = n
		}
		for k, n := range req.Profile.WatchedTags {
			p.WatchedTags[k] = n
		}
		p.TotalWatched = req.Profile.TotalWatched
		sreq.Profile = p
	}

	res, err := h.deps.ScoreOne(r.Context(), sreq)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := scoreResponse{VideoID: res.VideoID, Mode: res.Mode, Score: res.Score, Fallback: res.Fallback}
	if b := res.Breakdown; b != nil {
		out.Breakdown = &breakdownResponse{
			Category: b.Category,
			Tags:     b.Tags,
			Quality:  b.Quality,
			Recency:  b.Recency,
			Total:    b.Total,
		}
	}
	writeJSON(w, http.StatusOK, out)
}
