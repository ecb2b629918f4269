package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	service "github.com/okian/feedrank/internal/app"
	"github.com/okian/feedrank/internal/domain/types"
)

// FeedDependencies defines the interface for feed reads.
type FeedDependencies interface {
	Feed(ctx context.Context, q service.FeedQuery) (types.FeedPage, error)
	PersonalizedFeed(ctx context.Context, q service.FeedQuery) (types.FeedPage, error)
	TrendingFeed(ctx context.Context, q service.FeedQuery) (types.FeedPage, error)
}

// FeedHandler handles the three feed endpoints.
type FeedHandler struct {
	deps     FeedDependencies
	maxLimit int
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(deps FeedDependencies, maxLimit int) *FeedHandler {
	return &FeedHandler{deps: deps, maxLimit: maxLimit}
}

// parseLimit reads ?limit, defaulting to 20 capped at the handler maximum.
func (h *FeedHandler) parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return min(defaultFeedLimit, h.maxLimit), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest)
	}
	if n > h.maxLimit {
		return 0, fmt.Errorf("%w: limit must be at most %d", ErrLimitExceeded, h.maxLimit)
	}
	return n, nil
}

func (h *FeedHandler) serve(w http.ResponseWriter, r *http.Request, op, userParam string,
	fetch func(context.Context, service.FeedQuery) (types.FeedPage, error),
) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	limit, err := h.parseLimit(r)
	if err != nil {
		code := "bad_request"
		if errors.Is(err, ErrLimitExceeded) {
			code = "limit_exceeded"
		}
		writeError(w, http.StatusBadRequest, code, NewKind(op, err))
		return
	}
	q := service.FeedQuery{
		Cursor: r.URL.Query().Get("cursor"),
		Limit:  limit,
	}
	if userParam != "" {
		q.UserID = r.URL.Query().Get(userParam)
	}

	page, err := fetch(r.Context(), q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if page.Entries == nil {
		page.Entries = []types.Entry{}
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleGlobal handles GET /feed?limit&cursor&exclude_user.
func (h *FeedHandler) HandleGlobal(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "api.get_feed", "exclude_user", h.deps.Feed)
}

// HandlePersonalized handles GET /feed/personalized?user_id&limit&cursor.
func (h *FeedHandler) HandlePersonalized(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "api.get_personalized_feed", "user_id", h.deps.PersonalizedFeed)
}

// HandleTrending handles GET /feed/trending?limit&cursor.
func (h *FeedHandler) HandleTrending(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "api.get_trending_feed", "", h.deps.TrendingFeed)
}
