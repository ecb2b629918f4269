package loadgen

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/logger"
)

// Age buckets in hours. Each bucket stays clear of the recency boundaries so
// a few seconds of clock skew between generator and service cannot move a
// video across a boost step.
var ageBuckets = [][2]int{ //nolint:gochecknoglobals // immutable lookup table
	{1, 160},    // fresh
	{180, 700},  // this month
	{760, 2000}, // old
}

var categories = []string{"music", "sports", "gaming", "cooking", "travel", "comedy"}                 //nolint:gochecknoglobals // immutable lookup table
var tagPool = []string{"live", "tutorial", "shorts", "remix", "highlights", "review", "vlog", "asmr"} //nolint:gochecknoglobals // immutable lookup table

// Event kind weights out of 100. Retractions are drawn only against seeded
// counters so no ordering of submissions can floor a counter.
const (
	viewWeight     = 70
	likeWeight     = 15
	dislikeWeight  = 6
	commentWeight  = 5
	retractWeight  = 4
	totalWeight    = viewWeight + likeWeight + dislikeWeight + commentWeight + retractWeight
	maxSeedViews   = 500
	maxSeedLikes   = 40
	maxSeedDislike = 10
	maxSeedComment = 20
	maxTags        = 3
)

// Plan is a generated workload together with the counters the service
// should hold once every event has been applied.
type Plan struct {
	Videos   []Video
	Events   []Event
	Expected map[string]model.Video
}

type generator struct {
	rng *rand.Rand
	now time.Time
}

func newGenerator(seed uint64, now time.Time) *generator {
	return &generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), now: now}
}

// generatePlan builds the videos and events of a run.
func generatePlan(ctx context.Context, config *Config, now time.Time, stats *Stats) (*Plan, error) {
	seed := config.Seed
	if seed == 0 {
		seed = uint64(now.UnixNano())
	}
	logger.Get().Info(ctx, "generating workload",
		logger.Int("videos", config.NumVideos),
		logger.Int("owners", config.NumOwners),
		logger.Int("events", config.NumEvents),
		logger.Any("seed", seed))

	g := newGenerator(seed, now)
	plan := &Plan{
		Videos:   make([]Video, config.NumVideos),
		Events:   make([]Event, 0, config.NumEvents),
		Expected: make(map[string]model.Video, config.NumVideos),
	}

	owners := make([]string, max(config.NumOwners, 1))
	for i := range owners {
		owners[i] = "owner-" + strconv.Itoa(i+1)
	}

	for i := range plan.Videos {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		v := g.video(owners[g.rng.IntN(len(owners))])
		plan.Videos[i] = v
		plan.Expected[v.ID] = toModel(v)
	}

	retractable := make(map[string]model.Counters, len(plan.Videos))
	for _, v := range plan.Videos {
		retractable[v.ID] = model.Counters{Likes: v.LikeCount, Dislikes: v.DislikeCount, Comments: v.CommentCount}
	}

	for i := 0; i < config.NumEvents && len(plan.Videos) > 0; i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		v := plan.Videos[g.rng.IntN(len(plan.Videos))]
		kind := g.kind(retractable, v.ID)

		exp := plan.Expected[v.ID]
		exp, _ = applyKind(exp, kind)
		plan.Expected[v.ID] = exp

		plan.Events = append(plan.Events, Event{
			EventID: uuid.NewString(),
			VideoID: v.ID,
			Kind:    string(kind),
			TS:      now.UTC().Format(time.RFC3339),
		})
	}

	stats.EventsGenerated = len(plan.Events)
	logger.Get().Info(ctx, "generated workload", logger.Int("videos", len(plan.Videos)), logger.Int("events", len(plan.Events)))
	return plan, nil
}

func (g *generator) video(owner string) Video {
	b := ageBuckets[g.rng.IntN(len(ageBuckets))]
	age := time.Duration(b[0]+g.rng.IntN(b[1]-b[0])) * time.Hour

	tags := make([]string, 0, maxTags)
	seen := make(map[string]struct{}, maxTags)
	for range g.rng.IntN(maxTags + 1) {
		t := tagPool[g.rng.IntN(len(tagPool))]
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}

	return Video{
		ID:           uuid.NewString(),
		OwnerID:      owner,
		ViewCount:    g.rng.Int64N(maxSeedViews),
		LikeCount:    g.rng.Int64N(maxSeedLikes),
		DislikeCount: g.rng.Int64N(maxSeedDislike),
		CommentCount: g.rng.Int64N(maxSeedComment),
		CreatedAt:    g.now.Add(-age).UTC().Format(time.RFC3339),
		Category:     categories[g.rng.IntN(len(categories))],
		Tags:         tags,
		Visibility:   model.VisibilityPublic,
	}
}

// kind draws an event kind for videoID, spending its retraction budget when a
// retraction is drawn.
func (g *generator) kind(retractable map[string]model.Counters, videoID string) model.EventKind {
	n := g.rng.IntN(totalWeight)
	switch {
	case n < viewWeight:
		return model.KindView
	case n < viewWeight+likeWeight:
		return model.KindLike
	case n < viewWeight+likeWeight+dislikeWeight:
		return model.KindDislike
	case n < viewWeight+likeWeight+dislikeWeight+commentWeight:
		return model.KindComment
	}

	budget := retractable[videoID]
	switch {
	case budget.Likes > 0:
		budget.Likes--
		retractable[videoID] = budget
		return model.KindUnlike
	case budget.Dislikes > 0:
		budget.Dislikes--
		retractable[videoID] = budget
		return model.KindUndislike
	case budget.Comments > 0:
		budget.Comments--
		retractable[videoID] = budget
		return model.KindUncomment
	default:
		return model.KindView
	}
}

// applyKind applies one event to v the way the service does.
func applyKind(v model.Video, kind model.EventKind) (model.Video, bool) {
	c, floored := v.Counters().ApplyFloored(kind.Delta())
	return v.WithCounters(c), floored
}

func toModel(v Video) model.Video {
	created, _ := time.Parse(time.RFC3339, v.CreatedAt)
	return model.Video{
		ID:           v.ID,
		OwnerID:      v.OwnerID,
		ViewCount:    v.ViewCount,
		LikeCount:    v.LikeCount,
		DislikeCount: v.DislikeCount,
		CommentCount: v.CommentCount,
		CreatedAt:    created,
		Category:     v.Category,
		Tags:         v.Tags,
		Visibility:   v.Visibility,
		Approved:     true,
	}
}
