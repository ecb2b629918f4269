package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/metrics"
)

const redisCounterPrefix = "feedrank:counters:"

// applyCountersScript increments every field of a counter hash and floors the
// result at zero. The last element of the reply is 1 when a field was floored.
var applyCountersScript = redis.NewScript(`
local fields = {'views', 'likes', 'dislikes', 'comments'}
local out = {}
local clamped = 0
for i, f in ipairs(fields) do
  local d = tonumber(ARGV[i])
  local v
  if d ~= 0 then
    v = redis.call('HINCRBY', KEYS[1], f, ARGV[i])
    if v < 0 then
      redis.call('HSET', KEYS[1], f, 0)
      v = 0
      clamped = 1
    end
  else
    v = tonumber(redis.call('HGET', KEYS[1], f) or '0')
  end
  out[i] = v
end
out[5] = clamped
return out
`) //nolint:gochecknoglobals // compiled once

// ConnectRedis accepts either a redis:// URL or a bare host:port and checks
// the connection.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.Contains(redisURL, "://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisCounters is a CounterStore on Redis hashes, one per video.
type RedisCounters struct {
	client redis.UniversalClient
}

// NewRedisCounters wraps an existing client.
func NewRedisCounters(client redis.UniversalClient) *RedisCounters {
	return &RedisCounters{client: client}
}

// Apply runs the floor script against the video's hash and returns the
// counters it left behind.
func (r *RedisCounters) Apply(ctx context.Context, videoID string, d model.Delta) (model.Counters, error) {
	if videoID == "" {
		return model.Counters{}, fmt.Errorf("%w: empty id", ErrInvalidVideo)
	}
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency("redis_counters", float64(time.Since(start).Microseconds())/1000)
	}()

	vals, err := applyCountersScript.Run(ctx, r.client, []string{redisCounterPrefix + videoID},
		d.Views, d.Likes, d.Dislikes, d.Comments).Int64Slice()
	if err != nil {
		metrics.RecordErrorByComponent("repository", "redis")
		return model.Counters{}, fmt.Errorf("apply counters %s: %w", videoID, err)
	}
	if len(vals) != 5 {
		return model.Counters{}, fmt.Errorf("apply counters %s: unexpected reply length %d", videoID, len(vals))
	}
	if vals[4] == 1 {
		metrics.RecordCounterClamped("redis")
	}
	return model.Counters{Views: vals[0], Likes: vals[1], Dislikes: vals[2], Comments: vals[3]}, nil
}

// Get reads the video's hash. A missing hash is zero counters.
func (r *RedisCounters) Get(ctx context.Context, videoID string) (model.Counters, error) {
	data, err := r.client.HGetAll(ctx, redisCounterPrefix+videoID).Result()
	if err != nil {
		return model.Counters{}, fmt.Errorf("get counters %s: %w", videoID, err)
	}
	return parseCounterHash(data), nil
}

// GetMany reads all hashes in one pipeline round trip.
func (r *RedisCounters) GetMany(ctx context.Context, videoIDs []string) (map[string]model.Counters, error) {
	if len(videoIDs) == 0 {
		return map[string]model.Counters{}, nil
	}
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency("redis_counters", float64(time.Since(start).Microseconds())/1000)
	}()

	cmds := make([]*redis.MapStringStringCmd, len(videoIDs))
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range videoIDs {
			cmds[i] = p.HGetAll(ctx, redisCounterPrefix+id)
		}
		return nil
	})
	if err != nil {
		metrics.RecordErrorByComponent("repository", "redis")
		return nil, fmt.Errorf("get counters: %w", err)
	}

	out := make(map[string]model.Counters, len(videoIDs))
	for i, id := range videoIDs {
		out[id] = parseCounterHash(cmds[i].Val())
	}
	return out, nil
}

func parseCounterHash(data map[string]string) model.Counters {
	field := func(name string) int64 {
		n, err := strconv.ParseInt(data[name], 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return model.Counters{
		Views:    field("views"),
		Likes:    field("likes"),
		Dislikes: field("dislikes"),
		Comments: field("comments"),
	}
}
