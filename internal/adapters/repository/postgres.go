package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/metrics"
)

// Schema creates the tables used by Postgres. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS videos (
	id            TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL DEFAULT '',
	view_count    BIGINT NOT NULL DEFAULT 0,
	like_count    BIGINT NOT NULL DEFAULT 0,
	dislike_count BIGINT NOT NULL DEFAULT 0,
	comment_count BIGINT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ,
	category      TEXT NOT NULL DEFAULT '',
	tags          TEXT[] NOT NULL DEFAULT '{}',
	visibility    TEXT NOT NULL DEFAULT 'public',
	approved      BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS videos_eligible_idx ON videos (visibility, approved);

CREATE TABLE IF NOT EXISTS watch_history (
	user_id    TEXT NOT NULL,
	video_id   TEXT NOT NULL REFERENCES videos (id) ON DELETE CASCADE,
	watched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, video_id)
);
`

const videoColumns = `id, owner_id, view_count, like_count, dislike_count, comment_count,
	created_at, category, tags, visibility, approved`

// Postgres implements Catalog, CounterStore and HistoryStore on one database.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres opens a lib/pq connection pool and checks it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgres wraps db. Call Migrate before first use on a fresh database.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate applies Schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Put upserts metadata. Counters of existing rows are left untouched and new
// rows start at zero.
func (p *Postgres) Put(ctx context.Context, v model.Video) (bool, error) {
	if v.ID == "" {
		return false, fmt.Errorf("%w: empty id", ErrInvalidVideo)
	}
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency("postgres_catalog", float64(time.Since(start).Microseconds())/1000)
	}()

	var created sql.NullTime
	if !v.CreatedAt.IsZero() {
		created = sql.NullTime{Time: v.CreatedAt.UTC(), Valid: true}
	}
	tags := v.Tags
	if tags == nil {
		tags = []string{}
	}

	var inserted bool
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO videos (id, owner_id, created_at, category, tags, visibility, approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			owner_id   = EXCLUDED.owner_id,
			created_at = EXCLUDED.created_at,
			category   = EXCLUDED.category,
			tags       = EXCLUDED.tags,
			visibility = EXCLUDED.visibility,
			approved   = EXCLUDED.approved
		RETURNING (xmax = 0)`,
		v.ID, v.OwnerID, created, v.Category, pq.Array(tags), v.Visibility, v.Approved,
	).Scan(&inserted)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "postgres")
		return false, fmt.Errorf("put video %s: %w", v.ID, err)
	}
	return inserted, nil
}

// Get returns the video or ErrNotFound.
func (p *Postgres) Get(ctx context.Context, id string) (model.Video, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Video{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Video{}, fmt.Errorf("get video %s: %w", id, err)
	}
	return v, nil
}

// List returns public, approved videos, optionally excluding one owner.
func (p *Postgres) List(ctx context.Context, q CandidateQuery) ([]model.Video, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency("postgres_catalog", float64(time.Since(start).Microseconds())/1000)
	}()

	rows, err := p.db.QueryContext(ctx, `
		SELECT `+videoColumns+`
		FROM videos
		WHERE visibility = $1 AND approved AND ($2 = '' OR owner_id <> $2)
		ORDER BY id`,
		model.VisibilityPublic, q.ExcludeOwnerID,
	)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "postgres")
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var out []model.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (model.Video, error) {
	var (
		v       model.Video
		created sql.NullTime
		tags    pq.StringArray
	)
	err := row.Scan(&v.ID, &v.OwnerID, &v.ViewCount, &v.LikeCount, &v.DislikeCount, &v.CommentCount,
		&created, &v.Category, &tags, &v.Visibility, &v.Approved)
	if err != nil {
		return model.Video{}, err
	}
	if created.Valid {
		v.CreatedAt = created.Time
	}
	v.Tags = []string(tags)
	return v, nil
}

// Apply updates all four counters in one statement. GREATEST keeps each at
// or above zero; the row lock taken by UPDATE serializes concurrent deltas.
func (p *Postgres) Apply(ctx context.Context, videoID string, d model.Delta) (model.Counters, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency("postgres_counters", float64(time.Since(start).Microseconds())/1000)
	}()

	var (
		c       model.Counters
		clamped bool
	)
	err := p.db.QueryRowContext(ctx, `
		WITH old AS (
			SELECT id, view_count, like_count, dislike_count, comment_count
			FROM videos WHERE id = $1 FOR UPDATE
		)
		UPDATE videos v SET
			view_count    = GREATEST(old.view_count + $2, 0),
			like_count    = GREATEST(old.like_count + $3, 0),
			dislike_count = GREATEST(old.dislike_count + $4, 0),
			comment_count = GREATEST(old.comment_count + $5, 0)
		FROM old
		WHERE v.id = old.id
		RETURNING v.view_count, v.like_count, v.dislike_count, v.comment_count,
			(old.view_count + $2 < 0 OR old.like_count + $3 < 0
			 OR old.dislike_count + $4 < 0 OR old.comment_count + $5 < 0)`,
		videoID, d.Views, d.Likes, d.Dislikes, d.Comments,
	).Scan(&c.Views, &c.Likes, &c.Dislikes, &c.Comments, &clamped)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Counters{}, fmt.Errorf("%w: %s", ErrNotFound, videoID)
	}
	if err != nil {
		metrics.RecordErrorByComponent("repository", "postgres")
		return model.Counters{}, fmt.Errorf("apply counters %s: %w", videoID, err)
	}
	if clamped {
		metrics.RecordCounterClamped("postgres")
	}
	return c, nil
}

// Counters returns a CounterStore view of p. Catalog and CounterStore both
// declare Get, so the counter side needs its own method set.
func (p *Postgres) Counters() CounterStore {
	return postgresCounters{p}
}

type postgresCounters struct{ *Postgres }

// Get returns the stored counters, zero for an unknown video.
func (c postgresCounters) Get(ctx context.Context, videoID string) (model.Counters, error) {
	var out model.Counters
	err := c.db.QueryRowContext(ctx, `
		SELECT view_count, like_count, dislike_count, comment_count FROM videos WHERE id = $1`, videoID,
	).Scan(&out.Views, &out.Likes, &out.Dislikes, &out.Comments)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Counters{}, nil
	}
	if err != nil {
		return model.Counters{}, fmt.Errorf("get counters %s: %w", videoID, err)
	}
	return out, nil
}

// GetMany reads counters for all ids in one query.
func (c postgresCounters) GetMany(ctx context.Context, videoIDs []string) (map[string]model.Counters, error) {
	out := make(map[string]model.Counters, len(videoIDs))
	if len(videoIDs) == 0 {
		return out, nil
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, view_count, like_count, dislike_count, comment_count
		FROM videos WHERE id = ANY($1)`, pq.Array(videoIDs))
	if err != nil {
		return nil, fmt.Errorf("get counters: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			v  model.Counters
		)
		if err := rows.Scan(&id, &v.Views, &v.Likes, &v.Dislikes, &v.Comments); err != nil {
			return nil, fmt.Errorf("scan counters: %w", err)
		}
		out[id] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get counters: %w", err)
	}
	for _, id := range videoIDs {
		if _, ok := out[id]; !ok {
			out[id] = model.Counters{}
		}
	}
	return out, nil
}

// RecordWatch inserts a watch or refreshes its timestamp.
func (p *Postgres) RecordWatch(ctx context.Context, r model.WatchRecord) error {
	if r.UserID == "" || r.VideoID == "" {
		return fmt.Errorf("%w: watch record needs user and video", ErrInvalidVideo)
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO watch_history (user_id, video_id, watched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, video_id) DO UPDATE SET watched_at = EXCLUDED.watched_at`,
		r.UserID, r.VideoID, r.WatchedAt.UTC(),
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" { // foreign_key_violation
		return fmt.Errorf("%w: %s", ErrNotFound, r.VideoID)
	}
	if err != nil {
		metrics.RecordErrorByComponent("repository", "postgres")
		return fmt.Errorf("record watch: %w", err)
	}
	return nil
}

// Profile aggregates the user's distinct watched videos.
func (p *Postgres) Profile(ctx context.Context, userID string) (*model.AffinityProfile, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency("postgres_history", float64(time.Since(start).Microseconds())/1000)
	}()

	rows, err := p.db.QueryContext(ctx, `
		SELECT v.category, v.tags
		FROM watch_history h
		JOIN videos v ON v.id = h.video_id
		WHERE h.user_id = $1`, userID)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "postgres")
		return nil, fmt.Errorf("load history %s: %w", userID, err)
	}
	defer rows.Close()

	profile := model.NewAffinityProfile()
	for rows.Next() {
		var (
			v    model.Video
			tags pq.StringArray
		)
		if err := rows.Scan(&v.Category, &tags); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		v.Tags = []string(tags)
		profile.Add(v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load history %s: %w", userID, err)
	}
	return profile, nil
}
