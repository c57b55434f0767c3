// Package social implements the Social Graph (§4.I): follow/unfollow,
// track likes/reposts/comments, all backed by PostgreSQL and announced
// on the event bus so the Discovery Engine and Analytics can react
// without a direct dependency on this package.
package social

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okinrev/veza/internal/errs"
	"github.com/okinrev/veza/internal/eventbus"
)

type Config struct {
	MaxFollowingPerUser int
	MaxCommentLength    int
}

type Graph struct {
	cfg Config
	db  *pgxpool.Pool
	bus *eventbus.Client
}

func New(cfg Config, db *pgxpool.Pool, bus *eventbus.Client) *Graph {
	return &Graph{cfg: cfg, db: db, bus: bus}
}

// Follow creates a one-directional follow edge, enforcing the
// MaxFollowingPerUser cap from §4.I.
func (g *Graph) Follow(ctx context.Context, followerID, followeeID int64) error {
	if followerID == followeeID {
		return errs.New(errs.KindOutOfRange, "reason", "cannot follow self")
	}

	var count int
	if err := g.db.QueryRow(ctx, `SELECT count(*) FROM follows WHERE follower_id = $1`, followerID).Scan(&count); err != nil {
		return err
	}
	if count >= g.cfg.MaxFollowingPerUser {
		return errs.New(errs.KindQuotaExceeded, "limit", g.cfg.MaxFollowingPerUser)
	}

	_, err := g.db.Exec(ctx, `
		INSERT INTO follows (follower_id, followee_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (follower_id, followee_id) DO NOTHING`,
		followerID, followeeID, time.Now())
	if err != nil {
		return err
	}

	if g.bus != nil {
		_ = g.bus.PublishEvent(eventbus.Subject.UserFollowed(followeeID), map[string]any{
			"follower_id": followerID,
			"followee_id": followeeID,
		})
	}
	return nil
}

func (g *Graph) Unfollow(ctx context.Context, followerID, followeeID int64) error {
	_, err := g.db.Exec(ctx, `DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`, followerID, followeeID)
	if err != nil {
		return err
	}
	if g.bus != nil {
		_ = g.bus.PublishEvent(eventbus.Subject.UserUnfollowed(followeeID), map[string]any{
			"follower_id": followerID,
			"followee_id": followeeID,
		})
	}
	return nil
}

func (g *Graph) Followers(ctx context.Context, userID int64) ([]int64, error) {
	return g.scanIDs(ctx, `SELECT follower_id FROM follows WHERE followee_id = $1`, userID)
}

func (g *Graph) Following(ctx context.Context, userID int64) ([]int64, error) {
	return g.scanIDs(ctx, `SELECT followee_id FROM follows WHERE follower_id = $1`, userID)
}

func (g *Graph) scanIDs(ctx context.Context, query string, arg int64) ([]int64, error) {
	rows, err := g.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// LikeTrack records a like and publishes it for the engagement pipeline.
func (g *Graph) LikeTrack(ctx context.Context, userID, trackID int64) error {
	_, err := g.db.Exec(ctx, `
		INSERT INTO track_likes (user_id, track_id, created_at)
		VALUES ($1, $2, $3) ON CONFLICT (user_id, track_id) DO NOTHING`,
		userID, trackID, time.Now())
	if err != nil {
		return err
	}
	if g.bus != nil {
		_ = g.bus.PublishEvent(eventbus.Subject.TrackLiked(trackID), map[string]any{"user_id": userID})
	}
	return nil
}

func (g *Graph) UnlikeTrack(ctx context.Context, userID, trackID int64) error {
	_, err := g.db.Exec(ctx, `DELETE FROM track_likes WHERE user_id = $1 AND track_id = $2`, userID, trackID)
	if err != nil {
		return err
	}
	if g.bus != nil {
		_ = g.bus.PublishEvent(eventbus.Subject.TrackUnliked(trackID), map[string]any{"user_id": userID})
	}
	return nil
}

// RepostVisibility mirrors the visibility values a repost can carry,
// per §3 Repost.
type RepostVisibility string

const (
	VisibilityPublic  RepostVisibility = "public"
	VisibilityFollowers RepostVisibility = "followers"
	VisibilityPrivate RepostVisibility = "private"
)

// RepostTrack records a repost, optionally with a quote message and a
// visibility scope (defaulting to public), per §3 Repost.
func (g *Graph) RepostTrack(ctx context.Context, userID, trackID int64, message string, visibility RepostVisibility) error {
	if visibility == "" {
		visibility = VisibilityPublic
	}
	_, err := g.db.Exec(ctx, `
		INSERT INTO track_reposts (user_id, track_id, message, visibility, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, track_id) DO UPDATE SET message = $3, visibility = $4`,
		userID, trackID, nullable(message), string(visibility), time.Now())
	if err != nil {
		return err
	}
	if g.bus != nil {
		_ = g.bus.PublishEvent(eventbus.Subject.TrackReposted(trackID), map[string]any{
			"user_id": userID, "message": message, "visibility": visibility,
		})
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CommentOnTrack enforces MaxCommentLength and stores the comment. A
// non-zero parentID threads this comment as a reply and increments the
// parent's replies_count. timestampMs, when non-zero, anchors the
// comment to a waveform position (§3 Comment).
func (g *Graph) CommentOnTrack(ctx context.Context, userID, trackID int64, content string, parentID int64, timestampMs int64) (int64, error) {
	if len(content) > g.cfg.MaxCommentLength {
		return 0, errs.New(errs.KindMessageTooLong, "max_length", g.cfg.MaxCommentLength)
	}

	var commentID int64
	err := g.db.QueryRow(ctx, `
		INSERT INTO track_comments (user_id, track_id, content, parent_id, timestamp_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		userID, trackID, content, nullableID(parentID), nullableID(timestampMs), time.Now()).Scan(&commentID)
	if err != nil {
		return 0, err
	}

	if parentID != 0 {
		if _, err := g.db.Exec(ctx, `UPDATE track_comments SET replies_count = replies_count + 1 WHERE id = $1`, parentID); err != nil {
			return 0, err
		}
	}

	if g.bus != nil {
		_ = g.bus.PublishEvent(eventbus.Subject.TrackCommented(trackID), map[string]any{
			"user_id": userID, "content": content, "parent_id": parentID, "timestamp_ms": timestampMs,
		})
	}
	return commentID, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// WaveformBucketSeconds is the bucket width the waveform comment index
// groups timestamp_ms into, per SPEC_FULL.md's supplemented waveform
// comment feature.
const WaveformBucketSeconds = 1

// CommentWaveform returns comments on a track grouped by second-bucket
// along its timeline, keyed by floor(timestamp_ms/1000), for a client
// to render as markers on a waveform. Comments with no timestamp are
// omitted.
func (g *Graph) CommentWaveform(ctx context.Context, trackID int64) (map[int64][]int64, error) {
	rows, err := g.db.Query(ctx, `
		SELECT id, timestamp_ms FROM track_comments
		WHERE track_id = $1 AND timestamp_ms IS NOT NULL
		ORDER BY timestamp_ms ASC`, trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := make(map[int64][]int64)
	for rows.Next() {
		var id, ts int64
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, err
		}
		bucket := ts / 1000 / WaveformBucketSeconds
		buckets[bucket] = append(buckets[bucket], id)
	}
	return buckets, rows.Err()
}
