package discovery

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Catalog backs the §4.J collaborative and content-based candidate
// pools from the track table the Social Graph's likes/reposts also
// reference. It is the concrete CollaborativeProvider/ContentProvider
// implementation both cmd/streamserver wires in; the "latent-factor
// placeholder" §4.J describes is a co-like overlap count, not a real
// factorization model, matching the spec's Non-goal that rules out a
// novel learning algorithm.
type Catalog struct {
	db *pgxpool.Pool
}

func NewCatalog(db *pgxpool.Pool) *Catalog {
	return &Catalog{db: db}
}

var _ CollaborativeProvider = (*Catalog)(nil)
var _ ContentProvider = (*Catalog)(nil)

// SimilarUsers ranks other users by the number of tracks they liked in
// common with userID, descending. This stands in for the "top-N
// similar-user items" §4.J names without requiring a trained model.
func (c *Catalog) SimilarUsers(ctx context.Context, userID int64, limit int) ([]int64, error) {
	rows, err := c.db.Query(ctx, `
		SELECT b.user_id
		FROM track_likes a
		JOIN track_likes b ON a.track_id = b.track_id AND b.user_id != a.user_id
		WHERE a.user_id = $1
		GROUP BY b.user_id
		ORDER BY count(*) DESC
		LIMIT $2`, userID, limit)
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

// SimilarTracks ranks other tracks sharing the seed track's genre by
// play count, descending, standing in for audio-feature similarity
// (§4.J's content-based pool) without a feature-extraction pipeline.
func (c *Catalog) SimilarTracks(ctx context.Context, trackID int64, limit int) ([]TrackScore, error) {
	rows, err := c.db.Query(ctx, `
		SELECT t2.id, t2.genre, t2.plays_count
		FROM tracks t1
		JOIN tracks t2 ON t2.genre = t1.genre AND t2.id != t1.id
		WHERE t1.id = $1
		ORDER BY t2.plays_count DESC
		LIMIT $2`, trackID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackScore
	var maxPlays int64
	type row struct {
		id    int64
		genre string
		plays int64
	}
	var raw []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.genre, &r.plays); err != nil {
			return nil, err
		}
		if r.plays > maxPlays {
			maxPlays = r.plays
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range raw {
		score := 1.0
		if maxPlays > 0 {
			score = float64(r.plays) / float64(maxPlays)
		}
		out = append(out, TrackScore{TrackID: r.id, Score: score, Genre: r.genre})
	}
	return out, nil
}

// Track is the catalog row backing both providers and the Stream
// Core's file-sourced streams, per §3 Track.
type Track struct {
	ID         int64
	Title      string
	Artist     string
	Genre      string
	DurationMs int64
	PlaysCount int64
	LikesCount int64
}

// GetTrack fetches one track row for display alongside a
// RecommendationResult.
func (c *Catalog) GetTrack(ctx context.Context, trackID int64) (*Track, error) {
	t := &Track{}
	err := c.db.QueryRow(ctx, `
		SELECT id, title, artist, genre, duration_ms, plays_count, likes_count
		FROM tracks WHERE id = $1`, trackID).
		Scan(&t.ID, &t.Title, &t.Artist, &t.Genre, &t.DurationMs, &t.PlaysCount, &t.LikesCount)
	if err != nil {
		return nil, err
	}
	return t, nil
}
