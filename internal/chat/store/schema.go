package store

import "context"

// Schema is the minimal DDL this package depends on. It is applied by
// the chathub binary at startup via Migrate; a real deployment would
// drive this through a dedicated migration tool instead, but the spec
// scopes schema management as part of the service's own bootstrap.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGINT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	content TEXT NOT NULL,
	author_id BIGINT NOT NULL,
	author_username TEXT NOT NULL,
	room_id TEXT,
	recipient_id BIGINT,
	parent_id TEXT,
	thread_count INT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	pinned BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages (room_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_dm ON messages (author_id, recipient_id, created_at DESC);

CREATE TABLE IF NOT EXISTS read_markers (
	user_id BIGINT NOT NULL,
	room_id TEXT NOT NULL,
	read_up_to TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, room_id)
);

CREATE TABLE IF NOT EXISTS follows (
	follower_id BIGINT NOT NULL,
	followee_id BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (follower_id, followee_id)
);

CREATE TABLE IF NOT EXISTS track_likes (
	user_id BIGINT NOT NULL,
	track_id BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, track_id)
);

CREATE TABLE IF NOT EXISTS track_reposts (
	user_id BIGINT NOT NULL,
	track_id BIGINT NOT NULL,
	message TEXT,
	visibility TEXT NOT NULL DEFAULT 'public',
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, track_id)
);

CREATE TABLE IF NOT EXISTS tracks (
	id BIGINT PRIMARY KEY,
	title TEXT NOT NULL,
	artist TEXT NOT NULL,
	genre TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	plays_count BIGINT NOT NULL DEFAULT 0,
	likes_count BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tracks_genre ON tracks (genre, plays_count DESC);

CREATE TABLE IF NOT EXISTS message_reactions (
	message_id TEXT NOT NULL,
	user_id BIGINT NOT NULL,
	emoji TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (message_id, user_id, emoji)
);

CREATE TABLE IF NOT EXISTS message_mentions (
	message_id TEXT NOT NULL,
	user_id BIGINT NOT NULL,
	PRIMARY KEY (message_id, user_id)
);

CREATE TABLE IF NOT EXISTS message_read_status (
	user_id BIGINT NOT NULL,
	message_id TEXT NOT NULL,
	read_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, message_id)
);

CREATE TABLE IF NOT EXISTS track_comments (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL,
	track_id BIGINT NOT NULL,
	content TEXT NOT NULL,
	parent_id BIGINT,
	timestamp_ms BIGINT,
	replies_count INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_track_comments_track ON track_comments (track_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_track_comments_parent ON track_comments (parent_id);
`

func Migrate(ctx context.Context, s *Store) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}
