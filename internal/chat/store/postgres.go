package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okinrev/veza/internal/chat/hub"
)

var errTooManyPins = errors.New("pin limit reached for room")

const insertMessageSQL = `
INSERT INTO messages
	(id, kind, content, author_id, author_username, room_id, recipient_id,
	 parent_id, thread_count, status, pinned, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO NOTHING`

const selectRoomHistorySQL = `
SELECT id, kind, content, author_id, author_username, room_id, recipient_id,
	   parent_id, thread_count, status, pinned, created_at, updated_at
FROM messages
WHERE room_id = $1
ORDER BY created_at DESC
LIMIT $2`

const selectDMHistorySQL = `
SELECT id, kind, content, author_id, author_username, room_id, recipient_id,
	   parent_id, thread_count, status, pinned, created_at, updated_at
FROM messages
WHERE (author_id = $1 AND recipient_id = $2) OR (author_id = $2 AND recipient_id = $1)
ORDER BY created_at DESC
LIMIT $3`

func scanMessage(row pgx.Row) (*hub.Message, error) {
	var msg hub.Message
	var roomID, parentID *string
	var recipientID *int64

	err := row.Scan(
		&msg.ID, &msg.Kind, &msg.Content, &msg.AuthorID, &msg.AuthorUsername,
		&roomID, &recipientID, &parentID, &msg.ThreadCount, &msg.Status,
		&msg.Pinned, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if roomID != nil {
		msg.RoomID = *roomID
	}
	if recipientID != nil {
		msg.RecipientID = *recipientID
	}
	if parentID != nil {
		msg.ParentID = *parentID
	}
	return &msg, nil
}

func queryRoomHistory(ctx context.Context, db *pgxpool.Pool, room string, limit int) ([]*hub.Message, error) {
	rows, err := db.Query(ctx, selectRoomHistorySQL, room, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*hub.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func queryDMHistory(ctx context.Context, db *pgxpool.Pool, userA, userB int64, limit int) ([]*hub.Message, error) {
	rows, err := db.Query(ctx, selectDMHistorySQL, userA, userB, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*hub.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func countPinned(ctx context.Context, db *pgxpool.Pool, room string) (int, error) {
	var count int
	err := db.QueryRow(ctx, `SELECT count(*) FROM messages WHERE room_id = $1 AND pinned`, room).Scan(&count)
	return count, err
}

func pinMessage(ctx context.Context, db *pgxpool.Pool, messageID string) error {
	_, err := db.Exec(ctx, `UPDATE messages SET pinned = true WHERE id = $1`, messageID)
	return err
}

func markMessagesRead(ctx context.Context, db *pgxpool.Pool, userID int64, room string, upTo time.Time) error {
	_, err := db.Exec(ctx, `
		INSERT INTO read_markers (user_id, room_id, read_up_to)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, room_id) DO UPDATE SET read_up_to = excluded.read_up_to`,
		userID, room, upTo)
	return err
}

func countUnreadMessages(ctx context.Context, db *pgxpool.Pool, userID int64, room string) (int, error) {
	var count int
	err := db.QueryRow(ctx, `
		SELECT count(*) FROM messages m
		WHERE m.room_id = $1
		  AND m.created_at > COALESCE(
			(SELECT read_up_to FROM read_markers WHERE user_id = $2 AND room_id = $1),
			'epoch'::timestamptz)`,
		room, userID).Scan(&count)
	return count, err
}

// conversationKeySQL computes the §3 conversation identifier for a
// message row: "room_<room_id>" for room messages, or
// "dm_<min(a,b)>_<max(a,b)>" for direct messages.
const conversationKeySQL = `
CASE
	WHEN m.room_id IS NOT NULL THEN 'room_' || m.room_id
	ELSE 'dm_' || least(m.author_id, m.recipient_id) || '_' || greatest(m.author_id, m.recipient_id)
END`

// countUnreadByConversation implements §4.G's
// count_unread_messages(user_id), grouping every message the user is a
// party to (author or recipient of a DM, or room messages they have a
// read marker or have themselves posted in) by conversation key.
func countUnreadByConversation(ctx context.Context, db *pgxpool.Pool, userID int64) (map[string]int, error) {
	rows, err := db.Query(ctx, `
		SELECT `+conversationKeySQL+` AS conv, count(*)
		FROM messages m
		LEFT JOIN message_read_status rs ON rs.message_id = m.id AND rs.user_id = $1
		WHERE rs.message_id IS NULL
		  AND (
			m.recipient_id = $1 OR m.author_id = $1
			OR m.room_id IN (SELECT room_id FROM read_markers WHERE user_id = $1)
		  )
		GROUP BY conv`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		out[key] = count
	}
	return out, rows.Err()
}

// markMessagesReadInConversation upserts a message_read_status row for
// every message in the given conversation not yet read by userID,
// satisfying §8's idempotence requirement: a repeat call affects zero
// additional rows. conversation is either a room name or, for DMs, the
// other party's user id.
func markMessagesReadInConversation(ctx context.Context, db *pgxpool.Pool, userID int64, room string, dmWith int64) (int64, error) {
	if room != "" {
		ct, err := db.Exec(ctx, `
			INSERT INTO message_read_status (user_id, message_id, read_at)
			SELECT $1, m.id, now() FROM messages m WHERE m.room_id = $2
			ON CONFLICT (user_id, message_id) DO NOTHING`, userID, room)
		if err != nil {
			return 0, err
		}
		return ct.RowsAffected(), nil
	}
	ct, err := db.Exec(ctx, `
		INSERT INTO message_read_status (user_id, message_id, read_at)
		SELECT $1, m.id, now() FROM messages m
		WHERE (m.author_id = $2 AND m.recipient_id = $1) OR (m.author_id = $1 AND m.recipient_id = $2)
		ON CONFLICT (user_id, message_id) DO NOTHING`, userID, dmWith)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// insertReaction enforces the §3 Reaction invariant: the triple
// (message_id, user_id, emoji) is unique, and a duplicate insert is
// rejected rather than silently absorbed.
func insertReaction(ctx context.Context, db *pgxpool.Pool, messageID string, userID int64, emoji string) (bool, error) {
	ct, err := db.Exec(ctx, `
		INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING`, messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func deleteReaction(ctx context.Context, db *pgxpool.Pool, messageID string, userID int64, emoji string) (bool, error) {
	ct, err := db.Exec(ctx, `
		DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// searchMessages implements §4.G's search: a LIKE-style filter
// restricted to conversations the user participates in (rooms they
// have authored into, or DMs to/from them), paginated.
func searchMessages(ctx context.Context, db *pgxpool.Pool, userID int64, query string, limit, offset int) ([]*hub.Message, error) {
	rows, err := db.Query(ctx, `
		SELECT id, kind, content, author_id, author_username, room_id, recipient_id,
			   parent_id, thread_count, status, pinned, created_at, updated_at
		FROM messages m
		WHERE m.content ILIKE '%' || $1 || '%'
		  AND (
			m.author_id = $2 OR m.recipient_id = $2
			OR m.room_id IN (SELECT DISTINCT room_id FROM messages WHERE author_id = $2 AND room_id IS NOT NULL)
		  )
		ORDER BY m.created_at DESC
		LIMIT $3 OFFSET $4`, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*hub.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
