// Package store implements the Tiered Message Store (§4.G): an
// in-process L1 cache, a Redis L2 cache, and a PostgreSQL L3 system of
// record, with batched writes and optional content compression.
// Grounded on the original engine's three-tier design in
// optimized_persistence.rs, adapted to Go's goroutine/channel idiom in
// place of tokio tasks.
package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/okinrev/veza/internal/chat/hub"
	"github.com/okinrev/veza/internal/errs"
	"github.com/okinrev/veza/internal/logging"
	"github.com/okinrev/veza/internal/metrics"
)

type Config struct {
	L1CacheSize           int
	L1CacheTTL            time.Duration
	L2CacheTTL            time.Duration
	CacheTimeout          time.Duration
	CompressionEnabled    bool
	CompressionThreshold  int
	BatchSize             int
	BatchFlushInterval    time.Duration
	MaxPinsPerRoom        int
}

// Store is the hub.Store implementation: writes go to L1 synchronously,
// then fan out to L2 and a batched L3 writer. Room-history reads check
// L1, then L2, falling back to L3 on a miss; DM-history reads check L1
// and fall back to L3 without reading L2.
type Store struct {
	cfg       Config
	l1        *l1Cache
	redis     *redis.Client
	db        *pgxpool.Pool
	batcher   *batchWriter
	metrics   *metrics.Registry
	logger    zerolog.Logger
	userCache *userExistsCache
}

var _ hub.Store = (*Store)(nil)
var _ hub.UserDirectory = (*Store)(nil)

func New(cfg Config, rdb *redis.Client, db *pgxpool.Pool, reg *metrics.Registry, logger zerolog.Logger) *Store {
	s := &Store{
		cfg:       cfg,
		l1:        newL1Cache(cfg.L1CacheSize, cfg.L1CacheTTL),
		redis:     rdb,
		db:        db,
		metrics:   reg,
		logger:    logger,
		userCache: newUserExistsCache(60 * time.Second),
	}
	s.batcher = newBatchWriter(db, cfg.BatchSize, cfg.BatchFlushInterval, reg, logger)
	return s
}

// Run starts the L1 sweep and batch-flush background loops. It blocks
// until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	go func() {
		defer logging.RecoverPanic(s.logger, "store.l1sweep", nil)
		s.l1.sweepLoop(ctx)
	}()
	s.batcher.run(ctx)
}

func (s *Store) SaveMessage(ctx context.Context, msg *hub.Message) error {
	start := time.Now()
	defer func() { s.metrics.RecordStoreWriteLatency(time.Since(start)) }()

	stored := *msg
	if s.cfg.CompressionEnabled && len(stored.Content) > s.cfg.CompressionThreshold {
		compressed, err := compress(stored.Content)
		if err == nil {
			stored.Content = compressed
		}
	}

	s.l1.put(&stored)

	if s.redis != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CacheTimeout)
			defer cancel()
			if err := s.writeL2(ctx, &stored); err != nil {
				s.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("l2 cache write failed")
			}
		}()
	}

	s.metrics.IncrementStoreBatchWrites()
	s.batcher.enqueue(&stored)
	return nil
}

func (s *Store) RoomHistory(ctx context.Context, room string, limit int) ([]*hub.Message, error) {
	start := time.Now()
	defer func() { s.metrics.RecordStoreReadLatency(time.Since(start)) }()

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	if msgs, ok := s.l1.roomHistory(room, limit); ok {
		s.metrics.RecordStoreL1(true)
		return decompressAll(msgs), nil
	}
	s.metrics.RecordStoreL1(false)

	if s.redis != nil {
		if msgs, err := s.readL2Room(ctx, room, limit); err == nil && len(msgs) > 0 {
			s.metrics.RecordStoreL2(true)
			return decompressAll(msgs), nil
		}
	}
	s.metrics.RecordStoreL2(false)

	s.metrics.IncrementStoreDBReads()
	msgs, err := queryRoomHistory(ctx, s.db, room, limit)
	if err != nil {
		return nil, err
	}
	return decompressAll(msgs), nil
}

func (s *Store) DMHistory(ctx context.Context, userA, userB int64, limit int) ([]*hub.Message, error) {
	start := time.Now()
	defer func() { s.metrics.RecordStoreReadLatency(time.Since(start)) }()

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	if msgs, ok := s.l1.dmHistory(userA, userB, limit); ok {
		s.metrics.RecordStoreL1(true)
		return decompressAll(msgs), nil
	}
	s.metrics.RecordStoreL1(false)
	s.metrics.RecordStoreL2(false)

	s.metrics.IncrementStoreDBReads()
	msgs, err := queryDMHistory(ctx, s.db, userA, userB, limit)
	if err != nil {
		return nil, err
	}
	return decompressAll(msgs), nil
}

// PinMessage marks a message pinned, enforcing the §4.G cap of
// MaxPinsPerRoom pins per room.
func (s *Store) PinMessage(ctx context.Context, room, messageID string) error {
	count, err := countPinned(ctx, s.db, room)
	if err != nil {
		return err
	}
	if count >= s.cfg.MaxPinsPerRoom {
		return errTooManyPins
	}
	return pinMessage(ctx, s.db, messageID)
}

func (s *Store) MarkRead(ctx context.Context, userID int64, room string, upTo time.Time) error {
	return markMessagesRead(ctx, s.db, userID, room, upTo)
}

func (s *Store) CountUnread(ctx context.Context, userID int64, room string) (int, error) {
	return countUnreadMessages(ctx, s.db, userID, room)
}

// MarkMessagesAsRead implements §4.G's mark_messages_as_read(user_id,
// conversation_id?). Exactly one of room/dmWith is set. It is
// idempotent: a second call for the same arguments upserts the same
// rows and reports zero newly-affected rows.
func (s *Store) MarkMessagesAsRead(ctx context.Context, userID int64, room string, dmWith int64) (int64, error) {
	return markMessagesReadInConversation(ctx, s.db, userID, room, dmWith)
}

// CountUnreadMessages implements §4.G's count_unread_messages(user_id),
// returning a map keyed by conversation identifier
// ("room_<room_id>" or "dm_<min(a,b)>_<max(a,b)>").
func (s *Store) CountUnreadMessages(ctx context.Context, userID int64) (map[string]int, error) {
	return countUnreadByConversation(ctx, s.db, userID)
}

// AddReaction records a (message_id, user_id, emoji) reaction. Per §3,
// the triple is unique; a duplicate is rejected with
// errs.KindReactionAlreadyExists rather than silently absorbed.
func (s *Store) AddReaction(ctx context.Context, messageID string, userID int64, emoji string) error {
	inserted, err := insertReaction(ctx, s.db, messageID, userID, emoji)
	if err != nil {
		return err
	}
	if !inserted {
		return errs.New(errs.KindReactionAlreadyExists, "message_id", messageID, "emoji", emoji)
	}
	return nil
}

// RemoveReaction deletes a reaction, reporting
// errs.KindReactionNotFound if it was not present.
func (s *Store) RemoveReaction(ctx context.Context, messageID string, userID int64, emoji string) error {
	deleted, err := deleteReaction(ctx, s.db, messageID, userID, emoji)
	if err != nil {
		return err
	}
	if !deleted {
		return errs.New(errs.KindReactionNotFound, "message_id", messageID, "emoji", emoji)
	}
	return nil
}

// SearchMessages implements §4.G's paginated search, restricted to
// conversations userID participates in.
func (s *Store) SearchMessages(ctx context.Context, userID int64, query string, limit, offset int) ([]*hub.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	msgs, err := searchMessages(ctx, s.db, userID, query, limit, offset)
	if err != nil {
		return nil, err
	}
	return decompressAll(msgs), nil
}

// UserExists satisfies hub.UserDirectory: direct-message recipients
// are validated against the persistent user table, not just whoever
// currently has a live session. A 60s in-memory cache fronts the
// lookup so a burst of DMs to the same recipient doesn't hit Postgres
// on every message.
func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	if exists, ok := s.userCache.get(userID); ok {
		return exists, nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return false, err
	}
	s.userCache.put(userID, exists)
	return exists, nil
}

func compress(content string) (string, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(content)); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func decompress(content string) (string, bool) {
	r, err := gzip.NewReader(bytes.NewReader([]byte(content)))
	if err != nil {
		return content, false
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return content, false
	}
	return string(out), true
}

func decompressAll(msgs []*hub.Message) []*hub.Message {
	for _, m := range msgs {
		if out, ok := decompress(m.Content); ok {
			m.Content = out
		}
	}
	return msgs
}
