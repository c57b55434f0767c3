package store

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/okinrev/veza/internal/chat/hub"
	"github.com/okinrev/veza/internal/metrics"
)

// batchWriter accumulates messages and flushes them to PostgreSQL
// either when a batch fills or on a fixed interval, whichever comes
// first, per §4.G's batch_size/batch_flush_interval knobs.
type batchWriter struct {
	db       *pgxpool.Pool
	size     int
	interval time.Duration
	metrics  *metrics.Registry
	logger   zerolog.Logger

	mu      sync.Mutex
	pending []*hub.Message
	flush   chan struct{}
}

func newBatchWriter(db *pgxpool.Pool, size int, interval time.Duration, reg *metrics.Registry, logger zerolog.Logger) *batchWriter {
	return &batchWriter{
		db:       db,
		size:     size,
		interval: interval,
		metrics:  reg,
		logger:   logger,
		flush:    make(chan struct{}, 1),
	}
}

func (b *batchWriter) enqueue(msg *hub.Message) {
	b.mu.Lock()
	b.pending = append(b.pending, msg)
	full := len(b.pending) >= b.size
	b.mu.Unlock()

	if full {
		select {
		case b.flush <- struct{}{}:
		default:
		}
	}
}

func (b *batchWriter) run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.drain(context.Background())
			return
		case <-ticker.C:
			b.drain(ctx)
		case <-b.flush:
			b.drain(ctx)
		}
	}
}

func (b *batchWriter) drain(ctx context.Context) {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 || b.db == nil {
		return
	}

	if err := writeBatch(ctx, b.db, batch); err != nil {
		b.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("batch write to postgres failed")
		return
	}
	b.metrics.IncrementStoreDBWrites()
}

func writeBatch(ctx context.Context, db *pgxpool.Pool, batch []*hub.Message) error {
	pgxBatch := &pgx.Batch{}
	for _, msg := range batch {
		pgxBatch.Queue(insertMessageSQL,
			msg.ID, msg.Kind, msg.Content, msg.AuthorID, msg.AuthorUsername,
			nullableString(msg.RoomID), nullableInt64(msg.RecipientID),
			nullableString(msg.ParentID), msg.ThreadCount, msg.Status,
			msg.Pinned, msg.CreatedAt, msg.UpdatedAt,
		)
	}

	br := db.SendBatch(ctx, pgxBatch)
	defer br.Close()

	for range batch {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
