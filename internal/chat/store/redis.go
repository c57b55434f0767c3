package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okinrev/veza/internal/chat/hub"
)

func roomListKey(room string) string { return fmt.Sprintf("chat:room:%s:recent", room) }

// writeL2 pushes the message onto a capped Redis list so a room's
// recent history survives a process restart even before the L3 batch
// flush lands, per the write-through policy in §4.G.
func (s *Store) writeL2(ctx context.Context, msg *hub.Message) error {
	if msg.Kind != hub.KindRoom {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := roomListKey(msg.RoomID)
	pipe := s.redis.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, 499)
	pipe.Expire(ctx, key, s.cfg.L2CacheTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) readL2Room(ctx context.Context, room string, limit int) ([]*hub.Message, error) {
	raw, err := s.redis.LRange(ctx, roomListKey(room), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*hub.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var msg hub.Message
		if err := json.Unmarshal([]byte(raw[i]), &msg); err != nil {
			continue
		}
		out = append(out, &msg)
	}
	return out, nil
}
