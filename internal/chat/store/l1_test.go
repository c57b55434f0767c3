package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okinrev/veza/internal/chat/hub"
)

func TestL1CacheRoomHistoryReturnsInsertionOrder(t *testing.T) {
	c := newL1Cache(100, time.Hour)
	c.put(&hub.Message{Kind: hub.KindRoom, RoomID: "general", Content: "one"})
	c.put(&hub.Message{Kind: hub.KindRoom, RoomID: "general", Content: "two"})

	got, ok := c.roomHistory("general", 10)
	require.True(t, ok)
	require.Len(t, got, 2)
	require.Equal(t, "one", got[0].Content)
	require.Equal(t, "two", got[1].Content)
}

func TestL1CacheRoomHistoryMissingRoom(t *testing.T) {
	c := newL1Cache(100, time.Hour)
	_, ok := c.roomHistory("nowhere", 10)
	require.False(t, ok)
}

func TestL1CacheDMHistoryIsOrderIndependentOnPair(t *testing.T) {
	c := newL1Cache(100, time.Hour)
	c.put(&hub.Message{Kind: hub.KindDirect, AuthorID: 1, RecipientID: 2, Content: "hi"})

	got, ok := c.dmHistory(2, 1, 10)
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, "hi", got[0].Content)
}

func TestL1CacheEvictsOldestWhenOverCapacity(t *testing.T) {
	c := newL1Cache(2, time.Hour)
	c.put(&hub.Message{Kind: hub.KindRoom, RoomID: "general", Content: "one"})
	c.put(&hub.Message{Kind: hub.KindRoom, RoomID: "general", Content: "two"})
	c.put(&hub.Message{Kind: hub.KindRoom, RoomID: "general", Content: "three"})

	got, ok := c.roomHistory("general", 10)
	require.True(t, ok)
	require.Len(t, got, 2)
	require.Equal(t, "two", got[0].Content)
	require.Equal(t, "three", got[1].Content)
}

func TestL1CacheTailRespectsLimit(t *testing.T) {
	c := newL1Cache(100, time.Hour)
	for i := 0; i < 5; i++ {
		c.put(&hub.Message{Kind: hub.KindRoom, RoomID: "general", Content: "msg"})
	}

	got, ok := c.roomHistory("general", 2)
	require.True(t, ok)
	require.Len(t, got, 2)
}

func TestL1CacheSweepRemovesExpiredEntries(t *testing.T) {
	c := newL1Cache(100, time.Minute)
	c.put(&hub.Message{Kind: hub.KindRoom, RoomID: "general", Content: "stale"})
	c.byRoom["general"][0].insertedAt = time.Now().Add(-time.Hour)

	c.sweep()

	_, ok := c.roomHistory("general", 10)
	require.False(t, ok)
}

func TestDMKeyIsOrderIndependent(t *testing.T) {
	require.Equal(t, dmKey(1, 2), dmKey(2, 1))
	require.NotEqual(t, dmKey(1, 2), dmKey(1, 3))
}
