package hub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomExistsOnlyForKnownRooms(t *testing.T) {
	h := New(Deps{KnownRooms: []string{"general", "dev"}})

	require.True(t, h.RoomExists("general"))
	require.True(t, h.RoomExists("dev"))
	require.False(t, h.RoomExists("random"))
}

func TestGetStatsReportsZeroSessionsInitially(t *testing.T) {
	h := New(Deps{KnownRooms: []string{"general"}})

	stats := h.GetStats()
	require.Equal(t, 0, stats["connected_sessions"])
}
