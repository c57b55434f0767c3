package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddChunkReportsBufferFullAtMaxSize(t *testing.T) {
	b := New("stream-1", Config{MaxSize: 2}, nil, nil)

	_, err := b.AddChunk(&Chunk{Data: []byte("a")})
	require.NoError(t, err)
	_, err = b.AddChunk(&Chunk{Data: []byte("b")})
	require.NoError(t, err)

	_, err = b.AddChunk(&Chunk{Data: []byte("c")})
	require.ErrorIs(t, err, ErrBufferFull)
	require.Equal(t, 2, b.Len())
}

func TestGetNextChunkDrainsFIFO(t *testing.T) {
	b := New("stream-1", Config{MaxSize: 10}, nil, nil)
	first := &Chunk{Data: []byte("first"), SequenceNo: 1}
	second := &Chunk{Data: []byte("second"), SequenceNo: 2}
	b.AddChunk(first)
	b.AddChunk(second)

	got, _ := b.GetNextChunk()
	require.Equal(t, first, got)
	got, _ = b.GetNextChunk()
	require.Equal(t, second, got)

	got, status := b.GetNextChunk()
	require.Nil(t, got)
	require.Equal(t, StatusEmpty, status)
}

func TestStatusForFillRatioThresholds(t *testing.T) {
	require.Equal(t, StatusEmpty, statusForFillRatio(0.0))
	require.Equal(t, StatusUnderrunCritical, statusForFillRatio(0.2))
	require.Equal(t, StatusUnderrunHigh, statusForFillRatio(0.5))
	require.Equal(t, StatusOptimal, statusForFillRatio(0.7))
	require.Equal(t, StatusFull, statusForFillRatio(0.95))
}

// statusForFillOnAdd never reports Underrun: a buffer simply filling
// up from empty is a normal startup condition, not a drain-side risk.
func TestStatusForFillOnAddHasNoUnderrunBand(t *testing.T) {
	require.Equal(t, StatusEmpty, statusForFillOnAdd(0.0))
	require.Equal(t, StatusFilling, statusForFillOnAdd(0.2))
	require.Equal(t, StatusFilling, statusForFillOnAdd(0.45))
	require.Equal(t, StatusOptimal, statusForFillOnAdd(0.7))
	require.Equal(t, StatusFull, statusForFillOnAdd(0.95))
}

func TestAddChunkNeverReportsUnderrunWhileFillingFromEmpty(t *testing.T) {
	b := New("stream-1", Config{MaxSize: 10, MinTargetSize: 10, MaxTargetSize: 10}, nil, nil)
	status, err := b.AddChunk(&Chunk{Data: []byte("a")})
	require.NoError(t, err)
	require.NotEqual(t, StatusUnderrunCritical, status)
	require.NotEqual(t, StatusUnderrunHigh, status)
}

func TestNewAppliesDefaultsForZeroConfig(t *testing.T) {
	b := New("stream-1", Config{MaxSize: 5}, nil, nil)
	require.Equal(t, 0.1, b.cfg.AdaptationSpeed)
	require.Equal(t, 10.0, b.cfg.MinTargetSize)
	require.Equal(t, 5.0, b.cfg.MaxTargetSize)
}
