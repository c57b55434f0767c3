package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okinrev/veza/internal/chat/hub"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	original := "hello, this is a chat message"
	compressed, err := compress(original)
	require.NoError(t, err)
	require.NotEqual(t, original, compressed)

	out, ok := decompress(compressed)
	require.True(t, ok)
	require.Equal(t, original, out)
}

func TestDecompressReturnsOriginalForNonGzipContent(t *testing.T) {
	out, ok := decompress("plain text, not gzip")
	require.False(t, ok)
	require.Equal(t, "plain text, not gzip", out)
}

func TestDecompressAllRewritesOnlyCompressedMessages(t *testing.T) {
	compressed, err := compress("secret payload")
	require.NoError(t, err)

	msgs := []*hub.Message{
		{Content: compressed},
		{Content: "already plain"},
	}

	out := decompressAll(msgs)
	require.Equal(t, "secret payload", out[0].Content)
	require.Equal(t, "already plain", out[1].Content)
}
