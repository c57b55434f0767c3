package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCollectsDetailPairs(t *testing.T) {
	e := New(KindMissingParameter, "param", "room")
	require.Equal(t, "room", e.Detail["param"])
}

func TestWrapPreservesUnderlyingError(t *testing.T) {
	underlying := errors.New("connection refused")
	e := Wrap(KindDatabase, underlying)
	require.ErrorIs(t, e, underlying)
	require.Contains(t, e.Error(), "connection refused")
}

func TestAsExtractsWrappedError(t *testing.T) {
	e := New(KindNotFound, "id", "42")
	found, ok := As(e)
	require.True(t, ok)
	require.Equal(t, KindNotFound, found.Kind)

	_, ok = As(errors.New("plain error"))
	require.False(t, ok)
}

func TestHTTPStatusMapping(t *testing.T) {
	require.Equal(t, 400, KindMissingParameter.HTTPStatus())
	require.Equal(t, 401, KindInvalidToken.HTTPStatus())
	require.Equal(t, 404, KindNotFound.HTTPStatus())
	require.Equal(t, 409, KindReactionAlreadyExists.HTTPStatus())
	require.Equal(t, 429, KindRateLimitExceeded.HTTPStatus())
	require.Equal(t, 503, KindShutdownTimeout.HTTPStatus())
}

func TestPublicNeverLeaksWrappedDetailForInternalKinds(t *testing.T) {
	e := Wrap(KindDatabase, errors.New("pq: password authentication failed for user veza"))
	msg := e.Public()
	require.NotContains(t, msg, "password")
	require.NotContains(t, msg, "veza")
}

func TestPublicRendersValidationDetail(t *testing.T) {
	e := New(KindMissingParameter, "param", "content")
	require.Contains(t, e.Public(), "content")
}
