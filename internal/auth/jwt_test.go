package auth

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	token, err := m.Generate(42, "alice", "admin")
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "admin", claims.Role)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := NewJWTManager("secret", -time.Minute)

	token, err := m.Generate(1, "bob", "user")
	require.NoError(t, err)

	_, err = m.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsTokenSignedWithDifferentSecret(t *testing.T) {
	a := NewJWTManager("secret-a", time.Hour)
	b := NewJWTManager("secret-b", time.Hour)

	token, err := a.Generate(1, "bob", "user")
	require.NoError(t, err)

	_, err = b.Verify(token)
	require.Error(t, err)
}

func TestWebSocketAuthPrefersQueryParamOverHeader(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.Generate(7, "carol", "user")
	require.NoError(t, err)

	other, err := m.Generate(99, "mallory", "user")
	require.NoError(t, err)

	r, _ := http.NewRequest(http.MethodGet, "/ws?"+url.Values{"token": {token}}.Encode(), nil)
	r.Header.Set("Authorization", "Bearer "+other)

	claims, err := m.WebSocketAuth(r)
	require.NoError(t, err)
	require.Equal(t, int64(7), claims.UserID)
}

func TestWebSocketAuthFallsBackToHeader(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.Generate(8, "dave", "user")
	require.NoError(t, err)

	r, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	claims, err := m.WebSocketAuth(r)
	require.NoError(t, err)
	require.Equal(t, int64(8), claims.UserID)
}

func TestWebSocketAuthFailsWithNoToken(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	r, _ := http.NewRequest(http.MethodGet, "/ws", nil)

	_, err := m.WebSocketAuth(r)
	require.Error(t, err)
}
