package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewServiceAcceptsAnySecretLength(t *testing.T) {
	// HS256 wants a 256-bit key; the secret is stretched to one, so
	// short operator-supplied values still sign.
	for _, secret := range []string{"s", "short-secret", strings.Repeat("x", 64)} {
		svc, err := NewService(secret, time.Hour)
		require.NoError(t, err)

		raw, err := svc.IssueAccessToken("user-1", "client-1", "openid")
		require.NoError(t, err)
		_, ok := svc.VerifyAccessToken(raw)
		require.True(t, ok)
	}

	_, err := NewService("", time.Hour)
	require.Error(t, err)
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	svc, err := NewService("secret", time.Hour)
	require.NoError(t, err)

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	raw, err := svc.IssueAccessToken("user-1", "client-1", "openid email profile")
	require.NoError(t, err)

	claims, ok := svc.VerifyAccessToken(raw)
	require.True(t, ok)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "client-1", claims.ClientID)
	require.Equal(t, "openid email profile", claims.Scope)
	require.Equal(t, issued.Unix(), claims.IssuedAt)
	require.Equal(t, issued.Add(time.Hour).Unix(), claims.Expiry)
	require.Equal(t, int64(1800), claims.ExpiresIn(issued.Add(30*time.Minute)))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc, err := NewService("secret", time.Hour)
	require.NoError(t, err)

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }
	raw, err := svc.IssueAccessToken("user-1", "client-1", "openid")
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(time.Hour) }
	_, ok := svc.VerifyAccessToken(raw)
	require.False(t, ok)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer, err := NewService("secret-a", time.Hour)
	require.NoError(t, err)
	verifier, err := NewService("secret-b", time.Hour)
	require.NoError(t, err)

	raw, err := issuer.IssueAccessToken("user-1", "client-1", "openid")
	require.NoError(t, err)

	_, ok := verifier.VerifyAccessToken(raw)
	require.False(t, ok)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	svc, err := NewService("secret", time.Hour)
	require.NoError(t, err)

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		_, ok := svc.VerifyAccessToken(raw)
		require.False(t, ok, "token %q", raw)
	}
}

func TestTTLSeconds(t *testing.T) {
	svc, err := NewService("secret", time.Hour)
	require.NoError(t, err)
	require.Equal(t, 3600, svc.TTLSeconds())
}

func TestNewOpaqueTokenIsUniqueAndURLSafe(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok := NewOpaqueToken(32)
		require.NotContains(t, tok, "+")
		require.NotContains(t, tok, "/")
		require.NotContains(t, tok, "=")
		require.False(t, seen[tok])
		seen[tok] = true
	}
}
