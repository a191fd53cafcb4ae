package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brightport/portal-auth/internal/token"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newService(t *testing.T) *token.Service {
	t.Helper()
	svc, err := token.NewService(testSecret, "portal-auth-test", 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)
	return svc
}

func TestNewServiceRejectsShortSecret(t *testing.T) {
	_, err := token.NewService([]byte("short"), "issuer", time.Minute, time.Hour)
	require.Error(t, err)
}

func TestIssueAndVerifyPair(t *testing.T) {
	svc := newService(t)

	pair, err := svc.IssuePair(42, "user@example.com", "client")
	require.NoError(t, err)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	require.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	accountID, claims, err := svc.Verify(pair.AccessToken, token.TypeAccess)
	require.NoError(t, err)
	require.Equal(t, int64(42), accountID)
	require.Equal(t, "user@example.com", claims.Email)
	require.Equal(t, "client", claims.Role)

	accountID, _, err = svc.Verify(pair.RefreshToken, token.TypeRefresh)
	require.NoError(t, err)
	require.Equal(t, int64(42), accountID)
}

func TestVerifyRejectsWrongType(t *testing.T) {
	svc := newService(t)
	pair, err := svc.IssuePair(7, "user@example.com", "client")
	require.NoError(t, err)

	_, _, err = svc.Verify(pair.RefreshToken, token.TypeAccess)
	require.ErrorIs(t, err, token.ErrTokenType)
	_, _, err = svc.Verify(pair.AccessToken, token.TypeRefresh)
	require.ErrorIs(t, err, token.ErrTokenType)
}

func TestVerifyRejectsExpired(t *testing.T) {
	svc, err := token.NewService(testSecret, "portal-auth-test", -time.Minute, -time.Minute)
	require.NoError(t, err)

	access, _, err := svc.IssueAccess(3, "user@example.com", "client")
	require.NoError(t, err)
	_, _, err = svc.Verify(access, token.TypeAccess)
	require.Error(t, err)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	svc := newService(t)
	other, err := token.NewService([]byte("ffffffffffffffffffffffffffffffff"), "portal-auth-test", time.Minute, time.Hour)
	require.NoError(t, err)

	access, _, err := other.IssueAccess(3, "user@example.com", "client")
	require.NoError(t, err)
	_, _, err = svc.Verify(access, token.TypeAccess)
	require.Error(t, err)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	svc := newService(t)
	other, err := token.NewService(testSecret, "someone-else", time.Minute, time.Hour)
	require.NoError(t, err)

	access, _, err := other.IssueAccess(3, "user@example.com", "client")
	require.NoError(t, err)
	_, _, err = svc.Verify(access, token.TypeAccess)
	require.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := newService(t)
	_, _, err := svc.Verify("not-a-jwt", token.TypeAccess)
	require.Error(t, err)
}

func TestHashIsStableAndHex(t *testing.T) {
	first := token.Hash("some-token")
	second := token.Hash("some-token")
	require.Equal(t, first, second)
	require.Len(t, first, 64)
	require.NotEqual(t, first, token.Hash("another-token"))
}
