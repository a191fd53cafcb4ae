package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brightport/portal-auth/internal/domain"
	"github.com/brightport/portal-auth/internal/token"
)

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerActive(t, "user@example.com", validPassword)

	login, err := f.svc.Login(ctx, "user@example.com", validPassword, testMeta)
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)
	// The refresh token is not rotated.
	require.Equal(t, login.RefreshToken, refreshed.RefreshToken)
	require.Equal(t, 1, f.sessions.count())

	// The session now answers to the new access hash only.
	_, err = f.sessions.GetByAccessHash(ctx, token.Hash(refreshed.AccessToken))
	require.NoError(t, err)
	if refreshed.AccessToken != login.AccessToken {
		_, err = f.sessions.GetByAccessHash(ctx, token.Hash(login.AccessToken))
		require.Error(t, err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerActive(t, "user@example.com", validPassword)

	login, err := f.svc.Login(ctx, "user@example.com", validPassword, testMeta)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, login.AccessToken)
	requireAuthCode(t, err, domain.CodeInvalidToken)
}

func TestRefreshRejectsRevokedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.registerActive(t, "user@example.com", validPassword)

	login, err := f.svc.Login(ctx, "user@example.com", validPassword, testMeta)
	require.NoError(t, err)

	require.NoError(t, f.sessions.DeleteForAccount(ctx, account.ID))
	_, err = f.svc.Refresh(ctx, login.RefreshToken)
	requireAuthCode(t, err, domain.CodeSessionNotFound)
}

func TestRefreshGatesOnAccountStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.registerActive(t, "user@example.com", validPassword)

	login, err := f.svc.Login(ctx, "user@example.com", validPassword, testMeta)
	require.NoError(t, err)

	f.accounts.mutate(t, account.ID, func(a *domain.Account) {
		a.Status = domain.StatusSuspended
	})
	_, err = f.svc.Refresh(ctx, login.RefreshToken)
	requireAuthCode(t, err, domain.CodeAccountSuspended)
}

func TestMeReturnsAccountView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.registerActive(t, "user@example.com", validPassword)

	login, err := f.svc.Login(ctx, "user@example.com", validPassword, testMeta)
	require.NoError(t, err)

	view, err := f.svc.Me(ctx, login.AccessToken)
	require.NoError(t, err)
	require.Equal(t, account.ID, view.ID)
	require.Equal(t, "user@example.com", view.Email)
	require.False(t, view.OnboardingCompleted)
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Authenticate(context.Background(), "not-a-token")
	requireAuthCode(t, err, domain.CodeInvalidToken)
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerActive(t, "user@example.com", validPassword)

	login, err := f.svc.Login(ctx, "user@example.com", validPassword, testMeta)
	require.NoError(t, err)

	f.svc.Logout(ctx, login.AccessToken)
	require.Zero(t, f.sessions.count())

	_, err = f.svc.Me(ctx, login.AccessToken)
	requireAuthCode(t, err, domain.CodeSessionNotFound)
}

func TestLogoutSwallowsInvalidToken(t *testing.T) {
	f := newFixture(t)
	// Must not panic or fail in any visible way.
	f.svc.Logout(context.Background(), "garbage")
}
