package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/brightport/portal-auth/internal/domain"
	"github.com/brightport/portal-auth/internal/token"
)

// TokenResponse is the payload returned by login, OAuth, and refresh.
type TokenResponse struct {
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	TokenType    string             `json:"token_type"`
	ExpiresIn    int64              `json:"expires_in"`
	User         domain.AccountView `json:"user"`
}

// Refresh exchanges a valid refresh token for a fresh access token. The
// refresh token itself is not rotated; the session's access hash is replaced
// in place, which is what rejects rotated-out access tokens.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AccountService.Refresh")
	defer span.End()

	accountID, _, err := s.tokens.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		return nil, domain.ErrInvalidToken()
	}

	session, err := s.sessions.GetByRefreshHash(ctx, accountID, token.Hash(refreshToken))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Covers sessions revoked by logout or a password reset.
			return nil, domain.ErrSessionNotFound()
		}
		span.RecordError(err)
		return nil, fmt.Errorf("load session: %w", err)
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !account.EmailVerified {
		return nil, domain.ErrEmailNotVerified()
	}
	if gateErr := statusGate(account.Status); gateErr != nil {
		return nil, gateErr
	}

	access, expiresAt, err := s.tokens.IssueAccess(account.ID, account.Email, account.Role)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	if err := s.sessions.UpdateAccessToken(ctx, session.ID, token.Hash(access), expiresAt); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rotate session access token: %w", err)
	}

	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		User:         account.View(s.onboardingCompleted(ctx, account.ID)),
	}, nil
}

// Authenticate resolves a bearer access token to its account, rejecting
// tokens whose session was revoked.
func (s *AccountService) Authenticate(ctx context.Context, accessToken string) (domain.Account, error) {
	accountID, _, err := s.tokens.Verify(accessToken, token.TypeAccess)
	if err != nil {
		return domain.Account{}, domain.ErrInvalidToken()
	}
	if _, err := s.sessions.GetByAccessHash(ctx, token.Hash(accessToken)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrSessionNotFound()
		}
		return domain.Account{}, fmt.Errorf("load session: %w", err)
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}

// Me returns the authenticated account's public projection.
func (s *AccountService) Me(ctx context.Context, accessToken string) (domain.AccountView, error) {
	ctx, span := s.startSpan(ctx, "AccountService.Me")
	defer span.End()

	account, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return domain.AccountView{}, err
	}
	return account.View(s.onboardingCompleted(ctx, account.ID)), nil
}

// Logout destroys the session behind the access token. It is best-effort:
// an invalid token or a store failure is swallowed, since logout must never
// fail visibly to the caller.
func (s *AccountService) Logout(ctx context.Context, accessToken string) {
	ctx, span := s.startSpan(ctx, "AccountService.Logout")
	defer span.End()

	if _, _, err := s.tokens.Verify(accessToken, token.TypeAccess); err != nil {
		return
	}
	if err := s.sessions.DeleteByAccessHash(ctx, token.Hash(accessToken)); err != nil {
		s.log().Warn("logout session delete failed", zap.Error(err))
	}
}

func (s *AccountService) issueSession(ctx context.Context, account domain.Account, meta LoginMeta) (*TokenResponse, error) {
	pair, err := s.tokens.IssuePair(account.ID, account.Email, account.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token pair: %w", err)
	}
	session := domain.Session{
		ID:               uuid.NewString(),
		AccountID:        account.ID,
		AccessTokenHash:  token.Hash(pair.AccessToken),
		RefreshTokenHash: token.Hash(pair.RefreshToken),
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		IP:               meta.IP,
		UserAgent:        meta.UserAgent,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		User:         account.View(s.onboardingCompleted(ctx, account.ID)),
	}, nil
}

func (s *AccountService) onboardingCompleted(ctx context.Context, accountID int64) bool {
	onboarding, err := s.accounts.GetOnboarding(ctx, accountID)
	if err != nil {
		return false
	}
	return onboarding.Completed
}
