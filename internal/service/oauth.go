package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/brightport/portal-auth/internal/domain"
	"github.com/brightport/portal-auth/internal/oauth"
)

// LoginWithGoogle verifies a Google ID token and converges on the same
// session issuance path as password login.
func (s *AccountService) LoginWithGoogle(ctx context.Context, credential string, meta LoginMeta) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AccountService.LoginWithGoogle")
	defer span.End()

	if s.google == nil {
		return nil, domain.ErrUnavailable("Google sign-in is not configured.")
	}
	identity, err := s.google.VerifyIDToken(ctx, credential)
	if err != nil {
		if errors.Is(err, oauth.ErrAssertionInvalid) {
			return nil, domain.ErrInvalidToken()
		}
		span.RecordError(err)
		return nil, fmt.Errorf("verify google id token: %w", err)
	}
	return s.completeOAuth(ctx, identity, meta)
}

// LoginWithLinkedIn exchanges a LinkedIn authorization code and converges on
// the same session issuance path as password login.
func (s *AccountService) LoginWithLinkedIn(ctx context.Context, code, redirectURI string, meta LoginMeta) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AccountService.LoginWithLinkedIn")
	defer span.End()

	if s.linkedin == nil {
		return nil, domain.ErrUnavailable("LinkedIn sign-in is not configured.")
	}
	identity, err := s.linkedin.Exchange(ctx, code, redirectURI)
	if err != nil {
		if errors.Is(err, oauth.ErrAssertionInvalid) {
			return nil, domain.ErrInvalidToken()
		}
		span.RecordError(err)
		return nil, fmt.Errorf("exchange linkedin code: %w", err)
	}
	return s.completeOAuth(ctx, identity, meta)
}

func (s *AccountService) completeOAuth(ctx context.Context, identity *oauth.Identity, meta LoginMeta) (*TokenResponse, error) {
	account, err := s.linkOrCreateAccount(ctx, identity)
	if err != nil {
		return nil, err
	}

	// The provider vouched for the email, but approval gating still applies
	// before any token is issued.
	if !account.EmailVerified {
		return nil, domain.ErrEmailNotVerified()
	}
	if gateErr := statusGate(account.Status); gateErr != nil {
		return nil, gateErr
	}

	now := time.Now().UTC()
	account.FailedAttempts = 0
	account.LockedUntil = time.Time{}
	account.LoginCount++
	account.LastLoginAt = now
	if err := s.accounts.UpdateLoginStats(ctx, account); err != nil {
		return nil, fmt.Errorf("update login stats: %w", err)
	}

	resp, err := s.issueSession(ctx, account, meta)
	if err != nil {
		return nil, err
	}

	s.audit("oauth_login.success",
		zap.String("provider", identity.Provider), zap.Int64("account_id", account.ID))
	return resp, nil
}

// linkOrCreateAccount resolves the normalized provider identity to an
// account: by (provider, subject) first, then by email, creating a verified
// pending_approval account when neither matches.
func (s *AccountService) linkOrCreateAccount(ctx context.Context, identity *oauth.Identity) (domain.Account, error) {
	account, err := s.accounts.GetByProviderSubject(ctx, identity.Provider, identity.Subject)
	if err == nil {
		return s.backfillAvatar(ctx, account, identity.Picture), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("load account by provider subject: %w", err)
	}

	account, err = s.accounts.GetByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		if err := s.accounts.LinkIdentity(ctx, domain.ExternalIdentity{
			AccountID: account.ID,
			Provider:  identity.Provider,
			Subject:   identity.Subject,
		}); err != nil {
			return domain.Account{}, fmt.Errorf("link identity: %w", err)
		}
		if account.Status == domain.StatusPendingVerification {
			// The provider already vouched for the address; skip straight to
			// approval.
			ok, err := s.accounts.MarkVerified(ctx, account.ID)
			if err != nil {
				return domain.Account{}, fmt.Errorf("mark verified: %w", err)
			}
			if ok {
				account.EmailVerified = true
				account.Status = domain.StatusPendingApproval
				account.VerificationCode = ""
				account.VerificationExpiresAt = time.Time{}
				if err := s.accounts.EnsureOnboarding(ctx, account.ID); err != nil {
					return domain.Account{}, fmt.Errorf("provision onboarding: %w", err)
				}
			}
		}
		return s.backfillAvatar(ctx, account, identity.Picture), nil

	case errors.Is(err, pgx.ErrNoRows):
		name := identity.Name
		if name == "" {
			name = identity.Email
		}
		created, err := s.accounts.Create(ctx, domain.Account{
			Email:         identity.Email,
			Name:          name,
			AvatarURL:     identity.Picture,
			Role:          defaultRole,
			EmailVerified: true,
			Status:        domain.StatusPendingApproval,
		})
		if err != nil {
			return domain.Account{}, fmt.Errorf("create oauth account: %w", err)
		}
		if err := s.accounts.LinkIdentity(ctx, domain.ExternalIdentity{
			AccountID: created.ID,
			Provider:  identity.Provider,
			Subject:   identity.Subject,
		}); err != nil {
			return domain.Account{}, fmt.Errorf("link identity: %w", err)
		}
		if err := s.accounts.EnsureOnboarding(ctx, created.ID); err != nil {
			return domain.Account{}, fmt.Errorf("provision onboarding: %w", err)
		}

		s.notifyAsync("admin_notification", func(ctx context.Context) error {
			return s.notifier.SendAdminNotification(ctx, created.Name, created.Email, created.Company)
		})
		s.notifyAsync("welcome", func(ctx context.Context) error {
			return s.notifier.SendWelcome(ctx, created.Email, created.Name)
		})

		s.audit("oauth_account.created",
			zap.String("provider", identity.Provider), zap.Int64("account_id", created.ID))
		return created, nil

	default:
		return domain.Account{}, fmt.Errorf("load account by email: %w", err)
	}
}

func (s *AccountService) backfillAvatar(ctx context.Context, account domain.Account, picture string) domain.Account {
	if account.AvatarURL != "" || picture == "" {
		return account
	}
	if err := s.accounts.UpdateAvatar(ctx, account.ID, picture); err != nil {
		s.log().Warn("avatar backfill failed", zap.Int64("account_id", account.ID), zap.Error(err))
		return account
	}
	account.AvatarURL = picture
	return account
}
