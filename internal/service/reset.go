package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/brightport/portal-auth/internal/domain"
	"github.com/brightport/portal-auth/internal/password"
	"github.com/brightport/portal-auth/internal/ratelimit"
	"github.com/brightport/portal-auth/internal/token"
)

const resetTokenBytes = 32

// ForgotPassword starts a password reset. The response is identical whether
// the email is unknown, OAuth-only, or has a password, so the endpoint leaks
// no account-existence signal. Only the SHA-256 of the reset token is stored.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	ctx, span := s.startSpan(ctx, "AccountService.ForgotPassword")
	defer span.End()

	email = normalizeEmail(email)
	if res := s.limiter.Allow(ctx, ratelimit.ActionForgot, email); !res.Allowed {
		return domain.ErrRateLimited(int(res.RetryAfter.Seconds()))
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.log().Debug("password reset requested for unknown email", zap.String("email", email))
			return nil
		}
		span.RecordError(err)
		return fmt.Errorf("load account: %w", err)
	}
	if account.PasswordHash == "" {
		// OAuth-only account; same silent success as unknown email.
		s.log().Debug("password reset requested for oauth-only account",
			zap.Int64("account_id", account.ID))
		return nil
	}

	raw, err := resetToken()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.accounts.SetResetToken(ctx, account.ID, token.Hash(raw), time.Now().UTC().Add(resetTokenTTL)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("store reset token: %w", err)
	}

	link := s.cfg.ResetURLBase + "?token=" + url.QueryEscape(raw)
	if err := s.notifier.SendPasswordReset(ctx, account.Email, account.Name, link); err != nil {
		// The raw token is unrecoverable without this mail, so the failure
		// must surface.
		s.log().Error("password reset delivery failed",
			zap.Int64("account_id", account.ID), zap.Error(err))
		return domain.ErrUnavailable("Could not send the reset email. Please try again later.")
	}

	s.audit("forgot_password.sent", zap.Int64("account_id", account.ID))
	return nil
}

// ResetPassword consumes a reset token, replaces the password, clears the
// lockout state, and destroys every session for the account.
func (s *AccountService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	ctx, span := s.startSpan(ctx, "AccountService.ResetPassword")
	defer span.End()

	if strings.TrimSpace(rawToken) == "" {
		return invalidResetToken()
	}
	if violations := password.Validate(newPassword); len(violations) > 0 {
		return domain.ErrValidation("password " + strings.Join(violations, "; password "))
	}

	account, err := s.accounts.GetByResetTokenHash(ctx, token.Hash(rawToken))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invalidResetToken()
		}
		span.RecordError(err)
		return fmt.Errorf("load account by reset token: %w", err)
	}
	if !account.ResetExpiresAt.After(time.Now().UTC()) {
		return invalidResetToken()
	}

	hash, err := password.Hash(newPassword)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.ReplacePassword(ctx, account.ID, hash); err != nil {
		span.RecordError(err)
		return fmt.Errorf("replace password: %w", err)
	}

	// Forced global logout: every outstanding token pair dies with the old
	// password.
	if err := s.sessions.DeleteForAccount(ctx, account.ID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke sessions: %w", err)
	}

	s.audit("reset_password.success", zap.Int64("account_id", account.ID))
	return nil
}

func invalidResetToken() *domain.AuthError {
	return domain.NewAuthError(domain.CodeInvalidResetToken,
		"The reset link is invalid or has expired.", http.StatusBadRequest)
}

func resetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
