package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/brightport/portal-auth/internal/domain"
	"github.com/brightport/portal-auth/internal/password"
	"github.com/brightport/portal-auth/internal/ratelimit"
)

// LoginMeta is the client metadata recorded on the session row.
type LoginMeta struct {
	IP        string
	UserAgent string
}

// Login authenticates an email/password pair and mints a session.
//
// Unknown email and wrong password are deliberately indistinguishable. Five
// consecutive failures lock the account for fifteen minutes; while the
// lockout is in force the password is not even checked.
func (s *AccountService) Login(ctx context.Context, email, plainPassword string, meta LoginMeta) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AccountService.Login")
	defer span.End()

	email = normalizeEmail(email)

	account, err := s.accounts.GetByEmail(ctx, email)
	found := err == nil
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		return nil, fmt.Errorf("load account: %w", err)
	}

	// A standing lockout answers before the limiter, so attempts during the
	// lockout window keep seeing LOCKED rather than RATE_LIMITED.
	now := time.Now().UTC()
	if found && account.LockedAt(now) {
		return nil, domain.ErrAccountLocked(retryAfterSeconds(account.LockedUntil, now))
	}

	if res := s.limiter.Allow(ctx, ratelimit.ActionLogin, email); !res.Allowed {
		return nil, domain.ErrRateLimited(int(res.RetryAfter.Seconds()))
	}
	if !found {
		return nil, domain.ErrInvalidCredentials()
	}

	if !password.Verify(account.PasswordHash, plainPassword) {
		account.FailedAttempts++
		if account.FailedAttempts >= maxFailedLogins {
			account.LockedUntil = now.Add(lockoutDuration)
		}
		if err := s.accounts.UpdateLoginStats(ctx, account); err != nil {
			// Failing to record the attempt must not mask the auth failure.
			s.log().Warn("failed to record login failure",
				zap.Int64("account_id", account.ID), zap.Error(err))
		}
		if account.LockedAt(now) {
			s.audit("login.locked", zap.Int64("account_id", account.ID))
			return nil, domain.ErrAccountLocked(retryAfterSeconds(account.LockedUntil, now))
		}
		return nil, domain.ErrInvalidCredentials()
	}

	if !account.EmailVerified {
		return nil, domain.ErrEmailNotVerified()
	}
	if gateErr := statusGate(account.Status); gateErr != nil {
		return nil, gateErr
	}

	account.FailedAttempts = 0
	account.LockedUntil = time.Time{}
	account.LoginCount++
	account.LastLoginAt = now
	if err := s.accounts.UpdateLoginStats(ctx, account); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update login stats: %w", err)
	}

	// A successful login lifts earlier throttling penalties for the email.
	s.limiter.Clear(ctx, ratelimit.ActionLogin, email)

	resp, err := s.issueSession(ctx, account, meta)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.audit("login.success", zap.Int64("account_id", account.ID))
	return resp, nil
}

// statusGate maps non-active statuses to their distinct user-facing codes.
func statusGate(status domain.AccountStatus) error {
	switch status {
	case domain.StatusActive:
		return nil
	case domain.StatusPendingApproval:
		return domain.ErrPendingApproval()
	case domain.StatusSuspended:
		return domain.ErrAccountSuspended()
	default:
		return domain.ErrEmailNotVerified()
	}
}

func retryAfterSeconds(until, now time.Time) int {
	secs := int(until.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
