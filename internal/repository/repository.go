// Package repository defines the durable store contracts consumed by the
// account service and their Postgres implementations. Not-found is reported
// as a wrapped pgx.ErrNoRows.
package repository

import (
	"context"
	"time"

	"github.com/brightport/portal-auth/internal/domain"
)

// AccountRepository is the durable record of accounts, linked identities,
// verification/reset artifacts, and onboarding rows.
type AccountRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	GetByID(ctx context.Context, id int64) (domain.Account, error)
	GetByProviderSubject(ctx context.Context, provider, subject string) (domain.Account, error)
	GetByResetTokenHash(ctx context.Context, hash string) (domain.Account, error)

	Create(ctx context.Context, account domain.Account) (domain.Account, error)
	// Delete removes the account and cascades to identities, sessions, and
	// onboarding rows.
	Delete(ctx context.Context, id int64) error

	SetVerificationCode(ctx context.Context, id int64, code string, expiresAt time.Time) error
	// MarkVerified flips the account to pending_approval and clears the
	// verification artifacts. It is conditional on the account still being
	// pending_verification and reports whether a row was updated.
	MarkVerified(ctx context.Context, id int64) (bool, error)

	UpdateLoginStats(ctx context.Context, account domain.Account) error

	SetResetToken(ctx context.Context, id int64, hash string, expiresAt time.Time) error
	// ReplacePassword stores the new hash and clears the reset token and
	// failure counters in one statement.
	ReplacePassword(ctx context.Context, id int64, passwordHash string) error

	UpdateAvatar(ctx context.Context, id int64, avatarURL string) error
	LinkIdentity(ctx context.Context, identity domain.ExternalIdentity) error

	EnsureOnboarding(ctx context.Context, accountID int64) error
	GetOnboarding(ctx context.Context, accountID int64) (domain.Onboarding, error)
}

// SessionRepository is the durable record of issued token pairs.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByRefreshHash(ctx context.Context, accountID int64, hash string) (domain.Session, error)
	GetByAccessHash(ctx context.Context, hash string) (domain.Session, error)
	// UpdateAccessToken replaces the session's live access hash in place.
	UpdateAccessToken(ctx context.Context, sessionID, accessHash string, expiresAt time.Time) error
	DeleteByAccessHash(ctx context.Context, hash string) error
	DeleteForAccount(ctx context.Context, accountID int64) error
}
