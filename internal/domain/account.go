package domain

import "time"

// AccountStatus is the lifecycle state of an account. Accounts move
// pending_verification -> pending_approval -> active; suspension is an
// administrative action and can happen from any state.
type AccountStatus string

const (
	StatusPendingVerification AccountStatus = "pending_verification"
	StatusPendingApproval     AccountStatus = "pending_approval"
	StatusActive              AccountStatus = "active"
	StatusSuspended           AccountStatus = "suspended"
)

// Account represents a portal client that can authenticate.
// PasswordHash is empty for OAuth-only accounts, which must carry at least
// one linked external identity instead.
type Account struct {
	ID            int64
	Email         string
	PasswordHash  string
	Name          string
	Company       string
	AvatarURL     string
	Role          string
	EmailVerified bool
	Status        AccountStatus

	VerificationCode      string
	VerificationExpiresAt time.Time

	ResetTokenHash string
	ResetExpiresAt time.Time

	FailedAttempts int
	LockedUntil    time.Time
	LoginCount     int64
	LastLoginAt    time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockedAt reports whether the account is under a login lockout at the
// given instant.
func (a Account) LockedAt(now time.Time) bool {
	return !a.LockedUntil.IsZero() && a.LockedUntil.After(now)
}

// ExternalIdentity links an account to a third-party identity provider
// subject. (provider, subject) is unique across all accounts.
type ExternalIdentity struct {
	AccountID int64
	Provider  string
	Subject   string
	CreatedAt time.Time
}

// Session is one issued token pair. Only SHA-256 hashes of the tokens are
// stored; refreshing replaces AccessTokenHash in place rather than creating
// a second row for the same logical session.
type Session struct {
	ID               string
	AccountID        int64
	AccessTokenHash  string
	RefreshTokenHash string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	IP               string
	UserAgent        string
	CreatedAt        time.Time
}

// Onboarding tracks the post-approval onboarding checklist for an account.
// The row is provisioned when the email is verified or when an OAuth account
// is first created.
type Onboarding struct {
	AccountID   int64
	Completed   bool
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// AccountView is the public projection of an account returned to clients.
// It never carries credential or verification material.
type AccountView struct {
	ID                  int64         `json:"id"`
	Email               string        `json:"email"`
	Name                string        `json:"name"`
	Company             string        `json:"company,omitempty"`
	AvatarURL           string        `json:"avatar_url,omitempty"`
	Role                string        `json:"role"`
	Status              AccountStatus `json:"status"`
	EmailVerified       bool          `json:"email_verified"`
	OnboardingCompleted bool          `json:"onboarding_completed"`
}

// View builds the public projection.
func (a Account) View(onboardingCompleted bool) AccountView {
	return AccountView{
		ID:                  a.ID,
		Email:               a.Email,
		Name:                a.Name,
		Company:             a.Company,
		AvatarURL:           a.AvatarURL,
		Role:                a.Role,
		Status:              a.Status,
		EmailVerified:       a.EmailVerified,
		OnboardingCompleted: onboardingCompleted,
	}
}
