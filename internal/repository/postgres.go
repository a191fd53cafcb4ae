package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightport/portal-auth/internal/domain"
)

// Compile-time interface assertions.
var (
	_ AccountRepository = (*PostgresAccountRepo)(nil)
	_ SessionRepository = (*PostgresSessionRepo)(nil)
)

const accountColumns = `id, email, password_hash, name, company, avatar_url, role,
email_verified, status, verification_code, verification_expires_at,
reset_token_hash, reset_expires_at, failed_attempts, locked_until,
login_count, last_login_at, created_at, updated_at`

// PostgresAccountRepo implements AccountRepository on pgx.
type PostgresAccountRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAccountRepo(db *pgxpool.Pool) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

func (r *PostgresAccountRepo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	account, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account by email: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepo) GetByID(ctx context.Context, id int64) (domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account by id: %w", err)
	}
	return account, nil
}

const accountByProviderSQL = `SELECT a.id, a.email, a.password_hash, a.name, a.company, a.avatar_url, a.role,
a.email_verified, a.status, a.verification_code, a.verification_expires_at,
a.reset_token_hash, a.reset_expires_at, a.failed_attempts, a.locked_until,
a.login_count, a.last_login_at, a.created_at, a.updated_at
FROM accounts a
JOIN external_identities ei ON ei.account_id = a.id
WHERE ei.provider = $1 AND ei.subject = $2`

func (r *PostgresAccountRepo) GetByProviderSubject(ctx context.Context, provider, subject string) (domain.Account, error) {
	row := r.db.QueryRow(ctx, accountByProviderSQL, provider, subject)
	account, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account by provider subject: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepo) GetByResetTokenHash(ctx context.Context, hash string) (domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE reset_token_hash = $1`, hash)
	account, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account by reset token: %w", err)
	}
	return account, nil
}

const insertAccountSQL = `INSERT INTO accounts
(email, password_hash, name, company, avatar_url, role, email_verified, status,
 verification_code, verification_expires_at, failed_attempts, login_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, 0)
RETURNING ` + accountColumns

func (r *PostgresAccountRepo) Create(ctx context.Context, account domain.Account) (domain.Account, error) {
	row := r.db.QueryRow(ctx, insertAccountSQL,
		account.Email,
		nullString(account.PasswordHash),
		account.Name,
		nullString(account.Company),
		nullString(account.AvatarURL),
		account.Role,
		account.EmailVerified,
		account.Status,
		nullString(account.VerificationCode),
		nullTime(account.VerificationExpiresAt),
	)
	created, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	return created, nil
}

func (r *PostgresAccountRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepo) SetVerificationCode(ctx context.Context, id int64, code string, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE accounts
SET verification_code = $2, verification_expires_at = $3, updated_at = now()
WHERE id = $1`, id, code, expiresAt)
	if err != nil {
		return fmt.Errorf("set verification code: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepo) MarkVerified(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE accounts
SET email_verified = true, status = $2,
    verification_code = NULL, verification_expires_at = NULL, updated_at = now()
WHERE id = $1 AND status = $3`, id, domain.StatusPendingApproval, domain.StatusPendingVerification)
	if err != nil {
		return false, fmt.Errorf("mark verified: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresAccountRepo) UpdateLoginStats(ctx context.Context, account domain.Account) error {
	_, err := r.db.Exec(ctx, `UPDATE accounts
SET failed_attempts = $2, locked_until = $3, login_count = $4, last_login_at = $5, updated_at = now()
WHERE id = $1`,
		account.ID,
		account.FailedAttempts,
		nullTime(account.LockedUntil),
		account.LoginCount,
		nullTime(account.LastLoginAt),
	)
	if err != nil {
		return fmt.Errorf("update login stats: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepo) SetResetToken(ctx context.Context, id int64, hash string, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE accounts
SET reset_token_hash = $2, reset_expires_at = $3, updated_at = now()
WHERE id = $1`, id, hash, expiresAt)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepo) ReplacePassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := r.db.Exec(ctx, `UPDATE accounts
SET password_hash = $2, reset_token_hash = NULL, reset_expires_at = NULL,
    failed_attempts = 0, locked_until = NULL, updated_at = now()
WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("replace password: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepo) UpdateAvatar(ctx context.Context, id int64, avatarURL string) error {
	_, err := r.db.Exec(ctx, `UPDATE accounts SET avatar_url = $2, updated_at = now() WHERE id = $1`, id, avatarURL)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepo) LinkIdentity(ctx context.Context, identity domain.ExternalIdentity) error {
	_, err := r.db.Exec(ctx, `INSERT INTO external_identities (account_id, provider, subject)
VALUES ($1, $2, $3)
ON CONFLICT (provider, subject) DO NOTHING`, identity.AccountID, identity.Provider, identity.Subject)
	if err != nil {
		return fmt.Errorf("link identity: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepo) EnsureOnboarding(ctx context.Context, accountID int64) error {
	_, err := r.db.Exec(ctx, `INSERT INTO onboarding (account_id, completed)
VALUES ($1, false)
ON CONFLICT (account_id) DO NOTHING`, accountID)
	if err != nil {
		return fmt.Errorf("ensure onboarding: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepo) GetOnboarding(ctx context.Context, accountID int64) (domain.Onboarding, error) {
	var onboarding domain.Onboarding
	err := r.db.QueryRow(ctx, `SELECT account_id, completed, completed_at, created_at
FROM onboarding WHERE account_id = $1`, accountID).
		Scan(&onboarding.AccountID, &onboarding.Completed, &onboarding.CompletedAt, &onboarding.CreatedAt)
	if err != nil {
		return domain.Onboarding{}, fmt.Errorf("get onboarding: %w", err)
	}
	return onboarding, nil
}

// PostgresSessionRepo implements SessionRepository on pgx.
type PostgresSessionRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSessionRepo(db *pgxpool.Pool) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

const sessionColumns = `id, account_id, access_token_hash, refresh_token_hash,
access_expires_at, refresh_expires_at, ip, user_agent, created_at`

func (r *PostgresSessionRepo) Create(ctx context.Context, session domain.Session) error {
	_, err := r.db.Exec(ctx, `INSERT INTO sessions
(id, account_id, access_token_hash, refresh_token_hash, access_expires_at, refresh_expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID,
		session.AccountID,
		session.AccessTokenHash,
		session.RefreshTokenHash,
		session.AccessExpiresAt,
		session.RefreshExpiresAt,
		nullString(session.IP),
		nullString(session.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) GetByRefreshHash(ctx context.Context, accountID int64, hash string) (domain.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+`
FROM sessions WHERE account_id = $1 AND refresh_token_hash = $2`, accountID, hash)
	session, err := scanSession(row)
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session by refresh hash: %w", err)
	}
	return session, nil
}

func (r *PostgresSessionRepo) GetByAccessHash(ctx context.Context, hash string) (domain.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE access_token_hash = $1`, hash)
	session, err := scanSession(row)
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session by access hash: %w", err)
	}
	return session, nil
}

func (r *PostgresSessionRepo) UpdateAccessToken(ctx context.Context, sessionID, accessHash string, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE sessions
SET access_token_hash = $2, access_expires_at = $3
WHERE id = $1`, sessionID, accessHash, expiresAt)
	if err != nil {
		return fmt.Errorf("update session access token: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) DeleteByAccessHash(ctx context.Context, hash string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE access_token_hash = $1`, hash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) DeleteForAccount(ctx context.Context, accountID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("delete sessions for account: %w", err)
	}
	return nil
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		account          domain.Account
		passwordHash     *string
		company          *string
		avatarURL        *string
		verificationCode *string
		verificationExp  *time.Time
		resetHash        *string
		resetExp         *time.Time
		lockedUntil      *time.Time
		lastLogin        *time.Time
	)
	err := row.Scan(
		&account.ID,
		&account.Email,
		&passwordHash,
		&account.Name,
		&company,
		&avatarURL,
		&account.Role,
		&account.EmailVerified,
		&account.Status,
		&verificationCode,
		&verificationExp,
		&resetHash,
		&resetExp,
		&account.FailedAttempts,
		&lockedUntil,
		&account.LoginCount,
		&lastLogin,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return domain.Account{}, err
	}
	account.PasswordHash = deref(passwordHash)
	account.Company = deref(company)
	account.AvatarURL = deref(avatarURL)
	account.VerificationCode = deref(verificationCode)
	account.VerificationExpiresAt = derefTime(verificationExp)
	account.ResetTokenHash = deref(resetHash)
	account.ResetExpiresAt = derefTime(resetExp)
	account.LockedUntil = derefTime(lockedUntil)
	account.LastLoginAt = derefTime(lastLogin)
	return account, nil
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var (
		session   domain.Session
		ip        *string
		userAgent *string
	)
	err := row.Scan(
		&session.ID,
		&session.AccountID,
		&session.AccessTokenHash,
		&session.RefreshTokenHash,
		&session.AccessExpiresAt,
		&session.RefreshExpiresAt,
		&ip,
		&userAgent,
		&session.CreatedAt,
	)
	if err != nil {
		return domain.Session{}, err
	}
	session.IP = deref(ip)
	session.UserAgent = deref(userAgent)
	return session, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
