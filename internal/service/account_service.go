// Package service implements the account lifecycle orchestrator: the state
// machine that composes the credential codec, token service, rate limiter,
// account store, notifier, and OAuth bridge.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/brightport/portal-auth/internal/config"
	"github.com/brightport/portal-auth/internal/domain"
	"github.com/brightport/portal-auth/internal/notifier"
	"github.com/brightport/portal-auth/internal/oauth"
	"github.com/brightport/portal-auth/internal/password"
	"github.com/brightport/portal-auth/internal/ratelimit"
	"github.com/brightport/portal-auth/internal/repository"
	"github.com/brightport/portal-auth/internal/token"
)

const (
	verificationCodeTTL = 15 * time.Minute
	resetTokenTTL       = time.Hour
	maxFailedLogins     = 5
	lockoutDuration     = 15 * time.Minute
	defaultRole         = "client"
	notifyTimeout       = 10 * time.Second
)

// AccountService orchestrates registration, verification, login, token
// lifecycle, password reset, and OAuth linking. It is request-scoped and
// stateless between calls; the account store is the sole arbiter of
// consistency.
type AccountService struct {
	accounts repository.AccountRepository
	sessions repository.SessionRepository
	tokens   *token.Service
	limiter  *ratelimit.Limiter
	notifier notifier.Notifier
	google   oauth.IDTokenVerifier
	linkedin oauth.CodeExchanger
	cfg      config.Config
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewAccountService wires the orchestrator.
func NewAccountService(
	accounts repository.AccountRepository,
	sessions repository.SessionRepository,
	tokens *token.Service,
	limiter *ratelimit.Limiter,
	mailer notifier.Notifier,
	google oauth.IDTokenVerifier,
	linkedin oauth.CodeExchanger,
	cfg config.Config,
	logger *zap.Logger,
) *AccountService {
	return &AccountService{
		accounts: accounts,
		sessions: sessions,
		tokens:   tokens,
		limiter:  limiter,
		notifier: mailer,
		google:   google,
		linkedin: linkedin,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("portal-auth/service"),
	}
}

// RegisterInput carries the registration form fields.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Company  string
}

// Register creates a pending_verification account and sends the verification
// code. An unverified account with the same email is replaced; a verified one
// is a conflict.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (domain.AccountView, error) {
	ctx, span := s.startSpan(ctx, "AccountService.Register")
	defer span.End()

	email := normalizeEmail(in.Email)
	var problems []string
	if !password.ValidEmail(email) {
		problems = append(problems, "email is not a valid address")
	}
	for _, v := range password.Validate(in.Password) {
		problems = append(problems, "password "+v)
	}
	if strings.TrimSpace(in.Name) == "" {
		problems = append(problems, "name is required")
	}
	if len(problems) > 0 {
		return domain.AccountView{}, domain.ErrValidation(strings.Join(problems, "; "))
	}

	if res := s.limiter.Allow(ctx, ratelimit.ActionRegister, email); !res.Allowed {
		return domain.AccountView{}, domain.ErrRateLimited(int(res.RetryAfter.Seconds()))
	}

	existing, err := s.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil && existing.EmailVerified:
		return domain.AccountView{}, domain.NewAuthError(domain.CodeDuplicateAccount,
			"An account with this email already exists.", http.StatusConflict)
	case err == nil:
		// Idempotent re-registration: the earlier unverified attempt is
		// replaced wholesale.
		if err := s.accounts.Delete(ctx, existing.ID); err != nil {
			span.RecordError(err)
			return domain.AccountView{}, fmt.Errorf("replace unverified account: %w", err)
		}
	case !errors.Is(err, pgx.ErrNoRows):
		span.RecordError(err)
		return domain.AccountView{}, fmt.Errorf("check existing account: %w", err)
	}

	hash, err := password.Hash(in.Password)
	if err != nil {
		span.RecordError(err)
		return domain.AccountView{}, fmt.Errorf("hash password: %w", err)
	}
	code, err := verificationCode()
	if err != nil {
		span.RecordError(err)
		return domain.AccountView{}, fmt.Errorf("generate verification code: %w", err)
	}

	created, err := s.accounts.Create(ctx, domain.Account{
		Email:                 email,
		PasswordHash:          hash,
		Name:                  strings.TrimSpace(in.Name),
		Company:               strings.TrimSpace(in.Company),
		Role:                  defaultRole,
		Status:                domain.StatusPendingVerification,
		VerificationCode:      code,
		VerificationExpiresAt: time.Now().UTC().Add(verificationCodeTTL),
	})
	if err != nil {
		span.RecordError(err)
		return domain.AccountView{}, fmt.Errorf("create account: %w", err)
	}

	if err := s.notifier.SendVerificationCode(ctx, created.Email, created.Name, code); err != nil {
		// The account stays; the client recovers through resend-code once
		// mail delivery is back.
		s.log().Error("verification code delivery failed",
			zap.String("email", created.Email), zap.Error(err))
		return domain.AccountView{}, domain.ErrUnavailable(
			"Could not send the verification email. Please request a new code.")
	}

	s.audit("register.success", zap.Int64("account_id", created.ID))
	return created.View(false), nil
}

// VerifyEmail consumes the verification code and moves the account to
// pending_approval.
func (s *AccountService) VerifyEmail(ctx context.Context, email, code string) (domain.AccountView, error) {
	ctx, span := s.startSpan(ctx, "AccountService.VerifyEmail")
	defer span.End()

	email = normalizeEmail(email)
	if res := s.limiter.Allow(ctx, ratelimit.ActionVerify, email); !res.Allowed {
		return domain.AccountView{}, domain.ErrRateLimited(int(res.RetryAfter.Seconds()))
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AccountView{}, domain.NewAuthError(domain.CodeNotFound,
				"No account exists for this email.", http.StatusNotFound)
		}
		span.RecordError(err)
		return domain.AccountView{}, fmt.Errorf("load account: %w", err)
	}
	if account.Status != domain.StatusPendingVerification {
		return domain.AccountView{}, domain.NewAuthError(domain.CodeAlreadyVerified,
			"This account has already been verified.", http.StatusConflict)
	}
	now := time.Now().UTC()
	if !account.VerificationExpiresAt.After(now) {
		// Expired wins even when the code string matches.
		return domain.AccountView{}, domain.NewAuthError(domain.CodeCodeExpired,
			"The verification code has expired. Please request a new one.", http.StatusBadRequest)
	}
	if account.VerificationCode != code {
		return domain.AccountView{}, domain.NewAuthError(domain.CodeCodeMismatch,
			"The verification code is incorrect.", http.StatusBadRequest)
	}

	ok, err := s.accounts.MarkVerified(ctx, account.ID)
	if err != nil {
		span.RecordError(err)
		return domain.AccountView{}, fmt.Errorf("mark verified: %w", err)
	}
	if !ok {
		return domain.AccountView{}, domain.NewAuthError(domain.CodeAlreadyVerified,
			"This account has already been verified.", http.StatusConflict)
	}
	if err := s.accounts.EnsureOnboarding(ctx, account.ID); err != nil {
		span.RecordError(err)
		return domain.AccountView{}, fmt.Errorf("provision onboarding: %w", err)
	}

	// A successful verification resets abuse counters for the identity.
	s.limiter.Clear(ctx, ratelimit.ActionVerify, email)

	s.notifyAsync("admin_notification", func(ctx context.Context) error {
		return s.notifier.SendAdminNotification(ctx, account.Name, account.Email, account.Company)
	})
	s.notifyAsync("welcome", func(ctx context.Context) error {
		return s.notifier.SendWelcome(ctx, account.Email, account.Name)
	})

	account.EmailVerified = true
	account.Status = domain.StatusPendingApproval
	account.VerificationCode = ""
	account.VerificationExpiresAt = time.Time{}

	s.audit("verify_email.success", zap.Int64("account_id", account.ID))
	return account.View(false), nil
}

// ResendCode reissues the verification code for a still-unverified account.
func (s *AccountService) ResendCode(ctx context.Context, email string) error {
	ctx, span := s.startSpan(ctx, "AccountService.ResendCode")
	defer span.End()

	email = normalizeEmail(email)
	if res := s.limiter.Allow(ctx, ratelimit.ActionResend, email); !res.Allowed {
		return domain.ErrRateLimited(int(res.RetryAfter.Seconds()))
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewAuthError(domain.CodeNotFound,
				"No account exists for this email.", http.StatusNotFound)
		}
		span.RecordError(err)
		return fmt.Errorf("load account: %w", err)
	}
	if account.Status != domain.StatusPendingVerification {
		return domain.NewAuthError(domain.CodeAlreadyVerified,
			"This account has already been verified.", http.StatusConflict)
	}

	code, err := verificationCode()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("generate verification code: %w", err)
	}
	if err := s.accounts.SetVerificationCode(ctx, account.ID, code, time.Now().UTC().Add(verificationCodeTTL)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("store verification code: %w", err)
	}

	if err := s.notifier.SendVerificationCode(ctx, account.Email, account.Name, code); err != nil {
		s.log().Error("verification code delivery failed",
			zap.String("email", account.Email), zap.Error(err))
		return domain.ErrUnavailable("Could not send the verification email. Please try again later.")
	}

	s.audit("resend_code.success", zap.Int64("account_id", account.ID))
	return nil
}

func (s *AccountService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

func (s *AccountService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func (s *AccountService) audit(event string, fields ...zap.Field) {
	s.log().Info("audit: "+event, fields...)
}

// notifyAsync dispatches a best-effort notification after the primary state
// transition has committed. Failures are logged, never surfaced.
func (s *AccountService) notifyAsync(event string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log().Warn("notification failed", zap.String("event", event), zap.Error(err))
		}
	}()
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
