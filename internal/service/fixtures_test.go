package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brightport/portal-auth/internal/config"
	"github.com/brightport/portal-auth/internal/domain"
	"github.com/brightport/portal-auth/internal/oauth"
	"github.com/brightport/portal-auth/internal/ratelimit"
	"github.com/brightport/portal-auth/internal/repository"
	"github.com/brightport/portal-auth/internal/service"
	"github.com/brightport/portal-auth/internal/token"
)

// memoryAccountRepo is an in-memory AccountRepository for service tests.
type memoryAccountRepo struct {
	mu         sync.Mutex
	nextID     int64
	accounts   map[int64]*domain.Account
	identities []domain.ExternalIdentity
	onboarding map[int64]*domain.Onboarding
}

var _ repository.AccountRepository = (*memoryAccountRepo)(nil)

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{
		accounts:   make(map[int64]*domain.Account),
		onboarding: make(map[int64]*domain.Onboarding),
	}
}

func (r *memoryAccountRepo) GetByEmail(_ context.Context, email string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == email {
			return *a, nil
		}
	}
	return domain.Account{}, pgx.ErrNoRows
}

func (r *memoryAccountRepo) GetByID(_ context.Context, id int64) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		return *a, nil
	}
	return domain.Account{}, pgx.ErrNoRows
}

func (r *memoryAccountRepo) GetByProviderSubject(_ context.Context, provider, subject string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.identities {
		if id.Provider == provider && id.Subject == subject {
			if a, ok := r.accounts[id.AccountID]; ok {
				return *a, nil
			}
		}
	}
	return domain.Account{}, pgx.ErrNoRows
}

func (r *memoryAccountRepo) GetByResetTokenHash(_ context.Context, hash string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ResetTokenHash != "" && a.ResetTokenHash == hash {
			return *a, nil
		}
	}
	return domain.Account{}, pgx.ErrNoRows
}

func (r *memoryAccountRepo) Create(_ context.Context, account domain.Account) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	account.ID = r.nextID
	account.CreatedAt = time.Now().UTC()
	account.UpdatedAt = account.CreatedAt
	r.accounts[account.ID] = &account
	return account, nil
}

func (r *memoryAccountRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, id)
	delete(r.onboarding, id)
	kept := r.identities[:0]
	for _, identity := range r.identities {
		if identity.AccountID != id {
			kept = append(kept, identity)
		}
	}
	r.identities = kept
	return nil
}

func (r *memoryAccountRepo) SetVerificationCode(_ context.Context, id int64, code string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.VerificationCode = code
	a.VerificationExpiresAt = expiresAt
	return nil
}

func (r *memoryAccountRepo) MarkVerified(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok || a.Status != domain.StatusPendingVerification {
		return false, nil
	}
	a.EmailVerified = true
	a.Status = domain.StatusPendingApproval
	a.VerificationCode = ""
	a.VerificationExpiresAt = time.Time{}
	return true, nil
}

func (r *memoryAccountRepo) UpdateLoginStats(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[account.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	a.FailedAttempts = account.FailedAttempts
	a.LockedUntil = account.LockedUntil
	a.LoginCount = account.LoginCount
	a.LastLoginAt = account.LastLoginAt
	return nil
}

func (r *memoryAccountRepo) SetResetToken(_ context.Context, id int64, hash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.ResetTokenHash = hash
	a.ResetExpiresAt = expiresAt
	return nil
}

func (r *memoryAccountRepo) ReplacePassword(_ context.Context, id int64, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.PasswordHash = passwordHash
	a.ResetTokenHash = ""
	a.ResetExpiresAt = time.Time{}
	a.FailedAttempts = 0
	a.LockedUntil = time.Time{}
	return nil
}

func (r *memoryAccountRepo) UpdateAvatar(_ context.Context, id int64, avatarURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.AvatarURL = avatarURL
	return nil
}

func (r *memoryAccountRepo) LinkIdentity(_ context.Context, identity domain.ExternalIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.identities {
		if existing.Provider == identity.Provider && existing.Subject == identity.Subject {
			return nil
		}
	}
	identity.CreatedAt = time.Now().UTC()
	r.identities = append(r.identities, identity)
	return nil
}

func (r *memoryAccountRepo) EnsureOnboarding(_ context.Context, accountID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.onboarding[accountID]; !ok {
		r.onboarding[accountID] = &domain.Onboarding{AccountID: accountID, CreatedAt: time.Now().UTC()}
	}
	return nil
}

func (r *memoryAccountRepo) GetOnboarding(_ context.Context, accountID int64) (domain.Onboarding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.onboarding[accountID]; ok {
		return *o, nil
	}
	return domain.Onboarding{}, pgx.ErrNoRows
}

func (r *memoryAccountRepo) identityCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.identities)
}

// mutate edits stored account state directly, which stands in for the passage
// of time in expiry tests.
func (r *memoryAccountRepo) mutate(t *testing.T, id int64, fn func(*domain.Account)) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	require.True(t, ok, "account %d not found", id)
	fn(a)
}

// memorySessionRepo is an in-memory SessionRepository for service tests.
type memorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

var _ repository.SessionRepository = (*memorySessionRepo)(nil)

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{sessions: make(map[string]domain.Session)}
}

func (r *memorySessionRepo) Create(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session.CreatedAt = time.Now().UTC()
	r.sessions[session.ID] = session
	return nil
}

func (r *memorySessionRepo) GetByRefreshHash(_ context.Context, accountID int64, hash string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.AccountID == accountID && s.RefreshTokenHash == hash {
			return s, nil
		}
	}
	return domain.Session{}, pgx.ErrNoRows
}

func (r *memorySessionRepo) GetByAccessHash(_ context.Context, hash string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.AccessTokenHash == hash {
			return s, nil
		}
	}
	return domain.Session{}, pgx.ErrNoRows
}

func (r *memorySessionRepo) UpdateAccessToken(_ context.Context, sessionID, accessHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return pgx.ErrNoRows
	}
	s.AccessTokenHash = accessHash
	s.AccessExpiresAt = expiresAt
	r.sessions[sessionID] = s
	return nil
}

func (r *memorySessionRepo) DeleteByAccessHash(_ context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.AccessTokenHash == hash {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *memorySessionRepo) DeleteForAccount(_ context.Context, accountID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.AccountID == accountID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *memorySessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// recordingNotifier captures outgoing notifications instead of sending them.
type recordingNotifier struct {
	mu sync.Mutex

	failVerification bool
	failReset        bool

	codes      map[string]string
	resetLinks map[string]string
	welcomes   []string
	admin      []string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		codes:      make(map[string]string),
		resetLinks: make(map[string]string),
	}
}

func (n *recordingNotifier) SendVerificationCode(_ context.Context, email, _ string, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failVerification {
		return errors.New("smtp relay down")
	}
	n.codes[email] = code
	return nil
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, email, _ string, resetLink string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failReset {
		return errors.New("smtp relay down")
	}
	n.resetLinks[email] = resetLink
	return nil
}

func (n *recordingNotifier) SendWelcome(_ context.Context, email, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcomes = append(n.welcomes, email)
	return nil
}

func (n *recordingNotifier) SendAdminNotification(_ context.Context, _, email, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admin = append(n.admin, email)
	return nil
}

func (n *recordingNotifier) codeFor(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[email]
}

func (n *recordingNotifier) resetLinkFor(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resetLinks[email]
}

func (n *recordingNotifier) welcomeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.welcomes)
}

// staticVerifier returns a canned Google identity or error.
type staticVerifier struct {
	identity *oauth.Identity
	err      error
}

func (v *staticVerifier) VerifyIDToken(context.Context, string) (*oauth.Identity, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.identity, nil
}

// staticExchanger returns a canned LinkedIn identity or error.
type staticExchanger struct {
	identity *oauth.Identity
	err      error
}

func (e *staticExchanger) Exchange(context.Context, string, string) (*oauth.Identity, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.identity, nil
}

// fixture bundles the service under test with its in-memory collaborators.
type fixture struct {
	accounts *memoryAccountRepo
	sessions *memorySessionRepo
	notifier *recordingNotifier
	tokens   *token.Service
	google   *staticVerifier
	linkedin *staticExchanger
	svc      *service.AccountService
}

// generousPolicies keeps throttling out of the way of tests that exercise
// other behavior. Rate-limit behavior itself is tested with real policies.
func generousPolicies() map[string]ratelimit.Policy {
	policies := ratelimit.DefaultPolicies()
	for action, policy := range policies {
		policy.Max = 1000
		policies[action] = policy
	}
	return policies
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithPolicies(t, generousPolicies())
}

func newFixtureWithPolicies(t *testing.T, policies map[string]ratelimit.Policy) *fixture {
	t.Helper()

	tokens, err := token.NewService(
		[]byte("0123456789abcdef0123456789abcdef"),
		"portal-auth-test", 15*time.Minute, 7*24*time.Hour,
	)
	require.NoError(t, err)

	f := &fixture{
		accounts: newMemoryAccountRepo(),
		sessions: newMemorySessionRepo(),
		notifier: newRecordingNotifier(),
		tokens:   tokens,
		google:   &staticVerifier{},
		linkedin: &staticExchanger{},
	}
	f.svc = service.NewAccountService(
		f.accounts,
		f.sessions,
		tokens,
		ratelimit.NewLimiter(ratelimit.NewMemoryStore(), policies, nil),
		f.notifier,
		f.google,
		f.linkedin,
		config.Config{
			ServiceName:  "portal-auth",
			PortalName:   "Brightport",
			ResetURLBase: "https://portal.test/reset-password",
		},
		zap.NewNop(),
	)
	return f
}

// registerActive walks an account through register and verify, then marks it
// approved so it can log in.
func (f *fixture) registerActive(t *testing.T, email, plainPassword string) domain.Account {
	t.Helper()
	ctx := context.Background()

	view, err := f.svc.Register(ctx, service.RegisterInput{
		Email:    email,
		Password: plainPassword,
		Name:     "Test User",
		Company:  "Testco",
	})
	require.NoError(t, err)

	_, err = f.svc.VerifyEmail(ctx, email, f.notifier.codeFor(email))
	require.NoError(t, err)

	f.accounts.mutate(t, view.ID, func(a *domain.Account) {
		a.Status = domain.StatusActive
	})
	account, err := f.accounts.GetByID(ctx, view.ID)
	require.NoError(t, err)
	return account
}

func requireAuthCode(t *testing.T, err error, code string) {
	t.Helper()
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, code, authErr.Code)
}

const validPassword = "Sup3r$ecret"

func registerInput(email string) service.RegisterInput {
	return service.RegisterInput{
		Email:    email,
		Password: validPassword,
		Name:     "Test User",
		Company:  "Testco",
	}
}
