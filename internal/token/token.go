// Package token signs and verifies the access/refresh JWT pair and provides
// the irreversible hash used to persist tokens for revocation lookups.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// Token type claim values. Both kinds share the same signature namespace,
// so every verifier must check the type explicitly.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// ErrTokenType is returned when a token verifies but carries the wrong type.
var ErrTokenType = errors.New("unexpected token type")

// Claims are the custom claims carried alongside the registered set.
type Claims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"token_type"`
}

// Pair is one freshly issued access/refresh pair.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Service issues and verifies tokens with a single HS256 signing secret.
type Service struct {
	signer     jose.Signer
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewService builds the token service. The secret must be at least 32 bytes.
func NewService(secret []byte, issuer string, accessTTL, refreshTTL time.Duration) (*Service, error) {
	if len(secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("build signer: %w", err)
	}
	return &Service{
		signer:     signer,
		secret:     secret,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL exposes the configured access token lifetime for expires_in
// response fields.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// IssueAccess mints a short-lived access token for the account.
func (s *Service) IssueAccess(accountID int64, email, role string) (string, time.Time, error) {
	return s.issue(accountID, s.accessTTL, Claims{Email: email, Role: role, TokenType: TypeAccess})
}

// IssueRefresh mints a refresh token for the account.
func (s *Service) IssueRefresh(accountID int64) (string, time.Time, error) {
	return s.issue(accountID, s.refreshTTL, Claims{TokenType: TypeRefresh})
}

// IssuePair mints the access/refresh pair for a new session.
func (s *Service) IssuePair(accountID int64, email, role string) (Pair, error) {
	access, accessExp, err := s.IssueAccess(accountID, email, role)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := s.IssueRefresh(accountID)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) issue(accountID int64, ttl time.Duration, custom Claims) (string, time.Time, error) {
	now := time.Now().UTC()
	expiry := now.Add(ttl)
	std := jwt.Claims{
		Subject:  strconv.FormatInt(accountID, 10),
		Issuer:   s.issuer,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(expiry),
	}
	raw, err := jwt.Signed(s.signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return raw, expiry, nil
}

// Verify checks signature, expiry, issuer, and token type, and returns the
// account id the token was issued for.
func (s *Service) Verify(raw, wantType string) (int64, *Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return 0, nil, fmt.Errorf("parse token: %w", err)
	}
	var std jwt.Claims
	var custom Claims
	if err := tok.Claims(s.secret, &std, &custom); err != nil {
		return 0, nil, fmt.Errorf("verify token: %w", err)
	}
	if err := std.Validate(jwt.Expected{Issuer: s.issuer, Time: time.Now().UTC()}); err != nil {
		return 0, nil, fmt.Errorf("validate claims: %w", err)
	}
	if custom.TokenType != wantType {
		return 0, nil, ErrTokenType
	}
	accountID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil || accountID <= 0 {
		return 0, nil, fmt.Errorf("invalid subject claim %q", std.Subject)
	}
	return accountID, &custom, nil
}

// Hash returns the SHA-256 hex digest persisted in place of the raw token.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
