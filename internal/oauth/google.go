package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

var googleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// GoogleVerifier validates Google ID tokens offline against Google's
// published signing keys.
type GoogleVerifier struct {
	clientID string
	http     *http.Client
	jwksURL  string

	mu        sync.Mutex
	keys      *jose.JSONWebKeySet
	fetchedAt time.Time
}

var _ IDTokenVerifier = (*GoogleVerifier)(nil)

const jwksCacheTTL = time.Hour

// NewGoogleVerifier builds a verifier for the configured OAuth client id.
func NewGoogleVerifier(clientID string, httpClient *http.Client) *GoogleVerifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleVerifier{clientID: clientID, http: httpClient, jwksURL: googleJWKSURL}
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// VerifyIDToken checks signature, issuer, audience, and expiry, and returns
// the normalized identity.
func (v *GoogleVerifier) VerifyIDToken(ctx context.Context, credential string) (*Identity, error) {
	tok, err := jwt.ParseSigned(credential, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return nil, fmt.Errorf("%w: parse id token: %v", ErrAssertionInvalid, err)
	}

	keys, err := v.keySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch google keys: %w", err)
	}

	var std jwt.Claims
	var custom googleClaims
	if err := tok.Claims(keys, &std, &custom); err != nil {
		return nil, fmt.Errorf("%w: verify signature: %v", ErrAssertionInvalid, err)
	}

	if err := std.Validate(jwt.Expected{Time: time.Now().UTC()}); err != nil {
		return nil, fmt.Errorf("%w: validate claims: %v", ErrAssertionInvalid, err)
	}
	if !validGoogleIssuer(std.Issuer) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrAssertionInvalid, std.Issuer)
	}
	if !std.Audience.Contains(v.clientID) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrAssertionInvalid)
	}
	if std.Subject == "" || custom.Email == "" {
		return nil, fmt.Errorf("%w: missing subject or email", ErrAssertionInvalid)
	}

	return &Identity{
		Provider: ProviderGoogle,
		Subject:  std.Subject,
		Email:    strings.ToLower(custom.Email),
		Name:     custom.Name,
		Picture:  custom.Picture,
	}, nil
}

func (v *GoogleVerifier) keySet(ctx context.Context) (*jose.JSONWebKeySet, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys != nil && time.Since(v.fetchedAt) < jwksCacheTTL {
		return v.keys, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var keys jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	v.keys = &keys
	v.fetchedAt = time.Now()
	return v.keys, nil
}

func validGoogleIssuer(issuer string) bool {
	for _, want := range googleIssuers {
		if issuer == want {
			return true
		}
	}
	return false
}
