package oauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

const testClientID = "portal-client-id.apps.googleusercontent.com"

type googleTestIssuer struct {
	key    *rsa.PrivateKey
	server *httptest.Server
}

func newGoogleTestIssuer(t *testing.T) *googleTestIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       key.Public(),
		KeyID:     "test-key",
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(jwks))
	}))
	t.Cleanup(server.Close)
	return &googleTestIssuer{key: key, server: server}
}

func (i *googleTestIssuer) verifier() *GoogleVerifier {
	v := NewGoogleVerifier(testClientID, i.server.Client())
	v.jwksURL = i.server.URL
	return v
}

func (i *googleTestIssuer) sign(t *testing.T, std jwt.Claims, custom map[string]any) string {
	t.Helper()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jose.JSONWebKey{Key: i.key, KeyID: "test-key"}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)
	raw, err := jwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	require.NoError(t, err)
	return raw
}

func googleStdClaims() jwt.Claims {
	now := time.Now().UTC()
	return jwt.Claims{
		Issuer:   "https://accounts.google.com",
		Subject:  "10987654321",
		Audience: jwt.Audience{testClientID},
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

func TestGoogleVerifyIDToken(t *testing.T) {
	issuer := newGoogleTestIssuer(t)
	v := issuer.verifier()

	raw := issuer.sign(t, googleStdClaims(), map[string]any{
		"email":          "User@Example.com",
		"email_verified": true,
		"name":           "Test User",
		"picture":        "https://example.com/p.png",
	})

	identity, err := v.VerifyIDToken(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, ProviderGoogle, identity.Provider)
	require.Equal(t, "10987654321", identity.Subject)
	require.Equal(t, "user@example.com", identity.Email)
	require.Equal(t, "Test User", identity.Name)
	require.Equal(t, "https://example.com/p.png", identity.Picture)
}

func TestGoogleVerifyRejectsWrongAudience(t *testing.T) {
	issuer := newGoogleTestIssuer(t)
	v := issuer.verifier()

	std := googleStdClaims()
	std.Audience = jwt.Audience{"someone-else"}
	raw := issuer.sign(t, std, map[string]any{"email": "user@example.com"})

	_, err := v.VerifyIDToken(context.Background(), raw)
	require.ErrorIs(t, err, ErrAssertionInvalid)
}

func TestGoogleVerifyRejectsWrongIssuer(t *testing.T) {
	issuer := newGoogleTestIssuer(t)
	v := issuer.verifier()

	std := googleStdClaims()
	std.Issuer = "https://evil.example.com"
	raw := issuer.sign(t, std, map[string]any{"email": "user@example.com"})

	_, err := v.VerifyIDToken(context.Background(), raw)
	require.ErrorIs(t, err, ErrAssertionInvalid)
}

func TestGoogleVerifyRejectsExpired(t *testing.T) {
	issuer := newGoogleTestIssuer(t)
	v := issuer.verifier()

	std := googleStdClaims()
	std.Expiry = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	raw := issuer.sign(t, std, map[string]any{"email": "user@example.com"})

	_, err := v.VerifyIDToken(context.Background(), raw)
	require.ErrorIs(t, err, ErrAssertionInvalid)
}

func TestGoogleVerifyRejectsMissingEmail(t *testing.T) {
	issuer := newGoogleTestIssuer(t)
	v := issuer.verifier()

	raw := issuer.sign(t, googleStdClaims(), map[string]any{})
	_, err := v.VerifyIDToken(context.Background(), raw)
	require.ErrorIs(t, err, ErrAssertionInvalid)
}

func TestGoogleVerifyRejectsForeignKey(t *testing.T) {
	issuer := newGoogleTestIssuer(t)
	other := newGoogleTestIssuer(t)
	v := issuer.verifier()

	// Signed by a key the JWKS endpoint never published.
	raw := other.sign(t, googleStdClaims(), map[string]any{"email": "user@example.com"})
	_, err := v.VerifyIDToken(context.Background(), raw)
	require.ErrorIs(t, err, ErrAssertionInvalid)
}

func TestGoogleVerifyRejectsGarbage(t *testing.T) {
	issuer := newGoogleTestIssuer(t)
	v := issuer.verifier()
	_, err := v.VerifyIDToken(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, ErrAssertionInvalid)
}

func TestGoogleKeySetIsCached(t *testing.T) {
	issuer := newGoogleTestIssuer(t)
	v := issuer.verifier()

	raw := issuer.sign(t, googleStdClaims(), map[string]any{"email": "user@example.com"})
	_, err := v.VerifyIDToken(context.Background(), raw)
	require.NoError(t, err)

	// Keys were cached on the first call; a dead endpoint must not matter.
	issuer.server.Close()
	_, err = v.VerifyIDToken(context.Background(), raw)
	require.NoError(t, err)
}
