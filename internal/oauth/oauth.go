// Package oauth verifies third-party identity assertions and normalizes them
// into the single identity shape the account service consumes.
package oauth

import (
	"context"
	"errors"
)

// Provider names as persisted on external identities.
const (
	ProviderGoogle   = "google"
	ProviderLinkedIn = "linkedin"
)

// ErrAssertionInvalid is returned when a provider assertion fails
// verification or is missing required profile fields.
var ErrAssertionInvalid = errors.New("identity assertion invalid")

// Identity is the normalized profile a provider vouched for.
type Identity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
	Picture  string
}

// IDTokenVerifier verifies a provider-issued ID token (Google flow).
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, credential string) (*Identity, error)
}

// CodeExchanger exchanges an authorization code for a profile (LinkedIn flow).
type CodeExchanger interface {
	Exchange(ctx context.Context, code, redirectURI string) (*Identity, error)
}
