package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	linkedinTokenURL    = "https://www.linkedin.com/oauth/v2/accessToken"
	linkedinUserInfoURL = "https://api.linkedin.com/v2/userinfo"
)

// LinkedInClient exchanges authorization codes server-to-server and fetches
// the OIDC userinfo document with the resulting provider access token.
type LinkedInClient struct {
	clientID     string
	clientSecret string
	http         *http.Client
	tokenURL     string
	userInfoURL  string
}

var _ CodeExchanger = (*LinkedInClient)(nil)

// NewLinkedInClient builds a client for the configured LinkedIn app.
func NewLinkedInClient(clientID, clientSecret string, httpClient *http.Client) *LinkedInClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &LinkedInClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         httpClient,
		tokenURL:     linkedinTokenURL,
		userInfoURL:  linkedinUserInfoURL,
	}
}

// Exchange trades the authorization code for a provider access token and
// resolves the user's profile.
func (c *LinkedInClient) Exchange(ctx context.Context, code, redirectURI string) (*Identity, error) {
	accessToken, err := c.exchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}
	return c.fetchUserInfo(ctx, accessToken)
}

func (c *LinkedInClient) exchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrAssertionInvalid, resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("%w: empty provider access token", ErrAssertionInvalid)
	}
	return payload.AccessToken, nil
}

func (c *LinkedInClient) fetchUserInfo(ctx context.Context, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo endpoint returned %d", ErrAssertionInvalid, resp.StatusCode)
	}

	var payload struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if payload.Sub == "" || payload.Email == "" {
		return nil, fmt.Errorf("%w: userinfo missing subject or email", ErrAssertionInvalid)
	}

	return &Identity{
		Provider: ProviderLinkedIn,
		Subject:  payload.Sub,
		Email:    strings.ToLower(payload.Email),
		Name:     payload.Name,
		Picture:  payload.Picture,
	}, nil
}
