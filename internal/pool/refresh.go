package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
)

// RefreshResult is what a successful refresh POST yields.
type RefreshResult struct {
	AccessToken      string
	ExpiresInSeconds int64
	RefreshToken     string // set only if the identity provider rotated it
}

// refreshError carries the raw HTTP status of a failed refresh so callers
// can distinguish a permanent 403 from a transient error. A hand-rolled
// POST is used instead of oauth2.Config.TokenSource, which swallows the
// status code.
type refreshError struct {
	status int
	body   string
}

func (e *refreshError) Error() string {
	return fmt.Sprintf("identity provider refresh failed: status=%d body=%s", e.status, e.body)
}

// StatusCode returns the raw HTTP status of the failed refresh. Failures
// that never reach the HTTP layer (network error, timeout) are returned as
// ordinary wrapped errors, not as a refreshError.
func (e *refreshError) StatusCode() int { return e.status }

// isForbidden reports whether err is a refreshError carrying HTTP 403.
func isForbidden(err error) bool {
	re, ok := err.(*refreshError)
	return ok && re.status == http.StatusForbidden
}

// OAuthEndpoint carries the identity provider's client credentials and
// token endpoint. clientID/clientSecret are configuration, never
// literals; TokenURL defaults to Google's OAuth2 endpoint via
// golang.org/x/oauth2/google.
type OAuthEndpoint struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// DefaultEndpoint discovers the identity provider's token endpoint using
// golang.org/x/oauth2/google, while leaving client id/secret to
// configuration.
func DefaultEndpoint(clientID, clientSecret string) OAuthEndpoint {
	return OAuthEndpoint{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     googleoauth.Endpoint.TokenURL,
	}
}

// oauth2Config exposes the endpoint as an oauth2.Config purely for the
// authorization-code exchange interaction, which is the one part of the
// browser dance the core interface includes.
func (e OAuthEndpoint) oauth2Config(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     e.ClientID,
		ClientSecret: e.ClientSecret,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  googleoauth.Endpoint.AuthURL,
			TokenURL: e.TokenURL,
		},
	}
}

// ExchangeCode performs the authorization-code exchange interaction with
// the identity provider. The browser dance that produces code is out of
// core scope; this is the landing point the core interface names.
func (e OAuthEndpoint) ExchangeCode(ctx context.Context, code, redirectURL string) (*oauth2.Token, error) {
	cfg := e.oauth2Config(redirectURL)
	return cfg.Exchange(ctx, code)
}

// refreshHTTPClient is a package-level client with a bounded 10s timeout
// so a stalled identity provider cannot hang a refresh forever.
var refreshHTTPClient = &http.Client{Timeout: 10 * time.Second}

// refresh performs the hand-rolled x-www-form-urlencoded refresh POST so
// the caller can branch on the raw HTTP status.
func refresh(ctx context.Context, endpoint OAuthEndpoint, refreshToken string) (*RefreshResult, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", endpoint.ClientID)
	form.Set("client_secret", endpoint.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("pool: build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := refreshHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pool: refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &refreshError{status: resp.StatusCode, body: string(body)}
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		TokenType    string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("pool: decode refresh response: %w", err)
	}

	return &RefreshResult{
		AccessToken:      payload.AccessToken,
		ExpiresInSeconds: payload.ExpiresIn,
		RefreshToken:     payload.RefreshToken,
	}, nil
}
