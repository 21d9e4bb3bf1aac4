// ABOUTME: OAuth configuration and token management for the Google Calendar provider
// ABOUTME: Handles consent URLs, code exchange, expiry checks, refresh, and revocation classification
package gcal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// expiryBuffer is the safety window before the recorded expiry within which a
// token is already treated as expired, so a sync never starts on a token
// about to lapse mid-flight.
const expiryBuffer = 5 * time.Minute

// DefaultScopes cover event listing, event writes for display-originated
// entries, and the calendar list shown during source selection.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/calendar.readonly",
	"https://www.googleapis.com/auth/calendar.events",
}

var (
	// ErrTokenExpired means the access token is expired and no refresh token
	// is available. Terminal until the user re-authorizes.
	ErrTokenExpired = errors.New("access token expired and no refresh token available")

	// ErrTokenRevoked means the provider rejected the refresh token itself.
	// The calendar source should be marked disconnected, not retried.
	ErrTokenRevoked = errors.New("refresh token revoked by provider")

	// ErrNoRefreshToken means a code exchange came back without a refresh
	// token, so unattended sync would be impossible.
	ErrNoRefreshToken = errors.New("provider returned no refresh token")
)

// TokenStatus reports whether a token bundle is usable as-is and whether it
// can be refreshed. Both false flags together are not an error state: a valid
// access token with no refresh token simply works until it expires.
type TokenStatus struct {
	IsExpired  bool
	CanRefresh bool
}

// CheckTokenStatus classifies a token bundle. A missing expiry is treated as
// expired, forcing a refresh rather than risking a rejected call.
func CheckTokenStatus(tok *oauth2.Token) TokenStatus {
	if tok == nil {
		return TokenStatus{IsExpired: true}
	}

	status := TokenStatus{CanRefresh: tok.RefreshToken != ""}
	if tok.AccessToken == "" || tok.Expiry.IsZero() || time.Until(tok.Expiry) <= expiryBuffer {
		status.IsExpired = true
	}
	return status
}

// Client wraps the OAuth2 app configuration for the Google provider.
type Client struct {
	cfg *oauth2.Config
}

// NewClient creates an OAuth client for the configured Google OAuth app.
func NewClient(clientID, clientSecret, redirectURL string) *Client {
	return &Client{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       DefaultScopes,
			Endpoint:     google.Endpoint,
		},
	}
}

// AuthURL builds the consent URL. Offline access plus forced consent
// guarantees a refresh token even for users who authorized before.
func (c *Client) AuthURL(state string, scopes ...string) string {
	cfg := *c.cfg
	if len(scopes) > 0 {
		cfg.Scopes = scopes
	}
	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades an authorization code for an initial token bundle. A bundle
// without a refresh token is rejected with ErrNoRefreshToken.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if tok.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	return tok, nil
}

// ValidToken returns a token usable right now. An unexpired token is returned
// unchanged with rotated=false. An expired, refreshable token is exchanged at
// the provider and returned with rotated=true so the caller persists the new
// bundle; persistence is the caller's explicit step, not a side effect here.
func (c *Client) ValidToken(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, bool, error) {
	status := CheckTokenStatus(tok)
	if !status.IsExpired {
		return tok, false, nil
	}
	if !status.CanRefresh {
		return nil, false, ErrTokenExpired
	}

	fresh, err := c.cfg.TokenSource(ctx, tok).Token()
	if err != nil {
		if isRevoked(err) {
			return nil, false, fmt.Errorf("%w: %v", ErrTokenRevoked, err)
		}
		return nil, false, fmt.Errorf("failed to refresh token: %w", err)
	}

	// Google omits the refresh token on rotation unless it actually changed.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	return fresh, true, nil
}

// isRevoked distinguishes a provider-reported dead refresh token from
// transient failures. Google signals revocation with invalid_grant.
func isRevoked(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return false
	}
	if retrieveErr.ErrorCode == "invalid_grant" {
		return true
	}
	if retrieveErr.Response != nil &&
		(retrieveErr.Response.StatusCode == http.StatusBadRequest || retrieveErr.Response.StatusCode == http.StatusUnauthorized) {
		return strings.Contains(string(retrieveErr.Body), "invalid_grant")
	}
	return false
}

// GenerateState builds the CSRF state string carried through the OAuth
// redirect: "<userID>:<randomHex>".
func GenerateState(userID string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state nonce: %w", err)
	}
	return userID + ":" + hex.EncodeToString(buf), nil
}

// ParseState extracts the user id from a state string produced by
// GenerateState.
func ParseState(state string) (string, error) {
	userID, nonce, found := strings.Cut(state, ":")
	if !found || userID == "" || len(nonce) != 32 {
		return "", fmt.Errorf("malformed oauth state")
	}
	if _, err := hex.DecodeString(nonce); err != nil {
		return "", fmt.Errorf("malformed oauth state nonce")
	}
	return userID, nil
}
