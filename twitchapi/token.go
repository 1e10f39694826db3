package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"
)

const ircPasswordPrefix = "oauth:"

// defaultTokenTimeout bounds each token endpoint round trip when no client is supplied.
const defaultTokenTimeout = 10 * time.Second

// validateURL is the Twitch token introspection endpoint.
var validateURL = "https://id.twitch.tv/oauth2/validate"

// Credentials describe the bot user token used for IRC chat.
// NOTE: app access (client credentials) tokens cannot log into IRC; chat needs a user token
// with the chat:read scope.
type Credentials struct {
	AccessToken  string
	ClientID     string
	ClientSecret string
	RefreshToken string

	// TokenURL overrides the Twitch token endpoint.
	TokenURL string
	// HTTPClient is used for refresh requests. Nil means a client with a 10s timeout.
	HTTPClient *http.Client
}

// CanRefresh reports whether the refresh-token grant can be used.
func (c Credentials) CanRefresh() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// TokenSource returns a source of IRC user tokens. With a refresh token configured it
// refreshes through the Twitch token endpoint and caches the result until expiry;
// otherwise it always returns the static access token.
func (c Credentials) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if c.CanRefresh() {
		endpoint := twitch.Endpoint
		if c.TokenURL != "" {
			endpoint.TokenURL = c.TokenURL
		}
		hc := c.HTTPClient
		if hc == nil {
			hc = &http.Client{Timeout: defaultTokenTimeout}
		}
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
		oc := &oauth2.Config{ClientID: c.ClientID, ClientSecret: c.ClientSecret, Endpoint: endpoint}
		// No access token seeded: the first Token() call performs a refresh so expiry is known.
		return oc.TokenSource(ctx, &oauth2.Token{RefreshToken: c.RefreshToken}), nil
	}
	access := strings.TrimPrefix(strings.TrimSpace(c.AccessToken), ircPasswordPrefix)
	if access == "" {
		return nil, errors.New("missing twitch access token and refresh credentials")
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: access, TokenType: "bearer"}), nil
}

// IRCPassword formats an access token as the IRC PASS value ("oauth:<token>").
func IRCPassword(accessToken string) string {
	return ircPasswordPrefix + strings.TrimPrefix(accessToken, ircPasswordPrefix)
}

// TokenInfo is the subset of the validate response we use.
type TokenInfo struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
	ExpiresIn int      `json:"expires_in"`
}

// HasScope reports whether the token was granted scope.
func (ti *TokenInfo) HasScope(scope string) bool {
	for _, s := range ti.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ValidateToken asks Twitch who the token belongs to and which scopes it carries.
func ValidateToken(ctx context.Context, hc *http.Client, accessToken string) (*TokenInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, validateURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "OAuth "+strings.TrimPrefix(accessToken, ircPasswordPrefix))
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("twitch token validate failed: %s: %s", resp.Status, string(b))
	}
	var info TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}
