package azure

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// TokenProvider returns a bearer token for Azure Resource Manager.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a pre-acquired token.
type StaticToken string

// Token implements TokenProvider.
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%s: empty access token", Name)
	}
	return string(s), nil
}

// DefaultAuthorityURL is the Microsoft identity platform endpoint.
const DefaultAuthorityURL = "https://login.microsoftonline.com/"

const managementScope = "https://management.azure.com/.default"

// tokenExpiryMargin refreshes tokens slightly before they expire.
const tokenExpiryMargin = 2 * time.Minute

// ClientCredentials acquires tokens with the OAuth2 client credentials grant
// and caches them until shortly before expiry.
type ClientCredentials struct {
	AuthorityURL string
	TenantID     string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Token implements TokenProvider.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now
	if c.now != nil {
		now = c.now
	}
	if c.token != "" && now().Before(c.expires) {
		return c.token, nil
	}

	authority := c.AuthorityURL
	if authority == "" {
		authority = DefaultAuthorityURL
	}
	endpoint, err := url.JoinPath(authority, c.TenantID, "oauth2", "v2.0", "token")
	if err != nil {
		return "", fmt.Errorf("%s: invalid authority url: %w", Name, err)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("scope", managementScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%s: build token request: %w", Name, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: token request: %w", Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: token request failed with status %d", Name, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("%s: decode token response: %w", Name, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%s: token response has no access_token", Name)
	}

	c.token = tr.AccessToken
	c.expires = now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenExpiryMargin)
	return c.token, nil
}
