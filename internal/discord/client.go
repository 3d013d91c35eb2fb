package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medtrack/api/internal/config"
)

const (
	authorizeURL = "https://discord.com/oauth2/authorize"
	tokenURL     = "https://discord.com/api/oauth2/token"
	identifyURL  = "https://discord.com/api/users/@me"
)

// Identity is the minimal slice of a Discord account the platform
// cares about.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Client struct {
	cfg  config.DiscordConfig
	http *http.Client
}

func NewClient(cfg config.DiscordConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthorizeURL builds the consent URL the browser is redirected to.
func (c *Client) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", "identify")
	q.Set("state", state)
	return authorizeURL + "?" + q.Encode()
}

// ExchangeCode trades an authorization code for the account identity:
// one token exchange followed by one identify call.
func (c *Client) ExchangeCode(ctx context.Context, code string) (Identity, error) {
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("token exchange: status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return Identity{}, fmt.Errorf("decode token response: %w", err)
	}

	return c.identify(ctx, tokenResp.TokenType, tokenResp.AccessToken)
}

func (c *Client) identify(ctx context.Context, tokenType string, accessToken string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, identifyURL, nil)
	if err != nil {
		return Identity{}, err
	}
	if tokenType == "" {
		tokenType = "Bearer"
	}
	req.Header.Set("Authorization", tokenType+" "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("identify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("identify: status %d", resp.StatusCode)
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	if identity.ID == "" {
		return Identity{}, fmt.Errorf("identify: empty account id")
	}
	return identity, nil
}
