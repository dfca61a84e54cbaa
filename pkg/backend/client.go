package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openconsole/authgate/pkg/jwtx"
)

// TokenGrant is the token payload returned by the backend token endpoints.
type TokenGrant struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	IssuedAt     string `json:"issued_at,omitempty"`
}

// Identity carries the provider-confirmed identity of a user who just
// completed an external OAuth handshake.
type Identity struct {
	Provider string `json:"provider"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Picture  string `json:"picture,omitempty"`
	GoogleID string `json:"googleId,omitempty"`
}

// Client is the only component that speaks to the remote token-issuing
// endpoints. Identity exchange is authenticated with a service-minted
// bearer; refresh is not.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	codec          *jwtx.Codec
	serviceSubject string
}

// NewClient creates a backend token client. The codec and service subject
// are used to mint the bearer attached to identity-exchange calls.
func NewClient(baseURL string, codec *jwtx.Codec, serviceSubject string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		codec:          codec,
		serviceSubject: serviceSubject,
	}
}

// ExchangeIdentity exchanges an external-provider identity for a backend
// access/refresh token pair. The backend creates the user record on first
// sight of the email; calling twice for an existing user is idempotent
// upstream.
func (c *Client) ExchangeIdentity(ctx context.Context, id Identity) (*TokenGrant, error) {
	serviceToken, err := c.codec.Mint(c.serviceSubject, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("backend: mint service token: %w", err)
	}

	body, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("backend: encode identity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+serviceToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "identity exchange", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "identity exchange", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(respBody)}
	}

	grant := &TokenGrant{}
	if err := json.Unmarshal(respBody, grant); err != nil {
		return nil, fmt.Errorf("backend: decode token response: %w", err)
	}
	return grant, nil
}

// Refresh exchanges a still-valid refresh token for a new access/refresh
// pair, using the conventional OAuth2 form-encoded grant.
//
// An HTTP 401, or any error body mentioning expiry, is classified as
// ErrRefreshExpired - the caller's recovery is re-authentication. Any other
// non-2xx is an UpstreamError; transport failures are NetworkErrors and may
// be retried without touching session state.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/refresh",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "refresh", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "refresh", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if isRefreshExpired(resp.StatusCode, respBody) {
			return nil, ErrRefreshExpired
		}
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(respBody)}
	}

	grant := &TokenGrant{}
	if err := json.Unmarshal(respBody, grant); err != nil {
		return nil, fmt.Errorf("backend: decode token response: %w", err)
	}
	return grant, nil
}

// isRefreshExpired distinguishes "the refresh token is dead" from other
// upstream rejections. The two have different recovery paths, so the
// classification is load-bearing.
func isRefreshExpired(status int, body []byte) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	return bytes.Contains(bytes.ToLower(body), []byte("expired"))
}
