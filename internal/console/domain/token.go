package domain

import "time"

// TokenPair represents what the redemption endpoint returns: a short-lived
// access token and a longer-lived refresh token, both minted locally.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`           // seconds until expiry
}
