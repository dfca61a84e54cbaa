package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants for standard OAuth2/JWT flows.
// These provide sensible security defaults but can be overridden per-service.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	// Short-lived for security - typical range is 15m to 1h.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	// Longer-lived for user convenience - typical range is 7d to 30d.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

var (
	// ErrNoSecret reports a missing signing secret. This is a configuration
	// fault and is not recoverable at runtime.
	ErrNoSecret = errors.New("jwtx: signing secret is not configured")

	// ErrMalformed reports a token that is not structurally a JWT.
	ErrMalformed = errors.New("jwtx: malformed token")

	// ErrInvalidSig reports a signature produced with a different secret.
	ErrInvalidSig = errors.New("jwtx: invalid signature")

	// ErrExpired reports a structurally valid token past its exp claim.
	ErrExpired = errors.New("jwtx: token expired")
)

// Claims are the claims carried by service-minted tokens. The nonce is forced
// into every token so two tokens minted within the same second for the same
// subject are never byte-identical - the signature alone is deterministic
// given identical claims.
type Claims struct {
	jwt.RegisteredClaims

	Nonce string `json:"nonce,omitempty"`
}

// Codec signs, verifies and decodes compact HS256 tokens using a single
// shared secret. It is stateless and safe for concurrent use.
type Codec struct {
	secret []byte

	// now is the time source for iat/exp and expiry checks. Tests override
	// it to simulate expiry without sleeping.
	now func() time.Time
}

// NewCodec returns a Codec for the given shared secret. An empty secret is
// tolerated here; Mint and Verify fail with ErrNoSecret when called.
func NewCodec(secret string) *Codec {
	return &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// WithTimeFunc returns a copy of the codec using the given time source.
func (c *Codec) WithTimeFunc(now func() time.Time) *Codec {
	return &Codec{secret: c.secret, now: now}
}

// Mint builds and signs a token for the subject with the given TTL.
// Claims are {sub, iat=now, exp=now+ttl, nonce=random}.
func (c *Codec) Mint(subject string, ttl time.Duration) (string, error) {
	if len(c.secret) == 0 {
		return "", ErrNoSecret
	}

	nonce, err := newNonce()
	if err != nil {
		return "", err
	}

	now := c.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Nonce: nonce,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify validates the signature and the standard time claims, returning the
// claims on success. Failures map to ErrMalformed, ErrInvalidSig or
// ErrExpired so callers can dispatch on the kind.
func (c *Codec) Verify(token string) (*Claims, error) {
	if len(c.secret) == 0 {
		return nil, ErrNoSecret
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("%w: unexpected alg %q", ErrInvalidSig, t.Method.Alg())
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, ErrInvalidSig):
			return nil, ErrInvalidSig
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		default:
			return nil, fmt.Errorf("jwtx: verify: %w", err)
		}
	}
	if !tok.Valid {
		return nil, ErrInvalidSig
	}

	return claims, nil
}

// DecodeUnverified extracts claims without checking the signature. Only use
// this when the token's provenance is already trusted, e.g. a token just
// received over a verified channel.
func (c *Codec) DecodeUnverified(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, ErrMalformed
	}
	return claims, nil
}

// IsExpired reports whether the token's exp claim has passed. Any decode
// failure, including a missing exp, is treated as expired (fail closed).
func (c *Codec) IsExpired(token string) bool {
	claims, err := c.DecodeUnverified(token)
	if err != nil || claims.ExpiresAt == nil {
		return true
	}
	return !c.now().UTC().Before(claims.ExpiresAt.Time)
}

// newNonce returns a URL-safe random value for the "nonce" claim.
func newNonce() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("jwtx: failed to generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
