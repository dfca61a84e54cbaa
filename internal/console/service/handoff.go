package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/openconsole/authgate/internal/console/domain"
	"github.com/openconsole/authgate/internal/console/store"
	"github.com/openconsole/authgate/pkg/backend"
	"github.com/openconsole/authgate/pkg/jwtx"
)

const grantTypeAuthorizationCode = "authorization_code"

var (
	// ErrUntrustedDestination is returned when the requested hand-off target
	// does not match any configured trusted prefix.
	ErrUntrustedDestination = errors.New("destination not in trusted list")

	// ErrUnsupportedGrantType is returned when a redemption asks for anything
	// other than the authorization code grant.
	ErrUnsupportedGrantType = errors.New("unsupported grant type")

	// ErrSessionNotAuthenticated is returned when a hand-off is requested for
	// a session that holds no valid backend identity.
	ErrSessionNotAuthenticated = errors.New("session not authenticated")
)

// HandoffService moves an authenticated console session to a sibling
// application: it mints a single-use authorization code bound to the
// destination, and later redeems that code for a fresh token pair.
type HandoffService struct {
	codes      store.CodeStore
	codec      *jwtx.Codec
	trusted    []string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

type HandoffOption func(*HandoffService)

// WithTokenTTLs overrides the lifetimes of the minted token pair.
func WithTokenTTLs(access, refresh time.Duration) HandoffOption {
	return func(s *HandoffService) {
		s.accessTTL = access
		s.refreshTTL = refresh
	}
}

func NewHandoffService(codes store.CodeStore, codec *jwtx.Codec, trusted []string, opts ...HandoffOption) *HandoffService {
	s := &HandoffService{
		codes:      codes,
		codec:      codec,
		trusted:    trusted,
		accessTTL:  jwtx.DefaultAccessTokenTTL,
		refreshTTL: jwtx.DefaultRefreshTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initiate validates the destination against the trusted prefixes, issues a
// single-use code for the session's subject and returns the redirect URL
// with the code appended.
func (s *HandoffService) Initiate(ctx context.Context, sess *backend.Session, destination string) (string, error) {
	if sess == nil || (sess.State() != backend.StateAuthenticated && sess.State() != backend.StateRefreshing) {
		return "", ErrSessionNotAuthenticated
	}
	if !s.Trusted(destination) {
		return "", ErrUntrustedDestination
	}

	code, err := s.codes.Issue(ctx, sess.Subject(), destination)
	if err != nil {
		return "", fmt.Errorf("issue authorization code: %w", err)
	}

	target, err := url.Parse(destination)
	if err != nil {
		return "", ErrUntrustedDestination
	}
	q := target.Query()
	q.Set("code", code)
	target.RawQuery = q.Encode()
	return target.String(), nil
}

// Redeem trades a single-use code back for a freshly minted token pair.
// The redirect URI must match the one the code was bound to at issue time.
func (s *HandoffService) Redeem(ctx context.Context, grantType, code, redirectURI string) (*domain.TokenPair, error) {
	if grantType != grantTypeAuthorizationCode {
		return nil, ErrUnsupportedGrantType
	}

	authCode, err := s.codes.Redeem(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}

	access, err := s.codec.Mint(authCode.Subject, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}
	refresh, err := s.codec.Mint(authCode.Subject, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.accessTTL,
	}, nil
}

// Trusted reports whether destination matches one of the configured
// trusted prefixes. Matching is literal prefix comparison; prefixes are
// expected to carry scheme and host.
func (s *HandoffService) Trusted(destination string) bool {
	if destination == "" {
		return false
	}
	for _, prefix := range s.trusted {
		if prefix != "" && strings.HasPrefix(destination, prefix) {
			return true
		}
	}
	return false
}
