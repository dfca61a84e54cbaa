package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/openconsole/authgate/pkg/idx"
	"github.com/openconsole/authgate/pkg/jwtx"
	"golang.org/x/sync/singleflight"
)

// State is the session lifecycle state.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateRefreshing      State = "refreshing"

	// StateExpired is terminal until a fresh SignIn cycle begins.
	StateExpired State = "expired"
)

// TokenExchanger is the backend surface the session depends on.
// *Client satisfies it; tests substitute fakes.
type TokenExchanger interface {
	ExchangeIdentity(ctx context.Context, id Identity) (*TokenGrant, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error)
}

// Session is the authoritative per-user authentication state. It owns the
// access/refresh token pair and all transitions on it: sign-in, expiry
// detection, refresh with single-flight de-duplication, and the terminal
// expired state.
//
// Token lifetimes are derived from the decoded access token's iat/exp
// claims, never from client-side arithmetic, so local state cannot drift
// from what the token itself asserts.
type Session struct {
	client     TokenExchanger
	codec      *jwtx.Codec
	now        func() time.Time
	HTTPClient *http.Client

	mu           sync.Mutex
	id           idx.ID
	state        State
	subject      string
	accessToken  string
	refreshToken string
	issuedAt     time.Time
	expiresAt    time.Time
	lastErr      error

	// refreshGroup guarantees at most one in-flight refresh per session.
	// The refresh token is single-use-rotating: two parallel refreshes
	// would race and the loser would burn a token that was valid moments
	// earlier.
	refreshGroup singleflight.Group
}

// Option configures a Session.
type Option func(*Session)

// WithClock injects the session's time source so tests can simulate expiry
// without real sleeps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession creates an unauthenticated session.
func NewSession(client TokenExchanger, codec *jwtx.Codec, opts ...Option) *Session {
	s := &Session{
		client:     client,
		codec:      codec,
		now:        time.Now,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		id:         idx.New(),
		state:      StateUnauthenticated,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() idx.ID { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subject returns the backend-assigned user identifier, empty until sign-in
// completes.
func (s *Session) Subject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

// ExpiresAt returns the access token expiry instant.
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

// Err returns the terminal error, non-nil only in StateExpired. It is
// cleared by a fresh SignIn.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SignIn exchanges a provider-confirmed identity for backend tokens and
// moves the session to StateAuthenticated. On failure the session returns
// to StateUnauthenticated - a failed exchange never grants a session with
// blank tokens.
func (s *Session) SignIn(ctx context.Context, id Identity) error {
	s.mu.Lock()
	s.state = StateAuthenticating
	s.mu.Unlock()

	grant, err := s.client.ExchangeIdentity(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateUnauthenticated
		return err
	}
	if err := s.commitGrant(grant); err != nil {
		s.state = StateUnauthenticated
		return err
	}
	return nil
}

// SignOut clears all session state immediately. No backend call is needed;
// the tokens are stateless and simply lapse.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateUnauthenticated
	s.subject = ""
	s.accessToken = ""
	s.refreshToken = ""
	s.issuedAt = time.Time{}
	s.expiresAt = time.Time{}
	s.lastErr = nil
}

// Token returns a valid access token for an outbound call, refreshing first
// when the current one has expired. Concurrent callers that observe the
// same expiry all await a single shared refresh.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	switch s.state {
	case StateExpired:
		err := s.lastErr
		s.mu.Unlock()
		return "", err
	case StateUnauthenticated, StateAuthenticating:
		s.mu.Unlock()
		return "", ErrNotAuthenticated
	}

	if s.now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.Unlock()
		return token, nil
	}
	stale := s.accessToken
	s.mu.Unlock()

	return s.refreshShared(ctx, stale)
}

// ForceRefresh rotates the token pair even though the local clock still
// considers the access token valid. Used for the bounded retry after an
// unexpected 401 (clock skew, server-side early invalidation).
func (s *Session) ForceRefresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	switch s.state {
	case StateExpired:
		err := s.lastErr
		s.mu.Unlock()
		return "", err
	case StateUnauthenticated, StateAuthenticating:
		s.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	stale := s.accessToken
	s.mu.Unlock()

	return s.refreshShared(ctx, stale)
}

// refreshShared funnels all refresh triggers through one single-flight key.
// The group drops the key once the flight resolves, so the next expiry
// cycle starts a fresh operation.
func (s *Session) refreshShared(ctx context.Context, stale string) (string, error) {
	v, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		return s.refresh(ctx, stale)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Session) refresh(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()
	if s.state == StateExpired {
		err := s.lastErr
		s.mu.Unlock()
		return "", err
	}
	if s.accessToken != stale {
		// Another flight already rotated the pair.
		token := s.accessToken
		s.mu.Unlock()
		return token, nil
	}
	refreshToken := s.refreshToken
	s.state = StateRefreshing
	s.mu.Unlock()

	grant, err := s.client.Refresh(ctx, refreshToken)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrRefreshExpired) {
			// Terminal: tokens cleared, caller must force a fresh sign-in.
			s.state = StateExpired
			s.accessToken = ""
			s.refreshToken = ""
			s.lastErr = err
			return "", err
		}
		// Transient or upstream fault: keep the stale pair so a later
		// retry can succeed without forcing re-login.
		s.state = StateAuthenticated
		return "", err
	}

	if err := s.commitGrant(grant); err != nil {
		s.state = StateAuthenticated
		return "", err
	}
	return s.accessToken, nil
}

// commitGrant atomically installs a token pair, deriving iat/exp from the
// access token's own claims. Caller holds s.mu.
func (s *Session) commitGrant(grant *TokenGrant) error {
	claims, err := s.codec.DecodeUnverified(grant.AccessToken)
	if err != nil {
		return fmt.Errorf("backend: undecodable access token: %w", err)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("backend: access token missing iat/exp claims")
	}

	s.subject = claims.Subject
	s.accessToken = grant.AccessToken
	s.refreshToken = grant.RefreshToken
	s.issuedAt = claims.IssuedAt.Time
	s.expiresAt = claims.ExpiresAt.Time
	s.lastErr = nil
	s.state = StateAuthenticated
	return nil
}

// Do performs an authenticated HTTP request, attaching a valid bearer token
// and performing exactly one refresh-and-retry cycle if the call returns
// 401 despite a seemingly valid token. The bounded single retry guards
// against clock skew without risking a retry loop.
//
// The retry replays the request body through req.GetBody (set automatically
// by http.NewRequest for common body types); requests carrying a body
// without GetBody get no retry and see the 401 directly.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	token, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.send(req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	// A body without GetBody was consumed by the first attempt and cannot
	// be replayed; surface the 401 rather than retrying with an empty body.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}
	resp.Body.Close()

	token, err = s.ForceRefresh(ctx)
	if err != nil {
		return nil, err
	}
	return s.send(req, token)
}

func (s *Session) send(req *http.Request, token string) (*http.Response, error) {
	r := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("backend: replay request body: %w", err)
		}
		r.Body = body
	}
	r.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.HTTPClient.Do(r)
	if err != nil {
		return nil, &NetworkError{Op: "authenticated request", Err: err}
	}
	return resp, nil
}
