package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/openconsole/authgate/pkg/backend"
	"github.com/openconsole/authgate/pkg/jwtx"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// stubExchanger mints real signed tokens so session bookkeeping that
// decodes claims behaves as it would against the live backend.
type stubExchanger struct {
	codec   *jwtx.Codec
	signErr error
	lastID  backend.Identity
}

func (s *stubExchanger) ExchangeIdentity(_ context.Context, identity backend.Identity) (*backend.TokenGrant, error) {
	if s.signErr != nil {
		return nil, s.signErr
	}
	s.lastID = identity
	access, err := s.codec.Mint(identity.Email, 15*time.Minute)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.Mint(identity.Email, 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	return &backend.TokenGrant{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int((15 * time.Minute).Seconds()),
	}, nil
}

func (s *stubExchanger) Refresh(_ context.Context, refreshToken string) (*backend.TokenGrant, error) {
	claims, err := s.codec.Verify(refreshToken)
	if err != nil {
		return nil, backend.ErrRefreshExpired
	}
	access, err := s.codec.Mint(claims.Subject, 15*time.Minute)
	if err != nil {
		return nil, err
	}
	return &backend.TokenGrant{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int((15 * time.Minute).Seconds()),
	}, nil
}

// stubProvider satisfies OAuthProvider without talking to Google.
type stubProvider struct {
	info        *OAuthUserInfo
	exchangeErr error
	infoErr     error
	lastCode    string
}

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + state
}

func (p *stubProvider) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	p.lastCode = code
	return &oauth2.Token{AccessToken: "provider-access"}, nil
}

func (p *stubProvider) FetchUserInfo(_ context.Context, _ *oauth2.Token) (*OAuthUserInfo, error) {
	if p.infoErr != nil {
		return nil, p.infoErr
	}
	return p.info, nil
}

func newAuthenticatedSession(t *testing.T, codec *jwtx.Codec) *backend.Session {
	t.Helper()
	exchanger := &stubExchanger{codec: codec}
	sess := backend.NewSession(exchanger, codec)
	err := sess.SignIn(context.Background(), backend.Identity{
		Provider: "google",
		Email:    "user@example.com",
		Name:     "Test User",
		GoogleID: "g-123",
	})
	require.NoError(t, err)
	return sess
}

func TestSignInService_CompleteSignIn(t *testing.T) {
	codec := jwtx.NewCodec(testSecret)
	provider := &stubProvider{info: &OAuthUserInfo{
		ProviderUserID: "g-123",
		Email:          "user@example.com",
		EmailVerified:  true,
		Name:           "Test User",
		Picture:        "https://img.example.com/u.png",
	}}
	svc := NewSignInService(provider)
	exchanger := &stubExchanger{codec: codec}
	sess := backend.NewSession(exchanger, codec)

	info, err := svc.CompleteSignIn(context.Background(), sess, "provider-code")
	require.NoError(t, err)
	require.Equal(t, "user@example.com", info.Email)
	require.Equal(t, "provider-code", provider.lastCode)

	require.Equal(t, backend.StateAuthenticated, sess.State())
	require.Equal(t, "google", exchanger.lastID.Provider)
	require.Equal(t, "g-123", exchanger.lastID.GoogleID)
}

func TestSignInService_RejectsUnverifiedEmail(t *testing.T) {
	codec := jwtx.NewCodec(testSecret)
	provider := &stubProvider{info: &OAuthUserInfo{
		ProviderUserID: "g-123",
		Email:          "user@example.com",
		EmailVerified:  false,
	}}
	svc := NewSignInService(provider)
	sess := backend.NewSession(&stubExchanger{codec: codec}, codec)

	_, err := svc.CompleteSignIn(context.Background(), sess, "provider-code")
	require.ErrorIs(t, err, ErrEmailUnverified)
	require.Equal(t, backend.StateUnauthenticated, sess.State())
}

func TestSignInService_ExchangeFailure(t *testing.T) {
	codec := jwtx.NewCodec(testSecret)
	provider := &stubProvider{exchangeErr: errors.New("boom")}
	svc := NewSignInService(provider)
	sess := backend.NewSession(&stubExchanger{codec: codec}, codec)

	_, err := svc.CompleteSignIn(context.Background(), sess, "provider-code")
	require.Error(t, err)
	require.Equal(t, backend.StateUnauthenticated, sess.State())
}

func TestSignInService_LoginURLCarriesState(t *testing.T) {
	svc := NewSignInService(&stubProvider{})
	url := svc.LoginURL("xyz")
	require.Contains(t, url, "state=xyz")
}

func TestSessionManager_Lifecycle(t *testing.T) {
	codec := jwtx.NewCodec(testSecret)
	mgr := NewSessionManager(&stubExchanger{codec: codec}, codec)

	sess := mgr.Create()
	require.NotNil(t, sess)
	require.Equal(t, 1, mgr.Len())
	require.Same(t, sess, mgr.Get(sess.ID()))

	mgr.Remove(sess.ID())
	require.Nil(t, mgr.Get(sess.ID()))
	require.Equal(t, 0, mgr.Len())
}

func TestSessionManager_ReapOnlyExpired(t *testing.T) {
	codec := jwtx.NewCodec(testSecret)
	mgr := NewSessionManager(&stubExchanger{codec: codec}, codec)

	live := mgr.Create()
	err := live.SignIn(context.Background(), backend.Identity{Provider: "google", Email: "a@example.com"})
	require.NoError(t, err)

	idle := mgr.Create()
	_ = idle

	require.Equal(t, 0, mgr.Reap())
	require.Equal(t, 2, mgr.Len())
}
