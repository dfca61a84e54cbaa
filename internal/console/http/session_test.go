package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openconsole/authgate/internal/console/service"
	"github.com/openconsole/authgate/pkg/backend"
	"github.com/openconsole/authgate/pkg/jwtx"
)

// stubExchanger mints real tokens so session state derives from claims.
type stubExchanger struct {
	codec *jwtx.Codec
}

func (s *stubExchanger) ExchangeIdentity(_ context.Context, identity backend.Identity) (*backend.TokenGrant, error) {
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

func (s *stubExchanger) Refresh(_ context.Context, _ string) (*backend.TokenGrant, error) {
	return nil, backend.ErrRefreshExpired
}

func newSessionFixture(t *testing.T) (*service.SessionManager, *backend.Session) {
	t.Helper()
	codec := jwtx.NewCodec(testSecret)
	mgr := service.NewSessionManager(&stubExchanger{codec: codec}, codec)

	sess := mgr.Create()
	err := sess.SignIn(context.Background(), backend.Identity{
		Provider: "google",
		Email:    "user@example.com",
	})
	require.NoError(t, err)

	return mgr, sess
}

func withSessionCookie(req *http.Request, sess *backend.Session) *http.Request {
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sess.ID().String()})
	return req
}

func TestSessionHandler_AuthenticatedIntrospection(t *testing.T) {
	mgr, sess := newSessionFixture(t)
	h := &SessionHandler{Sessions: mgr}

	req := withSessionCookie(httptest.NewRequest(http.MethodGet, "/v1/auth/session", nil), sess)
	rec := httptest.NewRecorder()
	h.HandleGet(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Authenticated)
	require.Equal(t, "user@example.com", resp.Subject)
	require.NotEmpty(t, resp.ExpiresAt)
}

func TestSessionHandler_NoCookie(t *testing.T) {
	mgr, _ := newSessionFixture(t)
	h := &SessionHandler{Sessions: mgr}

	rec := httptest.NewRecorder()
	h.HandleGet(rec, httptest.NewRequest(http.MethodGet, "/v1/auth/session", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Authenticated)
	require.Empty(t, resp.Subject)
}

func TestSessionHandler_GarbageCookie(t *testing.T) {
	mgr, _ := newSessionFixture(t)
	h := &SessionHandler{Sessions: mgr}

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "not-a-ulid"})
	rec := httptest.NewRecorder()
	h.HandleGet(rec, req)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Authenticated)
}

func TestSessionHandler_Logout(t *testing.T) {
	mgr, sess := newSessionFixture(t)
	h := &SessionHandler{Sessions: mgr}

	req := withSessionCookie(httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil), sess)
	rec := httptest.NewRecorder()
	h.HandleLogout(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Nil(t, mgr.Get(sess.ID()))
	require.Equal(t, backend.StateUnauthenticated, sess.State())

	// Cleared cookie comes back with MaxAge<0
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	require.Equal(t, sessionCookieName, cookies[0].Name)
	require.Negative(t, cookies[0].MaxAge)
}

func TestSessionHandler_LogoutWithoutCookieStillNoContent(t *testing.T) {
	mgr, _ := newSessionFixture(t)
	h := &SessionHandler{Sessions: mgr}

	rec := httptest.NewRecorder()
	h.HandleLogout(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
