package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openconsole/authgate/internal/console/service"
	"github.com/openconsole/authgate/internal/console/store"
	"github.com/openconsole/authgate/pkg/backend"
	"github.com/openconsole/authgate/pkg/jwtx"
)

var hexCodeRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

func newAuthorizeFixture(t *testing.T) (*AuthorizeHandler, *backend.Session) {
	t.Helper()
	mgr, sess := newSessionFixture(t)

	codec := jwtx.NewCodec(testSecret)
	handoff := service.NewHandoffService(store.NewMemoryCodeStore(), codec, []string{"https://app.example.com/"})
	return &AuthorizeHandler{Handoff: handoff, Sessions: mgr}, sess
}

func TestAuthorizeHandler_RedirectsWithCode(t *testing.T) {
	h, sess := newAuthorizeFixture(t)

	req := withSessionCookie(httptest.NewRequest(http.MethodGet,
		"/v1/auth/authorize?redirect_uri="+url.QueryEscape("https://app.example.com/welcome"), nil), sess)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	target, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "app.example.com", target.Host)
	require.Regexp(t, hexCodeRe, target.Query().Get("code"))
}

func TestAuthorizeHandler_MissingRedirectURI(t *testing.T) {
	h, sess := newAuthorizeFixture(t)

	req := withSessionCookie(httptest.NewRequest(http.MethodGet, "/v1/auth/authorize", nil), sess)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthorizeHandler_UntrustedRedirect(t *testing.T) {
	h, sess := newAuthorizeFixture(t)

	req := withSessionCookie(httptest.NewRequest(http.MethodGet,
		"/v1/auth/authorize?redirect_uri="+url.QueryEscape("https://evil.example.net/"), nil), sess)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "invalid_request", body.Error)
}

func TestAuthorizeHandler_NoSessionBouncesToLogin(t *testing.T) {
	h, _ := newAuthorizeFixture(t)

	req := httptest.NewRequest(http.MethodGet,
		"/v1/auth/authorize?redirect_uri="+url.QueryEscape("https://app.example.com/"), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	login, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/v1/auth/login", login.Path)
	require.Contains(t, login.Query().Get("return_to"), "/v1/auth/authorize")
}
