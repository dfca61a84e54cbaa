package http

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/openconsole/authgate/internal/console/service"
	"github.com/openconsole/authgate/pkg/oauthx"
	"github.com/openconsole/authgate/pkg/slogx"
)

// AuthorizeHandler serves GET /v1/auth/authorize. An authenticated session
// asks to carry its identity to a sibling application; we answer with a 302
// to the destination carrying a single-use code.
type AuthorizeHandler struct {
	Handoff  *service.HandoffService
	Sessions *service.SessionManager
}

func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	redirectURI := r.URL.Query().Get("redirect_uri")
	if redirectURI == "" {
		oauthx.NewError(http.StatusBadRequest, oauthx.ErrorCodeInvalidRequest, "redirect_uri is required").WriteError(w)
		return
	}

	sess := sessionFromRequest(r, h.Sessions)
	if sess == nil {
		// No session yet: run the login flow first, then come back here.
		login := url.URL{Path: "/v1/auth/login"}
		q := login.Query()
		q.Set("return_to", r.URL.RequestURI())
		login.RawQuery = q.Encode()
		http.Redirect(w, r, login.String(), http.StatusFound)
		return
	}

	target, err := h.Handoff.Initiate(ctx, sess, redirectURI)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotAuthenticated):
			login := url.URL{Path: "/v1/auth/login"}
			q := login.Query()
			q.Set("return_to", r.URL.RequestURI())
			login.RawQuery = q.Encode()
			http.Redirect(w, r, login.String(), http.StatusFound)
		case errors.Is(err, service.ErrUntrustedDestination):
			log.Warn("untrusted hand-off destination", "redirect_uri", redirectURI)
			oauthx.NewError(http.StatusBadRequest, oauthx.ErrorCodeInvalidRequest, "redirect_uri is not trusted").WriteError(w)
		default:
			log.Error("hand-off initiation failed", "err", err)
			oauthx.ErrServerError.WriteError(w)
		}
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}
