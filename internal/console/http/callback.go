package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/openconsole/authgate/internal/console/service"
	"github.com/openconsole/authgate/pkg/oauthx"
	"github.com/openconsole/authgate/pkg/slogx"
)

// CallbackHandler serves GET /v1/auth/callback, the provider's return leg.
// It binds the provider code to a console session and redirects onwards.
type CallbackHandler struct {
	SignIn   *service.SignInService
	Sessions *service.SessionManager
	Handoff  *service.HandoffService

	// Secure marks issued cookies Secure; only set when the gateway is
	// served over https.
	Secure bool
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		log.Warn("provider returned error", "error", errCode)
		oauthx.NewError(http.StatusBadRequest, oauthx.ErrorCodeInvalidRequest, "provider denied authorization").WriteError(w)
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		oauthx.ErrInvalidRequest.WriteError(w)
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		log.Warn("state mismatch on callback")
		oauthx.NewError(http.StatusBadRequest, oauthx.ErrorCodeInvalidRequest, "state mismatch").WriteError(w)
		return
	}
	clearTransientCookie(w, stateCookieName, h.Secure)

	// Reuse the caller's existing session slot when present so a re-login
	// replaces the old identity instead of leaking registry entries.
	sess := sessionFromRequest(r, h.Sessions)
	if sess == nil {
		sess = h.Sessions.Create()
	}

	if _, err := h.SignIn.CompleteSignIn(ctx, sess, code); err != nil {
		switch {
		case errors.Is(err, service.ErrEmailUnverified):
			oauthx.NewError(http.StatusForbidden, oauthx.ErrorCodeInvalidRequest, "email not verified").WriteError(w)
		default:
			log.Error("sign-in failed", "err", err)
			oauthx.ErrServerError.WriteError(w)
		}
		return
	}

	setSessionCookie(w, sess.ID(), h.Secure)

	http.Redirect(w, r, h.consumeReturnTo(w, r), http.StatusFound)
}

// consumeReturnTo reads and clears the post-login destination cookie,
// falling back to the console root for anything not explicitly trusted.
func (h *CallbackHandler) consumeReturnTo(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(returnCookieName)
	if err != nil || cookie.Value == "" {
		return "/"
	}
	clearTransientCookie(w, returnCookieName, h.Secure)

	target := cookie.Value
	if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") {
		return target
	}
	if h.Handoff != nil && h.Handoff.Trusted(target) {
		return target
	}
	return "/"
}
