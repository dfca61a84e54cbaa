package http

import (
	"net/http"

	"github.com/openconsole/authgate/internal/console/service"
	"github.com/openconsole/authgate/pkg/cryptox"
	"github.com/openconsole/authgate/pkg/oauthx"
	"github.com/openconsole/authgate/pkg/slogx"
)

// LoginHandler serves GET /v1/auth/login and bounces the browser to the
// identity provider's consent screen.
type LoginHandler struct {
	SignIn *service.SignInService

	// Secure marks issued cookies Secure; only set when the gateway is
	// served over https.
	Secure bool
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	state, err := cryptox.GenerateCode(cryptox.CodeSize128)
	if err != nil {
		log.Error("generate login state", "err", err)
		oauthx.ErrServerError.WriteError(w)
		return
	}

	setTransientCookie(w, stateCookieName, state, h.Secure)

	// Remember where to land after the provider round-trip. Validated again
	// against the trusted list when the callback consumes it.
	if returnTo := r.URL.Query().Get("return_to"); returnTo != "" {
		setTransientCookie(w, returnCookieName, returnTo, h.Secure)
	} else {
		clearTransientCookie(w, returnCookieName, h.Secure)
	}

	http.Redirect(w, r, h.SignIn.LoginURL(state), http.StatusFound)
}
