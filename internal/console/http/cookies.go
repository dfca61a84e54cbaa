package http

import (
	"net/http"
	"time"

	"github.com/openconsole/authgate/internal/console/service"
	"github.com/openconsole/authgate/pkg/backend"
	"github.com/openconsole/authgate/pkg/idx"
)

const (
	sessionCookieName = "authgate_session"
	stateCookieName   = "authgate_oauth_state"
	returnCookieName  = "authgate_return_to"

	stateCookieTTL = 10 * time.Minute
)

// The secure flag follows the gateway's public scheme: https deployments
// mark cookies Secure, plain-http (local dev, in-process tests) must not,
// or user agents silently refuse to replay them.

func setSessionCookie(w http.ResponseWriter, id idx.ID, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id.String(),
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func setTransientCookie(w http.ResponseWriter, name, value string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearTransientCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionFromRequest resolves the browser session cookie to a live session.
// Returns nil when the cookie is absent, malformed or unknown.
func sessionFromRequest(r *http.Request, sessions *service.SessionManager) *backend.Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	id, err := idx.Parse(cookie.Value)
	if err != nil {
		return nil
	}
	return sessions.Get(id)
}
