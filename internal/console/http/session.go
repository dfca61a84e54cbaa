package http

import (
	"net/http"
	"time"

	"github.com/openconsole/authgate/internal/console/service"
	"github.com/openconsole/authgate/pkg/backend"
	"github.com/openconsole/authgate/pkg/httpx"
	"github.com/openconsole/authgate/pkg/idx"
)

// SessionHandler serves session introspection and logout for the browser.
type SessionHandler struct {
	Sessions *service.SessionManager

	// Secure marks issued cookies Secure; only set when the gateway is
	// served over https.
	Secure bool
}

// SessionResponse describes the caller's session as seen by the console.
type SessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	State         string `json:"state"`
	Subject       string `json:"subject,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`

	// Error is set when the session has terminally expired and a fresh
	// sign-in is required.
	Error string `json:"error,omitempty"`
}

func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromRequest(r, h.Sessions)
	if sess == nil {
		httpx.WriteJSON(w, http.StatusOK, SessionResponse{
			Authenticated: false,
			State:         string(backend.StateUnauthenticated),
		})
		return
	}

	state := sess.State()
	resp := SessionResponse{
		Authenticated: state == backend.StateAuthenticated || state == backend.StateRefreshing,
		State:         string(state),
	}
	if resp.Authenticated {
		resp.Subject = sess.Subject()
		resp.ExpiresAt = sess.ExpiresAt().UTC().Format(time.RFC3339)
	}
	if state == backend.StateExpired {
		if err := sess.Err(); err != nil {
			resp.Error = err.Error()
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if id, err := idx.Parse(cookie.Value); err == nil {
			h.Sessions.Remove(id)
		}
	}
	clearSessionCookie(w, h.Secure)
	w.WriteHeader(http.StatusNoContent)
}
