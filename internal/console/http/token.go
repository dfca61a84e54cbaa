package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/openconsole/authgate/internal/console/service"
	"github.com/openconsole/authgate/internal/console/store"
	"github.com/openconsole/authgate/pkg/httpx"
	"github.com/openconsole/authgate/pkg/oauthx"
	"github.com/openconsole/authgate/pkg/slogx"
)

// TokenHandler serves POST /v1/auth/token. Sibling applications call it
// server-side to trade a single-use hand-off code for a token pair.
// Accepts a JSON body.
type TokenHandler struct {
	Handoff *service.HandoffService
}

type tokenRequest struct {
	GrantType   string `json:"grant_type"`
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

// TokenResponse is the successful redemption payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		oauthx.NewError(http.StatusBadRequest, oauthx.ErrorCodeInvalidRequest, "expected application/json body").WriteError(w)
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		oauthx.NewError(http.StatusBadRequest, oauthx.ErrorCodeInvalidRequest, "malformed request body").WriteError(w)
		return
	}

	if req.GrantType == "" {
		oauthx.NewError(http.StatusBadRequest, oauthx.ErrorCodeInvalidRequest, "grant_type is required").WriteError(w)
		return
	}
	if req.GrantType != "authorization_code" {
		oauthx.ErrUnsupportedGrantType.WriteError(w)
		return
	}
	if req.Code == "" || req.RedirectURI == "" {
		oauthx.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.Handoff.Redeem(ctx, req.GrantType, req.Code, req.RedirectURI)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedGrantType):
			oauthx.ErrUnsupportedGrantType.WriteError(w)
		case errors.Is(err, store.ErrCodeNotFound),
			errors.Is(err, store.ErrCodeExpired),
			errors.Is(err, store.ErrRedirectMismatch):
			// One opaque answer for all three; the log keeps the distinction.
			log.Warn("code redemption rejected", "reason", err)
			oauthx.ErrInvalidGrant.WriteError(w)
		default:
			log.Error("code redemption failed", "err", err)
			oauthx.ErrServerError.WriteError(w)
		}
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int(pair.ExpiresIn.Seconds()),
	})
}
