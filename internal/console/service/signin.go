package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/openconsole/authgate/pkg/backend"
)

var (
	// ErrEmailUnverified is returned when the provider reports the account
	// email as unverified. We refuse to mint a session for it.
	ErrEmailUnverified = errors.New("provider email not verified")
)

// SignInService drives the external provider handshake and turns a
// provider identity into an authenticated backend session.
type SignInService struct {
	provider OAuthProvider
}

func NewSignInService(provider OAuthProvider) *SignInService {
	return &SignInService{provider: provider}
}

// LoginURL builds the provider consent URL carrying state for CSRF binding.
func (s *SignInService) LoginURL(state string) string {
	return s.provider.AuthCodeURL(state)
}

// CompleteSignIn redeems the provider code, validates the returned identity
// and signs the session in against the backend.
func (s *SignInService) CompleteSignIn(ctx context.Context, sess *backend.Session, code string) (*OAuthUserInfo, error) {
	token, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange provider code: %w", err)
	}

	info, err := s.provider.FetchUserInfo(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("fetch provider identity: %w", err)
	}
	if !info.EmailVerified {
		return nil, ErrEmailUnverified
	}

	identity := backend.Identity{
		Provider: "google",
		Email:    info.Email,
		Name:     info.Name,
		Picture:  info.Picture,
		GoogleID: info.ProviderUserID,
	}
	if err := sess.SignIn(ctx, identity); err != nil {
		return nil, fmt.Errorf("backend sign-in: %w", err)
	}
	return info, nil
}
