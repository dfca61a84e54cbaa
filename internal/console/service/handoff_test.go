package service

import (
	"context"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openconsole/authgate/internal/console/store"
	"github.com/openconsole/authgate/pkg/backend"
	"github.com/openconsole/authgate/pkg/jwtx"
)

var hexCodeRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

func newHandoffService(t *testing.T, trusted ...string) (*HandoffService, *jwtx.Codec) {
	t.Helper()
	codec := jwtx.NewCodec(testSecret)
	if len(trusted) == 0 {
		trusted = []string{"https://app.example.com/"}
	}
	return NewHandoffService(store.NewMemoryCodeStore(), codec, trusted), codec
}

func TestHandoff_InitiateAppendsCode(t *testing.T) {
	svc, _ := newHandoffService(t)
	codec := jwtx.NewCodec(testSecret)
	sess := newAuthenticatedSession(t, codec)

	redirect, err := svc.Initiate(context.Background(), sess, "https://app.example.com/dashboard")
	require.NoError(t, err)

	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	require.Equal(t, "app.example.com", parsed.Host)
	require.Equal(t, "/dashboard", parsed.Path)
	require.Regexp(t, hexCodeRe, parsed.Query().Get("code"))
}

func TestHandoff_InitiatePreservesExistingQuery(t *testing.T) {
	svc, _ := newHandoffService(t)
	codec := jwtx.NewCodec(testSecret)
	sess := newAuthenticatedSession(t, codec)

	redirect, err := svc.Initiate(context.Background(), sess, "https://app.example.com/page?tab=settings")
	require.NoError(t, err)

	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	require.Equal(t, "settings", parsed.Query().Get("tab"))
	require.NotEmpty(t, parsed.Query().Get("code"))
}

func TestHandoff_InitiateRejectsUntrustedDestination(t *testing.T) {
	svc, _ := newHandoffService(t)
	codec := jwtx.NewCodec(testSecret)
	sess := newAuthenticatedSession(t, codec)

	for _, dest := range []string{
		"https://evil.example.net/",
		"http://app.example.com/", // scheme must match the prefix
		"",
	} {
		_, err := svc.Initiate(context.Background(), sess, dest)
		require.ErrorIs(t, err, ErrUntrustedDestination, "destination %q", dest)
	}
}

func TestHandoff_InitiateRequiresAuthenticatedSession(t *testing.T) {
	svc, codec := newHandoffService(t)

	_, err := svc.Initiate(context.Background(), nil, "https://app.example.com/")
	require.ErrorIs(t, err, ErrSessionNotAuthenticated)

	fresh := backend.NewSession(&stubExchanger{codec: codec}, codec)
	_, err = svc.Initiate(context.Background(), fresh, "https://app.example.com/")
	require.ErrorIs(t, err, ErrSessionNotAuthenticated)
}

func TestHandoff_RedeemMintsTokenPair(t *testing.T) {
	svc, codec := newHandoffService(t)
	sess := newAuthenticatedSession(t, codec)

	redirect, err := svc.Initiate(context.Background(), sess, "https://app.example.com/dashboard")
	require.NoError(t, err)
	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	code := parsed.Query().Get("code")

	pair, err := svc.Redeem(context.Background(), "authorization_code", code, "https://app.example.com/dashboard")
	require.NoError(t, err)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, jwtx.DefaultAccessTokenTTL, pair.ExpiresIn)

	claims, err := codec.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, sess.Subject(), claims.Subject)

	claims, err = codec.Verify(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, sess.Subject(), claims.Subject)
}

func TestHandoff_RedeemIsSingleUse(t *testing.T) {
	svc, codec := newHandoffService(t)
	sess := newAuthenticatedSession(t, codec)

	redirect, err := svc.Initiate(context.Background(), sess, "https://app.example.com/")
	require.NoError(t, err)
	parsed, _ := url.Parse(redirect)
	code := parsed.Query().Get("code")

	_, err = svc.Redeem(context.Background(), "authorization_code", code, "https://app.example.com/")
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), "authorization_code", code, "https://app.example.com/")
	require.ErrorIs(t, err, store.ErrCodeNotFound)
}

func TestHandoff_RedeemRejectsWrongGrantType(t *testing.T) {
	svc, _ := newHandoffService(t)

	_, err := svc.Redeem(context.Background(), "client_credentials", "whatever", "")
	require.ErrorIs(t, err, ErrUnsupportedGrantType)
}

func TestHandoff_RedeemRedirectMismatchBurnsCode(t *testing.T) {
	svc, codec := newHandoffService(t)
	sess := newAuthenticatedSession(t, codec)

	redirect, err := svc.Initiate(context.Background(), sess, "https://app.example.com/dashboard")
	require.NoError(t, err)
	parsed, _ := url.Parse(redirect)
	code := parsed.Query().Get("code")

	_, err = svc.Redeem(context.Background(), "authorization_code", code, "https://app.example.com/other")
	require.ErrorIs(t, err, store.ErrRedirectMismatch)

	// the mismatch consumed the code
	_, err = svc.Redeem(context.Background(), "authorization_code", code, "https://app.example.com/dashboard")
	require.ErrorIs(t, err, store.ErrCodeNotFound)
}

func TestHandoff_CustomTokenTTLs(t *testing.T) {
	codec := jwtx.NewCodec(testSecret)
	svc := NewHandoffService(store.NewMemoryCodeStore(), codec,
		[]string{"https://app.example.com/"},
		WithTokenTTLs(5*time.Minute, time.Hour),
	)
	sess := newAuthenticatedSession(t, codec)

	redirect, err := svc.Initiate(context.Background(), sess, "https://app.example.com/")
	require.NoError(t, err)
	parsed, _ := url.Parse(redirect)

	pair, err := svc.Redeem(context.Background(), "authorization_code", parsed.Query().Get("code"), "https://app.example.com/")
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, pair.ExpiresIn)
}
