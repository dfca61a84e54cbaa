package store

import (
	"context"
	"errors"

	"github.com/openconsole/authgate/internal/console/domain"
)

var (
	// ErrCodeNotFound reports a code that is absent - already redeemed or
	// never issued. The two are indistinguishable on purpose: revealing
	// which would tell a probing caller whether a code ever existed.
	ErrCodeNotFound = errors.New("store: authorization code not found")

	// ErrCodeExpired reports a code found past its expiry. The entry is
	// deleted on this path too.
	ErrCodeExpired = errors.New("store: authorization code expired")

	// ErrRedirectMismatch reports a redemption whose redirect target does
	// not match the one the code was minted for. The code is burned.
	ErrRedirectMismatch = errors.New("store: redirect target mismatch")
)

// CodeStore is a shared, time-bounded, single-use mapping from opaque code
// to its grant data. Redemption is exactly-once: once a code is found, it is
// deleted regardless of outcome, so a failed redemption cannot be retried.
//
// Production deployments back this with Redis so every instance handling
// requests sees the same codes; the in-memory implementation serves tests
// and single-process development.
type CodeStore interface {
	// Issue generates a fresh high-entropy code and stores the grant under
	// it with the store's TTL. The only failure is the randomness source,
	// which callers treat as fatal.
	Issue(ctx context.Context, subject, redirectTarget string) (string, error)

	// Redeem looks up and deletes the code, returning the stored grant.
	// When expectedRedirect is non-empty it must equal the stored target.
	Redeem(ctx context.Context, code, expectedRedirect string) (*domain.AuthorizationCode, error)
}
