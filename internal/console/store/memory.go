package store

import (
	"context"
	"sync"
	"time"

	"github.com/openconsole/authgate/internal/console/domain"
	"github.com/openconsole/authgate/pkg/cryptox"
)

// DefaultCodeTTL is the redemption window for authorization codes.
const DefaultCodeTTL = 5 * time.Minute

// MemoryCodeStore keeps codes in a process-local map. Suitable for tests
// and single-instance development; a multi-instance deployment needs the
// Redis store so all instances see the same codes.
type MemoryCodeStore struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	codes map[string]domain.AuthorizationCode // keyed by code fingerprint
}

// MemoryOption configures a MemoryCodeStore.
type MemoryOption func(*MemoryCodeStore)

// WithMemoryClock injects the store's time source for deterministic expiry
// in tests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryCodeStore) { s.now = now }
}

// WithMemoryTTL overrides the code redemption window.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryCodeStore) { s.ttl = ttl }
}

func NewMemoryCodeStore(opts ...MemoryOption) *MemoryCodeStore {
	s := &MemoryCodeStore{
		ttl:   DefaultCodeTTL,
		now:   time.Now,
		codes: make(map[string]domain.AuthorizationCode),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryCodeStore) Issue(_ context.Context, subject, redirectTarget string) (string, error) {
	code, err := cryptox.GenerateCode(cryptox.CodeSize256)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[cryptox.FingerprintToken(code)] = domain.AuthorizationCode{
		Subject:        subject,
		RedirectTarget: redirectTarget,
		ExpiresAt:      s.now().UTC().Add(s.ttl),
	}
	return code, nil
}

func (s *MemoryCodeStore) Redeem(_ context.Context, code, expectedRedirect string) (*domain.AuthorizationCode, error) {
	fp := cryptox.FingerprintToken(code)

	s.mu.Lock()
	entry, ok := s.codes[fp]
	if ok {
		// Found codes are always deleted: a failed redemption burns the
		// code so it cannot be probed again.
		delete(s.codes, fp)
	}
	s.mu.Unlock()

	if !ok {
		return nil, ErrCodeNotFound
	}
	if !s.now().UTC().Before(entry.ExpiresAt) {
		return nil, ErrCodeExpired
	}
	if expectedRedirect != "" && entry.RedirectTarget != expectedRedirect {
		return nil, ErrRedirectMismatch
	}
	return &entry, nil
}

// PurgeExpired drops codes past their redemption window and reports how
// many were removed. The Redis store does not need this; its keys carry
// a TTL and expire server-side.
func (s *MemoryCodeStore) PurgeExpired() int {
	cutoff := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for fp, entry := range s.codes {
		if !cutoff.Before(entry.ExpiresAt) {
			delete(s.codes, fp)
			removed++
		}
	}
	return removed
}
