package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openconsole/authgate/internal/console/domain"
	"github.com/openconsole/authgate/pkg/cryptox"
	"github.com/redis/go-redis/v9"
)

// RedisCodeStore backs the authorization-code mapping with Redis so codes
// issued by one instance are redeemable on any other. GETDEL makes the
// find-and-delete atomic: of two concurrent redemption attempts for the
// same code, exactly one receives the entry and the other sees not-found.
type RedisCodeStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// RedisOption configures a RedisCodeStore.
type RedisOption func(*RedisCodeStore)

// WithRedisClock injects the store's time source for deterministic expiry
// in tests.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisCodeStore) { s.now = now }
}

// WithRedisTTL overrides the code redemption window.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisCodeStore) { s.ttl = ttl }
}

func NewRedisCodeStore(client redis.UniversalClient, prefix string, opts ...RedisOption) *RedisCodeStore {
	if prefix == "" {
		prefix = "authgate:code"
	}
	s := &RedisCodeStore{
		client: client,
		prefix: prefix,
		ttl:    DefaultCodeTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisCodeStore) Issue(ctx context.Context, subject, redirectTarget string) (string, error) {
	code, err := cryptox.GenerateCode(cryptox.CodeSize256)
	if err != nil {
		return "", err
	}

	entry := domain.AuthorizationCode{
		Subject:        subject,
		RedirectTarget: redirectTarget,
		ExpiresAt:      s.now().UTC().Add(s.ttl),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("store: encode code entry: %w", err)
	}

	// The key TTL carries a small grace beyond the logical expiry so a
	// just-expired code is still found and reported as expired rather
	// than silently vanishing; Redis reaps whatever is never redeemed.
	if err := s.client.Set(ctx, s.key(code), payload, s.ttl+time.Minute).Err(); err != nil {
		return "", fmt.Errorf("store: persist code: %w", err)
	}
	return code, nil
}

func (s *RedisCodeStore) Redeem(ctx context.Context, code, expectedRedirect string) (*domain.AuthorizationCode, error) {
	payload, err := s.client.GetDel(ctx, s.key(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: fetch code: %w", err)
	}

	entry := &domain.AuthorizationCode{}
	if err := json.Unmarshal([]byte(payload), entry); err != nil {
		return nil, fmt.Errorf("store: decode code entry: %w", err)
	}

	if !s.now().UTC().Before(entry.ExpiresAt) {
		return nil, ErrCodeExpired
	}
	if expectedRedirect != "" && entry.RedirectTarget != expectedRedirect {
		return nil, ErrRedirectMismatch
	}
	return entry, nil
}

func (s *RedisCodeStore) key(code string) string {
	return s.prefix + ":" + cryptox.FingerprintToken(code)
}
