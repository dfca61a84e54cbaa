package jwtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCodecMintVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewCodec("test-secret")

	token, err := codec.Mint("user-123", time.Hour)
	require.NoError(t, err)

	claims, err := codec.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.Subject)
	require.NotEmpty(t, claims.Nonce)

	ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	require.Equal(t, time.Hour, ttl)
}

func TestCodecMintNonceUniqueness(t *testing.T) {
	t.Parallel()

	codec := NewCodec("test-secret")

	// Same subject, same TTL, same second - tokens must still differ.
	a, err := codec.Mint("user-123", time.Hour)
	require.NoError(t, err)
	b, err := codec.Mint("user-123", time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestCodecMintRequiresSecret(t *testing.T) {
	t.Parallel()

	codec := NewCodec("")

	_, err := codec.Mint("user-123", time.Hour)
	require.ErrorIs(t, err, ErrNoSecret)

	_, err = codec.Verify("whatever")
	require.ErrorIs(t, err, ErrNoSecret)
}

func TestCodecVerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	token, err := NewCodec("secret-a").Mint("user-123", time.Hour)
	require.NoError(t, err)

	_, err = NewCodec("secret-b").Verify(token)
	require.ErrorIs(t, err, ErrInvalidSig)
}

func TestCodecVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	codec := NewCodec("test-secret").WithTimeFunc(func() time.Time { return issued })

	token, err := codec.Mint("user-123", 15*time.Minute)
	require.NoError(t, err)

	// Still valid one second before exp.
	_, err = codec.WithTimeFunc(func() time.Time {
		return issued.Add(15*time.Minute - time.Second)
	}).Verify(token)
	require.NoError(t, err)

	// Only the clock moved; the token itself is unchanged.
	_, err = codec.WithTimeFunc(func() time.Time {
		return issued.Add(15*time.Minute + time.Second)
	}).Verify(token)
	require.ErrorIs(t, err, ErrExpired)
}

func TestCodecVerifyRejectsMalformed(t *testing.T) {
	t.Parallel()

	_, err := NewCodec("test-secret").Verify("not-a-jwt")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestCodecDecodeUnverified(t *testing.T) {
	t.Parallel()

	token, err := NewCodec("secret-a").Mint("user-123", time.Hour)
	require.NoError(t, err)

	// Decoding does not need the right secret.
	claims, err := NewCodec("secret-b").DecodeUnverified(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.Subject)

	_, err = NewCodec("secret-b").DecodeUnverified("garbage")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestCodecIsExpired(t *testing.T) {
	t.Parallel()

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	codec := NewCodec("test-secret").WithTimeFunc(func() time.Time { return issued })

	token, err := codec.Mint("user-123", 15*time.Minute)
	require.NoError(t, err)

	require.False(t, codec.IsExpired(token))

	later := codec.WithTimeFunc(func() time.Time { return issued.Add(16 * time.Minute) })
	require.True(t, later.IsExpired(token))

	// Fail closed: undecodable tokens count as expired.
	require.True(t, codec.IsExpired("garbage"))
}
