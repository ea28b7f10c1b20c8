package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateTokenLengthAndUniqueness(t *testing.T) {
	a, err := GenerateToken(32)
	require.NoError(t, err)
	b, err := GenerateToken(32)
	require.NoError(t, err)

	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}

func TestSignAndVerifyHMAC(t *testing.T) {
	key := []byte("shared-secret")
	sig := SignHMAC(key, "storage/key|buyer@example.com|1700000000")

	require.True(t, VerifyHMAC(key, "storage/key|buyer@example.com|1700000000", sig))
	require.False(t, VerifyHMAC(key, "storage/key|other@example.com|1700000000", sig))
	require.False(t, VerifyHMAC([]byte("wrong"), "storage/key|buyer@example.com|1700000000", sig))
}

func TestDeriveKeyIsPurposeBound(t *testing.T) {
	secret := []byte("configured-secret")

	a, err := DeriveKey(secret, "blob-url", 32)
	require.NoError(t, err)
	b, err := DeriveKey(secret, "watermark", 32)
	require.NoError(t, err)

	require.Len(t, a, 32)
	require.NotEqual(t, a, b)

	again, err := DeriveKey(secret, "blob-url", 32)
	require.NoError(t, err)
	require.Equal(t, a, again)
}

func TestDeriveKeyRejectsEmptySecret(t *testing.T) {
	_, err := DeriveKey(nil, "blob-url", 32)
	require.Error(t, err)
}
