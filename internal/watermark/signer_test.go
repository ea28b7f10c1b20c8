package watermark

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dealbridge/dataroom/pkg/crypto"
)

func TestDisabledSigner(t *testing.T) {
	signer, err := New(Config{})
	require.NoError(t, err)
	require.False(t, signer.Enabled())

	_, err = signer.SignURL("bucket", "key", "subject", time.Now())
	require.Error(t, err)
}

func TestEndpointRequiresSecret(t *testing.T) {
	_, err := New(Config{Endpoint: "https://wm.example.com/render"})
	require.Error(t, err)
}

func TestSignURLSignatureMatchesSharedSecretScheme(t *testing.T) {
	signer, err := New(Config{Endpoint: "https://wm.example.com/render", Secret: "shared"})
	require.NoError(t, err)
	require.True(t, signer.Enabled())

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	signed, err := signer.SignURL("docs", "rooms/r1/d1/v3", "buyer@example.com", ts)
	require.NoError(t, err)

	parsed, err := url.Parse(signed)
	require.NoError(t, err)

	q := parsed.Query()
	require.Equal(t, "docs", q.Get("bucket"))
	require.Equal(t, "rooms/r1/d1/v3", q.Get("key"))
	require.Equal(t, "buyer@example.com", q.Get("subject"))

	payload := q.Get("key") + "|" + q.Get("subject") + "|" + q.Get("timestamp")
	require.True(t, crypto.VerifyHMAC([]byte("shared"), payload, q.Get("signature")))
}
