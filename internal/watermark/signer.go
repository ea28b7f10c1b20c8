// Package watermark builds signed redirect URLs for the external
// watermarking proxy. The proxy fetches the object itself, embeds the
// subject identity into the rendered artifact and validates the signature
// before serving anything.
package watermark

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dealbridge/dataroom/pkg/crypto"
)

// Config is the process-wide watermark configuration injected at startup.
// An empty endpoint means watermarking is disabled: requests that ask for
// it fall back to plain presigned URLs.
type Config struct {
	Endpoint string
	Secret   string
}

// Signer issues signed watermark redirect URLs. The zero value is the
// explicit disabled variant.
type Signer struct {
	endpoint string
	secret   []byte
}

// New validates cfg and returns a Signer. A blank endpoint yields the
// disabled signer, not an error, so callers never branch on nil.
func New(cfg Config) (*Signer, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return &Signer{}, nil
	}

	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("watermark: secret is required when endpoint is configured")
	}

	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("watermark: invalid endpoint: %w", err)
	}

	return &Signer{
		endpoint: strings.TrimRight(endpoint, "/"),
		secret:   []byte(cfg.Secret),
	}, nil
}

// Enabled reports whether a watermark endpoint is configured.
func (s *Signer) Enabled() bool {
	return s != nil && s.endpoint != ""
}

// SignURL builds the redirect URL for the given object and subject. The
// signature covers key|subject|timestamp with the shared secret, matching
// what the proxy recomputes.
func (s *Signer) SignURL(bucket, key, subject string, ts time.Time) (string, error) {
	if !s.Enabled() {
		return "", errors.New("watermark: signer is disabled")
	}
	if key == "" || subject == "" {
		return "", errors.New("watermark: key and subject are required")
	}

	timestamp := strconv.FormatInt(ts.Unix(), 10)
	payload := strings.Join([]string{key, subject, timestamp}, "|")

	query := url.Values{}
	query.Set("bucket", bucket)
	query.Set("key", key)
	query.Set("subject", subject)
	query.Set("timestamp", timestamp)
	query.Set("signature", crypto.SignHMAC(s.secret, payload))

	return s.endpoint + "?" + query.Encode(), nil
}
