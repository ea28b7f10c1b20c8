package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dealbridge/dataroom/pkg/crypto"
)

// ErrInvalidSignature covers tampered or foreign URLs.
var ErrInvalidSignature = errors.New("blobstore: invalid url signature")

// ErrURLExpired covers URLs past their expiry instant.
var ErrURLExpired = errors.New("blobstore: url expired")

// LocalStore serves objects from a filesystem root through HMAC-signed
// URLs redeemed by the server's own /blob endpoint. It is the development
// and test stand-in for the cloud presigner and the reference
// implementation of the presign contract.
type LocalStore struct {
	baseURL string
	root    string
	signKey []byte
	now     func() time.Time
}

// LocalOption customises LocalStore behaviour.
type LocalOption func(*LocalStore)

// WithLocalClock injects a custom clock primarily for testing.
func WithLocalClock(clock func() time.Time) LocalOption {
	return func(s *LocalStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewLocalStore derives a purpose-bound signing key from secret and
// returns a store rooted at root, issuing URLs under baseURL.
func NewLocalStore(baseURL, root string, secret []byte, opts ...LocalOption) (*LocalStore, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("blobstore: base url is required")
	}

	key, err := crypto.DeriveKey(secret, "blob-url", 32)
	if err != nil {
		return nil, err
	}

	store := &LocalStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		root:    root,
		signKey: key,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}

// Presign issues a signed retrieval URL for key, valid until the clamped TTL.
func (s *LocalStore) Presign(_ context.Context, key string, opts PresignOptions) (string, error) {
	if key == "" {
		return "", errors.New("blobstore: storage key is required")
	}

	expires := s.now().Add(ClampTTL(opts.TTL)).Unix()
	disposition := opts.Disposition
	if disposition == "" {
		disposition = DispositionInline
	}

	query := url.Values{}
	query.Set("exp", strconv.FormatInt(expires, 10))
	query.Set("disp", disposition)
	if opts.Filename != "" {
		query.Set("name", opts.Filename)
	}
	query.Set("sig", s.sign(key, expires, disposition, opts.Filename))

	return fmt.Sprintf("%s/blob/%s?%s", s.baseURL, url.PathEscape(key), query.Encode()), nil
}

// Verify checks the signature and expiry carried in query against key.
func (s *LocalStore) Verify(key string, query url.Values) error {
	expires, err := strconv.ParseInt(query.Get("exp"), 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}

	disposition := query.Get("disp")
	filename := query.Get("name")

	if !crypto.VerifyHMAC(s.signKey, s.payload(key, expires, disposition, filename), query.Get("sig")) {
		return ErrInvalidSignature
	}

	if s.now().Unix() > expires {
		return ErrURLExpired
	}

	return nil
}

// Open returns the object bytes for a verified key.
func (s *LocalStore) Open(key string) (io.ReadCloser, error) {
	cleaned := filepath.Clean("/" + key)
	return os.Open(filepath.Join(s.root, cleaned))
}

func (s *LocalStore) sign(key string, expires int64, disposition, filename string) string {
	return crypto.SignHMAC(s.signKey, s.payload(key, expires, disposition, filename))
}

func (s *LocalStore) payload(key string, expires int64, disposition, filename string) string {
	return strings.Join([]string{key, strconv.FormatInt(expires, 10), disposition, filename}, "|")
}
