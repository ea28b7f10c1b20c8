package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey expands the supplied secret into a purpose-bound key of the
// requested length using HKDF-SHA256. The purpose string separates keys so
// the same configured secret never signs two different URL kinds.
func DeriveKey(secret []byte, purpose string, length int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("kdf: secret is required")
	}
	if length <= 0 || length > 255*sha256.Size {
		return nil, fmt.Errorf("kdf: invalid key length %d", length)
	}

	reader := hkdf.New(sha256.New, secret, nil, []byte(purpose))
	key := make([]byte, length)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("kdf: expand key: %w", err)
	}
	return key, nil
}
