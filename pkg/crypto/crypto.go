package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// SignHMAC computes a hex-encoded HMAC-SHA256 signature over payload.
func SignHMAC(key []byte, payload string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC reports whether signature matches the HMAC-SHA256 of payload
// under key, in constant time.
func VerifyHMAC(key []byte, payload, signature string) bool {
	expected := SignHMAC(key, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
