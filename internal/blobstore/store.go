// Package blobstore abstracts the durable byte store behind time-limited,
// pre-authorised retrieval URLs. The data room never streams document
// bytes itself and never hands out storage credentials; it only mints
// short-lived URLs after the access decision is final.
package blobstore

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Dispositions for issued URLs.
const (
	DispositionInline     = "inline"
	DispositionAttachment = "attachment"
)

// DefaultURLTTL bounds how long an issued URL stays valid: long enough for
// a single retrieval, short enough to blunt link sharing.
const DefaultURLTTL = 5 * time.Minute

// MaxURLTTL caps operator configuration.
const MaxURLTTL = 15 * time.Minute

// PresignOptions control how an issued URL serves the object.
type PresignOptions struct {
	Disposition string
	ContentType string
	Filename    string
	TTL         time.Duration
}

// Store mints pre-authorised retrieval URLs for stored objects.
type Store interface {
	Presign(ctx context.Context, key string, opts PresignOptions) (string, error)
}

// ClampTTL normalises a configured or requested TTL into the allowed window.
func ClampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultURLTTL
	}
	if ttl > MaxURLTTL {
		return MaxURLTTL
	}
	return ttl
}

// ContentDisposition renders the header value for the given disposition
// and original filename.
func ContentDisposition(disposition, filename string) string {
	if disposition != DispositionAttachment {
		return DispositionInline
	}
	filename = strings.ReplaceAll(filename, `"`, "")
	if filename == "" {
		return DispositionAttachment
	}
	return fmt.Sprintf("attachment; filename=%q", filename)
}
