package services

import (
	"context"
	"strings"
)

// Identity is the authenticated caller as asserted by the auth middleware,
// plus the request attributes audit entries record.
type Identity struct {
	UserID    string
	Email     string
	IPAddress string
	UserAgent string
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
