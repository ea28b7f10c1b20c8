package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/dealbridge/dataroom/internal/middleware"
	"github.com/dealbridge/dataroom/internal/services"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentIdentity assembles the caller identity the services and the audit
// trail operate on. The user id and email come from validated JWT claims.
func currentIdentity(c *gin.Context) services.Identity {
	identity := services.Identity{
		UserID: c.GetString(middleware.CtxUserIDKey),
		Email:  c.GetString(middleware.CtxUserEmailKey),
	}
	if c.Request != nil {
		identity.IPAddress = c.ClientIP()
		identity.UserAgent = c.Request.UserAgent()
	}
	return identity
}
