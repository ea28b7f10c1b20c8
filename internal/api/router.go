package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/dealbridge/dataroom/internal/app"
	iauth "github.com/dealbridge/dataroom/internal/auth"
	"github.com/dealbridge/dataroom/internal/blobstore"
	"github.com/dealbridge/dataroom/internal/handlers"
	"github.com/dealbridge/dataroom/internal/middleware"
	"github.com/dealbridge/dataroom/internal/services"
)

// Deps carries everything the router wires together. Services are built by
// the bootstrap and injected so tests can assemble the same graph against
// an in-memory database.
type Deps struct {
	DB        *gorm.DB
	JWT       *iauth.JWTService
	Config    *app.Config
	Rooms     *services.DataRoomService
	Access    *services.AccessService
	Audit     *services.AuditService
	Documents *services.DocumentService
	Invites   *services.InviteService
	Settings  *services.SettingsService
	URLs      *services.URLService

	// LocalStore is set only for the local storage backend; it mounts the
	// /blob redemption route.
	LocalStore *blobstore.LocalStore
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	for name, svc := range map[string]any{
		"dataroom": deps.Rooms, "access": deps.Access, "audit": deps.Audit,
		"document": deps.Documents, "invite": deps.Invites,
		"settings": deps.Settings, "url": deps.URLs,
	} {
		if svc == nil {
			return nil, fmt.Errorf("%s service must be provided", name)
		}
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(deps.Config.Server.AllowedOrigins))
	// Basic rate limiting: 100 requests/minute per IP+path
	r.Use(middleware.RateLimit(100, time.Minute))

	// Public surface
	if deps.Config.Monitoring.Health.Enabled {
		r.GET("/health", handlers.NewHealthHandler(deps.DB).Check)
	}
	if deps.Config.Monitoring.Prometheus.Enabled {
		endpoint := deps.Config.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}
	if deps.LocalStore != nil {
		r.GET("/blob/*key", handlers.NewBlobHandler(deps.LocalStore).Serve)
	}

	// Scanner callback, guarded by shared secret rather than user JWTs.
	scan := handlers.NewScanHandler(deps.Documents)
	r.POST("/api/versions/:id/scan-status",
		middleware.ScannerAuth(deps.Config.Scanner.SharedSecret), scan.SetStatus)

	// Authenticated API
	documentHandler := handlers.NewDocumentHandler(deps.Rooms, deps.Documents, deps.URLs)
	inviteHandler := handlers.NewInviteHandler(deps.Rooms, deps.Invites)
	ndaHandler := handlers.NewNDAHandler(deps.Rooms, deps.Access)
	settingsHandler := handlers.NewSettingsHandler(deps.Rooms, deps.Settings)
	auditHandler := handlers.NewAuditHandler(deps.Rooms, deps.Access, deps.Audit)

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))

	rooms := api.Group("/datarooms/:listingId")
	{
		rooms.GET("/documents", documentHandler.List)
		rooms.POST("/documents", documentHandler.Upload)
		rooms.POST("/folders", documentHandler.CreateFolder)

		rooms.GET("/nda", ndaHandler.Status)
		rooms.POST("/nda/accept", ndaHandler.Accept)

		rooms.POST("/invites", inviteHandler.Create)
		rooms.GET("/invites", inviteHandler.List)
		rooms.DELETE("/invites/:inviteId", inviteHandler.Revoke)

		rooms.GET("/settings", settingsHandler.Get)
		rooms.PATCH("/settings", settingsHandler.Update)

		rooms.GET("/audit", auditHandler.List)
		rooms.GET("/audit/export", auditHandler.Export)
	}

	documents := api.Group("/documents/:id")
	{
		documents.PATCH("", documentHandler.Update)
		documents.POST("/view-url", documentHandler.IssueViewURL)
		documents.POST("/download-url", documentHandler.IssueDownloadURL)
	}

	api.POST("/invites/accept", inviteHandler.Accept)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
