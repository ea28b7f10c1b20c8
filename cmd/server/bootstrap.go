package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dealbridge/dataroom/internal/api"
	"github.com/dealbridge/dataroom/internal/app"
	"github.com/dealbridge/dataroom/internal/app/maintenance"
	iauth "github.com/dealbridge/dataroom/internal/auth"
	"github.com/dealbridge/dataroom/internal/blobstore"
	"github.com/dealbridge/dataroom/internal/database"
	"github.com/dealbridge/dataroom/internal/services"
	"github.com/dealbridge/dataroom/internal/watermark"
	"github.com/dealbridge/dataroom/pkg/logger"
	"github.com/dealbridge/dataroom/pkg/mail"
)

// runtimeStack bundles the long-lived pieces the HTTP server depends on.
type runtimeStack struct {
	DB      *gorm.DB
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine
}

// bootstrapRuntime opens the database, builds the service graph and the
// HTTP router. On error everything opened so far is released.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	store, localStore, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	signer, err := watermark.New(watermark.Config{
		Endpoint: cfg.Watermark.Endpoint,
		Secret:   cfg.Watermark.Secret,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise watermark signer: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{
		Enabled:  cfg.Email.SMTP.Enabled,
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		From:     cfg.Email.SMTP.From,
		UseTLS:   cfg.Email.SMTP.UseTLS,
		Timeout:  cfg.Email.SMTP.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise smtp mailer: %w", err)
	}

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.Auth.JWT.Secret,
		Issuer:         cfg.Auth.JWT.Issuer,
		AccessTokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	var auditOpts []services.AuditOption
	if cfg.Audit.Lenient {
		auditOpts = append(auditOpts, services.WithLenientWrites())
	}
	auditSvc, err := services.NewAuditService(stack.DB, auditOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	accessSvc, err := services.NewAccessService(stack.DB, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise access service: %w", err)
	}

	roomSvc, err := services.NewDataRoomService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise data room service: %w", err)
	}

	transactions, err := services.NewDBTransactionRegistry(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise transaction registry: %w", err)
	}

	documentSvc, err := services.NewDocumentService(stack.DB, roomSvc, accessSvc, auditSvc, transactions)
	if err != nil {
		return nil, fmt.Errorf("initialise document service: %w", err)
	}

	inviteSvc, err := services.NewInviteService(stack.DB, accessSvc, auditSvc, mailer,
		services.WithInviteBaseURL(cfg.Server.BaseURL),
		services.WithInviteExpiry(cfg.Invites.Expiry),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise invite service: %w", err)
	}

	settingsSvc, err := services.NewSettingsService(stack.DB, accessSvc, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise settings service: %w", err)
	}

	urlSvc, err := services.NewURLService(documentSvc, auditSvc, store, signer, cfg.Storage.Bucket,
		services.WithURLTTL(cfg.Storage.URLTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise url service: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(inviteSvc, auditSvc,
		maintenance.WithAuditRetentionDays(cfg.Audit.RetentionDays),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Deps{
		DB:         stack.DB,
		JWT:        jwtSvc,
		Config:     cfg,
		Rooms:      roomSvc,
		Access:     accessSvc,
		Audit:      auditSvc,
		Documents:  documentSvc,
		Invites:    inviteSvc,
		Settings:   settingsSvc,
		URLs:       urlSvc,
		LocalStore: localStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

// buildStore selects the object store backend. The local store is returned
// separately so the router can mount the /blob redemption route.
func buildStore(ctx context.Context, cfg *app.Config) (blobstore.Store, *blobstore.LocalStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case "gcs":
		store, err := blobstore.NewGCSStore(ctx, cfg.Storage.Bucket)
		if err != nil {
			return nil, nil, fmt.Errorf("initialise gcs store: %w", err)
		}
		return store, nil, nil
	case "", "local":
		store, err := blobstore.NewLocalStore(cfg.Server.BaseURL, cfg.Storage.Local.Root, []byte(cfg.Storage.Local.Secret))
		if err != nil {
			return nil, nil, fmt.Errorf("initialise local store: %w", err)
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.MigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
