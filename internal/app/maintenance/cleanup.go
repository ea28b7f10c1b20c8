package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dealbridge/dataroom/internal/services"
	"github.com/dealbridge/dataroom/pkg/logger"
)

const (
	defaultAuditRetentionDays = 365
	defaultInviteSpec         = "@hourly"
	defaultAuditSpec          = "@daily"
)

// Cleaner coordinates background maintenance: flipping overdue pending
// invites to expired and enforcing the audit retention window. The invite
// sweep is a convenience only; the acceptance path checks expiry inline,
// so a missed sweep never grants access.
type Cleaner struct {
	invites   *services.InviteService
	audit     *services.AuditService
	cron      *cron.Cron
	log       *zap.Logger
	retention int

	inviteSchedule string
	auditSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithAuditRetentionDays adjusts how long audit entries are retained.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithInviteSchedule overrides the cron specification for the invite sweep.
func WithInviteSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.inviteSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil dependency
// results in the corresponding job being skipped.
func NewCleaner(invites *services.InviteService, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		invites:        invites,
		audit:          audit,
		retention:      defaultAuditRetentionDays,
		inviteSchedule: defaultInviteSpec,
		auditSchedule:  defaultAuditSpec,
		log:            logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.invites != nil {
		if _, err := c.cron.AddFunc(c.inviteSchedule, func() {
			if n, err := c.invites.ExpireStale(context.Background()); err != nil {
				c.log.Warn("invite sweep failed", zap.Error(err))
			} else if n > 0 {
				c.log.Info("expired stale invites", zap.Int64("count", n))
			}
		}); err != nil {
			return err
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if n, err := c.audit.CleanupOlderThan(context.Background(), c.retention); err != nil {
				c.log.Warn("audit retention failed", zap.Error(err))
			} else if n > 0 {
				c.log.Info("pruned audit entries", zap.Int64("count", n))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured jobs sequentially. Used in tests and
// during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.invites != nil {
		if _, err := c.invites.ExpireStale(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
