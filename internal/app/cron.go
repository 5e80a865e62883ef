package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/omalk98/tracker-mailer/internal/config"
	pkgcron "github.com/omalk98/tracker-mailer/internal/pkg/cron"
	"github.com/omalk98/tracker-mailer/internal/repository"
)

// registerCronJobs registers scheduled background jobs. The visit log is
// kept forever by default; the archival job only exists when the operator
// sets tracker.retention_days.
func registerCronJobs(sched *pkgcron.Scheduler, visits repository.VisitStore, cfg *config.AppConfig, logger *zap.Logger) {
	days := cfg.Tracker.RetentionDays
	if days <= 0 {
		return
	}
	cronLogger := logger.Named("cron")

	sched.Register(pkgcron.Job{
		Name:        "archive_visits",
		Description: "delete visit records past the retention cutoff",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			cutoff := time.Now().AddDate(0, 0, -days)
			deleted, err := visits.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				return err
			}
			cronLogger.Info("archived old visits",
				zap.Int64("deleted", deleted),
				zap.Time("cutoff", cutoff),
			)
			return nil
		},
	})
}
