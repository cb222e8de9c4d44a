package app

import (
	"context"
	"time"

	pkgcron "github.com/inkwell-cms/core/internal/pkg/cron"
	"go.uber.org/zap"
)

const (
	scheduledNotificationsSpec = "@every 1m"
	taskCleanupSpec            = "30 4 * * *"
	taskRetention              = 7 * 24 * time.Hour
	defaultBackupSpec          = "0 3 * * *"
)

// registerCronJobs registers all scheduled background jobs.
func (a *App) registerCronJobs() error {
	log := a.logger.Named("CronService")

	jobs := []pkgcron.Job{
		{
			Name:        "send_scheduled_notifications",
			Description: "Send email campaigns whose scheduled time has passed",
			Spec:        scheduledNotificationsSpec,
			Fn: func(ctx context.Context) error {
				n, err := a.svc.notification.SendDue(ctx)
				if n > 0 {
					log.Info("scheduled notifications sent", zap.Int("count", n))
				}
				return err
			},
		},
		{
			Name:        "cleanup_tasks",
			Description: "Remove finished dispatch task records older than a week",
			Spec:        taskCleanupSpec,
			Fn: func(ctx context.Context) error {
				removed, err := a.svc.tasks.DeleteCompleted(ctx, time.Now().Add(-taskRetention))
				if err != nil {
					return err
				}
				log.Info("task records pruned", zap.Int("removed", removed))
				return nil
			},
		},
	}

	if a.cfg.Backup.Enable {
		spec := a.cfg.Backup.Schedule
		if spec == "" {
			spec = defaultBackupSpec
		}
		jobs = append(jobs, pkgcron.Job{
			Name:        "backup",
			Description: "Archive content tables to " + a.svc.backups.StoreName() + " storage",
			Spec:        spec,
			Fn: func(ctx context.Context) error {
				res, err := a.svc.backups.Create(ctx, "scheduler")
				if err != nil {
					return err
				}
				log.Info("backup created", zap.String("key", res.Key), zap.Int("size", res.Size))
				return nil
			},
		})
	}

	for _, job := range jobs {
		if err := a.sched.Register(job); err != nil {
			return err
		}
	}
	return nil
}
