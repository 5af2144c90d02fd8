package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
)

const jobTimeout = 5 * time.Minute

// Job 是一个定时维护任务，Run 返回本次处理的条数
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) (int64, error)
}

// ScheduleJobs 把任务注册到 cron，spec 为空的任务视为关闭
func ScheduleJobs(ctx context.Context, c *cron.Cron, jobs []Job) error {
	for _, job := range jobs {
		if job.Spec == "" {
			logger.L().Info().Str("job", job.Name).Msg("job disabled")
			continue
		}
		job := job
		if _, err := c.AddFunc(job.Spec, func() { runJob(ctx, job) }); err != nil {
			return fmt.Errorf("schedule job %s: %w", job.Name, err)
		}
		logger.L().Info().Str("job", job.Name).Str("spec", job.Spec).Msg("job scheduled")
	}
	return nil
}

func runJob(parent context.Context, job Job) {
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()

	start := time.Now()
	n, err := job.Run(ctx)
	if err != nil {
		metrics.CronRuns.WithLabelValues(job.Name, "error").Inc()
		logger.L().Error().Err(err).Str("job", job.Name).Msg("job failed")
		return
	}
	metrics.CronRuns.WithLabelValues(job.Name, "ok").Inc()
	logger.L().Info().Str("job", job.Name).Int64("affected", n).Dur("took", time.Since(start)).Msg("job finished")
}

// MaintenanceJobs 是 worker 周期执行的兜底任务
func (a *App) MaintenanceJobs(expireSpec, staleSpec, overdueSpec string, staleAfter time.Duration) []Job {
	return []Job{
		{Name: "expire_promotions", Spec: expireSpec, Run: a.Promotions.ExpireEnded},
		{Name: "end_stale_streams", Spec: staleSpec, Run: func(ctx context.Context) (int64, error) {
			n, err := a.Livestreams.EndStale(ctx, staleAfter)
			return int64(n), err
		}},
		{Name: "cancel_overdue_orders", Spec: overdueSpec, Run: func(ctx context.Context) (int64, error) {
			n, err := a.Orders.CancelOverdue(ctx)
			return int64(n), err
		}},
	}
}
