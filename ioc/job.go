package ioc

import (
	"context"

	"go.uber.org/zap"
	"pdssp-crawler/internal/app"
	"pdssp-crawler/internal/job"
)

// InitScheduler 构建定时任务调度器。
func InitScheduler(cfg app.Config, svc *app.Service, logger *zap.Logger) *job.Scheduler {
	var syncFn func(context.Context) error
	if svc != nil {
		syncFn = svc.Sync
	}
	return job.NewScheduler(cfg, syncFn, logger)
}

// InitHourlyLogger 构建每小时统计任务。
func InitHourlyLogger(svc *app.Service, logger *zap.Logger) *job.HourlyLogger {
	var summary func() map[string]int
	if svc != nil {
		summary = svc.Summary
	}
	return job.NewHourlyLogger(summary, logger)
}
