package job

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// HourlyLogger 每小时输出一次台账阶段统计。
type HourlyLogger struct {
	logger  *zap.Logger
	cron    *cron.Cron
	summary func() map[string]int
}

func NewHourlyLogger(summary func() map[string]int, logger *zap.Logger) *HourlyLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HourlyLogger{logger: logger, summary: summary}
}

func (h *HourlyLogger) report() {
	if h.summary == nil {
		return
	}
	counts := h.summary()
	fields := make([]zap.Field, 0, len(counts))
	for _, k := range []string{"total", "extracted", "transformed", "ingested"} {
		fields = append(fields, zap.Int(k, counts[k]))
	}
	h.logger.Info("collections summary", fields...)
}

// Start 启动按小时执行的统计任务，返回停止函数。
func (h *HourlyLogger) Start(parent context.Context) context.CancelFunc {
	if h == nil {
		return func() {}
	}
	c := cron.New()
	if _, err := c.AddFunc("@hourly", h.report); err != nil {
		h.logger.Error("failed to register hourly job", zap.Error(err))
		return func() {}
	}
	h.cron = c
	c.Start()
	h.logger.Info("hourly job started")

	stop := func() {
		ctx := h.cron.Stop()
		<-ctx.Done()
		h.logger.Info("hourly job stopped")
	}

	go func() {
		<-parent.Done()
		stop()
	}()

	return stop
}
