package job

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"pdssp-crawler/internal/app"
)

const defaultCronSpec = "0 7 * * *"

// Scheduler 负责基于 cron 表达式定时执行批量处理。
type Scheduler struct {
	cronExpr string
	logger   *zap.Logger
	cron     *cron.Cron
	syncFunc func(context.Context) error
	parent   context.Context
	mu       sync.Mutex
	running  bool
}

// NewScheduler 根据配置构建调度器。
func NewScheduler(cfg app.Config, syncFunc func(context.Context) error, logger *zap.Logger) *Scheduler {
	spec := strings.TrimSpace(cfg.Job.Cron)
	if spec == "" {
		spec = defaultCronSpec
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cronExpr: spec, logger: logger, syncFunc: syncFunc}
}

// Start 启动调度器，返回用于停止任务的函数。
func (s *Scheduler) Start(parent context.Context) context.CancelFunc {
	if s == nil {
		return func() {}
	}
	s.parent = parent
	c := cron.New()
	id, err := c.AddFunc(s.cronExpr, s.runOnce)
	if err != nil {
		s.logger.Error("failed to register cron job", zap.String("cron", s.cronExpr), zap.Error(err))
		return func() {}
	}
	s.cron = c
	c.Start()
	s.logger.Info("job scheduler started", zap.String("cron", s.cronExpr), zap.Time("next", c.Entry(id).Next))

	var once sync.Once
	stop := func() {
		once.Do(func() {
			ctx := s.cron.Stop()
			<-ctx.Done()
			s.logger.Info("job scheduler stopped")
		})
	}

	go func() {
		<-parent.Done()
		stop()
	}()

	return stop
}

// runOnce 上一轮仍在执行时跳过本轮。
func (s *Scheduler) runOnce() {
	if s.syncFunc == nil {
		s.logger.Warn("sync function not configured")
		return
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("previous batch still running, skip current schedule")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	runCtx := context.Background()
	if s.parent != nil {
		if s.parent.Err() != nil {
			s.logger.Info("scheduler context cancelled, skip batch")
			return
		}
		runCtx = s.parent
	}
	start := time.Now()
	err := s.syncFunc(runCtx)
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Error("scheduled batch failed", zap.Duration("duration", elapsed), zap.Error(err))
		return
	}
	s.logger.Info("scheduled batch completed", zap.Duration("duration", elapsed))
}
