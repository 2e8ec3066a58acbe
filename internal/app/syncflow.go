package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/pipeline"
	"pdssp-crawler/internal/record"
)

// SyncFlow 负责定时把台账中的集合推进到 ingest 阶段。
type SyncFlow struct {
	Controller *pipeline.Controller
	Filter     record.Filter
	Overwrite  bool
	Logger     *zap.Logger
}

func (f *SyncFlow) Run(ctx context.Context) error {
	if f == nil {
		return fmt.Errorf("sync flow 未初始化")
	}
	if f.Controller == nil {
		return fmt.Errorf("sync flow 依赖未注入完整")
	}
	batch := f.Controller.ProcessAll(ctx, f.Filter, f.Overwrite)
	if f.Logger != nil {
		f.Logger.Info("批量处理完成",
			zap.Int("collections", len(batch.Results)),
			zap.Int("failed", batch.Count(domain.StatusFailed)))
	}
	return batch.Err()
}
