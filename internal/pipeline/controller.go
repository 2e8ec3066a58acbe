package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/metrics"
	"pdssp-crawler/internal/record"
)

// Extractor 执行抽取阶段，返回有序的抽取产物。
type Extractor interface {
	Extract(ctx context.Context, rec record.CollectionRecord, overwrite bool) ([]string, error)
}

// Transformer 执行转换阶段，返回规范目录树根文件路径。
type Transformer interface {
	Transform(ctx context.Context, rec record.CollectionRecord) (string, error)
}

// Ingester 执行入库阶段，返回集合在目标服务中的地址。
type Ingester interface {
	Ingest(ctx context.Context, rec record.CollectionRecord, updateIfExists bool) (string, error)
}

// Controller 按 extract -> transform -> ingest 驱动单个集合，并在每个阶段成功后持久化。
type Controller struct {
	store       *record.Store
	extractor   Extractor
	transformer Transformer
	ingester    Ingester
	logger      *zap.Logger
}

// NewController 创建流水线控制器。
func NewController(store *record.Store, extractor Extractor, transformer Transformer, ingester Ingester, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:       store,
		extractor:   extractor,
		transformer: transformer,
		ingester:    ingester,
		logger:      logger,
	}
}

// Process 执行到 ingest 阶段。
func (c *Controller) Process(ctx context.Context, id string, overwrite bool) CollectionResult {
	return c.Run(ctx, id, domain.StageIngest, overwrite)
}

// Run 执行到 target 阶段为止。前置阶段未完成时先执行前置阶段，前置阶段同样遵循跳过与覆盖规则；
// 任一阶段失败即停止，已完成的阶段保持持久化状态。
func (c *Controller) Run(ctx context.Context, id string, target domain.Stage, overwrite bool) CollectionResult {
	result := CollectionResult{CollectionID: id}
	if target < domain.StageExtract || target > domain.StageIngest {
		result.Err = fmt.Errorf("invalid target stage %s", target)
		return result
	}
	rec, err := c.store.Get(id)
	if err != nil {
		result.Err = fmt.Errorf("collection %s: %w", id, err)
		return result
	}
	result.Record = rec
	logger := c.logger.With(zap.String("collection", id))

	for stage := domain.StageExtract; stage <= target; stage++ {
		if done(rec, stage) && !overwrite {
			result.Stages = append(result.Stages, StageResult{Stage: stage, Status: domain.StatusSkipped})
			metrics.StageResults.WithLabelValues(stage.String(), string(domain.StatusSkipped)).Inc()
			logger.Debug("stage already done", zap.Stringer("stage", stage))
			continue
		}

		start := time.Now()
		next, err := c.runStage(ctx, stage, rec, overwrite)
		if err == nil {
			if putErr := c.store.Put(ctx, next, true); putErr != nil {
				err = fmt.Errorf("persist record: %w", putErr)
			}
		}
		elapsed := time.Since(start)
		metrics.StageDuration.WithLabelValues(stage.String()).Observe(elapsed.Seconds())

		if err != nil {
			stageErr := &domain.StageError{CollectionID: id, Stage: stage, Err: err}
			result.Stages = append(result.Stages, StageResult{Stage: stage, Status: domain.StatusFailed, Duration: elapsed, Err: stageErr})
			result.Err = stageErr
			metrics.StageResults.WithLabelValues(stage.String(), string(domain.StatusFailed)).Inc()
			logger.Error("stage failed", zap.Stringer("stage", stage), zap.Error(err))
			return result
		}
		rec = next
		result.Record = rec
		result.Stages = append(result.Stages, StageResult{Stage: stage, Status: domain.StatusSucceeded, Duration: elapsed})
		metrics.StageResults.WithLabelValues(stage.String(), string(domain.StatusSucceeded)).Inc()
		logger.Info("stage succeeded", zap.Stringer("stage", stage), zap.Duration("elapsed", elapsed))
	}
	return result
}

func (c *Controller) runStage(ctx context.Context, stage domain.Stage, rec record.CollectionRecord, overwrite bool) (record.CollectionRecord, error) {
	if err := ctx.Err(); err != nil {
		return rec, err
	}
	switch stage {
	case domain.StageExtract:
		files, err := c.extractor.Extract(ctx, rec, overwrite)
		if err != nil {
			return rec, err
		}
		return rec.WithExtracted(files), nil
	case domain.StageTransform:
		path, err := c.transformer.Transform(ctx, rec)
		if err != nil {
			return rec, err
		}
		return rec.WithTransformed(path), nil
	case domain.StageIngest:
		url, err := c.ingester.Ingest(ctx, rec, overwrite)
		if err != nil {
			return rec, err
		}
		return rec.WithIngested(url), nil
	}
	return rec, fmt.Errorf("unknown stage %s", stage)
}

func done(rec record.CollectionRecord, stage domain.Stage) bool {
	switch stage {
	case domain.StageExtract:
		return rec.Extracted
	case domain.StageTransform:
		return rec.Transformed
	case domain.StageIngest:
		return rec.Ingested
	}
	return false
}

// ProcessAll 顺序处理所有匹配 filter 的集合，单个集合失败不会中止批次。
func (c *Controller) ProcessAll(ctx context.Context, filter record.Filter, overwrite bool) BatchResult {
	return c.RunAll(ctx, filter, domain.StageIngest, overwrite)
}

// RunAll 对匹配 filter 的集合逐个执行 Run。
func (c *Controller) RunAll(ctx context.Context, filter record.Filter, target domain.Stage, overwrite bool) BatchResult {
	records := c.store.List(filter)
	batch := BatchResult{Results: make([]CollectionResult, 0, len(records))}
	metrics.BatchRuns.Inc()
	for _, rec := range records {
		res := c.Run(ctx, rec.ID, target, overwrite)
		if res.Err != nil {
			metrics.BatchErrors.Inc()
		}
		batch.Results = append(batch.Results, res)
	}
	c.logger.Info("batch finished",
		zap.Int("selected", len(records)),
		zap.Int("succeeded", batch.Count(domain.StatusSucceeded)),
		zap.Int("skipped", batch.Count(domain.StatusSkipped)),
		zap.Int("failed", batch.Count(domain.StatusFailed)))
	return batch
}
