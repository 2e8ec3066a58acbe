package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"pdssp-crawler/internal/ingest"
	"pdssp-crawler/internal/record"
	"pdssp-crawler/internal/source"
)

// SourceExtractor 按服务类型选择 source.Extractor，产物写入 OutputDir。
type SourceExtractor struct {
	Options   source.Options
	OutputDir string
}

func (e *SourceExtractor) Extract(ctx context.Context, rec record.CollectionRecord, overwrite bool) ([]string, error) {
	ex, err := source.New(rec.Service.Type, e.Options)
	if err != nil {
		return nil, err
	}
	return ex.Extract(ctx, rec, e.OutputDir, overwrite)
}

// OutcomeSink 接收每次入库的节点结果，例如写入血缘图。
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, collectionID string, out ingest.Outcome) error
}

// EngineIngester 用 ingest.Engine 推送集合的规范目录树。
type EngineIngester struct {
	Engine   *ingest.Engine
	Strategy ingest.Strategy
	Sink     OutcomeSink
	Logger   *zap.Logger
}

// Ingest 任一节点失败时阶段视为失败，已推送的节点在下次运行时按 409 处理。
func (i *EngineIngester) Ingest(ctx context.Context, rec record.CollectionRecord, updateIfExists bool) (string, error) {
	out, err := i.Engine.IngestFile(ctx, rec.StacPath, i.Strategy, updateIfExists)
	if len(out.Nodes) > 0 && i.Sink != nil {
		if sinkErr := i.Sink.RecordOutcome(ctx, rec.ID, out); sinkErr != nil && i.Logger != nil {
			i.Logger.Warn("record ingest outcome failed", zap.String("collection", rec.ID), zap.Error(sinkErr))
		}
	}
	if err != nil {
		return "", err
	}
	if err := out.Err(); err != nil {
		return "", fmt.Errorf("%d of %d nodes failed: %w", out.Count(ingest.NodeFailed), len(out.Nodes), err)
	}
	return out.Root.URL, nil
}
