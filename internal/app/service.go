package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/ingest"
	"pdssp-crawler/internal/lineage"
	"pdssp-crawler/internal/mapper"
	"pdssp-crawler/internal/pipeline"
	"pdssp-crawler/internal/record"
	"pdssp-crawler/internal/source"
	"pdssp-crawler/internal/stac"
	"pdssp-crawler/internal/util"
)

// ErrLineageDisabled 未启用 neo4j 时查询血缘返回该错误。
var ErrLineageDisabled = fmt.Errorf("lineage is disabled: %w", domain.ErrNotFound)

// Service 负责装配各个 Flow 并提供统一入口。
type Service struct {
	cfg           Config
	store         *record.Store
	registry      source.Registry
	controller    *pipeline.Controller
	transformer   *mapper.Transformer
	engine        *ingest.Engine
	destErr       error
	strategy      ingest.Strategy
	lineageClient *lineage.Client
	lineageWriter *lineage.Writer
	lineageReader *lineage.Reader
	InitFlow      *InitFlow
	SyncFlow      *SyncFlow
	ReconcileFlow *ReconcileFlow
	logger        *zap.Logger
}

// NewService 根据配置构建 Service。目标服务缺少 token 时仍可构建，入库操作返回 ErrMissingCredential。
func NewService(ctx context.Context, cfg Config, store *record.Store, registry source.Registry, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("必须提供集合台账")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	strategy, err := ingest.ParseStrategy(cfg.Destination.Strategy)
	if err != nil {
		return nil, err
	}

	opts := SourceOptions(cfg, logger)
	transformer := mapper.NewTransformer(cfg.Data.StacDir, logger)

	svc := &Service{
		cfg:         cfg,
		store:       store,
		registry:    registry,
		transformer: transformer,
		strategy:    strategy,
		logger:      logger,
	}

	dest, err := ingest.NewClient(ingest.ClientConfig{
		BaseURL:       cfg.Destination.URL,
		Token:         cfg.DestinationToken(),
		Timeout:       time.Duration(cfg.Destination.TimeoutSecond) * time.Second,
		SplitGeometry: cfg.Destination.SplitGeometry,
	})
	if err != nil {
		svc.destErr = err
		logger.Warn("目标服务不可用，入库阶段将失败", zap.Error(err))
	} else {
		svc.engine = ingest.NewEngine(dest, logger)
	}

	if cfg.Neo4j.Enabled {
		client, err := lineage.NewClient(ctx, lineage.Config{
			URI:                  cfg.Neo4j.URI,
			Username:             cfg.Neo4j.Username,
			Password:             cfg.Neo4j.Password,
			Database:             cfg.Neo4j.Database,
			MaxConnectionPool:    cfg.Neo4j.MaxConnectionPool,
			ConnectionTimeoutSec: cfg.Neo4j.ConnectTimeoutSecond,
		})
		if err != nil {
			return nil, err
		}
		if err := client.EnsureSchema(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, err
		}
		svc.lineageClient = client
		svc.lineageWriter = lineage.NewWriter(client, cfg.Neo4j.BatchSize, logger)
		svc.lineageReader = lineage.NewReader(client)
	}

	var ingester pipeline.Ingester = unavailableIngester{err: svc.destErr}
	if svc.engine != nil {
		ei := &pipeline.EngineIngester{Engine: svc.engine, Strategy: strategy, Logger: logger}
		if svc.lineageWriter != nil {
			ei.Sink = svc.lineageWriter
		}
		ingester = ei
	}
	svc.controller = pipeline.NewController(store,
		&pipeline.SourceExtractor{Options: opts, OutputDir: cfg.Data.SourceDir},
		transformer, ingester, logger)

	svc.InitFlow = &InitFlow{
		Store:     store,
		Discovery: &Discovery{Registry: registry, Options: opts, Logger: logger},
		Logger:    logger,
	}
	svc.ReconcileFlow = &ReconcileFlow{Flow: svc.InitFlow}
	svc.SyncFlow = &SyncFlow{
		Controller: svc.controller,
		Filter:     record.Filter{Target: cfg.Job.Target},
		Overwrite:  cfg.Job.Overwrite,
		Logger:     logger,
	}
	return svc, nil
}

// SourceOptions 根据配置构建抽取器公共依赖。
func SourceOptions(cfg Config, logger *zap.Logger) source.Options {
	client := source.NewHTTPClient(source.HTTPConfig{
		Timeout: time.Duration(cfg.Source.TimeoutSecond) * time.Second,
		Retry: util.Policy{
			Attempts: cfg.Source.Retry.Attempts,
			Backoff:  time.Duration(cfg.Source.Retry.BackoffSeconds) * time.Second,
		},
	})
	return source.Options{
		Client:       client,
		QueryLimit:   cfg.Source.QueryLimit,
		ExtractLimit: cfg.Source.ExtractLimit,
		Logger:       logger,
	}
}

// NewRegistry 组合远程与本地注册中心，均未配置时返回 nil。
func NewRegistry(cfg Config) source.Registry {
	var regs source.MultiRegistry
	if cfg.Registry.URL != "" {
		client := source.NewHTTPClient(source.HTTPConfig{
			Timeout: time.Duration(cfg.Source.TimeoutSecond) * time.Second,
		})
		regs = append(regs, &source.HTTPRegistry{URL: cfg.Registry.URL, Client: client})
	}
	if cfg.Registry.LocalDir != "" {
		regs = append(regs, &source.LocalRegistry{Dir: cfg.Registry.LocalDir})
	}
	if len(regs) == 0 {
		return nil
	}
	return regs
}

// OpenStore 按 store.backend 打开集合台账，返回的 cleanup 释放后端连接。
func OpenStore(ctx context.Context, cfg Config, logger *zap.Logger) (*record.Store, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		backend, err := record.NewPostgresBackend(ctx, cfg.Store.PostgresDSN, cfg.Store.SnapshotName)
		if err != nil {
			return nil, nil, err
		}
		store, err := record.Open(ctx, backend, logger)
		if err != nil {
			backend.Close()
			return nil, nil, err
		}
		return store, backend.Close, nil
	default:
		store, err := record.Open(ctx, record.NewFileBackend(cfg.Store.Path), logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

type unavailableIngester struct{ err error }

func (u unavailableIngester) Ingest(context.Context, record.CollectionRecord, bool) (string, error) {
	return "", u.err
}

// Config 返回生效的配置。
func (s *Service) Config() Config { return s.cfg }

// Close 释放资源。
func (s *Service) Close(ctx context.Context) error {
	if s.logger != nil {
		_ = s.logger.Sync()
	}
	if s.lineageClient != nil {
		return s.lineageClient.Close(ctx)
	}
	return nil
}

// Collections 按条件列出台账中的集合。
func (s *Service) Collections(filter record.Filter) []record.CollectionRecord {
	return s.store.List(filter)
}

// Collection 返回单个集合。
func (s *Service) Collection(id string) (record.CollectionRecord, error) {
	return s.store.Get(id)
}

// Run 把单个集合推进到 stage 阶段。
func (s *Service) Run(ctx context.Context, id string, stage domain.Stage, overwrite bool) pipeline.CollectionResult {
	return s.controller.Run(ctx, id, stage, overwrite)
}

// RunAll 对满足条件的所有集合执行到 stage 阶段，单个集合失败不影响其它集合。
func (s *Service) RunAll(ctx context.Context, filter record.Filter, stage domain.Stage, overwrite bool) pipeline.BatchResult {
	return s.controller.RunAll(ctx, filter, stage, overwrite)
}

// Services 返回注册中心中的数据目录服务。
func (s *Service) Services(ctx context.Context) ([]record.ServiceRef, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("未配置服务注册中心")
	}
	services, err := s.registry.Services(ctx)
	if err != nil {
		return nil, err
	}
	return source.DataCatalogServices(services), nil
}

// ResetStore 用注册中心发现的集合重置台账。
func (s *Service) ResetStore(ctx context.Context) (int, error) {
	return s.InitFlow.Run(ctx)
}

// Reconcile 把新发现的集合追加进台账。
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	return s.ReconcileFlow.Run(ctx)
}

// Sync 执行一次定时批量处理。
func (s *Service) Sync(ctx context.Context) error {
	if s.SyncFlow == nil {
		return fmt.Errorf("未初始化 sync flow")
	}
	return s.SyncFlow.Run(ctx)
}

// IngestFile 推送任意本地目录树。
func (s *Service) IngestFile(ctx context.Context, path string, strategy ingest.Strategy, update bool) (ingest.Outcome, error) {
	if s.engine == nil {
		return ingest.Outcome{}, s.destErr
	}
	if strategy == "" {
		strategy = s.strategy
	}
	out, err := s.engine.IngestFile(ctx, path, strategy, update)
	s.recordLineage(ctx, "", out)
	return out, err
}

// IngestTarget 推送某个目标天体的整棵目录树，并把成功入库的已转换集合标记为 ingested。
func (s *Service) IngestTarget(ctx context.Context, target string, strategy ingest.Strategy, update bool) (ingest.Outcome, error) {
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		return ingest.Outcome{}, fmt.Errorf("target 不能为空")
	}
	out, err := s.IngestFile(ctx, s.transformer.TargetCatalogPath(target), strategy, update)
	if err != nil {
		return out, err
	}
	if err := s.markIngested(ctx, target, out); err != nil {
		return out, err
	}
	return out, out.Err()
}

func (s *Service) markIngested(ctx context.Context, target string, out ingest.Outcome) error {
	collections := map[string]ingest.NodeOutcome{}
	failed := map[string]bool{}
	for _, n := range out.Nodes {
		switch {
		case n.Kind == stac.KindCollection:
			if _, ok := collections[n.ID]; !ok {
				collections[n.ID] = n
			}
		case n.Kind == stac.KindItem && n.State == ingest.NodeFailed:
			failed[n.ParentID] = true
		}
	}
	for _, rec := range s.store.List(record.Filter{Transformed: record.Bool(true)}) {
		if rec.Target != target || failed[rec.ID] {
			continue
		}
		n, ok := collections[rec.ID]
		if !ok {
			continue
		}
		switch n.State {
		case ingest.NodePublished, ingest.NodeUpdated, ingest.NodeSkippedExists:
		default:
			continue
		}
		if err := s.store.Put(ctx, rec.WithIngested(n.URL), true); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recordLineage(ctx context.Context, collectionID string, out ingest.Outcome) {
	if s.lineageWriter == nil || len(out.Nodes) == 0 {
		return
	}
	if err := s.lineageWriter.RecordOutcome(ctx, collectionID, out); err != nil {
		s.logger.Warn("record ingest outcome failed", zap.String("root", out.Root.ID), zap.Error(err))
	}
}

// Lineage 查询集合最近一次入库的血缘。
func (s *Service) Lineage(ctx context.Context, id string) (lineage.Lineage, error) {
	if s.lineageReader == nil {
		return lineage.Lineage{}, ErrLineageDisabled
	}
	return s.lineageReader.Collection(ctx, id)
}

// LineageEnabled 表示是否配置了血缘图。
func (s *Service) LineageEnabled() bool { return s.lineageReader != nil }

// IsMissingCredential 判断错误是否由目标服务缺少 token 引起。
func IsMissingCredential(err error) bool {
	return errors.Is(err, domain.ErrMissingCredential)
}

// Summary 统计台账中各阶段完成的集合数。
func (s *Service) Summary() map[string]int {
	counts := map[string]int{}
	for _, rec := range s.store.List(record.Filter{}) {
		counts["total"]++
		if rec.Extracted {
			counts["extracted"]++
		}
		if rec.Transformed {
			counts["transformed"]++
		}
		if rec.Ingested {
			counts["ingested"]++
		}
	}
	return counts
}
