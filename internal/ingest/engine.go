package ingest

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/metrics"
	"pdssp-crawler/internal/stac"
	"pdssp-crawler/pkg/util"
)

// Engine 负责把本地 STAC 树递归 upsert 到目标服务。
type Engine struct {
	dest   Destination
	logger *zap.Logger
}

// NewEngine 创建入库引擎。
func NewEngine(dest Destination, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{dest: dest, logger: logger}
}

// IngestFile 先加载 path 指向的整棵树再入库，结构错误在任何网络请求前返回。
func (e *Engine) IngestFile(ctx context.Context, path string, strategy Strategy, updateIfExists bool) (Outcome, error) {
	if err := strategy.Validate(); err != nil {
		return Outcome{}, err
	}
	root, err := stac.LoadTree(path, stac.LoadOptions{SkipItems: !strategy.Items()})
	if err != nil {
		return Outcome{}, err
	}
	return e.Ingest(ctx, root, strategy, updateIfExists)
}

// Ingest 以前序深度优先遍历 root。父节点的发布动作总是先于其子节点完成，
// 子节点按链接顺序访问。单个节点失败只记录不终止，根节点自身失败则整体中止。
func (e *Engine) Ingest(ctx context.Context, root *stac.Node, strategy Strategy, updateIfExists bool) (Outcome, error) {
	if err := strategy.Validate(); err != nil {
		return Outcome{}, err
	}
	if root == nil {
		return Outcome{}, fmt.Errorf("nil root: %w", domain.ErrInvalidCatalogDocument)
	}
	r := &run{
		engine:   e,
		strategy: strategy,
		update:   updateIfExists,
		visited:  mapset.NewThreadUnsafeSet[string](),
		outcome:  Outcome{RunID: uuid.NewString(), Strategy: strategy},
	}
	logger := e.logger.With(zap.String("run_id", r.outcome.RunID), zap.String("root", root.ID))
	logger.Info("ingest started", zap.String("strategy", string(strategy)), zap.Bool("update", updateIfExists))

	err := r.visit(ctx, nil, root, "")
	if len(r.outcome.Nodes) > 0 {
		r.outcome.Root = r.outcome.Nodes[0]
	}
	if err != nil {
		logger.Error("ingest aborted", zap.Error(err))
		return r.outcome, err
	}
	logger.Info("ingest finished",
		zap.Int("published", r.outcome.Count(NodePublished)),
		zap.Int("updated", r.outcome.Count(NodeUpdated)),
		zap.Int("skipped_exists", r.outcome.Count(NodeSkippedExists)),
		zap.Int("deduped", r.outcome.Count(NodeDeduped)),
		zap.Int("failed", r.outcome.Count(NodeFailed)))
	return r.outcome, nil
}

// run 持有一次 Ingest 调用的状态，visited 不跨调用共享。
type run struct {
	engine   *Engine
	strategy Strategy
	update   bool
	visited  mapset.Set[string]
	outcome  Outcome
}

func (r *run) visit(ctx context.Context, parent, node *stac.Node, catalogPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	isRoot := parent == nil
	result := NodeOutcome{Kind: node.Kind, ID: node.ID, Path: node.Path, Digest: util.DocumentHash(node.Body)}
	if parent != nil {
		result.ParentID, result.ParentKind = parent.ID, parent.Kind
	}

	childPath := catalogPath
	switch node.Kind {
	case stac.KindItem:
		if !r.strategy.Items() {
			result.State = NodeExcluded
			r.record(result)
			return nil
		}
		if r.visited.Contains(node.ID) {
			result.State = NodeDeduped
			r.record(result)
			return nil
		}
		r.publishItem(ctx, parent, node, &result)
		if result.State != NodeFailed {
			r.visited.Add(node.ID)
		}
	case stac.KindCollection:
		if r.strategy.Catalogs() {
			r.publishCollection(ctx, node, &result)
		} else {
			result.State = NodeExcluded
		}
	case stac.KindCatalog:
		childPath = joinCatalogPath(catalogPath, node.ID)
		if r.strategy.Catalogs() {
			r.publishCatalog(ctx, catalogPath, childPath, node, &result)
		} else {
			result.State = NodeExcluded
		}
	default:
		return fmt.Errorf("%s: unknown kind %q: %w", node.Path, node.Kind, domain.ErrInvalidCatalogDocument)
	}
	r.record(result)

	if isRoot && result.State == NodeFailed {
		return fmt.Errorf("root %s %s: %v: %w", node.Kind, node.ID, result.Err, domain.ErrUpstreamRequestFailed)
	}
	for _, child := range node.Children {
		if child.Kind == stac.KindItem && !r.strategy.Items() {
			continue
		}
		if err := r.visit(ctx, node, child, childPath); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) record(result NodeOutcome) {
	r.outcome.Nodes = append(r.outcome.Nodes, result)
	metrics.IngestNodes.WithLabelValues(string(result.Kind), string(result.State)).Inc()
	fields := []zap.Field{zap.String("kind", string(result.Kind)), zap.String("id", result.ID), zap.String("state", string(result.State))}
	if result.Err != nil {
		r.engine.logger.Warn("node not ingested", append(fields, zap.Error(result.Err))...)
		return
	}
	r.engine.logger.Debug("node ingested", fields...)
}

// upsert 先 POST，409 时按 update 决定 PUT 或跳过。
func (r *run) upsert(result *NodeOutcome, location string, post, put func() error) {
	err := post()
	switch {
	case err == nil:
		result.State, result.URL = NodePublished, location
	case IsConflict(err) && r.update:
		if err := put(); err != nil {
			result.State, result.Err = NodeFailed, err
			return
		}
		result.State, result.URL = NodeUpdated, location
	case IsConflict(err):
		result.State, result.URL = NodeSkippedExists, location
	default:
		result.State, result.Err = NodeFailed, err
	}
}

func (r *run) publishItem(ctx context.Context, parent, node *stac.Node, result *NodeOutcome) {
	collectionID := node.CollectionID()
	if collectionID == "" && parent != nil && parent.Kind == stac.KindCollection {
		collectionID = parent.ID
	}
	if collectionID == "" {
		result.State = NodeFailed
		result.Err = fmt.Errorf("item %s has no collection", node.ID)
		return
	}
	dest := r.engine.dest
	r.upsert(result, dest.ItemURL(collectionID, node.ID),
		func() error { return dest.PostItem(ctx, collectionID, node.Body) },
		func() error { return dest.PutItem(ctx, collectionID, node.ID, node.Body) })
}

func (r *run) publishCollection(ctx context.Context, node *stac.Node, result *NodeOutcome) {
	body := CollectionBody(node.Body)
	dest := r.engine.dest
	r.upsert(result, dest.CollectionURL(node.ID),
		func() error { return dest.PostCollection(ctx, body) },
		func() error { return dest.PutCollection(ctx, node.ID, body) })
}

func (r *run) publishCatalog(ctx context.Context, parentPath, path string, node *stac.Node, result *NodeOutcome) {
	body := CatalogBody(node.Body)
	dest := r.engine.dest
	r.upsert(result, dest.CatalogURL(path),
		func() error { return dest.PostCatalog(ctx, parentPath, body) },
		func() error { return dest.PutCatalog(ctx, path, body) })
}

// CollectionBody 去掉由服务端维护的 summaries 与 links，并补充默认 model。
func CollectionBody(doc map[string]any) map[string]any {
	body := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		if k == "summaries" || k == "links" {
			continue
		}
		body[k] = v
	}
	if _, ok := body["model"]; !ok {
		body["model"] = DefaultModel
	}
	return body
}

// CatalogBody 去掉指向本地文件的 links。
func CatalogBody(doc map[string]any) map[string]any {
	body := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "links" {
			continue
		}
		body[k] = v
	}
	return body
}

func joinCatalogPath(parent, id string) string {
	if parent == "" {
		return id
	}
	return parent + "/" + id
}
