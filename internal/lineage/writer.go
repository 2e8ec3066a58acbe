package lineage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"pdssp-crawler/internal/cypher"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/ingest"
	"pdssp-crawler/internal/stac"
	"pdssp-crawler/pkg/util"
)

// Writer 把一次入库的节点结果写成血缘图：节点带最新状态，父子链接成边。
type Writer struct {
	runner    Runner
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

// NewWriter 创建血缘写入器。
func NewWriter(runner Runner, batchSize int, logger *zap.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{runner: runner, batchSize: batchSize, logger: logger, now: time.Now}
}

// NodeKey 返回节点在血缘图中的 key。
func NodeKey(kind stac.Kind, id string) string {
	return domain.MakeNodeKey(label(kind), id)
}

func label(kind stac.Kind) string {
	switch kind {
	case stac.KindCatalog:
		return domain.LabelCatalog
	case stac.KindCollection:
		return domain.LabelCollection
	default:
		return domain.LabelItem
	}
}

// RecordOutcome 写入节点与边，重复访问的节点只写一次。
func (w *Writer) RecordOutcome(ctx context.Context, collectionID string, out ingest.Outcome) error {
	nodes, rels := w.rows(collectionID, out)
	if err := w.upsertNodes(ctx, nodes); err != nil {
		return err
	}
	if err := w.upsertRels(ctx, rels); err != nil {
		return err
	}
	w.logger.Debug("lineage recorded",
		zap.String("collection", collectionID),
		zap.String("run_id", out.RunID),
		zap.Int("nodes", len(nodes)),
		zap.Int("rels", len(rels)))
	return nil
}

func (w *Writer) rows(collectionID string, out ingest.Outcome) ([]domain.NodeRow, []domain.RelRow) {
	now := w.now().UTC()
	seen := map[string]bool{}
	var (
		nodes []domain.NodeRow
		rels  []domain.RelRow
	)
	for _, n := range out.Nodes {
		if n.State == ingest.NodeDeduped {
			continue
		}
		key := NodeKey(n.Kind, n.ID)
		if seen[key] {
			continue
		}
		seen[key] = true
		props := map[string]any{
			"id":            n.ID,
			"kind":          string(n.Kind),
			"state":         string(n.State),
			"url":           n.URL,
			"path":          n.Path,
			"digest":        n.Digest,
			"collection_id": collectionID,
			"strategy":      string(out.Strategy),
		}
		if n.Err != nil {
			props["error"] = n.Err.Error()
		}
		nodes = append(nodes, domain.NodeRow{
			Key:        key,
			Labels:     []string{domain.LabelStacNode, label(n.Kind)},
			Properties: props,
			RunID:      out.RunID,
			UpdatedAt:  now,
		})
		if n.ParentID == "" {
			continue
		}
		relType := domain.RelHasChild
		if n.Kind == stac.KindItem {
			relType = domain.RelHasItem
		}
		rels = append(rels, domain.RelRow{
			StartKey:   NodeKey(n.ParentKind, n.ParentID),
			EndKey:     key,
			Type:       relType,
			Properties: map[string]any{},
			RunID:      out.RunID,
		})
	}
	return nodes, rels
}

func (w *Writer) upsertNodes(ctx context.Context, rows []domain.NodeRow) error {
	grouped := map[string][]domain.NodeRow{}
	var order []string
	for _, row := range rows {
		key := domain.JoinLabels(row.Labels)
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], row)
	}
	for _, key := range order {
		group := grouped[key]
		query := cypher.MustTemplate("upsert_nodes.cql", map[string]string{"LabelPattern": domain.LabelPattern(group[0].Labels)})
		err := util.EachBatch(group, w.batchSize, func(chunk []domain.NodeRow) error {
			params := make([]map[string]any, 0, len(chunk))
			for _, row := range chunk {
				params = append(params, map[string]any{
					"node_key":   row.Key,
					"properties": row.Properties,
					"run_id":     row.RunID,
					"updated_at": row.UpdatedAt,
				})
			}
			return w.runner.RunWrite(ctx, query, map[string]any{"rows": params})
		})
		if err != nil {
			return fmt.Errorf("写入节点失败 labels=%s: %w", key, err)
		}
	}
	return nil
}

func (w *Writer) upsertRels(ctx context.Context, rows []domain.RelRow) error {
	grouped := map[string][]domain.RelRow{}
	var order []string
	for _, row := range rows {
		if _, ok := grouped[row.Type]; !ok {
			order = append(order, row.Type)
		}
		grouped[row.Type] = append(grouped[row.Type], row)
	}
	for _, relType := range order {
		query := cypher.MustTemplate("upsert_rels.cql", map[string]string{"RelType": ":" + relType})
		err := util.EachBatch(grouped[relType], w.batchSize, func(chunk []domain.RelRow) error {
			params := make([]map[string]any, 0, len(chunk))
			for _, row := range chunk {
				params = append(params, map[string]any{
					"start_key":  row.StartKey,
					"end_key":    row.EndKey,
					"properties": row.Properties,
					"run_id":     row.RunID,
				})
			}
			return w.runner.RunWrite(ctx, query, map[string]any{"rows": params})
		})
		if err != nil {
			return fmt.Errorf("写入关系失败 type=%s: %w", relType, err)
		}
	}
	return nil
}
