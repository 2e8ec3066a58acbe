package lineage

import (
	"context"
	"fmt"

	"pdssp-crawler/internal/cypher"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/stac"
)

// Lineage 描述一个集合最近一次入库的位置与 item 状态分布。
type Lineage struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	State      string         `json:"state"`
	URL        string         `json:"url,omitempty"`
	RunID      string         `json:"run_id"`
	Ancestors  []string       `json:"ancestors"`
	ItemStates map[string]int `json:"item_states"`
}

// Reader 查询血缘图。
type Reader struct {
	querier Querier
}

func NewReader(querier Querier) *Reader {
	return &Reader{querier: querier}
}

// Collection 返回集合的血缘，未入库过时返回 ErrNotFound。
func (r *Reader) Collection(ctx context.Context, collectionID string) (Lineage, error) {
	params := map[string]any{"key": NodeKey(stac.KindCollection, collectionID)}

	rows, err := r.querier.RunRead(ctx, cypher.MustAsset("lineage_node.cql"), params)
	if err != nil {
		return Lineage{}, err
	}
	if len(rows) == 0 {
		return Lineage{}, fmt.Errorf("lineage of %s: %w", collectionID, domain.ErrNotFound)
	}
	l := Lineage{
		ID:         asString(rows[0]["id"]),
		Kind:       asString(rows[0]["kind"]),
		State:      asString(rows[0]["state"]),
		URL:        asString(rows[0]["url"]),
		RunID:      asString(rows[0]["run_id"]),
		Ancestors:  []string{},
		ItemStates: map[string]int{},
	}

	rows, err = r.querier.RunRead(ctx, cypher.MustAsset("lineage_ancestors.cql"), params)
	if err != nil {
		return Lineage{}, err
	}
	if len(rows) > 0 {
		if list, ok := rows[0]["ancestors"].([]any); ok {
			for _, v := range list {
				l.Ancestors = append(l.Ancestors, asString(v))
			}
		}
	}

	rows, err = r.querier.RunRead(ctx, cypher.MustAsset("lineage_items.cql"), params)
	if err != nil {
		return Lineage{}, err
	}
	for _, row := range rows {
		l.ItemStates[asString(row["state"])] += asInt(row["total"])
	}
	return l, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
