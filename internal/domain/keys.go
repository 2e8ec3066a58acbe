package domain

import (
	"sort"
	"strings"
)

const (
	LabelCatalog    = "Catalog"
	LabelCollection = "Collection"
	LabelItem       = "Item"
	LabelStacNode   = "StacNode"

	RelHasChild = "HAS_CHILD"
	RelHasItem  = "HAS_ITEM"
)

// MakeCollectionID 由源服务原生标识拼出稳定的集合 ID，空片段会被忽略。
func MakeCollectionID(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kept = append(kept, strings.ReplaceAll(p, " ", "-"))
	}
	return strings.Join(kept, "_")
}

// MakeNodeKey 生成血缘图中的节点 key，带上类型前缀以避免目录与集合重名冲突。
func MakeNodeKey(label, id string) string {
	return label + ":" + id
}

// LabelPattern 根据标签集合拼成 Cypher 模板所需的字符串，如 ":A:B"。
func LabelPattern(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	return ":" + JoinLabels(labels)
}

// JoinLabels 简单拼接标签用于 map key（内部使用）。
func JoinLabels(labels []string) string {
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	return strings.Join(sorted, ":")
}
