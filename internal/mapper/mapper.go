package mapper

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/record"
	"pdssp-crawler/internal/source"
)

// Mapper 把某一源 schema 的原始元数据转换为规范 STAC 文档。
type Mapper interface {
	// Collection 根据集合元数据文件内容生成 Collection 文档。
	Collection(rec record.CollectionRecord, raw []byte) (map[string]any, error)
	// Records 拆分一个分页文件中的源记录。
	Records(page []byte) ([]json.RawMessage, error)
	// Item 把一条源记录转换为 Item 文档。
	Item(rec record.CollectionRecord, raw json.RawMessage) (map[string]any, error)
}

var (
	mu      sync.RWMutex
	mappers = map[string]Mapper{
		source.ServiceTypePDSODE: pdsodeMapper{},
		source.ServiceTypeWFS:    wfsMapper{},
	}
)

// Register 注册或替换某个 schema 的 Mapper。
func Register(schema string, m Mapper) {
	mu.Lock()
	defer mu.Unlock()
	mappers[schema] = m
}

// Schemas 返回已注册的 schema 名称。
func Schemas() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(mappers))
	for name := range mappers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup 按 schema 名称查找 Mapper。
func Lookup(schema string) (Mapper, error) {
	mu.RLock()
	defer mu.RUnlock()
	m, ok := mappers[schema]
	if !ok {
		return nil, fmt.Errorf("no mapper for schema %q: %w", schema, domain.ErrNotFound)
	}
	return m, nil
}
