package mapper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/record"
	"pdssp-crawler/internal/stac"
)

const (
	CatalogFile    = "catalog.json"
	CollectionFile = "collection.json"
	itemsDir       = "items"
)

// Transformer 把抽取产物转换为目标天体目录下的 STAC 文件树。
type Transformer struct {
	StacDir string
	Logger  *zap.Logger
}

// NewTransformer 创建 Transformer。
func NewTransformer(stacDir string, logger *zap.Logger) *Transformer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transformer{StacDir: stacDir, Logger: logger}
}

// TargetCatalogPath 返回目标天体目录的 catalog.json 路径。
func (t *Transformer) TargetCatalogPath(target string) string {
	return filepath.Join(t.StacDir, strings.ToLower(target), CatalogFile)
}

// Transform 生成集合的 collection.json 与全部 item，并把集合挂到目标天体目录下。
// 返回 collection.json 路径。任一记录无法映射时整个集合转换失败。
func (t *Transformer) Transform(ctx context.Context, rec record.CollectionRecord) (string, error) {
	schema := rec.SourceSchema
	if schema == "" {
		schema = rec.Service.Type
	}
	m, err := Lookup(schema)
	if err != nil {
		return "", err
	}
	if len(rec.ExtractedFiles) == 0 {
		return "", fmt.Errorf("%s: no extracted files: %w", rec.ID, domain.ErrNotFound)
	}
	target := strings.ToLower(strings.TrimSpace(rec.Target))
	if target == "" {
		return "", &domain.MappingError{Schema: schema, Field: "target"}
	}

	raw, err := os.ReadFile(rec.ExtractedFiles[0])
	if err != nil {
		return "", fmt.Errorf("读取集合元数据失败: %w", err)
	}
	collection, err := m.Collection(rec, raw)
	if err != nil {
		return "", err
	}

	collectionDir := filepath.Join(t.StacDir, target, rec.ID)
	// 重新转换时旧 item 全部失效
	if err := os.RemoveAll(filepath.Join(collectionDir, itemsDir)); err != nil {
		return "", fmt.Errorf("清理旧 item 失败: %w", err)
	}
	stac.AddLink(collection, stac.Link{Rel: stac.RelRoot, Href: "../" + CatalogFile, Type: "application/json"})
	stac.AddLink(collection, stac.Link{Rel: stac.RelParent, Href: "../" + CatalogFile, Type: "application/json"})

	count := 0
	for _, pagePath := range rec.ExtractedFiles[1:] {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page, err := os.ReadFile(pagePath)
		if err != nil {
			return "", fmt.Errorf("读取分页文件失败: %w", err)
		}
		records, err := m.Records(page)
		if err != nil {
			return "", fmt.Errorf("%s: %w", pagePath, err)
		}
		for _, r := range records {
			item, err := m.Item(rec, r)
			if err != nil {
				return "", fmt.Errorf("%s: %w", pagePath, err)
			}
			id, _ := item["id"].(string)
			name := fileName(id) + ".json"
			stac.AddLink(item, stac.Link{Rel: stac.RelRoot, Href: "../../" + CatalogFile, Type: "application/json"})
			stac.AddLink(item, stac.Link{Rel: stac.RelParent, Href: "../" + CollectionFile, Type: "application/json"})
			stac.AddLink(item, stac.Link{Rel: "collection", Href: "../" + CollectionFile, Type: "application/json"})
			if err := stac.WriteDocument(filepath.Join(collectionDir, itemsDir, name), item); err != nil {
				return "", err
			}
			if stac.AddLink(collection, stac.Link{Rel: stac.RelItem, Href: "./" + itemsDir + "/" + name, Type: "application/geo+json"}) {
				count++
			}
		}
	}

	collectionPath := filepath.Join(collectionDir, CollectionFile)
	if err := stac.WriteDocument(collectionPath, collection); err != nil {
		return "", err
	}
	if err := t.attach(target, rec.ID); err != nil {
		return "", err
	}
	t.Logger.Info("collection transformed",
		zap.String("collection", rec.ID),
		zap.String("target", target),
		zap.Int("items", count))
	return collectionPath, nil
}

// attach 在目标天体 catalog.json 中追加集合链接，已存在的链接不重复添加。
func (t *Transformer) attach(target, collectionID string) error {
	path := t.TargetCatalogPath(target)
	catalog, err := stac.ReadDocument(path)
	if err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return err
		}
		catalog = stac.NewCatalogDocument(target, strings.ToUpper(target[:1])+target[1:], fmt.Sprintf("STAC catalog of %s data collections", target))
		stac.AddLink(catalog, stac.Link{Rel: stac.RelRoot, Href: "./" + CatalogFile, Type: "application/json"})
	}
	stac.AddLink(catalog, stac.Link{Rel: stac.RelChild, Href: "./" + collectionID + "/" + CollectionFile, Type: "application/json"})
	return stac.WriteDocument(path, catalog)
}

func fileName(id string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_").Replace(id)
}
