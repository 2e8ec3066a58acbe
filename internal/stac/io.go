package stac

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"pdssp-crawler/internal/domain"
)

// ReadDocument 读取 JSON 文档，数字保持为 json.Number 以便原样回写。
func ReadDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %v: %w", path, err, domain.ErrInvalidCatalogDocument)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", path, err, domain.ErrInvalidCatalogDocument)
	}
	if doc == nil {
		return nil, fmt.Errorf("%s: empty document: %w", path, domain.ErrInvalidCatalogDocument)
	}
	return doc, nil
}

// WriteDocument 以缩进格式写出文档，必要时创建目录。
func WriteDocument(path string, doc any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// AddLink 向文档追加链接，rel+href 相同的链接不会重复添加。
func AddLink(doc map[string]any, link Link) bool {
	existing, _ := doc["links"].([]any)
	for _, raw := range existing {
		switch l := raw.(type) {
		case map[string]any:
			if l["rel"] == link.Rel && l["href"] == link.Href {
				return false
			}
		case Link:
			if l.Rel == link.Rel && l.Href == link.Href {
				return false
			}
		}
	}
	entry := map[string]any{"rel": link.Rel, "href": link.Href}
	if link.Type != "" {
		entry["type"] = link.Type
	}
	if link.Title != "" {
		entry["title"] = link.Title
	}
	doc["links"] = append(existing, entry)
	return true
}
