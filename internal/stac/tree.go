package stac

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"pdssp-crawler/internal/domain"
)

// LoadOptions 控制目录树加载。
type LoadOptions struct {
	// SkipItems 为 true 时不读取 item/items 链接指向的文档。
	SkipItems bool
}

// LoadTree 从根文档出发读取整棵目录树。多条链接指向同一文档时复用同一个 *Node；
// 任何结构错误都以 ErrInvalidCatalogDocument 返回，此时不会产生任何网络请求。
func LoadTree(path string, opts LoadOptions) (*Node, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	l := &treeLoader{opts: opts, cache: map[string]*Node{}, onPath: map[string]bool{}}
	return l.load(abs)
}

type treeLoader struct {
	opts   LoadOptions
	cache  map[string]*Node
	onPath map[string]bool
}

func (l *treeLoader) load(path string) (*Node, error) {
	if l.onPath[path] {
		return nil, fmt.Errorf("%s: link cycle: %w", path, domain.ErrInvalidCatalogDocument)
	}
	if node, ok := l.cache[path]; ok {
		return node, nil
	}
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}
	node, err := NodeFromDocument(path, doc)
	if err != nil {
		return nil, err
	}
	l.cache[path] = node
	l.onPath[path] = true
	defer delete(l.onPath, path)

	for _, link := range node.Links {
		if !link.Traversable() {
			continue
		}
		isItemLink := link.Rel == RelItem || link.Rel == RelItems
		if isItemLink && l.opts.SkipItems {
			continue
		}
		target, err := resolveHref(path, link.Href)
		if err != nil {
			return nil, err
		}
		if !isItemLink {
			child, err := l.load(target)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
			continue
		}
		items, err := l.loadItems(target)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, items...)
	}
	return node, nil
}

// loadItems 支持单个 Feature 文件或 FeatureCollection 文件。
func (l *treeLoader) loadItems(path string) ([]*Node, error) {
	if node, ok := l.cache[path]; ok {
		if node.Kind != KindItem {
			return nil, fmt.Errorf("%s: expected item, got %s: %w", path, node.Kind, domain.ErrInvalidCatalogDocument)
		}
		return []*Node{node}, nil
	}
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}
	if typ, _ := doc["type"].(string); typ == "FeatureCollection" {
		features, ok := doc["features"].([]any)
		if !ok {
			return nil, fmt.Errorf("%s: FeatureCollection without features: %w", path, domain.ErrInvalidCatalogDocument)
		}
		nodes := make([]*Node, 0, len(features))
		for i, raw := range features {
			feature, _ := raw.(map[string]any)
			featurePath := fmt.Sprintf("%s#%d", path, i)
			if cached, ok := l.cache[featurePath]; ok {
				nodes = append(nodes, cached)
				continue
			}
			node, err := NodeFromDocument(featurePath, feature)
			if err != nil {
				return nil, err
			}
			if node.Kind != KindItem {
				return nil, fmt.Errorf("%s: expected item, got %s: %w", featurePath, node.Kind, domain.ErrInvalidCatalogDocument)
			}
			l.cache[featurePath] = node
			nodes = append(nodes, node)
		}
		return nodes, nil
	}
	node, err := NodeFromDocument(path, doc)
	if err != nil {
		return nil, err
	}
	if node.Kind != KindItem {
		return nil, fmt.Errorf("%s: expected item, got %s: %w", path, node.Kind, domain.ErrInvalidCatalogDocument)
	}
	l.cache[path] = node
	return []*Node{node}, nil
}

func resolveHref(base, href string) (string, error) {
	if u, err := url.Parse(href); err == nil && u.Scheme != "" {
		if u.Scheme != "file" {
			return "", fmt.Errorf("%s: remote link %s is not followed: %w", base, href, domain.ErrInvalidCatalogDocument)
		}
		href = u.Path
	}
	if filepath.IsAbs(href) {
		return filepath.Clean(href), nil
	}
	href = strings.TrimPrefix(href, "./")
	return filepath.Clean(filepath.Join(filepath.Dir(base), href)), nil
}
