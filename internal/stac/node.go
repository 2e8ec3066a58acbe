package stac

import (
	"fmt"
	"strings"

	"pdssp-crawler/internal/domain"
)

// Kind 是规范目录树中的节点类型。
type Kind string

const (
	KindCatalog    Kind = "Catalog"
	KindCollection Kind = "Collection"
	KindItem       Kind = "Item"
)

const (
	RelChild  = "child"
	RelItem   = "item"
	RelItems  = "items"
	RelRoot   = "root"
	RelParent = "parent"
	RelSelf   = "self"
)

// Version 是写出文档时使用的 STAC 版本。
const Version = "1.0.0"

// Link 是文档中的一条链接，只有 child/item/items 参与遍历。
type Link struct {
	Rel   string `json:"rel"`
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// Traversable 判断链接是否指向子节点。
func (l Link) Traversable() bool {
	return l.Rel == RelChild || l.Rel == RelItem || l.Rel == RelItems
}

// Node 是已加载到内存中的目录树节点。Body 为原始文档，对入库引擎不透明。
type Node struct {
	Kind     Kind
	ID       string
	Path     string
	Links    []Link
	Body     map[string]any
	Children []*Node
}

// CollectionID 返回 item 所属集合，item 文档未声明时为空。
func (n *Node) CollectionID() string {
	if n == nil || n.Body == nil {
		return ""
	}
	v, _ := n.Body["collection"].(string)
	return v
}

// Walk 以前序深度优先遍历节点，共享节点会被多次访问。
func (n *Node) Walk(fn func(parent, node *Node) error) error {
	return walk(nil, n, fn)
}

func walk(parent, node *Node, fn func(parent, node *Node) error) error {
	if err := fn(parent, node); err != nil {
		return err
	}
	for _, child := range node.Children {
		if err := walk(node, child, fn); err != nil {
			return err
		}
	}
	return nil
}

// KindOf 根据文档 "type" 字段识别节点类型。
func KindOf(doc map[string]any) (Kind, error) {
	raw, ok := doc["type"]
	if !ok {
		return "", fmt.Errorf("missing \"type\": %w", domain.ErrInvalidCatalogDocument)
	}
	typ, _ := raw.(string)
	switch strings.TrimSpace(typ) {
	case "Catalog":
		return KindCatalog, nil
	case "Collection":
		return KindCollection, nil
	case "Feature":
		return KindItem, nil
	}
	return "", fmt.Errorf("unsupported type %v: %w", raw, domain.ErrInvalidCatalogDocument)
}

// NodeFromDocument 校验文档并构造节点（不解析子节点）。
func NodeFromDocument(path string, doc map[string]any) (*Node, error) {
	if doc == nil {
		return nil, fmt.Errorf("%s: empty document: %w", path, domain.ErrInvalidCatalogDocument)
	}
	kind, err := KindOf(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	id, _ := doc["id"].(string)
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%s: missing \"id\": %w", path, domain.ErrInvalidCatalogDocument)
	}
	links, err := parseLinks(doc["links"])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Node{Kind: kind, ID: id, Path: path, Links: links, Body: doc}, nil
}

func parseLinks(raw any) ([]Link, error) {
	if raw == nil {
		return nil, nil
	}
	// 非列表的 links 视为叶子节点
	list, ok := raw.([]any)
	if !ok {
		return nil, nil
	}
	links := make([]Link, 0, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("link %d is not an object: %w", i, domain.ErrInvalidCatalogDocument)
		}
		rel, _ := m["rel"].(string)
		href, _ := m["href"].(string)
		if rel == "" || href == "" {
			return nil, fmt.Errorf("link %d missing rel or href: %w", i, domain.ErrInvalidCatalogDocument)
		}
		title, _ := m["title"].(string)
		typ, _ := m["type"].(string)
		links = append(links, Link{Rel: rel, Href: href, Type: typ, Title: title})
	}
	return links, nil
}
