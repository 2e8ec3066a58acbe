package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pdssp-crawler/internal/domain"
)

const (
	// DefaultTokenEnv 是读取目标服务管理 token 的默认环境变量。
	DefaultTokenEnv = "RESTO_ADMIN_AUTH_TOKEN"
	// DefaultModel 是 collection 未声明 model 时使用的模型。
	DefaultModel = "DefaultModel"
	maxErrorBody = 512
)

// ClientConfig 配置目标 STAC API 客户端。
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// SplitGeometry 为 false 时对 item 请求附加 _splitGeom=0。
	SplitGeometry bool
	CustomClient  *http.Client
	UserAgent     string
}

// Destination 是入库引擎依赖的目标服务写接口。
type Destination interface {
	PostCatalog(ctx context.Context, parentPath string, doc map[string]any) error
	PutCatalog(ctx context.Context, path string, doc map[string]any) error
	PostCollection(ctx context.Context, doc map[string]any) error
	PutCollection(ctx context.Context, id string, doc map[string]any) error
	PostItem(ctx context.Context, collectionID string, doc map[string]any) error
	PutItem(ctx context.Context, collectionID, itemID string, doc map[string]any) error
	CatalogURL(path string) string
	CollectionURL(id string) string
	ItemURL(collectionID, itemID string) string
}

// Client 是目标 STAC API（resto）的 HTTP 客户端。
type Client struct {
	base       string
	token      string
	split      bool
	userAgent  string
	httpClient *http.Client
}

var _ Destination = (*Client)(nil)

// NewClient 创建目标服务客户端，token 为空时返回 ErrMissingCredential。
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("destination url 不能为空")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("%s is not set: %w", DefaultTokenEnv, domain.ErrMissingCredential)
	}
	client := cfg.CustomClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "pdssp-crawler"
	}
	return &Client{
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		split:      cfg.SplitGeometry,
		userAgent:  ua,
		httpClient: client,
	}, nil
}

func (c *Client) CatalogURL(path string) string {
	return c.base + "/catalogs/" + escapePath(path)
}

func (c *Client) CollectionURL(id string) string {
	return c.base + "/collections/" + url.PathEscape(id)
}

func (c *Client) ItemURL(collectionID, itemID string) string {
	return c.CollectionURL(collectionID) + "/items/" + url.PathEscape(itemID)
}

// PostCatalog 在 parentPath 下创建 catalog，根 catalog 的 parentPath 为空。
func (c *Client) PostCatalog(ctx context.Context, parentPath string, doc map[string]any) error {
	params := url.Values{}
	if parentPath != "" {
		params.Set("pid", parentPath)
	}
	return c.send(ctx, http.MethodPost, c.base+"/catalogs", params, doc)
}

func (c *Client) PutCatalog(ctx context.Context, path string, doc map[string]any) error {
	return c.send(ctx, http.MethodPut, c.CatalogURL(path), nil, doc)
}

func (c *Client) PostCollection(ctx context.Context, doc map[string]any) error {
	return c.send(ctx, http.MethodPost, c.base+"/collections", nil, doc)
}

func (c *Client) PutCollection(ctx context.Context, id string, doc map[string]any) error {
	return c.send(ctx, http.MethodPut, c.CollectionURL(id), nil, doc)
}

func (c *Client) PostItem(ctx context.Context, collectionID string, doc map[string]any) error {
	return c.send(ctx, http.MethodPost, c.CollectionURL(collectionID)+"/items", c.itemParams(), doc)
}

func (c *Client) PutItem(ctx context.Context, collectionID, itemID string, doc map[string]any) error {
	return c.send(ctx, http.MethodPut, c.ItemURL(collectionID, itemID), c.itemParams(), doc)
}

// DeleteCollection 删除目标服务中的 collection。
func (c *Client) DeleteCollection(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, c.CollectionURL(id), nil, nil)
}

func (c *Client) itemParams() url.Values {
	if c.split {
		return nil
	}
	return url.Values{"_splitGeom": {"0"}}
}

func (c *Client) send(ctx context.Context, method, endpoint string, params url.Values, doc map[string]any) error {
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var body io.Reader
	if doc != nil {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("构建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, endpoint, err, domain.ErrUpstreamRequestFailed)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}
	return &domain.HTTPStatusError{Method: method, URL: endpoint, StatusCode: resp.StatusCode, Body: msg}
}

// IsConflict 判断错误是否为 409。
func IsConflict(err error) bool {
	var statusErr *domain.HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict
}

func escapePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
