package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/util"
)

const maxErrorBody = 512

// HTTPConfig 配置访问源服务的 HTTP 客户端。
type HTTPConfig struct {
	Timeout      time.Duration
	CustomClient *http.Client
	Retry        util.Policy
	UserAgent    string
}

// HTTPClient 负责对源服务发起带超时与重试的 GET 请求。
type HTTPClient struct {
	httpClient *http.Client
	retry      util.Policy
	userAgent  string
}

// NewHTTPClient 根据配置创建 HTTPClient。
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
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
	return &HTTPClient{httpClient: client, retry: cfg.Retry, userAgent: ua}
}

// GetJSON 请求 endpoint 并返回原始响应体，响应体必须是合法 JSON。
func (c *HTTPClient) GetJSON(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("解析请求地址失败: %w", err)
	}
	query := parsed.Query()
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	parsed.RawQuery = query.Encode()
	target := parsed.String()

	var body []byte
	err = util.Retry(ctx, c.retry, func(int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return util.Permanent(fmt.Errorf("构建请求失败: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("GET %s: %v: %w", target, err, domain.ErrUpstreamRequestFailed)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("读取响应失败 %s: %v: %w", target, err, domain.ErrUpstreamRequestFailed)
		}
		if resp.StatusCode != http.StatusOK {
			statusErr := &domain.HTTPStatusError{Method: http.MethodGet, URL: target, StatusCode: resp.StatusCode, Body: truncate(data)}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return util.Permanent(statusErr)
			}
			return statusErr
		}
		if !json.Valid(data) {
			return util.Permanent(fmt.Errorf("GET %s: response is not JSON: %w", target, domain.ErrUpstreamRequestFailed))
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// ServiceParams 把服务描述中的附加参数转换为查询参数。
func ServiceParams(svc map[string]any) url.Values {
	values := url.Values{}
	for k, v := range svc {
		if v == nil {
			continue
		}
		values.Set(k, fmt.Sprint(v))
	}
	return values
}

func truncate(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
