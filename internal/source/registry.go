package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/record"
)

// Registry 列出已登记的外部数据服务。
type Registry interface {
	Services(ctx context.Context) ([]record.ServiceRef, error)
}

// HTTPRegistry 从服务注册中心接口读取服务列表，响应形如 {"services":[...]}。
type HTTPRegistry struct {
	URL    string
	Client *HTTPClient
}

func (r *HTTPRegistry) Services(ctx context.Context) ([]record.ServiceRef, error) {
	client := r.Client
	if client == nil {
		client = NewHTTPClient(HTTPConfig{})
	}
	body, err := client.GetJSON(ctx, r.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("获取注册中心服务失败: %w", err)
	}
	var resp struct {
		Services *[]record.ServiceRef `json:"services"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("registry response not conform to expected model: %v: %w", err, domain.ErrUpstreamRequestFailed)
	}
	if resp.Services == nil {
		return nil, fmt.Errorf("registry response has no services list: %w", domain.ErrUpstreamRequestFailed)
	}
	return *resp.Services, nil
}

// LocalRegistry 从目录中的 *.json 文件读取服务描述，每个文件一个服务。
type LocalRegistry struct {
	Dir string
}

func (r *LocalRegistry) Services(_ context.Context) ([]record.ServiceRef, error) {
	info, err := os.Stat(r.Dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("local registry %s is not a directory: %w", r.Dir, domain.ErrNotFound)
	}
	files, err := filepath.Glob(filepath.Join(r.Dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	services := make([]record.ServiceRef, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("读取服务描述失败 %s: %w", f, err)
		}
		var svc record.ServiceRef
		if err := json.Unmarshal(data, &svc); err != nil {
			return nil, fmt.Errorf("解析服务描述失败 %s: %w", f, err)
		}
		services = append(services, svc)
	}
	return services, nil
}

// MultiRegistry 依次合并多个注册中心的服务。
type MultiRegistry []Registry

func (m MultiRegistry) Services(ctx context.Context) ([]record.ServiceRef, error) {
	var (
		all  []record.ServiceRef
		errs *multierror.Error
	)
	for _, r := range m {
		services, err := r.Services(ctx)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		all = append(all, services...)
	}
	return all, errs.ErrorOrNil()
}

// DataCatalogServices 过滤出有 Extractor 的服务。
func DataCatalogServices(services []record.ServiceRef) []record.ServiceRef {
	supported := map[string]bool{}
	for _, t := range Supported() {
		supported[t] = true
	}
	out := make([]record.ServiceRef, 0, len(services))
	for _, svc := range services {
		if supported[svc.Type] {
			out = append(out, svc)
		}
	}
	return out
}
