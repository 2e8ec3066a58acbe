package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/record"
)

// Extractor 是某一类源服务的抽取能力。
type Extractor interface {
	// ListCollections 返回服务提供的全部集合。
	ListCollections(ctx context.Context, svc record.ServiceRef) ([]record.CollectionRecord, error)
	// Extract 把集合元数据与分页产品元数据写入 outputDir，返回有序的产物路径。
	// 第一个产物是集合元数据文件，其余为分页文件；已存在的分页文件在非 overwrite 时直接复用。
	Extract(ctx context.Context, rec record.CollectionRecord, outputDir string, overwrite bool) ([]string, error)
}

// Options 是构建 Extractor 的公共依赖。
type Options struct {
	Client *HTTPClient
	// QueryLimit 每页请求的记录数。
	QueryLimit int
	// ExtractLimit 单个集合最多抽取的记录数，0 表示不限。
	ExtractLimit int
	Logger       *zap.Logger
}

// Factory 构建某一服务类型的 Extractor。
type Factory func(opts Options) Extractor

var (
	mu        sync.RWMutex
	factories = map[string]Factory{
		ServiceTypePDSODE: newPDSODEExtractor,
		ServiceTypeWFS:    newWFSExtractor,
	}
)

const (
	ServiceTypePDSODE = "PDSODE"
	ServiceTypeWFS    = "WFS"
	ServiceTypeEPNTAP = "EPNTAP"
)

// Register 注册或替换某一服务类型的 Extractor。
func Register(serviceType string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[serviceType] = f
}

// Supported 返回已注册的服务类型。
func Supported() []string {
	mu.RLock()
	defer mu.RUnlock()
	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// New 按服务类型选择 Extractor。
func New(serviceType string, opts Options) (Extractor, error) {
	mu.RLock()
	f, ok := factories[serviceType]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no extractor for service type %q: %w", serviceType, domain.ErrNotFound)
	}
	if opts.Client == nil {
		opts.Client = NewHTTPClient(HTTPConfig{})
	}
	if opts.QueryLimit <= 0 {
		opts.QueryLimit = 100
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return f(opts), nil
}
