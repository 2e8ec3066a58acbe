package app

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"pdssp-crawler/internal/record"
	"pdssp-crawler/internal/source"
)

// Discovery 汇总注册中心中所有数据目录服务提供的集合。
type Discovery struct {
	Registry source.Registry
	Options  source.Options
	Logger   *zap.Logger
}

// Collections 逐个服务列出集合。单个服务失败时跳过并汇总错误，重复的集合 ID 只保留第一次出现。
func (d *Discovery) Collections(ctx context.Context) ([]record.CollectionRecord, error) {
	if d.Registry == nil {
		return nil, fmt.Errorf("未配置服务注册中心")
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	services, err := d.Registry.Services(ctx)
	if err != nil {
		return nil, fmt.Errorf("拉取注册服务失败: %w", err)
	}
	services = source.DataCatalogServices(services)

	var (
		merr    *multierror.Error
		records []record.CollectionRecord
		seen    = map[string]bool{}
	)
	for _, svc := range services {
		ex, err := source.New(svc.Type, d.Options)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		found, err := ex.ListCollections(ctx, svc)
		if err != nil {
			logger.Warn("列出服务集合失败", zap.String("service", svc.Title), zap.Error(err))
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", svc.Title, err))
			continue
		}
		logger.Info("发现服务集合", zap.String("service", svc.Title), zap.Int("collections", len(found)))
		for _, rec := range found {
			if seen[rec.ID] {
				logger.Warn("重复的集合 ID", zap.String("collection", rec.ID), zap.String("service", svc.Title))
				continue
			}
			seen[rec.ID] = true
			records = append(records, rec)
		}
	}
	return records, merr.ErrorOrNil()
}

// InitFlow 用注册中心发现的集合重置台账，对应 initds。
type InitFlow struct {
	Store     *record.Store
	Discovery *Discovery
	Logger    *zap.Logger
}

// Run 执行重置，返回写入的集合数。部分服务失败时仍写入其余服务的集合，并返回汇总错误。
func (f *InitFlow) Run(ctx context.Context) (int, error) {
	if f.Store == nil || f.Discovery == nil {
		return 0, fmt.Errorf("初始化依赖未注入完整")
	}
	if f.Logger == nil {
		f.Logger = zap.NewNop()
	}
	records, listErr := f.Discovery.Collections(ctx)
	if err := f.Store.ReplaceAll(ctx, records); err != nil {
		return 0, fmt.Errorf("重置集合台账失败: %w", err)
	}
	f.Logger.Info("集合台账已重置", zap.Int("collections", len(records)))
	return len(records), listErr
}
