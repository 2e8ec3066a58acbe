package ioc

import (
	"context"

	"go.uber.org/zap"
	"pdssp-crawler/internal/app"
	"pdssp-crawler/internal/record"
	"pdssp-crawler/internal/source"
)

// InitStore 打开集合台账。
func InitStore(ctx context.Context, cfg app.Config, logger *zap.Logger) (*record.Store, func(), error) {
	return app.OpenStore(ctx, cfg, logger)
}

// InitRegistry 构建服务注册中心。
func InitRegistry(cfg app.Config) source.Registry {
	return app.NewRegistry(cfg)
}
