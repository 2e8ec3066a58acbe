package ioc

import (
	"context"

	"go.uber.org/zap"
	"pdssp-crawler/internal/app"
	"pdssp-crawler/internal/record"
	"pdssp-crawler/internal/source"
)

// InitAppService 构建爬取服务。
func InitAppService(ctx context.Context, cfg app.Config, store *record.Store, registry source.Registry, logger *zap.Logger) (*app.Service, func(), error) {
	svc, err := app.NewService(ctx, cfg, store, registry, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := svc.Close(context.Background()); err != nil {
			logger.Warn("close app service failed", zap.Error(err))
		}
	}
	return svc, cleanup, nil
}
