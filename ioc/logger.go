package ioc

import (
	"go.uber.org/zap"
	"pdssp-crawler/internal/app"
	"pdssp-crawler/pkg/logging"
)

// InitLogger 构建全局 logger。
func InitLogger(cfg app.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogLevel)
}
