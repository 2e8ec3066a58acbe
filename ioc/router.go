package ioc

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"pdssp-crawler/internal/app"
	"pdssp-crawler/internal/metrics"
	"pdssp-crawler/internal/router"
)

// InitMetrics 构建指标注册表。
func InitMetrics() prometheus.Gatherer {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.MustRegister(reg)
	return reg
}

// InitCollectionHandler 构建集合相关 HTTP 处理器。
func InitCollectionHandler(svc *app.Service, logger *zap.Logger) *router.CollectionHandler {
	return router.NewCollectionHandler(svc, logger)
}

// InitGinEngine 构建 gin 引擎。
func InitGinEngine(handler *router.CollectionHandler, gatherer prometheus.Gatherer) *gin.Engine {
	return router.NewEngine(handler, gatherer)
}
