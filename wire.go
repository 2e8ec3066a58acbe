//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"pdssp-crawler/ioc"
	"pdssp-crawler/pkg/server"
)

func InitApp(ctx context.Context) (*server.HTTPServer, func(), error) {
	panic(wire.Build(
		ioc.InitConfig,
		ioc.InitLogger,
		ioc.InitStore,
		ioc.InitRegistry,
		ioc.InitAppService,
		ioc.InitMetrics,
		ioc.InitCollectionHandler,
		ioc.InitGinEngine,
		ioc.InitScheduler,
		ioc.InitHourlyLogger,
		server.NewHTTPServer,
	))
}
