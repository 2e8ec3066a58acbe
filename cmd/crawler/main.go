package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"pdssp-crawler/internal/app"
	"pdssp-crawler/ioc"
	"pdssp-crawler/pkg/logging"
)

type globalOptions struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "crawler",
		Short:         "Harvest planetary data catalogs into a STAC API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/config.yaml", "配置文件路径")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "日志级别，覆盖配置文件")

	cmd.AddCommand(
		configCmd(opts),
		initdsCmd(opts),
		collectionsCmd(opts),
		stageCmd(opts, "extract", "Extract source metadata of collections"),
		stageCmd(opts, "transform", "Transform extracted metadata into STAC"),
		stageCmd(opts, "process", "Run extract, transform and ingest"),
		ingestCmd(opts),
		registryCmd(opts),
		serveCmd(opts),
	)
	return cmd
}

func (o *globalOptions) load() (app.Config, error) {
	cfg, err := app.LoadConfig(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

// withService 构建服务并在 fn 返回后释放。
func (o *globalOptions) withService(ctx context.Context, fn func(svc *app.Service, logger *zap.Logger) error) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	store, closeStore, err := ioc.InitStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	svc, cleanup, err := ioc.InitAppService(ctx, cfg, store, ioc.InitRegistry(cfg), logger)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(svc, logger)
}
