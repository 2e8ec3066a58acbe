package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"pdssp-crawler/internal/app"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/ingest"
	"pdssp-crawler/internal/pipeline"
	"pdssp-crawler/internal/record"
	"pdssp-crawler/ioc"
	"pdssp-crawler/pkg/server"
)

func configCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Destination.Token != "" {
				cfg.Destination.Token = "***"
			}
			if cfg.Neo4j.Password != "" {
				cfg.Neo4j.Password = "***"
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

func initdsCmd(opts *globalOptions) *cobra.Command {
	var merge bool
	cmd := &cobra.Command{
		Use:   "initds",
		Short: "Reset the collections store from the registered services",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd.Context(), func(svc *app.Service, logger *zap.Logger) error {
				if merge {
					added, err := svc.Reconcile(cmd.Context())
					fmt.Fprintf(cmd.OutOrStdout(), "%d collections added\n", added)
					return err
				}
				n, err := svc.ResetStore(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "%d collections registered\n", n)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&merge, "merge", false, "只追加新发现的集合，保留已有记录")
	return cmd
}

type filterFlags struct {
	id          string
	serviceType string
	target      string
	extracted   bool
	transformed bool
	ingested    bool
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "id", "", "集合 ID 子串")
	cmd.Flags().StringVar(&f.serviceType, "service-type", "", "服务类型，如 PDSODE、WFS")
	cmd.Flags().StringVar(&f.target, "target", "", "目标天体")
	cmd.Flags().BoolVar(&f.extracted, "extracted", false, "按是否已抽取过滤")
	cmd.Flags().BoolVar(&f.transformed, "transformed", false, "按是否已转换过滤")
	cmd.Flags().BoolVar(&f.ingested, "ingested", false, "按是否已入库过滤")
}

func (f *filterFlags) filter(cmd *cobra.Command) record.Filter {
	filter := record.Filter{ID: f.id, ServiceType: f.serviceType, Target: f.target}
	if cmd.Flags().Changed("extracted") {
		filter.Extracted = record.Bool(f.extracted)
	}
	if cmd.Flags().Changed("transformed") {
		filter.Transformed = record.Bool(f.transformed)
	}
	if cmd.Flags().Changed("ingested") {
		filter.Ingested = record.Bool(f.ingested)
	}
	return filter
}

func collectionsCmd(opts *globalOptions) *cobra.Command {
	flags := &filterFlags{}
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "List collections of the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd.Context(), func(svc *app.Service, _ *zap.Logger) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSERVICE\tTARGET\tPRODUCTS\tEXTRACTED\tTRANSFORMED\tINGESTED")
				for _, rec := range svc.Collections(flags.filter(cmd)) {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%t\t%t\n",
						rec.ID, rec.Service.Type, rec.Target, rec.ProductCount, rec.Extracted, rec.Transformed, rec.Ingested)
				}
				return w.Flush()
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func stageCmd(opts *globalOptions, name, short string) *cobra.Command {
	flags := &filterFlags{}
	var overwrite bool
	stage := domain.StageIngest
	if name != "process" {
		stage, _ = domain.ParseStage(name)
	}
	cmd := &cobra.Command{
		Use:   name + " [collection-id]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd.Context(), func(svc *app.Service, _ *zap.Logger) error {
				if len(args) == 1 {
					result := svc.Run(cmd.Context(), args[0], stage, overwrite)
					printResult(cmd, result)
					return result.Err
				}
				batch := svc.RunAll(cmd.Context(), flags.filter(cmd), stage, overwrite)
				for _, r := range batch.Results {
					printResult(cmd, r)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "succeeded=%d skipped=%d failed=%d\n",
					batch.Count(domain.StatusSucceeded), batch.Count(domain.StatusSkipped), batch.Count(domain.StatusFailed))
				return batch.Err()
			})
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "重新执行已完成的阶段")
	return cmd
}

func printResult(cmd *cobra.Command, r pipeline.CollectionResult) {
	stages := make([]string, 0, len(r.Stages))
	for _, s := range r.Stages {
		stages = append(stages, fmt.Sprintf("%s:%s", s.Stage, s.Status))
	}
	line := fmt.Sprintf("%s\t%s\t%s", r.CollectionID, r.Status(), strings.Join(stages, ","))
	if r.Err != nil {
		line += "\t" + r.Err.Error()
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}

func ingestCmd(opts *globalOptions) *cobra.Command {
	var (
		overwrite bool
		update    bool
		target    string
		file      string
		strategy  string
	)
	cmd := &cobra.Command{
		Use:   "ingest [collection-id]",
		Short: "Ingest STAC collections, a target catalog or a STAC file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd.Context(), func(svc *app.Service, _ *zap.Logger) error {
				ctx := cmd.Context()
				switch {
				case len(args) == 1:
					result := svc.Run(ctx, args[0], domain.StageIngest, overwrite)
					printResult(cmd, result)
					return result.Err
				case target == "" && file == "":
					return fmt.Errorf("需要指定集合 ID、--target 或 --file")
				}
				s, err := ingest.ParseStrategy(strategy)
				if err != nil {
					return err
				}
				var out ingest.Outcome
				if file != "" {
					out, err = svc.IngestFile(ctx, file, s, update)
					if err == nil {
						err = out.Err()
					}
				} else {
					out, err = svc.IngestTarget(ctx, target, s, update)
				}
				printOutcome(cmd, out)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "重新执行已完成的阶段")
	cmd.Flags().BoolVar(&update, "update", false, "目标已存在时用 PUT 更新")
	cmd.Flags().StringVar(&target, "target", "", "推送目标天体的整个目录")
	cmd.Flags().StringVar(&file, "file", "", "推送任意 STAC 目录或集合文件")
	cmd.Flags().StringVar(&strategy, "strategy", "", "入库策略：catalog、feature、both、none")
	return cmd
}

func printOutcome(cmd *cobra.Command, out ingest.Outcome) {
	if out.RunID == "" {
		return
	}
	counts := map[ingest.NodeState]int{}
	for _, n := range out.Nodes {
		counts[n.State]++
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s root=%s url=%s\n", out.RunID, out.Root.ID, out.Root.URL)
	for _, state := range []ingest.NodeState{ingest.NodePublished, ingest.NodeUpdated, ingest.NodeSkippedExists, ingest.NodeDeduped, ingest.NodeExcluded, ingest.NodeFailed} {
		if counts[state] > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d\n", state, counts[state])
		}
	}
}

func registryCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "registry",
		Short: "List registered data catalog services",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd.Context(), func(svc *app.Service, _ *zap.Logger) error {
				services, err := svc.Services(cmd.Context())
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TYPE\tTITLE\tTARGETS\tURL")
				for _, s := range services {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Type, s.Title, strings.Join(s.Targets, ","), s.URL)
				}
				if flushErr := w.Flush(); err == nil {
					err = flushErr
				}
				return err
			})
		},
	}
}

func serveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled batch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd.Context(), func(svc *app.Service, logger *zap.Logger) error {
				cfg := svc.Config()
				engine := ioc.InitGinEngine(ioc.InitCollectionHandler(svc, logger), ioc.InitMetrics())
				srv := server.NewHTTPServer(engine, logger, cfg, svc,
					ioc.InitScheduler(cfg, svc, logger), ioc.InitHourlyLogger(svc, logger))
				return srv.Run(cmd.Context())
			})
		},
	}
}
