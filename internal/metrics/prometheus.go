package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crawler_stage_duration_seconds",
		Help:    "单个集合单个阶段耗时",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	StageResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_stage_results_total",
		Help: "阶段执行结果计数",
	}, []string{"stage", "status"})

	IngestNodes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_ingest_nodes_total",
		Help: "入库节点结果计数",
	}, []string{"kind", "state"})

	BatchRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_batch_runs_total",
		Help: "批量处理次数",
	})

	BatchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_batch_errors_total",
		Help: "批量处理中失败的集合数",
	})
)

// MustRegister 注册指标，可在 main 中调用。
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(StageDuration, StageResults, IngestNodes, BatchRuns, BatchErrors)
}
