package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 检索核心指标
var (
	IngestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pensionos_ingest_total",
		Help: "Document ingestions by outcome",
	}, []string{"outcome"})

	IngestStageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pensionos_ingest_stage_failures_total",
		Help: "Ingestion failures by pipeline stage",
	}, []string{"stage"})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pensionos_search_duration_seconds",
		Help:    "Vector search latency",
		Buckets: prometheus.DefBuckets,
	})

	ContextFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pensionos_context_threshold_fallbacks_total",
		Help: "Context assemblies that fell back below the relevance threshold",
	})

	ChatTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pensionos_chat_turns_total",
		Help: "Chat turns by whether grounding context was used",
	}, []string{"context_used"})
)

// Handler 返回Prometheus指标的HTTP处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
