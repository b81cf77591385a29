package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var msBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000}

var (
	PipelineRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salesmap_pipeline_runs_total",
		Help: "Total pipeline runs by outcome",
	}, []string{"outcome"})
	PipelineDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "salesmap_pipeline_duration_ms",
		Help:    "End-to-end pipeline duration in milliseconds",
		Buckets: msBuckets,
	})
	StageDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "salesmap_stage_duration_ms",
		Help:    "Pipeline stage duration in milliseconds",
		Buckets: msBuckets,
	}, []string{"stage"})
	PointsMatchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "salesmap_points_matched_total",
		Help: "Total points assigned to a region",
	})
	PointsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "salesmap_points_dropped_total",
		Help: "Total points outside every region",
	})
	ClassifyFallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salesmap_classify_fallback_total",
		Help: "Classifications that fell back to the continuous scale",
	}, []string{"reason"})
	ExportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salesmap_exports_total",
		Help: "Static map exports by format",
	}, []string{"format"})
	SessionHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salesmap_session_hits_total",
		Help: "Session store hits",
	}, []string{"backend"})
	SessionMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salesmap_session_misses_total",
		Help: "Session store misses",
	}, []string{"backend"})
	UploadBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salesmap_upload_bytes_total",
		Help: "Uploaded bytes by kind",
	}, []string{"kind"})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "salesmap_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)

func init() {
	prometheus.MustRegister(PipelineRunsTotal)
	prometheus.MustRegister(PipelineDurationMs)
	prometheus.MustRegister(StageDurationMs)
	prometheus.MustRegister(PointsMatchedTotal)
	prometheus.MustRegister(PointsDroppedTotal)
	prometheus.MustRegister(ClassifyFallbackTotal)
	prometheus.MustRegister(ExportsTotal)
	prometheus.MustRegister(SessionHitsTotal)
	prometheus.MustRegister(SessionMissesTotal)
	prometheus.MustRegister(UploadBytesTotal)
	prometheus.MustRegister(RateLimitedTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 {API_BASE}/metrics，供 Prometheus 抓取；在主入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
