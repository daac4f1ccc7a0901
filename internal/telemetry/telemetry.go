// Package telemetry exposes Prometheus metrics for the pipeline. All
// record methods are safe on a nil receiver so library callers can opt
// out.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Telemetry struct {
	registry *prometheus.Registry

	llmRequests     *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
	articlesFetched *prometheus.CounterVec
	forecasts       *prometheus.CounterVec
	pipelineSeconds prometheus.Histogram
}

func New() *Telemetry {
	reg := prometheus.NewRegistry()
	t := &Telemetry{
		registry: reg,
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_llm_requests_total",
			Help: "Completion and embedding requests by provider, model and outcome.",
		}, []string{"provider", "model", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "foresight_llm_request_seconds",
			Help:    "Latency of provider requests.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"provider"}),
		articlesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_articles_retrieved_total",
			Help: "Articles returned by news sources before dedup.",
		}, []string{"source"}),
		forecasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_forecasts_total",
			Help: "Completed forecast runs by status.",
		}, []string{"status"}),
		pipelineSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "foresight_pipeline_seconds",
			Help:    "Wall time of a full per-question pipeline run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	reg.MustRegister(t.llmRequests, t.llmLatency, t.articlesFetched, t.forecasts, t.pipelineSeconds)
	return t
}

func (t *Telemetry) Handler() http.Handler {
	if t == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

func (t *Telemetry) RecordLLMRequest(provider, model string, dur time.Duration, err error) {
	if t == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	t.llmRequests.WithLabelValues(provider, model, outcome).Inc()
	t.llmLatency.WithLabelValues(provider).Observe(dur.Seconds())
}

func (t *Telemetry) RecordArticles(source string, n int) {
	if t == nil {
		return
	}
	t.articlesFetched.WithLabelValues(source).Add(float64(n))
}

func (t *Telemetry) RecordForecast(status string, dur time.Duration) {
	if t == nil {
		return
	}
	t.forecasts.WithLabelValues(status).Inc()
	t.pipelineSeconds.Observe(dur.Seconds())
}
