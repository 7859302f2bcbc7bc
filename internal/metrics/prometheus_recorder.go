package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "staticpress"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg               *prom.Registry
	taskDuration      *prom.HistogramVec
	taskResults       *prom.CounterVec
	transformFiles    *prom.CounterVec
	transformBytes    *prom.CounterVec
	publishResults    *prom.CounterVec
	liveReloadClients prom.Gauge
	liveReloadSent    prom.Counter
}

// NewPrometheusRecorder constructs the metrics and registers them on reg. A
// nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		taskDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of task actions",
			Buckets:   prom.DefBuckets,
		}, []string{"task"}),
		taskResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "task_results_total",
			Help:      "Task results by outcome",
		}, []string{"task", "result"}),
		transformFiles: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "transform_files_total",
			Help:      "Files written by each transform",
		}, []string{"transform"}),
		transformBytes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "transform_bytes_total",
			Help:      "Bytes read and written by each transform",
		}, []string{"transform", "direction"}),
		publishResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "publish_results_total",
			Help:      "Published objects by action",
		}, []string{"action"}),
		liveReloadClients: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "livereload_clients",
			Help:      "Connected live reload clients",
		}),
		liveReloadSent: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "livereload_broadcasts_total",
			Help:      "Reload notifications broadcast to clients",
		}),
	}
	reg.MustRegister(pr.taskDuration, pr.taskResults, pr.transformFiles, pr.transformBytes,
		pr.publishResults, pr.liveReloadClients, pr.liveReloadSent)
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.reg
}

// Handler serves the recorder's registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *PrometheusRecorder) ObserveTaskDuration(task string, d time.Duration) {
	if p == nil {
		return
	}
	p.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(task string, result ResultLabel) {
	if p == nil {
		return
	}
	p.taskResults.WithLabelValues(task, string(result)).Inc()
}

func (p *PrometheusRecorder) AddTransformOutput(transform string, files int, bytesIn, bytesOut int64) {
	if p == nil {
		return
	}
	p.transformFiles.WithLabelValues(transform).Add(float64(files))
	p.transformBytes.WithLabelValues(transform, "in").Add(float64(bytesIn))
	p.transformBytes.WithLabelValues(transform, "out").Add(float64(bytesOut))
}

func (p *PrometheusRecorder) IncPublishResult(action string) {
	if p == nil {
		return
	}
	p.publishResults.WithLabelValues(action).Inc()
}

func (p *PrometheusRecorder) SetLiveReloadClients(n int) {
	if p == nil {
		return
	}
	p.liveReloadClients.Set(float64(n))
}

func (p *PrometheusRecorder) IncLiveReloadBroadcast() {
	if p == nil {
		return
	}
	p.liveReloadSent.Inc()
}
