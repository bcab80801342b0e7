// Package metrics exports collection progress as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dna_collector"

// Recorder owns a private registry so several recorders can coexist in tests.
type Recorder struct {
	reg *prometheus.Registry

	framesAnalyzed  *prometheus.CounterVec
	framesFailed    *prometheus.CounterVec
	subjects        *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	limiterWait     prometheus.Histogram
	limiterInWindow prometheus.Gauge
	runDuration     prometheus.Histogram
	lastRun         prometheus.Gauge
	lastSucceeded   prometheus.Gauge
}

// New creates a Recorder with every collector registered.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		framesAnalyzed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_analyzed_total",
			Help:      "Frames successfully analyzed, by subject.",
		}, []string{"subject"}),
		framesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_failed_total",
			Help:      "Frames whose analysis failed, by subject and reason.",
		}, []string{"subject", "reason"}),
		subjects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subjects_processed_total",
			Help:      "Subjects processed, by outcome.",
		}, []string{"status"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Remote upserts, by result.",
		}, []string{"result"}),
		limiterWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ratelimit_wait_seconds",
			Help:      "Time spent blocked waiting for analysis call admission.",
			Buckets:   []float64{0.5, 1, 5, 10, 20, 30, 45, 60, 90},
		}),
		limiterInWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ratelimit_calls_in_window",
			Help:      "Calls in the trailing window when the last wait started.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full pipeline run.",
			Buckets:   prometheus.ExponentialBuckets(30, 2, 10),
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		lastSucceeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_succeeded_subjects",
			Help:      "Subjects that produced a profile in the last run.",
		}),
	}

	r.reg.MustRegister(
		r.framesAnalyzed,
		r.framesFailed,
		r.subjects,
		r.uploads,
		r.limiterWait,
		r.limiterInWindow,
		r.runDuration,
		r.lastRun,
		r.lastSucceeded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Recorder) FrameAnalyzed(subjectID string) {
	r.framesAnalyzed.WithLabelValues(subjectID).Inc()
}

func (r *Recorder) FrameFailed(subjectID, reason string) {
	r.framesFailed.WithLabelValues(subjectID, reason).Inc()
}

// LimiterWait has the shape of ratelimit.WaitFunc.
func (r *Recorder) LimiterWait(wait time.Duration, inWindow int) {
	r.limiterWait.Observe(wait.Seconds())
	r.limiterInWindow.Set(float64(inWindow))
}

// SubjectFinished counts one subject outcome ("ok", "no_data", "error").
func (r *Recorder) SubjectFinished(status string) {
	r.subjects.WithLabelValues(status).Inc()
}

// UploadFinished counts one remote upsert.
func (r *Recorder) UploadFinished(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	r.uploads.WithLabelValues(result).Inc()
}

// RunFinished records the outcome of a whole run.
func (r *Recorder) RunFinished(succeeded int, elapsed time.Duration, at time.Time) {
	r.runDuration.Observe(elapsed.Seconds())
	r.lastRun.Set(float64(at.Unix()))
	r.lastSucceeded.Set(float64(succeeded))
}
