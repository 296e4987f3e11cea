package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "readmission"

var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)

	rowsRead = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "rows_read_total",
		Help:      "Raw encounter rows read across all runs.",
	})
	rowsCleaned = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "rows_cleaned_total",
		Help:      "Rows surviving cleaning across all runs.",
	})
	rowsDropped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "rows_dropped_total",
		Help:      "Rows dropped for missing critical fields across all runs.",
	})
	featureColumns = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "feature_columns",
		Help:      "Width of the feature matrix produced by the latest successful run.",
	})
	runs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Pipeline runs by outcome.",
	}, []string{"status"})
	runDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Wall time of successful pipeline runs.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	trainingJobs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "training",
		Name:      "jobs_total",
		Help:      "Training jobs by terminal status.",
	}, []string{"status"})
	predictions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "serving",
		Name:      "predictions_total",
		Help:      "Prediction requests by outcome.",
	}, []string{"status"})
	predictionLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "serving",
		Name:      "prediction_latency_seconds",
		Help:      "Latency of successful predictions.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})
)

func ObserveRun(read, cleaned, dropped, columns int, elapsed time.Duration) {
	rowsRead.Add(float64(read))
	rowsCleaned.Add(float64(cleaned))
	rowsDropped.Add(float64(dropped))
	featureColumns.Set(float64(columns))
	runs.WithLabelValues("completed").Inc()
	runDuration.Observe(elapsed.Seconds())
}

func ObserveRunFailure() {
	runs.WithLabelValues("failed").Inc()
}

func ObserveTrainingJob(status string) {
	trainingJobs.WithLabelValues(status).Inc()
}

func ObservePrediction(err error, elapsed time.Duration) {
	if err != nil {
		predictions.WithLabelValues("error").Inc()
		return
	}
	predictions.WithLabelValues("ok").Inc()
	predictionLatency.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
