package metrics

import (
	"Go2NetAccounting/internal/model"
	"Go2NetAccounting/internal/status"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ns_accounting"

// Exporter exposes the cycle counters as Prometheus metrics. It also observes
// every cycle to record its duration.
type Exporter struct {
	source status.Source
	router string

	iterations  *prometheus.Desc
	written     *prometheus.Desc
	failed      *prometheus.Desc
	lastSuccess *prometheus.Desc
	state       *prometheus.Desc
	duration    *prometheus.HistogramVec
}

// NewExporter creates an Exporter reading counters from source.
func NewExporter(source status.Source, router string) *Exporter {
	labels := prometheus.Labels{"router": router}
	return &Exporter{
		source: source,
		router: router,
		iterations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "iterations_total"),
			"Number of successfully completed polling cycles.", nil, labels),
		written: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "written_records_total"),
			"Number of traffic points accepted by the storage writer.", nil, labels),
		failed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "failed_cycles_total"),
			"Number of polling cycles that failed to fetch or write.", nil, labels),
		lastSuccess: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "last_success_timestamp_seconds"),
			"Unix time of the last successful cycle.", nil, labels),
		state: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "cycle_state"),
			"Current cycle state (0 idle, 1 fetching, 2 parsing, 3 aggregating, 4 classifying, 5 writing).", nil, labels),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "cycle_duration_seconds",
			Help:        "Duration of polling cycles.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: labels,
		}, []string{"result"}),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.iterations
	ch <- e.written
	ch <- e.failed
	ch <- e.lastSuccess
	ch <- e.state
	e.duration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	r := e.source.Report()
	ch <- prometheus.MustNewConstMetric(e.iterations, prometheus.CounterValue, float64(r.Iterations))
	ch <- prometheus.MustNewConstMetric(e.written, prometheus.CounterValue, float64(r.WrittenRecords))
	ch <- prometheus.MustNewConstMetric(e.failed, prometheus.CounterValue, float64(r.FailedCycles))

	last := 0.0
	if !r.LastSuccess.IsZero() {
		last = float64(r.LastSuccess.UnixNano()) / 1e9
	}
	ch <- prometheus.MustNewConstMetric(e.lastSuccess, prometheus.GaugeValue, last)
	ch <- prometheus.MustNewConstMetric(e.state, prometheus.GaugeValue, float64(r.State))
	e.duration.Collect(ch)
}

// ObserveCycle implements model.CycleObserver.
func (e *Exporter) ObserveCycle(result model.CycleResult) {
	outcome := "success"
	if result.Err != nil {
		outcome = "failure"
	}
	e.duration.WithLabelValues(outcome).Observe(result.Duration.Seconds())
}
