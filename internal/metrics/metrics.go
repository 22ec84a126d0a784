package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"catchphish/internal/models"
)

var (
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catchphish_analyses_total",
			Help: "Total number of risk assessments by confidence tier",
		},
		[]string{"tier", "insufficient"},
	)

	SignalResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catchphish_signal_results_total",
			Help: "Signal provider invocations by outcome",
		},
		[]string{"signal", "status"},
	)

	SignalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catchphish_signal_duration_seconds",
			Help:    "Duration of signal provider calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"signal"},
	)

	FeedSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catchphish_feed_syncs_total",
			Help: "Threat feed fetches by feed and result",
		},
		[]string{"feed", "result"},
	)

	FeedDomains = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catchphish_feed_domains",
			Help: "Number of domains currently indexed from threat feeds",
		},
	)

	MonitorCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catchphish_monitor_cycles_total",
			Help: "Feed monitor poll cycles by result",
		},
		[]string{"result"},
	)

	MonitorCandidatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catchphish_monitor_candidates_total",
			Help: "Typosquat candidates found by feed monitors, before de-duplication",
		},
	)

	ActiveMonitors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catchphish_active_monitors",
			Help: "Number of running feed monitors",
		},
	)

	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catchphish_reports_total",
			Help: "Report delivery attempts by source, status and failing stage",
		},
		[]string{"source", "status", "stage"},
	)
)

// RecordAssessment counts a finished assessment.
func RecordAssessment(a models.RiskAssessment) {
	insufficient := "false"
	if a.InsufficientData {
		insufficient = "true"
	}
	AnalysesTotal.WithLabelValues(string(a.Tier), insufficient).Inc()
}

// RecordSignal counts one provider invocation.
func RecordSignal(r models.SignalResult, took time.Duration) {
	SignalResultsTotal.WithLabelValues(string(r.Name), string(r.Status)).Inc()
	SignalDuration.WithLabelValues(string(r.Name)).Observe(took.Seconds())
}

// RecordReport counts a report outcome.
func RecordReport(source string, o models.ReportOutcome) {
	ReportsTotal.WithLabelValues(source, o.Status, o.Stage).Inc()
}

var persistedReportsDesc = prometheus.NewDesc(
	"catchphish_persisted_reports",
	"Reports stored in the database by delivery status",
	[]string{"status"},
	nil,
)

// ReportCounter is implemented by report stores that can summarize their contents.
type ReportCounter interface {
	CountReportsByStatus(ctx context.Context) (map[string]int, error)
}

// ReportCollector is a custom Prometheus collector that reads report counts
// from the database on each scrape.
type ReportCollector struct {
	store   ReportCounter
	timeout time.Duration
}

// Describe sends the metric descriptor to the channel.
func (c *ReportCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- persistedReportsDesc
}

// Collect queries the store and emits one gauge per status.
func (c *ReportCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	counts, err := c.store.CountReportsByStatus(ctx)
	if err != nil {
		slog.Error("failed to collect report metrics", "error", err)
		return
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(
			persistedReportsDesc,
			prometheus.GaugeValue,
			float64(n),
			status,
		)
	}
}

var registerOnce sync.Once

// Init registers the database-backed collector. Must be called once at startup.
func Init(store ReportCounter) {
	registerOnce.Do(func() {
		prometheus.MustRegister(&ReportCollector{store: store, timeout: 5 * time.Second})
	})
}
