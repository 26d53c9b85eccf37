package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hormur/event-syndicator/internal/models"
)

// Registry holds every collector of the service; /metrics serves it.
var Registry = prometheus.NewRegistry()

var (
	publishResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syndicator_publish_results_total",
			Help: "Platform workflow outcomes.",
		},
		[]string{"platform", "outcome"},
	)
	publishFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syndicator_publish_failures_total",
			Help: "Failed platform workflows by error kind and last reached state.",
		},
		[]string{"platform", "kind", "state"},
	)
	publishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syndicator_publish_duration_seconds",
			Help:    "Time taken by one platform workflow, session launch to teardown.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"platform"},
	)
	transcodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syndicator_image_transcode_total",
			Help: "Image transcodes by outcome.",
		},
		[]string{"outcome"},
	)
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syndicator_dispatch_total",
			Help: "Submitted publish requests by dispatch mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "syndicator_active_browser_sessions",
			Help: "Automation sessions currently open.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		publishResultsTotal,
		publishFailuresTotal,
		publishDuration,
		transcodeTotal,
		dispatchTotal,
		activeSessions,
	)
}

// ObserveResult records one finished workflow.
func ObserveResult(res models.JobResult, took time.Duration) {
	p := string(res.Platform)
	publishDuration.WithLabelValues(p).Observe(took.Seconds())
	if res.Success {
		publishResultsTotal.WithLabelValues(p, "success").Inc()
		return
	}
	publishResultsTotal.WithLabelValues(p, "failure").Inc()
	publishFailuresTotal.WithLabelValues(p, string(res.ErrorKind), res.State).Inc()
}

func ObserveTranscode(ok bool) {
	if ok {
		transcodeTotal.WithLabelValues("success").Inc()
		return
	}
	transcodeTotal.WithLabelValues("failure").Inc()
}

func ObserveDispatch(mode string, err error) {
	outcome := "accepted"
	if err != nil {
		outcome = string(models.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	dispatchTotal.WithLabelValues(mode, outcome).Inc()
}

func SessionOpened() { activeSessions.Inc() }
func SessionClosed() { activeSessions.Dec() }
