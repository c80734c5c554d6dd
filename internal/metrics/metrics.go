package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	Registry = prometheus.NewRegistry()

	// WebhookEvents counts inbound webhook line items by outcome.
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_events_total", Help: "Inbound webhook line items by outcome."},
		[]string{"outcome"},
	)
	// JobsProcessed counts queue jobs by final outcome.
	JobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "jobs_processed_total", Help: "Provisioning jobs by outcome."},
		[]string{"outcome"},
	)
	// JobDuration tracks end-to-end processing time of one job attempt.
	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "job_duration_seconds", Help: "Job attempt duration in seconds.", Buckets: prometheus.DefBuckets},
	)
)

func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(WebhookEvents)
		Registry.MustRegister(JobsProcessed)
		Registry.MustRegister(JobDuration)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
