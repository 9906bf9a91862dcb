package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	JobOutcomeCompleted = "completed"
	JobOutcomeFailed    = "failed"
	JobOutcomeOffTopic  = "off_topic"
)

// GradingMetrics captures grading pipeline health signals.
type GradingMetrics struct {
	jobsTotal     *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	llmAttempts   *prometheus.CounterVec
	usageCostUSD  prometheus.Counter
	costAlerts    prometheus.Counter
	requeuedTotal prometheus.Counter
	quotaDenied   *prometheus.CounterVec
}

var (
	gradingOnce     sync.Once
	gradingInstance *GradingMetrics
)

// Grading returns the process-wide grading metrics, registering them on first use.
func Grading() *GradingMetrics {
	gradingOnce.Do(func() {
		gradingInstance = NewGradingMetrics(prometheus.DefaultRegisterer)
	})
	return gradingInstance
}

// NewGradingMetrics builds and registers grading metrics on the given registerer.
func NewGradingMetrics(reg prometheus.Registerer) *GradingMetrics {
	m := &GradingMetrics{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentora_grading_jobs_total",
			Help: "Grading jobs processed by terminal outcome.",
		}, []string{"outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mentora_grading_job_duration_seconds",
			Help:    "Wall-clock duration of a grading job.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"outcome"}),
		llmAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentora_llm_attempts_total",
			Help: "LLM call attempts by result kind.",
		}, []string{"kind"}),
		usageCostUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mentora_usage_cost_usd_total",
			Help: "Accumulated LLM spend in USD.",
		}),
		costAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mentora_cost_alerts_total",
			Help: "Monthly cost alert threshold crossings.",
		}),
		requeuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mentora_grading_requeued_total",
			Help: "Stuck processing submissions returned to pending by the recovery sweep.",
		}),
		quotaDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentora_quota_denied_total",
			Help: "Submissions rejected because the monthly quota was exhausted.",
		}, []string{"feature"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.jobsTotal,
			m.jobDuration,
			m.llmAttempts,
			m.usageCostUSD,
			m.costAlerts,
			m.requeuedTotal,
			m.quotaDenied,
		)
	}
	return m
}

func (m *GradingMetrics) IncJob(outcome string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *GradingMetrics) ObserveJobDuration(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(normalizeLabel(outcome)).Observe(d.Seconds())
}

func (m *GradingMetrics) IncLLMAttempt(kind string) {
	if m == nil {
		return
	}
	m.llmAttempts.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *GradingMetrics) AddUsageCost(usd float64) {
	if m == nil || usd <= 0 {
		return
	}
	m.usageCostUSD.Add(usd)
}

func (m *GradingMetrics) IncCostAlert() {
	if m == nil {
		return
	}
	m.costAlerts.Inc()
}

func (m *GradingMetrics) IncRequeued(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.requeuedTotal.Add(float64(n))
}

func (m *GradingMetrics) IncQuotaDenied(feature string) {
	if m == nil {
		return
	}
	m.quotaDenied.WithLabelValues(normalizeLabel(feature)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}
