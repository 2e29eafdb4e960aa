package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "heitor"

// EngineMetrics exposes counters/histograms for the conversation engine.
type EngineMetrics struct {
	appliedTotal    *prometheus.CounterVec
	topicChanges    prometheus.Counter
	importance      prometheus.Histogram
	storeOpDuration *prometheus.HistogramVec
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		appliedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "messages_applied_total",
			Help:      "Inbound messages folded into conversation state",
		}, []string{"intent", "outcome"}),
		topicChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "topic_changes_total",
			Help:      "Topics opened by the segmenter",
		}),
		importance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "message_importance",
			Help:      "Importance scores assigned to inbound messages",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		storeOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "store_operation_seconds",
			Help:      "Latency of document store operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.appliedTotal, m.topicChanges, m.importance, m.storeOpDuration)
	return m
}

func (m *EngineMetrics) ObserveApplied(intent, outcome string) {
	if m == nil {
		return
	}
	m.appliedTotal.WithLabelValues(intent, outcome).Inc()
}

func (m *EngineMetrics) ObserveTopicChange() {
	if m == nil {
		return
	}
	m.topicChanges.Inc()
}

func (m *EngineMetrics) ObserveImportance(score int) {
	if m == nil {
		return
	}
	m.importance.Observe(float64(score))
}

// ObserveStoreOp records a store call that started at start.
func (m *EngineMetrics) ObserveStoreOp(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.storeOpDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

// DispatchMetrics exposes counters/histograms for the message bus worker
// and the digest scheduler.
type DispatchMetrics struct {
	jobsTotal   *prometheus.CounterVec
	jobLatency  prometheus.Histogram
	repliesSent *prometheus.CounterVec
	reportsSent *prometheus.CounterVec
}

func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	m := &DispatchMetrics{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "jobs_total",
			Help:      "Queue messages handled by the worker",
		}, []string{"outcome"}),
		jobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "job_latency_seconds",
			Help:      "Time from receive to completion of a queue message",
			Buckets:   prometheus.DefBuckets,
		}),
		repliesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "replies_total",
			Help:      "Replies handed to the outbound sender",
		}, []string{"kind", "status"}),
		reportsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "digests_total",
			Help:      "Digest emails produced by the scheduler",
		}, []string{"period", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.jobsTotal, m.jobLatency, m.repliesSent, m.reportsSent)
	return m
}

func (m *DispatchMetrics) ObserveJob(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(outcome).Inc()
	m.jobLatency.Observe(seconds)
}

func (m *DispatchMetrics) ObserveReply(audio bool, status string) {
	if m == nil {
		return
	}
	kind := "text"
	if audio {
		kind = "audio"
	}
	m.repliesSent.WithLabelValues(kind, status).Inc()
}

func (m *DispatchMetrics) ObserveDigest(period, status string) {
	if m == nil {
		return
	}
	m.reportsSent.WithLabelValues(period, status).Inc()
}
