package metrics

import "github.com/prometheus/client_golang/prometheus"

// BoardMetrics exposes counters/histograms for the pipeline board engine.
type BoardMetrics struct {
	pageLoads    *prometheus.CounterVec
	moves        *prometheus.CounterVec
	moveLatency  *prometheus.HistogramVec
	bulkActions  *prometheus.CounterVec
	bulkAffected *prometheus.CounterVec
	liveMessages *prometheus.CounterVec
}

func NewBoardMetrics(reg prometheus.Registerer) *BoardMetrics {
	m := &BoardMetrics{
		pageLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "pipeline",
			Name:      "page_loads_total",
			Help:      "Partition page loads by stage and outcome",
		}, []string{"stage", "status"}),
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "pipeline",
			Name:      "moves_total",
			Help:      "Resolved move intents by target stage and outcome",
		}, []string{"to", "outcome"}),
		moveLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medspa",
			Subsystem: "pipeline",
			Name:      "move_commit_seconds",
			Help:      "Latency of the remote move commit",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		bulkActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "pipeline",
			Name:      "bulk_actions_total",
			Help:      "Bulk actions by kind and outcome",
		}, []string{"action", "status"}),
		bulkAffected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "pipeline",
			Name:      "bulk_affected_leads_total",
			Help:      "Leads reported affected by successful bulk actions",
		}, []string{"action"}),
		liveMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "livestats",
			Name:      "messages_total",
			Help:      "Live statistics push messages by outcome",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.pageLoads, m.moves, m.moveLatency, m.bulkActions, m.bulkAffected, m.liveMessages)
	return m
}

func (m *BoardMetrics) ObservePageLoad(stage, status string) {
	if m == nil {
		return
	}
	m.pageLoads.WithLabelValues(stage, status).Inc()
}

func (m *BoardMetrics) ObserveMove(to, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.moves.WithLabelValues(to, outcome).Inc()
	if seconds > 0 {
		m.moveLatency.WithLabelValues(outcome).Observe(seconds)
	}
}

func (m *BoardMetrics) ObserveBulk(action, status string, affected int) {
	if m == nil {
		return
	}
	m.bulkActions.WithLabelValues(action, status).Inc()
	if affected > 0 {
		m.bulkAffected.WithLabelValues(action).Add(float64(affected))
	}
}

// ObserveLiveMessage records a push message as applied, dropped or invalid.
func (m *BoardMetrics) ObserveLiveMessage(status string) {
	if m == nil {
		return
	}
	m.liveMessages.WithLabelValues(status).Inc()
}
