package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters/histograms for the booking assistant.
type Metrics struct {
	dialogueTurns  *prometheus.CounterVec
	reminders      *prometheus.CounterVec
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	webhookLatency prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "medspa",
		Subsystem: "messaging",
		Name:      "webhook_latency_seconds",
		Help:      "Latency of WhatsApp webhook processing",
		Buckets:   prometheus.DefBuckets,
	})
	m := &Metrics{
		dialogueTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "dialogue",
			Name:      "turns_total",
			Help:      "Dialogue turns by starting state and outcome",
		}, []string{"state", "outcome"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Name:      "reminders_total",
			Help:      "Reminder sweep results",
		}, []string{"result"}),
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "messaging",
			Name:      "inbound_total",
			Help:      "Inbound WhatsApp messages by pipeline outcome",
		}, []string{"status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Outbound WhatsApp replies by delivery status",
		}, []string{"status"}),
		webhookLatency: latency,
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.dialogueTurns, m.reminders, m.inboundTotal, m.outboundTotal, latency)
	return m
}

func (m *Metrics) RecordTurn(state, outcome string) {
	if m == nil {
		return
	}
	m.dialogueTurns.WithLabelValues(state, outcome).Inc()
}

func (m *Metrics) RecordReminder(result string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveWebhookLatency(seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.Observe(seconds)
}
