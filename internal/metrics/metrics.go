package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the classification pipeline.
// All methods are safe on a nil receiver.
type PipelineMetrics struct {
	classifyTotal      *prometheus.CounterVec
	stageLatency       *prometheus.HistogramVec
	decodeFailures     *prometheus.CounterVec
	vocabularyWarnings *prometheus.CounterVec
	persistenceTotal   *prometheus.CounterVec
	escalatedMessages  prometheus.Counter
	classifiedMessages prometheus.Counter
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		classifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "verdict",
			Subsystem: "pipeline",
			Name:      "classify_total",
			Help:      "Classification requests by outcome",
		}, []string{"outcome"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "verdict",
			Subsystem: "pipeline",
			Name:      "stage_latency_seconds",
			Help:      "Latency of classifier stage round trips",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 120},
		}, []string{"stage"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "verdict",
			Subsystem: "pipeline",
			Name:      "decode_failures_total",
			Help:      "Classifier outputs that could not be decoded",
		}, []string{"stage"}),
		vocabularyWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "verdict",
			Subsystem: "pipeline",
			Name:      "vocabulary_warnings_total",
			Help:      "Classifier values outside the controlled vocabularies or contract",
		}, []string{"stage"}),
		persistenceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "verdict",
			Subsystem: "history",
			Name:      "writes_total",
			Help:      "History writes by status",
		}, []string{"status"}),
		escalatedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "verdict",
			Subsystem: "pipeline",
			Name:      "escalated_messages_total",
			Help:      "Messages flagged for escalation",
		}),
		classifiedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "verdict",
			Subsystem: "pipeline",
			Name:      "classified_messages_total",
			Help:      "Messages that went through both stages",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.classifyTotal, m.stageLatency, m.decodeFailures, m.vocabularyWarnings,
		m.persistenceTotal, m.escalatedMessages, m.classifiedMessages)
	return m
}

func (m *PipelineMetrics) ObserveClassify(outcome string) {
	if m == nil {
		return
	}
	m.classifyTotal.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageLatency.WithLabelValues(stage).Observe(seconds)
}

func (m *PipelineMetrics) ObserveDecodeFailure(stage string) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(stage).Inc()
}

func (m *PipelineMetrics) ObserveVocabularyWarnings(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.vocabularyWarnings.WithLabelValues(stage).Add(float64(n))
}

// ObservePersistence records a history write; status is "ok", "failed" or "skipped".
func (m *PipelineMetrics) ObservePersistence(status string) {
	if m == nil {
		return
	}
	m.persistenceTotal.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) ObserveMessages(classified, escalated int) {
	if m == nil {
		return
	}
	m.classifiedMessages.Add(float64(classified))
	m.escalatedMessages.Add(float64(escalated))
}
