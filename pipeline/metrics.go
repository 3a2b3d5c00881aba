package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the set of counters a Factory increments as it drives commands through the wire.
// A nil *Metrics is safe to use: every increment method checks for a nil receiver first.
type Metrics struct {
	CommandsQueued   prometheus.Counter
	CommandsExecuted prometheus.Counter
	RepliesCompleted prometheus.Counter
	RepliesFailed    prometheus.Counter
	CommandsDisposed prometheus.Counter
	BytesSent        prometheus.Counter
	BytesReceived    prometheus.Counter
}

// NewMetrics constructs a Metrics set under the given namespace, ready for Register.
func NewMetrics(namespace string) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: "pipeline", Name: name, Help: help})
	}
	return &Metrics{
		CommandsQueued:   counter("commands_queued_total", "Commands attached to the factory."),
		CommandsExecuted: counter("commands_executed_total", "Commands sent on the wire."),
		RepliesCompleted: counter("replies_completed_total", "Tagged OK replies dispatched."),
		RepliesFailed:    counter("replies_failed_total", "Tagged NO/BAD replies dispatched."),
		CommandsDisposed: counter("commands_disposed_total", "Commands disposed."),
		BytesSent:        counter("bytes_sent_total", "Approximate wire bytes sent."),
		BytesReceived:    counter("bytes_received_total", "Approximate wire bytes received."),
	}
}

// Register registers every counter with reg, typically a *prometheus.Registry owned by the
// embedding application.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.CommandsQueued, m.CommandsExecuted, m.RepliesCompleted, m.RepliesFailed,
		m.CommandsDisposed, m.BytesSent, m.BytesReceived,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) incQueued() {
	if m != nil {
		m.CommandsQueued.Inc()
	}
}
func (m *Metrics) incExecuted() {
	if m != nil {
		m.CommandsExecuted.Inc()
	}
}
func (m *Metrics) incCompleted() {
	if m != nil {
		m.RepliesCompleted.Inc()
	}
}
func (m *Metrics) incFailed() {
	if m != nil {
		m.RepliesFailed.Inc()
	}
}
func (m *Metrics) incDisposed() {
	if m != nil {
		m.CommandsDisposed.Inc()
	}
}
func (m *Metrics) addBytesSent(n int) {
	if m != nil {
		m.BytesSent.Add(float64(n))
	}
}
func (m *Metrics) addBytesReceived(n int) {
	if m != nil {
		m.BytesReceived.Add(float64(n))
	}
}
