// README: Prometheus collectors for the dispatch core.
package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	reports       *prometheus.CounterVec
	pops          *prometheus.CounterVec
	queueDepth    *prometheus.GaugeVec
	eventsDropped prometheus.Counter
	sinkErrors    *prometheus.CounterVec
}

// NewMetrics registers the dispatch collectors on reg. If reg is nil, the
// default registerer is used. Already registered collectors are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reports, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stationq_reports_total",
		Help: "Position reports by resulting placement",
	}, []string{"placement", "changed"}))
	if err != nil {
		return nil, err
	}
	pops, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stationq_pops_total",
		Help: "PopNext calls by outcome",
	}, []string{"station", "result"}))
	if err != nil {
		return nil, err
	}
	depth, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stationq_queue_depth",
		Help: "Agents waiting per station",
	}, []string{"station"}))
	if err != nil {
		return nil, err
	}
	dropped, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stationq_events_dropped_total",
		Help: "Events dropped because the fan-out buffer was full",
	}))
	if err != nil {
		return nil, err
	}
	sinkErrors, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stationq_sink_errors_total",
		Help: "Event deliveries that failed, by sink",
	}, []string{"sink"}))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		reports:       reports,
		pops:          pops,
		queueDepth:    depth,
		eventsDropped: dropped,
		sinkErrors:    sinkErrors,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func (m *Metrics) report(placement string, changed bool) {
	if m == nil {
		return
	}
	label := "false"
	if changed {
		label = "true"
	}
	m.reports.WithLabelValues(placement, label).Inc()
}

func (m *Metrics) pop(station string, dispatched bool) {
	if m == nil {
		return
	}
	result := "empty"
	if dispatched {
		result = "dispatched"
	}
	m.pops.WithLabelValues(station, result).Inc()
}

func (m *Metrics) depth(station string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(station).Set(float64(n))
}

func (m *Metrics) forgetStation(station string) {
	if m == nil {
		return
	}
	m.queueDepth.DeleteLabelValues(station)
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *Metrics) sinkFailed(sink string) {
	if m == nil {
		return
	}
	m.sinkErrors.WithLabelValues(sink).Inc()
}
