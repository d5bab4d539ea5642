package metrics

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "binlog_sentinel"

// Metric records what the sentinel does with the captured stream.
type Metric interface {
	AddEvent(table, operation string, rows int)
	SetPosition(segment string, offset uint64)
	SetState(state string)
	AddCheckpoint(err error)
	PrometheusCollectors() []prometheus.Collector
}

var hostname, _ = os.Hostname()

// States are the values SetState reports; the state gauge is 1 for the
// current one and 0 for the others.
var States = []string{"idle", "connecting", "streaming", "stopped", "failed"}

type metric struct {
	name        string
	events      *prometheus.CounterVec
	rows        *prometheus.CounterVec
	offset      prometheus.Gauge
	segment     *prometheus.GaugeVec
	state       *prometheus.GaugeVec
	checkpoints *prometheus.CounterVec

	lastSegment string
}

func NewMetric(name string) Metric {
	labels := prometheus.Labels{"host": hostname, "capturer": name}
	return &metric{
		name: name,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "events",
			Name:        "total",
			Help:        "total number of row events written to the sink",
			ConstLabels: labels,
		}, []string{"table", "operation"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "rows",
			Name:        "total",
			Help:        "total number of changed rows written to the sink",
			ConstLabels: labels,
		}, []string{"table", "operation"}),
		offset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "position",
			Name:        "offset",
			Help:        "offset of the last event in the current binlog file",
			ConstLabels: labels,
		}),
		segment: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "position",
			Name:        "segment",
			Help:        "1 for the binlog file currently being read",
			ConstLabels: labels,
		}, []string{"segment"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "capturer",
			Name:        "state",
			Help:        "1 for the current capturer state",
			ConstLabels: labels,
		}, []string{"state"}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "checkpoint",
			Name:        "writes_total",
			Help:        "total number of checkpoint writes by result",
			ConstLabels: labels,
		}, []string{"result"}),
	}
}

func (m *metric) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.events,
		m.rows,
		m.offset,
		m.segment,
		m.state,
		m.checkpoints,
	}
}

func (m *metric) AddEvent(table, operation string, rows int) {
	m.events.WithLabelValues(table, operation).Inc()
	m.rows.WithLabelValues(table, operation).Add(float64(rows))
}

// SetPosition is only called from the capture goroutine.
func (m *metric) SetPosition(segment string, offset uint64) {
	if segment != m.lastSegment {
		if m.lastSegment != "" {
			m.segment.DeleteLabelValues(m.lastSegment)
		}
		m.segment.WithLabelValues(segment).Set(1)
		m.lastSegment = segment
	}
	m.offset.Set(float64(offset))
}

func (m *metric) SetState(state string) {
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

func (m *metric) AddCheckpoint(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.checkpoints.WithLabelValues(result).Inc()
}

// Handler serves the collectors of m on a dedicated registry, together with
// the Go runtime and process collectors.
func Handler(m Metric) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	collectors := append([]prometheus.Collector{
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	}, m.PrometheusCollectors()...)
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}), nil
}

type noop struct{}

// Noop discards everything.
func Noop() Metric { return noop{} }

func (noop) AddEvent(string, string, int)                 {}
func (noop) SetPosition(string, uint64)                   {}
func (noop) SetState(string)                              {}
func (noop) AddCheckpoint(error)                          {}
func (noop) PrometheusCollectors() []prometheus.Collector { return nil }
