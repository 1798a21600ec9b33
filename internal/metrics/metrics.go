// Package metrics defines the optional metric-collection subsystem the
// manager's introspection commands (stat metrics, stat collection_threads)
// read from, and that the manager records queue-depth and worker-pool
// observations into as commands are dispatched and workers come up. No
// scheduling or collection logic lives here, only the gauges themselves.
package metrics

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is the point-in-time view returned for "stat metrics".
type Snapshot struct {
	Waiting    int
	Sending    int
	Collecting int
	Workers    int
}

// PoolSnapshot is the point-in-time view returned for
// "stat collection_threads".
type PoolSnapshot struct {
	Working  int
	Alive    int
	Pool     int
	Capacity int
}

// Source is the interface the manager core depends on both to record
// queue-depth/worker-pool observations and to answer introspection
// queries. A NoopSource is used when no real metric-collection
// subsystem is configured, so the manager never needs a nil check.
type Source interface {
	Metrics() Snapshot
	Pool() PoolSnapshot
	SetQueueDepths(waiting, sending, collecting, workers int)
	SetPool(working, alive, pool, capacity int)
}

// PromSource is the production Source, backed by prometheus gauges that
// are updated through SetQueueDepths and SetPool. The gauges are built
// with prometheus.NewGauge and registered explicitly on the Registerer
// passed to NewPromSource (a registry owned by the process, not by this
// package), which is where they are scraped from.
type PromSource struct {
	waiting    prometheus.Gauge
	sending    prometheus.Gauge
	collecting prometheus.Gauge
	workers    prometheus.Gauge
	working    prometheus.Gauge
	alive      prometheus.Gauge
	pool       prometheus.Gauge
	capacity   prometheus.Gauge
}

// NewPromSource constructs a PromSource and registers its gauges on reg.
func NewPromSource(reg prometheus.Registerer) *PromSource {
	s := &PromSource{
		waiting:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "gatewaypkgd", Subsystem: "queue", Name: "waiting"}),
		sending:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "gatewaypkgd", Subsystem: "queue", Name: "sending"}),
		collecting: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "gatewaypkgd", Subsystem: "queue", Name: "collecting"}),
		workers:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "gatewaypkgd", Subsystem: "queue", Name: "collecting_workers"}),
		working:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "gatewaypkgd", Subsystem: "pool", Name: "working"}),
		alive:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "gatewaypkgd", Subsystem: "pool", Name: "alive"}),
		pool:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "gatewaypkgd", Subsystem: "pool", Name: "size"}),
		capacity:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "gatewaypkgd", Subsystem: "pool", Name: "capacity"}),
	}
	if reg != nil {
		reg.MustRegister(s.waiting, s.sending, s.collecting, s.workers, s.working, s.alive, s.pool, s.capacity)
	}
	return s
}

// SetQueueDepths updates the queue-facing gauges.
func (s *PromSource) SetQueueDepths(waiting, sending, collecting, workers int) {
	s.waiting.Set(float64(waiting))
	s.sending.Set(float64(sending))
	s.collecting.Set(float64(collecting))
	s.workers.Set(float64(workers))
}

// SetPool updates the worker-pool gauges.
func (s *PromSource) SetPool(working, alive, pool, capacity int) {
	s.working.Set(float64(working))
	s.alive.Set(float64(alive))
	s.pool.Set(float64(pool))
	s.capacity.Set(float64(capacity))
}

// Metrics implements Source.
func (s *PromSource) Metrics() Snapshot {
	return Snapshot{
		Waiting:    int(gaugeValue(s.waiting)),
		Sending:    int(gaugeValue(s.sending)),
		Collecting: int(gaugeValue(s.collecting)),
		Workers:    int(gaugeValue(s.workers)),
	}
}

// Pool implements Source.
func (s *PromSource) Pool() PoolSnapshot {
	return PoolSnapshot{
		Working:  int(gaugeValue(s.working)),
		Alive:    int(gaugeValue(s.alive)),
		Pool:     int(gaugeValue(s.pool)),
		Capacity: int(gaugeValue(s.capacity)),
	}
}

func gaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
