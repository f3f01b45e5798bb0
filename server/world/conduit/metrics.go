package conduit

import (
	"sync"
)

// Metrics tracks engine counters for observability.
type Metrics struct {
	mu sync.Mutex

	ticks         uint64
	invalidations uint64
	outOfBounds   uint64
	unrecognized  uint64
	discoveries   uint64
	propagations  uint64
	writes        uint64
	deliveries    uint64
	repairs       uint64
	deferred      uint64
}

// MetricsSnapshot is a point in time copy of Metrics.
type MetricsSnapshot struct {
	Ticks         uint64
	Invalidations uint64
	OutOfBounds   uint64
	Unrecognized  uint64
	Discoveries   uint64
	Propagations  uint64
	Writes        uint64
	Deliveries    uint64
	Repairs       uint64
	Deferred      uint64
}

// NewMetrics creates an empty metrics registry.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) add(field *uint64, value uint64) {
	if m == nil || value == 0 {
		return
	}
	m.mu.Lock()
	*field += value
	m.mu.Unlock()
}

// IncTicks counts a completed tick.
func (m *Metrics) IncTicks() {
	if m == nil {
		return
	}
	m.add(&m.ticks, 1)
}

// AddInvalidations counts accepted invalidations.
func (m *Metrics) AddInvalidations(n int) {
	if m == nil {
		return
	}
	m.add(&m.invalidations, uint64(n))
}

// IncOutOfBounds counts a dropped out of bounds invalidation.
func (m *Metrics) IncOutOfBounds() {
	if m == nil {
		return
	}
	m.add(&m.outOfBounds, 1)
}

// IncUnrecognized counts a block reported with an unknown kind.
func (m *Metrics) IncUnrecognized() {
	if m == nil {
		return
	}
	m.add(&m.unrecognized, 1)
}

// AddDiscoveries counts networks created by discovery.
func (m *Metrics) AddDiscoveries(n int) {
	if m == nil {
		return
	}
	m.add(&m.discoveries, uint64(n))
}

// AddPropagations counts propagation passes.
func (m *Metrics) AddPropagations(n int) {
	if m == nil {
		return
	}
	m.add(&m.propagations, uint64(n))
}

// AddWrites counts power level writes pushed to the host.
func (m *Metrics) AddWrites(n int) {
	if m == nil {
		return
	}
	m.add(&m.writes, uint64(n))
}

// AddDeliveries counts consumer level deliveries pushed to the host.
func (m *Metrics) AddDeliveries(n int) {
	if m == nil {
		return
	}
	m.add(&m.deliveries, uint64(n))
}

// AddRepairs counts repaired index inconsistencies.
func (m *Metrics) AddRepairs(n int) {
	if m == nil {
		return
	}
	m.add(&m.repairs, uint64(n))
}

// AddDeferred counts invalidations pushed back to a later tick.
func (m *Metrics) AddDeferred(n int) {
	if m == nil {
		return
	}
	m.add(&m.deferred, uint64(n))
}

// Snapshot returns a copy of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Ticks:         m.ticks,
		Invalidations: m.invalidations,
		OutOfBounds:   m.outOfBounds,
		Unrecognized:  m.unrecognized,
		Discoveries:   m.discoveries,
		Propagations:  m.propagations,
		Writes:        m.writes,
		Deliveries:    m.deliveries,
		Repairs:       m.repairs,
		Deferred:      m.deferred,
	}
}
