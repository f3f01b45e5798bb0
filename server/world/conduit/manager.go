package conduit

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// Manager owns the conduit networks of a single world. It buffers
// invalidations reported by the host and rebuilds the affected networks when
// ProcessPending is called from the tick loop. A Manager is created by
// Config.New and released by Shutdown.
type Manager struct {
	conf    Config
	session uuid.UUID
	log     *slog.Logger
	tracker *Tracker
	metrics *Metrics

	closed atomic.Bool
	ticks  atomic.Uint64

	mu        sync.RWMutex
	index     positionIndex
	networks  map[NetworkID]*Network
	delivered map[cube.Pos]uint8
	nextID    NetworkID
	gen       uint64
}

// Change is a derived conduit level that differs from the level the host
// holds.
type Change struct {
	Pos   cube.Pos
	Level uint8
}

// Delivery is a consumer level that differs from the last level delivered.
type Delivery struct {
	Pos   cube.Pos
	Level uint8
}

// Result summarises a call to ProcessPending.
type Result struct {
	Changes    []Change
	Deliveries []Delivery
	// Processed is the number of drained invalidations handled.
	Processed int
	Created   int
	Dissolved int
	// Deferred is the number of invalidations pushed back to the next call
	// because of Config.MaxInvalidationsPerTick.
	Deferred int
	Repaired int
}

// Empty reports if the result carries no work.
func (r Result) Empty() bool {
	return r.Processed == 0 && r.Deferred == 0
}

// Session returns the id of the manager, unique per process run.
func (m *Manager) Session() uuid.UUID {
	return m.session
}

// Logger returns the logger of the manager.
func (m *Manager) Logger() *slog.Logger {
	return m.log
}

// InvalidateNetworkAt records that the block at pos changed. It never runs
// discovery: the change is picked up by the next ProcessPending. Positions
// outside the configured bounds are dropped with a warning.
func (m *Manager) InvalidateNetworkAt(pos cube.Pos, reason Reason) {
	if m == nil || m.closed.Load() {
		return
	}
	if !m.conf.Bounds.Contains(pos) {
		m.log.Warn("Invalidation out of bounds ignored.", "pos", pos, "reason", reason.String(),
			"err", fmt.Errorf("invalidate %v: %w", pos, ErrOutOfBounds))
		m.metrics.IncOutOfBounds()
		return
	}
	m.tracker.Record(pos, reason)
	m.metrics.AddInvalidations(1)
}

// InvalidatePlacement records a block placed at pos.
func (m *Manager) InvalidatePlacement(pos cube.Pos) {
	m.InvalidateNetworkAt(pos, ReasonPlaced)
}

// InvalidateRemoval records a block removed at pos.
func (m *Manager) InvalidateRemoval(pos cube.Pos) {
	m.InvalidateNetworkAt(pos, ReasonBroken)
}

// Pending returns the number of buffered invalidations.
func (m *Manager) Pending() int {
	if m == nil || m.closed.Load() {
		return 0
	}
	return m.tracker.Len()
}

// ProcessPending drains the buffered invalidations and rebuilds every
// network touching them. Only networks created by the call are propagated.
// The returned Result lists the conduit levels and consumer deliveries the
// host has to apply; ProcessPending itself never writes to w.
func (m *Manager) ProcessPending(w World) Result {
	var res Result
	if m == nil || m.closed.Load() {
		return res
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed.Load() {
		return res
	}

	batch := m.tracker.Drain()
	if limit := m.conf.MaxInvalidationsPerTick; limit > 0 && len(batch) > limit {
		m.tracker.Requeue(batch[limit:])
		res.Deferred = len(batch) - limit
		batch = batch[:limit]
		m.metrics.AddDeferred(res.Deferred)
	}
	if len(batch) == 0 {
		return res
	}
	m.gen++
	res.Processed = len(batch)

	p := newPass(m, w)
	defer func() {
		if r := recover(); r != nil {
			// The batch is drained and its networks may be dissolved: queue
			// everything the pass touched so the next call rebuilds it.
			m.tracker.Requeue(p.unfinished(batch))
			panic(r)
		}
	}()
	for _, inv := range batch {
		p.invalidate(inv)
	}
	p.rebuild()

	for _, n := range p.created {
		propagate(n)
		for i := range n.Palette {
			node := &n.Palette[i]
			level := n.States[i].Power
			if node.Kind == KindConduit && level != node.Persisted {
				res.Changes = append(res.Changes, Change{Pos: node.Pos, Level: level})
			}
			node.Persisted = level
		}
	}
	slices.SortFunc(res.Changes, func(a, b Change) int { return comparePos(a.Pos, b.Pos) })
	res.Deliveries = m.collectDeliveries(p)

	res.Created, res.Dissolved, res.Repaired = len(p.created), p.dissolved, p.repaired
	m.metrics.AddDiscoveries(res.Created)
	m.metrics.AddPropagations(res.Created)
	m.metrics.AddRepairs(res.Repaired)
	return res
}

// retry queues the positions of res again after the host failed to apply
// it. Their networks are rediscovered from the levels the host actually
// holds, so writes that did not happen are issued again.
func (m *Manager) retry(res Result) {
	if m == nil || m.closed.Load() {
		return
	}
	entries := make([]Invalidation, 0, len(res.Changes)+len(res.Deliveries))
	for _, c := range res.Changes {
		entries = append(entries, Invalidation{Pos: c.Pos, Reason: ReasonPlaced})
	}
	m.mu.Lock()
	for _, d := range res.Deliveries {
		delete(m.delivered, d.Pos)
		entries = append(entries, Invalidation{Pos: d.Pos, Reason: ReasonPlaced})
	}
	m.mu.Unlock()
	m.tracker.Requeue(entries)
}

// collectDeliveries re-evaluates every consumer touched by the pass.
func (m *Manager) collectDeliveries(p *pass) []Delivery {
	if len(p.consumers) == 0 {
		return nil
	}
	candidates := make([]cube.Pos, 0, len(p.consumers))
	for pos := range p.consumers {
		candidates = append(candidates, pos)
	}
	sortPositions(candidates)

	var out []Delivery
	for _, pos := range candidates {
		info := p.nodeAt(pos)
		if info.Kind != KindConsumer {
			delete(m.delivered, pos)
			continue
		}
		level, connected := m.deliveredLevel(pos)
		prev, ok := m.delivered[pos]
		if !ok {
			prev = info.Power
		}
		if level != prev {
			out = append(out, Delivery{Pos: pos, Level: level})
		}
		if connected {
			m.delivered[pos] = level
		} else {
			delete(m.delivered, pos)
		}
	}
	return out
}

// register assigns n a fresh id and makes it live.
func (m *Manager) register(n *Network) {
	m.nextID++
	n.ID, n.Gen = m.nextID, m.gen
	m.networks[n.ID] = n
	for _, node := range n.Palette {
		m.index.put(node.Pos, n.ID)
	}
}

// Shutdown discards all networks and buffered invalidations. Further calls on
// the manager are no-ops. Shutdown may be called more than once.
func (m *Manager) Shutdown() {
	if m == nil || !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.mu.Lock()
	count := len(m.networks)
	m.networks = make(map[NetworkID]*Network)
	m.delivered = make(map[cube.Pos]uint8)
	m.index = newPositionIndex(1)
	m.mu.Unlock()
	m.tracker.Reset()
	m.log.Info("Conduit engine shut down.", "networks", count)
}

// Closed reports if Shutdown was called.
func (m *Manager) Closed() bool {
	return m == nil || m.closed.Load()
}

// Diagnostic describes the state of a single position for debugging.
type Diagnostic struct {
	Pos  cube.Pos
	Kind NodeKind
	// Network is zero for consumers.
	Network    NetworkID
	Generation uint64
	Members    int
	Sources    int
	Consumers  int
	Level      uint8
	// Centre is the centre of the box enclosing the members of the network.
	Centre      mgl64.Vec3
	Fingerprint uint64
	Truncated   bool
}

// Inspect returns the diagnostic for pos. It returns false if pos is neither
// a member of a live network nor a consumer with a delivered level.
func (m *Manager) Inspect(pos cube.Pos) (Diagnostic, bool) {
	if m == nil || m.closed.Load() || !m.conf.Bounds.Contains(pos) {
		return Diagnostic{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id, ok := m.index.get(pos); ok {
		n, ok := m.networks[id]
		if !ok {
			return Diagnostic{}, false
		}
		idx, ok := n.nodeByPos(pos)
		if !ok {
			return Diagnostic{}, false
		}
		return Diagnostic{
			Pos:         pos,
			Kind:        n.Palette[idx].Kind,
			Network:     n.ID,
			Generation:  n.Gen,
			Members:     n.Len(),
			Sources:     len(n.Sources()),
			Consumers:   len(n.Consumers),
			Level:       n.States[idx].Power,
			Centre:      n.Centre(),
			Fingerprint: n.Fingerprint(),
			Truncated:   n.truncated,
		}, true
	}
	if level, ok := m.delivered[pos]; ok {
		return Diagnostic{Pos: pos, Kind: KindConsumer, Level: level}, true
	}
	return Diagnostic{}, false
}

// NetworkSummary is a short description of a live network.
type NetworkSummary struct {
	ID          NetworkID
	Generation  uint64
	Members     int
	Sources     int
	Consumers   int
	MaxLevel    uint8
	Centre      mgl64.Vec3
	Fingerprint uint64
	Truncated   bool
}

// Networks lists the live networks ordered by id.
func (m *Manager) Networks() []NetworkSummary {
	if m == nil || m.closed.Load() {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]NetworkSummary, 0, len(m.networks))
	for _, n := range m.networks {
		s := NetworkSummary{
			ID:          n.ID,
			Generation:  n.Gen,
			Members:     n.Len(),
			Sources:     len(n.Sources()),
			Consumers:   len(n.Consumers),
			Centre:      n.Centre(),
			Fingerprint: n.Fingerprint(),
			Truncated:   n.truncated,
		}
		for _, st := range n.States {
			s.MaxLevel = max(s.MaxLevel, st.Power)
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b NetworkSummary) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Level returns the derived level of the member at pos.
func (m *Manager) Level(pos cube.Pos) (uint8, bool) {
	d, ok := m.Inspect(pos)
	if !ok || d.Network == 0 {
		return 0, false
	}
	return d.Level, true
}

// Verify checks that the position index and the network table agree. It
// returns nil if they do and ErrInconsistentGraph errors otherwise.
func (m *Manager) Verify() error {
	if m == nil || m.closed.Load() {
		return ErrClosed
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	total := 0
	for id, n := range m.networks {
		if n.ID != id {
			errs = append(errs, fmt.Errorf("network %d stored under id %d: %w", n.ID, id, ErrInconsistentGraph))
		}
		for _, node := range n.Palette {
			owner, ok := m.index.get(node.Pos)
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("member %v of network %d not indexed: %w", node.Pos, id, ErrInconsistentGraph))
			case owner != id:
				errs = append(errs, fmt.Errorf("member %v of network %d indexed under %d: %w", node.Pos, id, owner, ErrInconsistentGraph))
			}
		}
		total += n.Len()
	}
	if l := m.index.len(); l != total {
		errs = append(errs, fmt.Errorf("index holds %d positions, networks hold %d: %w", l, total, ErrInconsistentGraph))
	}
	return errors.Join(errs...)
}

// Metrics returns a snapshot of the engine counters.
func (m *Manager) Metrics() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return m.metrics.Snapshot()
}
