package conduit

import (
	"fmt"
	"slices"

	"github.com/df-mc/dragonfly/server/block/cube"
)

// pass holds the working set of a single ProcessPending call. It is only used
// while the manager lock is held.
type pass struct {
	m *Manager
	w World

	// nodes caches host lookups for the duration of the pass.
	nodes map[cube.Pos]NodeInfo

	seeds     []cube.Pos
	seeded    map[cube.Pos]struct{}
	former    []cube.Pos
	consumers map[cube.Pos]struct{}

	created   []*Network
	dissolved int
	repaired  int
}

func newPass(m *Manager, w World) *pass {
	return &pass{
		m:         m,
		w:         w,
		nodes:     make(map[cube.Pos]NodeInfo),
		seeded:    make(map[cube.Pos]struct{}),
		consumers: make(map[cube.Pos]struct{}),
	}
}

// nodeAt returns the classification of pos. Unknown kinds are reported once
// per pass and treated as empty space.
func (p *pass) nodeAt(pos cube.Pos) NodeInfo {
	if info, ok := p.nodes[pos]; ok {
		return info
	}
	info, ok := p.w.NodeAt(pos)
	if !ok {
		info = NodeInfo{}
	} else if !info.Kind.valid() {
		p.m.log.Debug("Unrecognized block kind ignored.", "pos", pos, "err", fmt.Errorf("classify %v as %d: %w", pos, info.Kind, ErrUnrecognizedKind))
		p.m.metrics.IncUnrecognized()
		info = NodeInfo{}
	}
	p.nodes[pos] = info
	return info
}

// seed queues pos as a discovery start point. Positions are only queued once.
func (p *pass) seed(pos cube.Pos) {
	if !p.m.conf.Bounds.Contains(pos) {
		return
	}
	if _, ok := p.seeded[pos]; ok {
		return
	}
	p.seeded[pos] = struct{}{}
	p.seeds = append(p.seeds, pos)
}

// invalidate dissolves every network owning pos or one of its neighbours and
// queues them as seeds.
func (p *pass) invalidate(inv Invalidation) {
	p.consumers[inv.Pos] = struct{}{}
	p.touch(inv.Pos)
	for _, nb := range neighbours(inv.Pos) {
		p.touch(nb)
	}
}

func (p *pass) touch(pos cube.Pos) {
	if !p.m.conf.Bounds.Contains(pos) {
		return
	}
	p.seed(pos)
	id, ok := p.m.index.get(pos)
	if !ok {
		return
	}
	n, ok := p.m.networks[id]
	if !ok || !n.Contains(pos) {
		p.repair(pos, id)
		return
	}
	p.dissolve(n)
}

// repair drops a stale index entry and queues the position for rediscovery.
func (p *pass) repair(pos cube.Pos, id NetworkID) {
	p.m.log.Error("Inconsistent network index repaired.", "pos", pos, "network", uint64(id),
		"err", fmt.Errorf("index entry %v -> %d: %w", pos, id, ErrInconsistentGraph))
	p.m.index.del(pos)
	p.repaired++
	p.seed(pos)
}

// dissolve removes n from the manager. Its members become seeds and its
// consumers are re-evaluated after propagation.
func (p *pass) dissolve(n *Network) {
	delete(p.m.networks, n.ID)
	for _, node := range n.Palette {
		if id, ok := p.m.index.get(node.Pos); ok && id == n.ID {
			p.m.index.del(node.Pos)
		}
		p.former = append(p.former, node.Pos)
	}
	for _, c := range n.Consumers {
		p.consumers[c] = struct{}{}
	}
	p.dissolved++
}

// unfinished returns batch followed by every position the pass seeded or
// dissolved, as placements.
func (p *pass) unfinished(batch []Invalidation) []Invalidation {
	out := slices.Clone(batch)
	for _, pos := range p.former {
		out = append(out, Invalidation{Pos: pos, Reason: ReasonPlaced})
	}
	for _, pos := range p.seeds {
		out = append(out, Invalidation{Pos: pos, Reason: ReasonPlaced})
	}
	return out
}

// rebuild runs discovery from every queued seed. Seeds from invalidations go
// first in drain order, followed by former members of dissolved networks in
// position order so that fragments no neighbour reaches are still owned.
func (p *pass) rebuild() {
	sortPositions(p.former)
	for _, pos := range p.former {
		p.seed(pos)
	}
	p.former = nil

	for i := 0; i < len(p.seeds); i++ {
		seed := p.seeds[i]
		if _, owned := p.m.index.get(seed); owned {
			continue
		}
		n := p.discoverFrom(seed)
		if n.Empty() {
			continue
		}
		p.m.register(n)
		p.created = append(p.created, n)
		for _, c := range n.Consumers {
			p.consumers[c] = struct{}{}
		}
	}
}

// discoverFrom flood fills the component of conduits and sources containing
// seed. Positions owned by networks created earlier in the pass are skipped.
// Live networks from earlier ticks that turn out to be connected are
// dissolved and absorbed.
func (p *pass) discoverFrom(seed cube.Pos) *Network {
	n := newNetwork()
	info := p.nodeAt(seed)
	if !info.Kind.relays() {
		return n
	}
	limit := p.m.conf.MaxNetworkSize

	visited := map[cube.Pos]struct{}{seed: {}}
	consumers := make(map[cube.Pos]struct{})
	queue := []cube.Pos{seed}
	n.add(seed, info)

	for head := 0; head < len(queue); head++ {
		pos := queue[head]
		for _, nb := range neighbours(pos) {
			if _, ok := visited[nb]; ok {
				continue
			}
			if !p.m.conf.Bounds.Contains(nb) {
				continue
			}
			nbInfo := p.nodeAt(nb)
			if nbInfo.Kind == KindConsumer {
				consumers[nb] = struct{}{}
				continue
			}
			if !nbInfo.Kind.relays() {
				continue
			}
			if !p.claim(nb) {
				continue
			}
			if n.Len() >= limit {
				if !n.truncated {
					n.truncated = true
					p.m.log.Warn("Network exceeds size limit, splitting.", "seed", seed, "limit", limit)
				}
				p.seed(nb)
				continue
			}
			visited[nb] = struct{}{}
			n.add(nb, nbInfo)
			queue = append(queue, nb)
		}
	}

	if len(consumers) > 0 {
		n.Consumers = make([]cube.Pos, 0, len(consumers))
		for c := range consumers {
			n.Consumers = append(n.Consumers, c)
		}
		slices.SortFunc(n.Consumers, comparePos)
	}
	return n
}

// claim reports if pos may join the component being discovered. A position
// owned by a network of an earlier tick means the host changed the world
// without invalidating it: that network is dissolved so the component stays
// maximal.
func (p *pass) claim(pos cube.Pos) bool {
	id, ok := p.m.index.get(pos)
	if !ok {
		return true
	}
	other, ok := p.m.networks[id]
	if !ok || !other.Contains(pos) {
		p.repair(pos, id)
		return true
	}
	if other.Gen == p.m.gen || other.truncated {
		return false
	}
	p.dissolve(other)
	for _, f := range p.former {
		p.seed(f)
	}
	p.former = p.former[:0]
	return true
}
