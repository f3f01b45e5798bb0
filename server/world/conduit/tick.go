package conduit

import (
	"time"

	"github.com/dm-vev/conduit/server/internal/tickguard"
	"github.com/google/uuid"
)

// Report describes one run of the tick procedure.
type Report struct {
	Session uuid.UUID
	Tick    uint64
	Start   time.Time
	// Duration covers processing and the writes to the world.
	Duration time.Duration
	Result   Result
	// Failed is set if the run panicked. The panic is logged and the partial
	// result is discarded.
	Failed bool
}

// Procedure runs the engine once per world tick. It holds no state of its
// own: every run processes the pending invalidations of Manager and pushes
// the changed levels back into the world.
type Procedure struct {
	Manager *Manager
	// Observer, if non-nil, receives a Report after every run.
	Observer Observer
}

// Run processes pending invalidations and writes changed conduit levels to w.
// Consumer levels are delivered if w implements Deliverer. Unchanged levels
// are never written. Run never panics.
func (p Procedure) Run(w World) Report {
	m := p.Manager
	if m == nil || m.Closed() {
		return Report{}
	}
	rep := Report{Session: m.session, Tick: m.ticks.Add(1), Start: time.Now()}

	var res Result
	ok := tickguard.Run(m.log, "conduit", func() {
		res = m.ProcessPending(w)
		for _, c := range res.Changes {
			w.SetPowerLevel(c.Pos, c.Level)
		}
		if d, ok := w.(Deliverer); ok {
			for _, dl := range res.Deliveries {
				d.DeliverPower(dl.Pos, dl.Level)
			}
		}
	})
	rep.Duration = time.Since(rep.Start)
	if !ok {
		// Writes may be missing from the host. ProcessPending requeues its own
		// work when it panics, so res is only set if a write failed.
		m.retry(res)
		res = Result{}
	}
	rep.Result, rep.Failed = res, !ok

	m.metrics.IncTicks()
	if ok {
		m.metrics.AddWrites(len(res.Changes))
		if _, deliver := w.(Deliverer); deliver {
			m.metrics.AddDeliveries(len(res.Deliveries))
		}
	}
	if p.Observer != nil {
		tickguard.Run(m.log, "conduit observer", func() {
			p.Observer.ObserveTick(rep)
		})
	}
	return rep
}
