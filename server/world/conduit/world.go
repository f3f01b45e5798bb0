package conduit

import "github.com/df-mc/dragonfly/server/block/cube"

// World is the host world as seen by the engine. Implementations are only
// called from within ProcessPending and Procedure.Run.
type World interface {
	// NodeAt classifies the block at pos. The second return value is false if
	// the position is not loaded or holds no block of interest.
	NodeAt(pos cube.Pos) (NodeInfo, bool)
	// SetPowerLevel persists a derived power level for the conduit at pos.
	SetPowerLevel(pos cube.Pos, level uint8)
}

// Deliverer is implemented by worlds that want consumer levels pushed to
// them.
type Deliverer interface {
	DeliverPower(pos cube.Pos, level uint8)
}

// Observer receives a Report after every tick.
type Observer interface {
	ObserveTick(r Report)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(r Report)

// ObserveTick calls f(r).
func (f ObserverFunc) ObserveTick(r Report) {
	f(r)
}
