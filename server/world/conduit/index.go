package conduit

import (
	"github.com/brentp/intintmap"
	"github.com/df-mc/dragonfly/server/block/cube"
)

// positionIndex maps packed member positions to the id of the owning network.
type positionIndex struct {
	m *intintmap.Map
}

func newPositionIndex(sizeHint int) positionIndex {
	return positionIndex{m: intintmap.New(sizeHint, 0.6)}
}

func (ix positionIndex) get(pos cube.Pos) (NetworkID, bool) {
	v, ok := ix.m.Get(posKey(pos))
	return NetworkID(v), ok
}

func (ix positionIndex) put(pos cube.Pos, id NetworkID) {
	ix.m.Put(posKey(pos), int64(id))
}

func (ix positionIndex) del(pos cube.Pos) {
	ix.m.Del(posKey(pos))
}

func (ix positionIndex) len() int {
	return ix.m.Size()
}
