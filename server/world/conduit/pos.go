package conduit

import (
	"slices"

	"github.com/df-mc/dragonfly/server/block/cube"
)

// directions lists the six axis offsets in the fixed traversal order
// -x, +x, -y, +y, -z, +z. Discovery output depends on this order.
var directions = [6]cube.Pos{
	{-1, 0, 0},
	{1, 0, 0},
	{0, -1, 0},
	{0, 1, 0},
	{0, 0, -1},
	{0, 0, 1},
}

// neighbours returns the six positions adjacent to pos in traversal order.
func neighbours(pos cube.Pos) [6]cube.Pos {
	var out [6]cube.Pos
	for i, d := range directions {
		out[i] = pos.Add(d)
	}
	return out
}

// Bounds describes the region of the world positions may be tracked in.
type Bounds struct {
	// Y is the inclusive vertical range.
	Y cube.Range
	// Horizontal is the largest absolute X or Z coordinate accepted.
	Horizontal int
}

const (
	keyHorizontalBits = 26
	keyVerticalBits   = 12

	maxKeyHorizontal = 1<<(keyHorizontalBits-1) - 1
	minKeyVertical   = -(1 << (keyVerticalBits - 1))
	maxKeyVertical   = 1<<(keyVerticalBits-1) - 1
)

// Contains reports if pos lies within b.
func (b Bounds) Contains(pos cube.Pos) bool {
	if pos.OutOfBounds(b.Y) {
		return false
	}
	return abs(pos[0]) <= b.Horizontal && abs(pos[2]) <= b.Horizontal
}

// fitsKey reports if every position inside b, and every neighbour of one,
// can be packed by posKey.
func (b Bounds) fitsKey() bool {
	return b.Horizontal >= 0 && b.Horizontal < maxKeyHorizontal &&
		b.Y.Min() > minKeyVertical && b.Y.Max() < maxKeyVertical && b.Y.Min() <= b.Y.Max()
}

// posKey packs a position into a single int64: 26 bits of x, 12 bits of y and
// 26 bits of z. The position must satisfy Bounds.fitsKey.
func posKey(pos cube.Pos) int64 {
	const (
		hMask = 1<<keyHorizontalBits - 1
		vMask = 1<<keyVerticalBits - 1
	)
	x := uint64(pos[0]) & hMask
	y := uint64(pos[1]) & vMask
	z := uint64(pos[2]) & hMask
	return int64(x<<(keyVerticalBits+keyHorizontalBits) | y<<keyHorizontalBits | z)
}

// keyPos reverses posKey.
func keyPos(key int64) cube.Pos {
	u := uint64(key)
	x := signExtend(u>>(keyVerticalBits+keyHorizontalBits), keyHorizontalBits)
	y := signExtend(u>>keyHorizontalBits, keyVerticalBits)
	z := signExtend(u, keyHorizontalBits)
	return cube.Pos{x, y, z}
}

func signExtend(v uint64, bits uint) int {
	v &= 1<<bits - 1
	if v&(1<<(bits-1)) != 0 {
		return int(int64(v) - int64(1)<<bits)
	}
	return int(v)
}

// comparePos orders positions by the Morton code of their horizontal
// coordinates, then by y. Nearby positions sort close to each other.
func comparePos(a, b cube.Pos) int {
	ma, mb := morton2(toUnsigned(int32(a[0])), toUnsigned(int32(a[2]))), morton2(toUnsigned(int32(b[0])), toUnsigned(int32(b[2])))
	switch {
	case ma < mb:
		return -1
	case ma > mb:
		return 1
	case a[1] < b[1]:
		return -1
	case a[1] > b[1]:
		return 1
	}
	return 0
}

// sortPositions sorts in place using comparePos.
func sortPositions(s []cube.Pos) {
	slices.SortFunc(s, comparePos)
}

func toUnsigned(v int32) uint32 {
	return uint32(v) ^ (1 << 31)
}

func splitBy1(x uint32) uint64 {
	x64 := uint64(x)
	x64 = (x64 | x64<<16) & 0x0000FFFF0000FFFF
	x64 = (x64 | x64<<8) & 0x00FF00FF00FF00FF
	x64 = (x64 | x64<<4) & 0x0F0F0F0F0F0F0F0F
	x64 = (x64 | x64<<2) & 0x3333333333333333
	x64 = (x64 | x64<<1) & 0x5555555555555555
	return x64
}

func morton2(x, z uint32) uint64 {
	return splitBy1(x) | splitBy1(z)<<1
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
