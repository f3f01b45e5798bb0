package block

import (
	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/block/model"
	"github.com/df-mc/dragonfly/server/item"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/df-mc/dragonfly/server/world/sound"
	"github.com/go-gl/mathgl/mgl64"
)

// Lever is an interactable block that acts as a persistent power source while
// it is switched on.
type Lever struct {
	// Face is the face of the block the lever is attached to.
	Face cube.Face
	// Axis controls the lever's orientation when mounted on the floor or ceiling.
	Axis cube.Axis
	// Powered specifies whether the lever currently outputs power.
	Powered bool
}

// UseOnBlock attaches the lever to the clicked face.
func (l Lever) UseOnBlock(pos cube.Pos, face cube.Face, _ mgl64.Vec3, tx *world.Tx, user item.User, ctx *item.UseContext) bool {
	target := pos.Side(face)
	if !replaceable(tx, target, l) {
		return false
	}
	l.Face = face
	l.Axis = leverPlacementAxis(face, user)
	l.Powered = false
	return place(tx, target, l, user, ctx)
}

// Activate toggles the lever.
func (l Lever) Activate(pos cube.Pos, _ cube.Face, tx *world.Tx, _ item.User, _ *item.UseContext) bool {
	l.Powered = !l.Powered
	tx.SetBlock(pos, l, nil)
	tx.PlaySound(pos.Vec3Centre(), sound.Click{})
	return true
}

// EncodeItem ...
func (Lever) EncodeItem() (name string, meta int16) {
	return "minecraft:lever", 0
}

// EncodeBlock ...
func (l Lever) EncodeBlock() (string, map[string]any) {
	return "minecraft:lever", map[string]any{
		"lever_direction": l.directionProperty(),
		"open_bit":        l.Powered,
	}
}

// Model ...
func (Lever) Model() world.BlockModel {
	return model.Empty{}
}

// Hash ...
func (Lever) Hash() (uint64, uint64) {
	return slowHash()
}

func (l Lever) directionProperty() string {
	switch l.Face {
	case cube.FaceUp:
		if l.Axis == cube.X {
			return "up_east_west"
		}
		return "up_north_south"
	case cube.FaceDown:
		if l.Axis == cube.X {
			return "down_east_west"
		}
		return "down_north_south"
	case cube.FaceEast:
		return "east"
	case cube.FaceWest:
		return "west"
	case cube.FaceSouth:
		return "south"
	default:
		return "north"
	}
}

func leverPlacementAxis(face cube.Face, user item.User) cube.Axis {
	switch face {
	case cube.FaceUp, cube.FaceDown:
		if user != nil {
			dir := user.Rotation().Direction()
			if dir == cube.East || dir == cube.West {
				return cube.X
			}
		}
		return cube.Z
	case cube.FaceEast, cube.FaceWest:
		return cube.Z
	default:
		return cube.X
	}
}

// allLevers returns a list of all lever block states for registration.
func allLevers() []world.Block {
	var blocks []world.Block
	for _, f := range cube.Faces() {
		axes := []cube.Axis{cube.X}
		if f == cube.FaceUp || f == cube.FaceDown {
			axes = []cube.Axis{cube.X, cube.Z}
		}
		for _, a := range axes {
			blocks = append(blocks, Lever{Face: f, Axis: a}, Lever{Face: f, Axis: a, Powered: true})
		}
	}
	return blocks
}
