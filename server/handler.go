package server

import (
	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/item"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/go-gl/mathgl/mgl64"
)

// Handler is a player.Handler that reports block edits of a player to the
// engine. Edits are only recorded: the affected networks are recomputed on
// the next engine tick, after the edit was applied to the world.
type Handler struct {
	player.NopHandler
	find Locator
}

// NewHandler returns a Handler reporting edits to the Engine returned by
// find. Edits made while no Engine is enabled are absorbed by the next
// discovery of the affected network.
func NewHandler(find Locator) *Handler {
	return &Handler{find: find}
}

// HandleBlockPlace ...
func (h *Handler) HandleBlockPlace(ctx *player.Context, pos cube.Pos, b world.Block) {
	if ctx.Cancelled() {
		return
	}
	h.blockPlaced(pos, b)
}

// HandleBlockBreak ...
func (h *Handler) HandleBlockBreak(ctx *player.Context, pos cube.Pos, _ *[]item.Stack, _ *int) {
	if ctx.Cancelled() {
		return
	}
	h.blockBroken(ctx.Val().Tx(), pos)
}

// HandleItemUseOnBlock reports levers being toggled.
func (h *Handler) HandleItemUseOnBlock(ctx *player.Context, pos cube.Pos, _ cube.Face, _ mgl64.Vec3) {
	if ctx.Cancelled() {
		return
	}
	if b := ctx.Val().Tx().Block(pos); leverAt(b) {
		h.blockPlaced(pos, b)
	}
}

// blockPlaced records b placed at pos and schedules its network.
func (h *Handler) blockPlaced(pos cube.Pos, b world.Block) {
	if !recognised(b) {
		return
	}
	e, ok := h.find()
	if !ok {
		return
	}
	e.remember(pos, b)
	e.m.InvalidatePlacement(pos)
}

func leverAt(b world.Block) bool {
	if b == nil {
		return false
	}
	name, _ := b.EncodeBlock()
	return name == nameLever
}

// blockBroken records the removal of the block at pos and drops its record.
func (h *Handler) blockBroken(tx blockAccess, pos cube.Pos) {
	if !recognised(tx.Block(pos)) {
		return
	}
	e, ok := h.find()
	if !ok {
		return
	}
	e.forget(pos)
	e.m.InvalidateRemoval(pos)
}
