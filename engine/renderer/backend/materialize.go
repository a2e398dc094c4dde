package backend

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/registry"
)

// The materialize functions create the device object behind a handle the
// first time it is used and are no-ops afterwards. A state still holding an
// object from a previous occupant of the slot is torn down first.

func materializeBuffer(dev Device, h metadata.Handle, info *metadata.BufferInfo, st *metadata.BufferState, size uint64) error {
	generation := h.Generation()
	if st.Materialized(generation) {
		return nil
	}
	if st.DeviceID != 0 {
		dev.DestroyBuffer(st.DeviceID)
		*st = metadata.BufferState{}
	}
	if size == 0 {
		size = info.Size
	}
	id, err := dev.CreateBuffer(info, size)
	if err != nil {
		return fmt.Errorf("create buffer %q (%d bytes): %w", info.Name, size, err)
	}
	*st = metadata.BufferState{
		DeviceID:   id,
		Generation: generation,
		Size:       size,
		Usage:      info.Usage,
	}
	core.LogDebug("materialized buffer %q %s as device object %d", info.Name, h, id)
	return nil
}

func materializeTexture(dev Device, h metadata.Handle, info *metadata.TextureInfo, st *metadata.TextureState, width, height uint32) error {
	generation := h.Generation()
	if st.Materialized(generation) {
		return nil
	}
	if st.DeviceID != 0 {
		dev.DestroyTexture(st.DeviceID)
		*st = metadata.TextureState{}
	}
	if width == 0 || height == 0 {
		width, height = info.Width, info.Height
	}
	id, err := dev.CreateTexture(info, width, height)
	if err != nil {
		return fmt.Errorf("create texture %q (%dx%d): %w", info.Name, width, height, err)
	}
	*st = metadata.TextureState{
		DeviceID:   id,
		Generation: generation,
		Width:      width,
		Height:     height,
	}
	core.LogDebug("materialized texture %q %s as device object %d", info.Name, h, id)
	return nil
}

func materializeMaterial(dev Device, h metadata.Handle, info *metadata.MaterialInfo, st *metadata.MaterialState) error {
	generation := h.Generation()
	if st.Materialized(generation) {
		return nil
	}
	if st.Failed && st.Generation == generation {
		return fmt.Errorf("%w: material %q failed to compile earlier", core.ErrNotMaterialized, info.Name)
	}
	if st.DeviceID != 0 {
		dev.DestroyProgram(st.DeviceID)
	}
	*st = metadata.MaterialState{Generation: generation}

	id, err := dev.CreateProgram(info)
	if err != nil {
		st.Failed = true
		return fmt.Errorf("create program for material %q: %w", info.Name, err)
	}
	st.DeviceID = id
	core.LogDebug("materialized material %q %s as device object %d", info.Name, h, id)
	return nil
}

func materializeFramebuffer(dev Device, reg *registry.Registry, h metadata.Handle, info *metadata.FramebufferInfo, st *metadata.FramebufferState) error {
	var color uint64
	if info.Color.IsValid() {
		if !reg.Textures.Validate(info.Color) {
			return fmt.Errorf("%w: framebuffer %q colour attachment %s", core.ErrStaleHandle, info.Name, info.Color)
		}
		texInfo, texState := reg.Textures.Resolve(info.Color)
		if err := materializeTexture(dev, info.Color, texInfo, texState, 0, 0); err != nil {
			return fmt.Errorf("framebuffer %q colour attachment: %w", info.Name, err)
		}
		color = texState.DeviceID
	}

	generation := h.Generation()
	// a reallocated attachment invalidates the framebuffer object as well
	if st.Materialized(generation) && st.Color == color {
		return nil
	}
	if st.DeviceID != 0 {
		dev.DestroyFramebuffer(st.DeviceID)
		*st = metadata.FramebufferState{}
	}

	id, err := dev.CreateFramebuffer(info, color)
	if err != nil {
		return fmt.Errorf("create framebuffer %q: %w", info.Name, err)
	}
	*st = metadata.FramebufferState{DeviceID: id, Generation: generation, Color: color}
	core.LogDebug("materialized framebuffer %q %s as device object %d", info.Name, h, id)
	return nil
}
