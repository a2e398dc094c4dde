package backend

import (
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/commands"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/registry"
)

// Dispatcher turns replayed commands into device calls. It lives on the
// render thread; the counters may be read from anywhere.
type Dispatcher struct {
	device   Device
	registry *registry.Registry

	frame      uint64
	dispatched atomic.Uint64
	skipped    atomic.Uint64
}

func NewDispatcher(device Device, reg *registry.Registry) *Dispatcher {
	return &Dispatcher{
		device:   device,
		registry: reg,
	}
}

func (d *Dispatcher) Device() Device {
	return d.device
}

// Dispatch executes a single command. Failures are logged and the command is
// skipped; they never stop the replay.
func (d *Dispatcher) Dispatch(cmd commands.Command) {
	var err error
	switch c := cmd.(type) {
	case *commands.SetupView:
		err = setupView(d.device, d.registry, c)
	case *commands.Clear:
		err = clearView(d.device, c)
	case *commands.FillBuffer:
		err = fillBuffer(d.device, d.registry, c)
	case *commands.FillTexture:
		err = fillTexture(d.device, d.registry, c)
	case *commands.SetupMaterial:
		err = setupMaterial(d.device, d.registry, c)
	case *commands.Render:
		err = render(d.device, d.registry, c)
	default:
		err = fmt.Errorf("unknown command %T", cmd)
	}

	d.dispatched.Add(1)
	if err != nil {
		d.skipped.Add(1)
		core.LogError("frame %d: %s skipped: %v", d.frame, cmd.Kind(), err)
	}
}

// ReplayFrame wraps the replay of one submitted frame in BeginFrame/EndFrame.
// The list is empty afterwards.
func (d *Dispatcher) ReplayFrame(number uint64, list *commands.CommandList) {
	d.frame = number
	if err := d.device.BeginFrame(number); err != nil {
		core.LogError("frame %d: begin frame failed, dropping %d commands: %v", number, list.Len(), err)
		list.Reset()
		return
	}
	list.Replay(d)
	if err := d.device.EndFrame(number); err != nil {
		core.LogError("frame %d: end frame failed: %v", number, err)
	}
}

// Dispatched is the number of commands replayed so far.
func (d *Dispatcher) Dispatched() uint64 {
	return d.dispatched.Load()
}

// Skipped is the number of commands dropped because of an error.
func (d *Dispatcher) Skipped() uint64 {
	return d.skipped.Load()
}

// DestroyAll releases every device object still referenced by the registry,
// including those left by released slots. Must run on the render thread after
// the last frame.
func (d *Dispatcher) DestroyAll() {
	d.registry.Framebuffers.EachState(func(st *metadata.FramebufferState) {
		if st.DeviceID != 0 {
			d.device.DestroyFramebuffer(st.DeviceID)
		}
		*st = metadata.FramebufferState{}
	})
	d.registry.Materials.EachState(func(st *metadata.MaterialState) {
		if st.DeviceID != 0 {
			d.device.DestroyProgram(st.DeviceID)
		}
		*st = metadata.MaterialState{}
	})
	d.registry.Textures.EachState(func(st *metadata.TextureState) {
		if st.DeviceID != 0 {
			d.device.DestroyTexture(st.DeviceID)
		}
		*st = metadata.TextureState{}
	})
	d.registry.Buffers.EachState(func(st *metadata.BufferState) {
		if st.DeviceID != 0 {
			d.device.DestroyBuffer(st.DeviceID)
		}
		*st = metadata.BufferState{}
	})
}

func setupView(dev Device, reg *registry.Registry, c *commands.SetupView) error {
	if !c.Framebuffer.IsValid() {
		return dev.BindFramebuffer(0, c.Viewport)
	}
	if !reg.Framebuffers.Validate(c.Framebuffer) {
		return fmt.Errorf("%w: framebuffer %s", core.ErrStaleHandle, c.Framebuffer)
	}
	info, st := reg.Framebuffers.Resolve(c.Framebuffer)
	if err := materializeFramebuffer(dev, reg, c.Framebuffer, info, st); err != nil {
		return err
	}
	return dev.BindFramebuffer(st.DeviceID, c.Viewport)
}

func clearView(dev Device, c *commands.Clear) error {
	if c.Flags == metadata.ClearNone {
		return nil
	}
	return dev.Clear(c.Flags, c.Colour, c.Depth, c.Stencil)
}

func fillBuffer(dev Device, reg *registry.Registry, c *commands.FillBuffer) error {
	if !reg.Buffers.Validate(c.Buffer) {
		return fmt.Errorf("%w: buffer %s", core.ErrStaleHandle, c.Buffer)
	}
	info, st := reg.Buffers.Resolve(c.Buffer)
	if err := materializeBuffer(dev, c.Buffer, info, st, c.Size); err != nil {
		return err
	}

	if c.Size != 0 && c.Size != st.Size {
		core.LogDebug("reallocating buffer %q %s: %d -> %d bytes", info.Name, c.Buffer, st.Size, c.Size)
		id, err := dev.ResizeBuffer(st.DeviceID, c.Size)
		if err != nil {
			return fmt.Errorf("resize buffer %q to %d bytes: %w", info.Name, c.Size, err)
		}
		st.DeviceID = id
		st.Size = c.Size
	}

	if len(c.Data) == 0 {
		return nil
	}
	end := c.Offset + uint64(len(c.Data))
	if end > st.Size {
		return fmt.Errorf("%w: buffer %q [%d, %d) exceeds %d bytes", core.ErrOutOfRange, info.Name, c.Offset, end, st.Size)
	}
	return dev.WriteBuffer(st.DeviceID, c.Offset, c.Data)
}

func fillTexture(dev Device, reg *registry.Registry, c *commands.FillTexture) error {
	if !reg.Textures.Validate(c.Texture) {
		return fmt.Errorf("%w: texture %s", core.ErrStaleHandle, c.Texture)
	}
	info, st := reg.Textures.Resolve(c.Texture)
	if err := materializeTexture(dev, c.Texture, info, st, c.Width, c.Height); err != nil {
		return err
	}

	if c.Width != 0 && c.Height != 0 && (c.Width != st.Width || c.Height != st.Height) {
		core.LogDebug("reallocating texture %q %s: %dx%d -> %dx%d", info.Name, c.Texture, st.Width, st.Height, c.Width, c.Height)
		id, err := dev.ResizeTexture(st.DeviceID, c.Width, c.Height)
		if err != nil {
			return fmt.Errorf("resize texture %q to %dx%d: %w", info.Name, c.Width, c.Height, err)
		}
		st.DeviceID = id
		st.Width, st.Height = c.Width, c.Height
	}

	if len(c.Pixels) == 0 {
		return nil
	}
	region := c.Region
	if region.Empty() {
		region = metadata.Rect{Width: st.Width, Height: st.Height}
	}
	if region.X < 0 || region.Y < 0 ||
		uint64(region.X)+uint64(region.Width) > uint64(st.Width) ||
		uint64(region.Y)+uint64(region.Height) > uint64(st.Height) {
		return fmt.Errorf("%w: texture %q region %+v outside %dx%d", core.ErrOutOfRange, info.Name, region, st.Width, st.Height)
	}
	return dev.WriteTexture(st.DeviceID, region, c.Pixels)
}

func setupMaterial(dev Device, reg *registry.Registry, c *commands.SetupMaterial) error {
	if !reg.Materials.Validate(c.Material) {
		return fmt.Errorf("%w: material %s", core.ErrStaleHandle, c.Material)
	}
	info, st := reg.Materials.Resolve(c.Material)
	if err := materializeMaterial(dev, c.Material, info, st); err != nil {
		return err
	}

	slots := make([]TextureSlot, 0, len(c.Textures))
	for _, binding := range c.Textures {
		if !reg.Textures.Validate(binding.Texture) {
			return fmt.Errorf("%w: material %q slot %d texture %s", core.ErrStaleHandle, info.Name, binding.Slot, binding.Texture)
		}
		texInfo, texState := reg.Textures.Resolve(binding.Texture)
		if err := materializeTexture(dev, binding.Texture, texInfo, texState, 0, 0); err != nil {
			return err
		}
		slots = append(slots, TextureSlot{Slot: binding.Slot, DeviceID: texState.DeviceID})
	}
	return dev.UseProgram(st.DeviceID, slots, c.Uniforms)
}

func render(dev Device, reg *registry.Registry, c *commands.Render) error {
	if c.Count == 0 {
		return nil
	}
	if !reg.Materials.Validate(c.Material) {
		return fmt.Errorf("%w: material %s", core.ErrStaleHandle, c.Material)
	}
	if !reg.Buffers.Validate(c.Buffer) {
		return fmt.Errorf("%w: buffer %s", core.ErrStaleHandle, c.Buffer)
	}

	matInfo, matState := reg.Materials.Resolve(c.Material)
	if err := materializeMaterial(dev, c.Material, matInfo, matState); err != nil {
		return err
	}
	bufInfo, bufState := reg.Buffers.Resolve(c.Buffer)
	if err := materializeBuffer(dev, c.Buffer, bufInfo, bufState, 0); err != nil {
		return err
	}

	instances := c.Instances
	if instances == 0 {
		instances = 1
	}
	return dev.Draw(matState.DeviceID, bufState.DeviceID, c.First, c.Count, instances)
}
