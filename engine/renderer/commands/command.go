package commands

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type CommandKind uint8

const (
	KindSetupView CommandKind = iota
	KindClear
	KindFillBuffer
	KindFillTexture
	KindSetupMaterial
	KindRender
)

func (k CommandKind) String() string {
	switch k {
	case KindSetupView:
		return "SetupView"
	case KindClear:
		return "Clear"
	case KindFillBuffer:
		return "FillBuffer"
	case KindFillTexture:
		return "FillTexture"
	case KindSetupMaterial:
		return "SetupMaterial"
	case KindRender:
		return "Render"
	}
	return fmt.Sprintf("CommandKind(%d)", uint8(k))
}

// Command is a closed set of recorded GPU operations. The unexported method
// keeps other packages from adding variants, so a type switch over the six
// kinds below is exhaustive.
type Command interface {
	Kind() CommandKind
	command()
}

// SetupView binds a render target and viewport for the commands that follow.
// A null framebuffer selects the device backbuffer.
type SetupView struct {
	Framebuffer metadata.Handle
	Viewport    metadata.Rect
}

func (*SetupView) Kind() CommandKind { return KindSetupView }
func (*SetupView) command()          {}

func (c *SetupView) SetFramebuffer(h metadata.Handle) *SetupView {
	c.Framebuffer = h
	return c
}

func (c *SetupView) SetViewport(x, y int32, width, height uint32) *SetupView {
	c.Viewport = metadata.Rect{X: x, Y: y, Width: width, Height: height}
	return c
}

// Clear clears the current view.
type Clear struct {
	Flags   metadata.ClearFlags
	Colour  [4]float32
	Depth   float32
	Stencil uint32
}

func (*Clear) Kind() CommandKind { return KindClear }
func (*Clear) command()          {}

func (c *Clear) SetColour(r, g, b, a float32) *Clear {
	c.Colour = [4]float32{r, g, b, a}
	c.Flags |= metadata.ClearColour
	return c
}

func (c *Clear) SetDepth(depth float32) *Clear {
	c.Depth = depth
	c.Flags |= metadata.ClearDepth
	return c
}

func (c *Clear) SetStencil(stencil uint32) *Clear {
	c.Stencil = stencil
	c.Flags |= metadata.ClearStencil
	return c
}

func (c *Clear) SetFlags(flags metadata.ClearFlags) *Clear {
	c.Flags = flags
	return c
}

// FillBuffer uploads Data at Offset. A non-zero Size declares the buffer size
// the producer expects; when it differs from the current allocation the buffer
// is reallocated first, keeping its handle and usage.
type FillBuffer struct {
	Buffer metadata.Handle
	Offset uint64
	Size   uint64
	Data   []byte
}

func (*FillBuffer) Kind() CommandKind { return KindFillBuffer }
func (*FillBuffer) command()          {}

func (c *FillBuffer) SetBuffer(h metadata.Handle) *FillBuffer {
	c.Buffer = h
	return c
}

func (c *FillBuffer) SetOffset(offset uint64) *FillBuffer {
	c.Offset = offset
	return c
}

func (c *FillBuffer) SetSize(size uint64) *FillBuffer {
	c.Size = size
	return c
}

// SetData keeps a reference to data. The producer must not modify the slice
// after submission.
func (c *FillBuffer) SetData(data []byte) *FillBuffer {
	c.Data = data
	return c
}

// FillTexture uploads tightly packed Pixels into Region. A non-zero Width and
// Height declare a new texture extent and reallocate like FillBuffer.
type FillTexture struct {
	Texture metadata.Handle
	Region  metadata.Rect
	Width   uint32
	Height  uint32
	Pixels  []byte
}

func (*FillTexture) Kind() CommandKind { return KindFillTexture }
func (*FillTexture) command()          {}

func (c *FillTexture) SetTexture(h metadata.Handle) *FillTexture {
	c.Texture = h
	return c
}

func (c *FillTexture) SetRegion(x, y int32, width, height uint32) *FillTexture {
	c.Region = metadata.Rect{X: x, Y: y, Width: width, Height: height}
	return c
}

func (c *FillTexture) SetSize(width, height uint32) *FillTexture {
	c.Width = width
	c.Height = height
	return c
}

func (c *FillTexture) SetPixels(pixels []byte) *FillTexture {
	c.Pixels = pixels
	return c
}

// SetupMaterial makes a material current and binds its textures and uniforms.
type SetupMaterial struct {
	Material metadata.Handle
	Textures []metadata.TextureBinding
	Uniforms []metadata.Uniform
}

func (*SetupMaterial) Kind() CommandKind { return KindSetupMaterial }
func (*SetupMaterial) command()          {}

func (c *SetupMaterial) SetMaterial(h metadata.Handle) *SetupMaterial {
	c.Material = h
	return c
}

func (c *SetupMaterial) SetTexture(slot uint32, h metadata.Handle) *SetupMaterial {
	c.Textures = append(c.Textures, metadata.TextureBinding{Slot: slot, Texture: h})
	return c
}

func (c *SetupMaterial) SetUniform(name string, value ...float32) *SetupMaterial {
	u := metadata.Uniform{Name: name}
	copy(u.Value[:], value)
	c.Uniforms = append(c.Uniforms, u)
	return c
}

// Render draws Count vertices starting at First from Buffer with Material.
type Render struct {
	Material  metadata.Handle
	Buffer    metadata.Handle
	First     uint32
	Count     uint32
	Instances uint32
}

func (*Render) Kind() CommandKind { return KindRender }
func (*Render) command()          {}

func (c *Render) SetMaterial(h metadata.Handle) *Render {
	c.Material = h
	return c
}

func (c *Render) SetBuffer(h metadata.Handle) *Render {
	c.Buffer = h
	return c
}

func (c *Render) SetFirst(first uint32) *Render {
	c.First = first
	return c
}

func (c *Render) SetCount(count uint32) *Render {
	c.Count = count
	return c
}

func (c *Render) SetInstances(instances uint32) *Render {
	c.Instances = instances
	return c
}
