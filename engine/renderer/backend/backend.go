package backend

import "github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"

// TextureSlot is a texture bound to a program sampler slot, already resolved
// to its device object.
type TextureSlot struct {
	Slot     uint32
	DeviceID uint64
}

// Device is the device-level surface a backend implements. Object ids are
// opaque and never 0. Every method is called from the render thread only.
type Device interface {
	Name() string
	BeginFrame(frame uint64) error
	EndFrame(frame uint64) error

	CreateBuffer(info *metadata.BufferInfo, size uint64) (uint64, error)
	// ResizeBuffer reallocates the buffer, discarding its content. The
	// returned id replaces the old one.
	ResizeBuffer(id uint64, size uint64) (uint64, error)
	WriteBuffer(id uint64, offset uint64, data []byte) error
	DestroyBuffer(id uint64)

	CreateTexture(info *metadata.TextureInfo, width, height uint32) (uint64, error)
	ResizeTexture(id uint64, width, height uint32) (uint64, error)
	WriteTexture(id uint64, region metadata.Rect, pixels []byte) error
	DestroyTexture(id uint64)

	// CreateProgram compiles the material source. Compilation errors are
	// returned, never panicked.
	CreateProgram(info *metadata.MaterialInfo) (uint64, error)
	UseProgram(id uint64, textures []TextureSlot, uniforms []metadata.Uniform) error
	DestroyProgram(id uint64)

	CreateFramebuffer(info *metadata.FramebufferInfo, color uint64) (uint64, error)
	DestroyFramebuffer(id uint64)
	// BindFramebuffer selects the render target; id 0 is the backbuffer.
	BindFramebuffer(id uint64, viewport metadata.Rect) error

	Clear(flags metadata.ClearFlags, colour [4]float32, depth float32, stencil uint32) error
	Draw(program, buffer uint64, first, count, instances uint32) error

	Shutdown() error
}
