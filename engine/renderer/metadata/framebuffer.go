package metadata

import "github.com/gogpu/gputypes"

// FramebufferInfo describes an offscreen render target. Color must be a
// texture handle created with TextureUsageRenderAttachment.
type FramebufferInfo struct {
	Name        string
	Width       uint32
	Height      uint32
	Color       Handle
	DepthFormat gputypes.TextureFormat
}

type FramebufferState struct {
	DeviceID   uint64
	Generation uint32
	// Device object of the colour attachment the framebuffer was built with.
	Color uint64
}

func (s *FramebufferState) Materialized(generation uint32) bool {
	return s.DeviceID != 0 && s.Generation == generation
}

type ClearFlags uint8

const (
	ClearNone    ClearFlags = 0x0
	ClearColour  ClearFlags = 0x1
	ClearDepth   ClearFlags = 0x2
	ClearStencil ClearFlags = 0x4
	ClearAll                = ClearColour | ClearDepth | ClearStencil
)

// Rect is a pixel rectangle, used for viewports and texture regions.
type Rect struct {
	X      int32
	Y      int32
	Width  uint32
	Height uint32
}

func (r Rect) Empty() bool {
	return r.Width == 0 || r.Height == 0
}
