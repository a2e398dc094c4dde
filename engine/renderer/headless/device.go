package headless

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"golang.org/x/image/draw"

	"github.com/spaghettifunk/anima-gpu/engine/containers"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/math"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/backend"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Compiler turns WGSL source into SPIR-V.
type Compiler func(source string) ([]byte, error)

const (
	DefaultMaxBufferSize       uint64 = 256 << 20
	DefaultMaxTextureDimension uint32 = 8192
)

type Config struct {
	Width  uint32
	Height uint32
	// TraceSize is the number of device calls kept for Trace. 0 disables tracing.
	TraceSize int
	// Compiler defaults to naga.Compile.
	Compiler Compiler
	// Allocations above these limits fail with core.ErrOutOfRange. Zero
	// selects the defaults.
	MaxBufferSize       uint64
	MaxTextureDimension uint32
}

// Call is one recorded device call.
type Call struct {
	Frame uint64
	Op    string
	ID    uint64
}

type Stats struct {
	Frames   uint64
	Creates  uint64
	Resizes  uint64
	Destroys uint64
	Writes   uint64
	Clears   uint64
	Draws    uint64
	Vertices uint64

	Buffers      int
	Textures     int
	Programs     int
	Framebuffers int
}

type buffer struct {
	name  string
	usage gputypes.BufferUsage
	data  []byte
}

type texture struct {
	name   string
	format gputypes.TextureFormat
	usage  gputypes.TextureUsage
	img    draw.Image
}

type program struct {
	name     string
	spirv    []byte
	textures []backend.TextureSlot
	uniforms []metadata.Uniform
}

type framebuffer struct {
	name  string
	color uint64
}

// Device is a software implementation of backend.Device. Buffers live in
// byte slices and textures in images; programs are compiled but never run,
// so Draw only validates and counts.
type Device struct {
	mu       sync.Mutex
	compiler Compiler

	maxBufferSize       uint64
	maxTextureDimension uint32

	nextID       uint64
	buffers      map[uint64]*buffer
	textures     map[uint64]*texture
	programs     map[uint64]*program
	framebuffers map[uint64]*framebuffer

	backbuffer *image.RGBA
	target     draw.Image
	viewport   image.Rectangle
	depth      float32
	stencil    uint32

	frame   uint64
	inFrame bool
	stats   Stats
	trace   *containers.RingQueue[Call]
}

func New(config Config) (*Device, error) {
	if config.Width == 0 || config.Height == 0 {
		return nil, fmt.Errorf("%w: headless backbuffer %dx%d", core.ErrInvalidConfig, config.Width, config.Height)
	}
	compiler := config.Compiler
	if compiler == nil {
		compiler = func(source string) ([]byte, error) {
			return naga.Compile(source)
		}
	}

	maxBufferSize := config.MaxBufferSize
	if maxBufferSize == 0 {
		maxBufferSize = DefaultMaxBufferSize
	}
	maxTextureDimension := config.MaxTextureDimension
	if maxTextureDimension == 0 {
		maxTextureDimension = DefaultMaxTextureDimension
	}

	d := &Device{
		compiler:            compiler,
		maxBufferSize:       maxBufferSize,
		maxTextureDimension: maxTextureDimension,
		buffers:             make(map[uint64]*buffer),
		textures:            make(map[uint64]*texture),
		programs:            make(map[uint64]*program),
		framebuffers:        make(map[uint64]*framebuffer),
		backbuffer:          image.NewRGBA(image.Rect(0, 0, int(config.Width), int(config.Height))),
	}
	if config.TraceSize > 0 {
		d.trace = containers.NewRingQueue[Call](config.TraceSize)
	}
	d.target = d.backbuffer
	d.viewport = d.backbuffer.Bounds()

	core.LogInfo("headless device created with a %dx%d backbuffer", config.Width, config.Height)
	return d, nil
}

func (d *Device) Name() string {
	return "headless"
}

func (d *Device) record(op string, id uint64) {
	if d.trace != nil {
		d.trace.Push(Call{Frame: d.frame, Op: op, ID: id})
	}
}

func (d *Device) newID() uint64 {
	d.nextID++
	return d.nextID
}

func (d *Device) BeginFrame(frame uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inFrame {
		return fmt.Errorf("begin frame %d: frame %d still open", frame, d.frame)
	}
	d.inFrame = true
	d.frame = frame
	d.target = d.backbuffer
	d.viewport = d.backbuffer.Bounds()
	d.record("begin_frame", 0)
	return nil
}

func (d *Device) EndFrame(frame uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.inFrame || frame != d.frame {
		return fmt.Errorf("end frame %d: not the open frame (open=%t, current=%d)", frame, d.inFrame, d.frame)
	}
	d.inFrame = false
	d.stats.Frames++
	d.record("end_frame", 0)
	return nil
}

func (d *Device) checkBufferSize(size uint64) error {
	if size > d.maxBufferSize {
		return fmt.Errorf("%w: buffer size %d exceeds the %d byte limit", core.ErrOutOfRange, size, d.maxBufferSize)
	}
	return nil
}

func (d *Device) checkTextureExtent(width, height uint32) error {
	if width > d.maxTextureDimension || height > d.maxTextureDimension {
		return fmt.Errorf("%w: texture extent %dx%d exceeds %d", core.ErrOutOfRange, width, height, d.maxTextureDimension)
	}
	return nil
}

func (d *Device) CreateBuffer(info *metadata.BufferInfo, size uint64) (uint64, error) {
	if err := d.checkBufferSize(size); err != nil {
		return 0, fmt.Errorf("buffer %q: %w", info.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.newID()
	d.buffers[id] = &buffer{name: info.Name, usage: info.Usage, data: make([]byte, size)}
	d.stats.Creates++
	d.record("create_buffer", id)
	return id, nil
}

func (d *Device) ResizeBuffer(id uint64, size uint64) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	old, ok := d.buffers[id]
	if !ok {
		return 0, fmt.Errorf("%w: buffer %d", core.ErrUnknownDeviceObject, id)
	}
	if err := d.checkBufferSize(size); err != nil {
		return 0, fmt.Errorf("buffer %q: %w", old.name, err)
	}
	delete(d.buffers, id)

	newID := d.newID()
	d.buffers[newID] = &buffer{name: old.name, usage: old.usage, data: make([]byte, size)}
	d.stats.Resizes++
	d.record("resize_buffer", newID)
	return newID, nil
}

func (d *Device) WriteBuffer(id uint64, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", core.ErrUnknownDeviceObject, id)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("%w: buffer %q write [%d, %d) exceeds %d bytes", core.ErrOutOfRange, b.name, offset, offset+uint64(len(data)), len(b.data))
	}
	copy(b.data[offset:], data)
	d.stats.Writes++
	d.record("write_buffer", id)
	return nil
}

func (d *Device) DestroyBuffer(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.buffers[id]; !ok {
		core.LogWarn("destroy of unknown buffer %d", id)
		return
	}
	delete(d.buffers, id)
	d.stats.Destroys++
	d.record("destroy_buffer", id)
}

// Buffer returns a copy of the buffer content.
func (d *Device) Buffer(id uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", core.ErrUnknownDeviceObject, id)
	}
	return append([]byte(nil), b.data...), nil
}

func newImage(format gputypes.TextureFormat, width, height uint32) (draw.Image, error) {
	bounds := image.Rect(0, 0, int(width), int(height))
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return image.NewRGBA(bounds), nil
	case gputypes.TextureFormatR8Unorm:
		return image.NewGray(bounds), nil
	}
	return nil, fmt.Errorf("%w: %v", core.ErrUnsupportedFormat, format)
}

func (d *Device) CreateTexture(info *metadata.TextureInfo, width, height uint32) (uint64, error) {
	if err := d.checkTextureExtent(width, height); err != nil {
		return 0, fmt.Errorf("texture %q: %w", info.Name, err)
	}
	img, err := newImage(info.Format, width, height)
	if err != nil {
		return 0, fmt.Errorf("texture %q: %w", info.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.newID()
	d.textures[id] = &texture{name: info.Name, format: info.Format, usage: info.Usage, img: img}
	d.stats.Creates++
	d.record("create_texture", id)
	return id, nil
}

func (d *Device) ResizeTexture(id uint64, width, height uint32) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	old, ok := d.textures[id]
	if !ok {
		return 0, fmt.Errorf("%w: texture %d", core.ErrUnknownDeviceObject, id)
	}
	if err := d.checkTextureExtent(width, height); err != nil {
		return 0, fmt.Errorf("texture %q: %w", old.name, err)
	}
	img, err := newImage(old.format, width, height)
	if err != nil {
		return 0, fmt.Errorf("texture %q: %w", old.name, err)
	}
	delete(d.textures, id)

	newID := d.newID()
	d.textures[newID] = &texture{name: old.name, format: old.format, usage: old.usage, img: img}
	d.stats.Resizes++
	d.record("resize_texture", newID)
	return newID, nil
}

func (d *Device) WriteTexture(id uint64, region metadata.Rect, pixels []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.textures[id]
	if !ok {
		return fmt.Errorf("%w: texture %d", core.ErrUnknownDeviceObject, id)
	}

	bpp := metadata.BytesPerPixel(t.format)
	want := uint64(region.Width) * uint64(region.Height) * uint64(bpp)
	if uint64(len(pixels)) < want {
		return fmt.Errorf("%w: texture %q region %dx%d needs %d bytes, got %d", core.ErrOutOfRange, t.name, region.Width, region.Height, want, len(pixels))
	}

	dst := image.Rect(int(region.X), int(region.Y), int(region.X)+int(region.Width), int(region.Y)+int(region.Height))
	if !dst.In(t.img.Bounds()) {
		return fmt.Errorf("%w: texture %q region %v outside %v", core.ErrOutOfRange, t.name, dst, t.img.Bounds())
	}

	src := sourceImage(t.format, region.Width, region.Height, pixels[:want])
	draw.Copy(t.img, dst.Min, src, src.Bounds(), draw.Src, nil)
	d.stats.Writes++
	d.record("write_texture", id)
	return nil
}

// sourceImage wraps tightly packed pixels. BGRA data is swizzled into a new
// RGBA image; the other formats alias pixels.
func sourceImage(format gputypes.TextureFormat, width, height uint32, pixels []byte) image.Image {
	bounds := image.Rect(0, 0, int(width), int(height))
	switch format {
	case gputypes.TextureFormatR8Unorm:
		return &image.Gray{Pix: pixels, Stride: int(width), Rect: bounds}
	case gputypes.TextureFormatBGRA8Unorm:
		rgba := image.NewRGBA(bounds)
		for i := 0; i+3 < len(pixels); i += 4 {
			rgba.Pix[i+0] = pixels[i+2]
			rgba.Pix[i+1] = pixels[i+1]
			rgba.Pix[i+2] = pixels[i+0]
			rgba.Pix[i+3] = pixels[i+3]
		}
		return rgba
	}
	return &image.RGBA{Pix: pixels, Stride: int(width) * 4, Rect: bounds}
}

func (d *Device) DestroyTexture(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.textures[id]; !ok {
		core.LogWarn("destroy of unknown texture %d", id)
		return
	}
	delete(d.textures, id)
	d.stats.Destroys++
	d.record("destroy_texture", id)
}

// Texture returns the image behind a texture object. It must not be modified
// while frames are being replayed.
func (d *Device) Texture(id uint64) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.textures[id]
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", core.ErrUnknownDeviceObject, id)
	}
	return t.img, nil
}

func (d *Device) CreateProgram(info *metadata.MaterialInfo) (uint64, error) {
	if info.Source == "" {
		return 0, fmt.Errorf("%w: material %q has no source", core.ErrShaderCompile, info.Name)
	}
	spirv, err := d.compiler(info.Source)
	if err != nil {
		return 0, fmt.Errorf("%w: material %q: %v", core.ErrShaderCompile, info.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.newID()
	d.programs[id] = &program{name: info.Name, spirv: spirv}
	d.stats.Creates++
	d.record("create_program", id)
	core.LogDebug("compiled material %q to %d bytes of SPIR-V", info.Name, len(spirv))
	return id, nil
}

func (d *Device) UseProgram(id uint64, textures []backend.TextureSlot, uniforms []metadata.Uniform) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.programs[id]
	if !ok {
		return fmt.Errorf("%w: program %d", core.ErrUnknownDeviceObject, id)
	}
	for _, slot := range textures {
		if _, ok := d.textures[slot.DeviceID]; !ok {
			return fmt.Errorf("%w: program %q slot %d texture %d", core.ErrUnknownDeviceObject, p.name, slot.Slot, slot.DeviceID)
		}
	}
	p.textures = append(p.textures[:0], textures...)
	p.uniforms = append(p.uniforms[:0], uniforms...)
	d.record("use_program", id)
	return nil
}

func (d *Device) DestroyProgram(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.programs[id]; !ok {
		core.LogWarn("destroy of unknown program %d", id)
		return
	}
	delete(d.programs, id)
	d.stats.Destroys++
	d.record("destroy_program", id)
}

func (d *Device) CreateFramebuffer(info *metadata.FramebufferInfo, color uint64) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if color == 0 {
		return 0, fmt.Errorf("framebuffer %q has no colour attachment", info.Name)
	}
	t, ok := d.textures[color]
	if !ok {
		return 0, fmt.Errorf("%w: framebuffer %q colour texture %d", core.ErrUnknownDeviceObject, info.Name, color)
	}
	if t.usage&gputypes.TextureUsageRenderAttachment == 0 {
		return 0, fmt.Errorf("framebuffer %q: texture %q lacks render attachment usage", info.Name, t.name)
	}

	id := d.newID()
	d.framebuffers[id] = &framebuffer{name: info.Name, color: color}
	d.stats.Creates++
	d.record("create_framebuffer", id)
	return id, nil
}

func (d *Device) DestroyFramebuffer(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.framebuffers[id]; !ok {
		core.LogWarn("destroy of unknown framebuffer %d", id)
		return
	}
	delete(d.framebuffers, id)
	d.stats.Destroys++
	d.record("destroy_framebuffer", id)
}

func (d *Device) BindFramebuffer(id uint64, viewport metadata.Rect) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	target := draw.Image(d.backbuffer)
	if id != 0 {
		fb, ok := d.framebuffers[id]
		if !ok {
			return fmt.Errorf("%w: framebuffer %d", core.ErrUnknownDeviceObject, id)
		}
		t, ok := d.textures[fb.color]
		if !ok {
			return fmt.Errorf("%w: framebuffer %q colour texture %d", core.ErrUnknownDeviceObject, fb.name, fb.color)
		}
		target = t.img
	}
	d.target = target
	d.viewport = clipViewport(viewport, target.Bounds())
	d.record("bind_framebuffer", id)
	return nil
}

// clipViewport intersects the viewport with the target. An empty viewport
// covers the whole target.
func clipViewport(viewport metadata.Rect, bounds image.Rectangle) image.Rectangle {
	if viewport.Empty() {
		return bounds
	}
	x0 := math.Clamp(int(viewport.X), bounds.Min.X, bounds.Max.X)
	y0 := math.Clamp(int(viewport.Y), bounds.Min.Y, bounds.Max.Y)
	x1 := math.Min(int(viewport.X)+int(viewport.Width), bounds.Max.X)
	y1 := math.Min(int(viewport.Y)+int(viewport.Height), bounds.Max.Y)
	return image.Rect(x0, y0, math.Max(x0, x1), math.Max(y0, y1))
}

func (d *Device) Clear(flags metadata.ClearFlags, colour [4]float32, depth float32, stencil uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if flags&metadata.ClearColour != 0 {
		fill := image.NewUniform(toRGBA(colour))
		draw.Draw(d.target, d.viewport, fill, image.Point{}, draw.Src)
	}
	if flags&metadata.ClearDepth != 0 {
		d.depth = depth
	}
	if flags&metadata.ClearStencil != 0 {
		d.stencil = stencil
	}
	d.stats.Clears++
	d.record("clear", 0)
	return nil
}

func toRGBA(c [4]float32) color.RGBA {
	channel := func(v float32) uint8 {
		return uint8(math.Clamp(v, 0, 1)*255 + 0.5)
	}
	return color.RGBA{R: channel(c[0]), G: channel(c[1]), B: channel(c[2]), A: channel(c[3])}
}

func (d *Device) Draw(prog, buf uint64, first, count, instances uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.programs[prog]; !ok {
		return fmt.Errorf("%w: program %d", core.ErrUnknownDeviceObject, prog)
	}
	if _, ok := d.buffers[buf]; !ok {
		return fmt.Errorf("%w: buffer %d", core.ErrUnknownDeviceObject, buf)
	}
	d.stats.Draws++
	d.stats.Vertices += uint64(count) * uint64(instances)
	d.record("draw", prog)
	return nil
}

// Capture returns a copy of the backbuffer.
func (d *Device) Capture() *image.RGBA {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := image.NewRGBA(d.backbuffer.Bounds())
	draw.Copy(out, image.Point{}, d.backbuffer, d.backbuffer.Bounds(), draw.Src, nil)
	return out
}

func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.stats
	s.Buffers = len(d.buffers)
	s.Textures = len(d.textures)
	s.Programs = len(d.programs)
	s.Framebuffers = len(d.framebuffers)
	return s
}

// Trace returns the recorded calls, oldest first.
func (d *Device) Trace() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.trace == nil {
		return nil
	}
	return d.trace.Items()
}

// Shutdown drops every object still alive. Leaks are reported, not fatal.
func (d *Device) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	leaked := len(d.buffers) + len(d.textures) + len(d.programs) + len(d.framebuffers)
	if leaked > 0 {
		core.LogWarn("headless device shut down with %d live objects (%d buffers, %d textures, %d programs, %d framebuffers)",
			leaked, len(d.buffers), len(d.textures), len(d.programs), len(d.framebuffers))
	}
	clear(d.buffers)
	clear(d.textures)
	clear(d.programs)
	clear(d.framebuffers)
	d.target = d.backbuffer
	core.LogInfo("headless device shut down after %d frames", d.stats.Frames)
	return nil
}

var _ backend.Device = (*Device)(nil)
