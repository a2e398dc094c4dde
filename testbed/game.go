package testbed

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	stdmath "math"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/anima-gpu/engine"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/math"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/commands"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// MaterialShader is the shader library entry the testbed material is built from.
const MaterialShader = "textured"

const (
	textureSize   = 8
	offscreenSize = 64
	// The vertex buffer gains a triangle every growthInterval ticks.
	growthInterval = 120
	maxTriangles   = 64
)

//go:embed shaders/textured.wgsl
var defaultShaderSource string

var (
	coldColour = math.NewVec4(0.1, 0.2, 0.9, 1)
	warmColour = math.NewVec4(0.9, 0.2, 0.1, 1)
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	vertices    metadata.Handle
	texture     metadata.Handle
	target      metadata.Handle
	framebuffer metadata.Handle
	material    metadata.Handle

	triangles uint32
	elapsed   float64
	ticks     uint64

	// shader names reloaded by the job system, drained on the producer goroutine
	reloads chan string
}

func NewTestGame(config *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State: &gameState{
				triangles: 1,
				reloads:   make(chan string, 8),
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing testbed...")
	state := g.state()

	state.vertices = g.Registry.CreateBuffer(metadata.BufferInfo{
		Name:  "triangles",
		Size:  triangleBytes(state.triangles),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	state.texture = g.Registry.CreateTexture(metadata.TextureInfo{
		Name:   "checker",
		Width:  textureSize,
		Height: textureSize,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	state.target = g.Registry.CreateTexture(metadata.TextureInfo{
		Name:   "offscreen",
		Width:  offscreenSize,
		Height: offscreenSize,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	})
	state.framebuffer = g.Registry.CreateFramebuffer(metadata.FramebufferInfo{
		Name:   "offscreen",
		Width:  offscreenSize,
		Height: offscreenSize,
		Color:  state.target,
	})
	state.material = g.Registry.CreateMaterial(g.materialInfo())

	for _, h := range []metadata.Handle{state.vertices, state.texture, state.target, state.framebuffer, state.material} {
		if !h.IsValid() {
			return fmt.Errorf("testbed resources exceed the configured registry limits")
		}
	}

	g.Events.Register(core.EVENT_CODE_SHADER_RELOADED, g.onShaderReloaded)
	return nil
}

func (g *TestGame) materialInfo() metadata.MaterialInfo {
	source := defaultShaderSource
	if g.Shaders != nil {
		if s, ok := g.Shaders.Get(MaterialShader); ok {
			source = s.Source
		}
	}
	return metadata.MaterialInfo{
		Name:          MaterialShader,
		Source:        source,
		VertexEntry:   "vs_main",
		FragmentEntry: "fs_main",
	}
}

// onShaderReloaded runs on a job system worker.
func (g *TestGame) onShaderReloaded(context core.EventContext) bool {
	name, ok := context.Data.(string)
	if !ok || name != MaterialShader {
		return false
	}
	select {
	case g.state().reloads <- name:
	default:
		// a reload is already pending and will pick up the newest source
	}
	return true
}

// swapMaterial replaces the material handle. Commands recorded earlier with
// the old handle are skipped by the consumer once the slot is released.
func (g *TestGame) swapMaterial() {
	state := g.state()
	g.Registry.ReleaseMaterial(state.material)
	state.material = g.Registry.CreateMaterial(g.materialInfo())
	core.LogInfo("material %s recreated as %s", MaterialShader, state.material)
}

func (g *TestGame) Update(deltaTime float64, list *commands.CommandList) error {
	state := g.state()
	state.ticks++
	state.elapsed += deltaTime

	select {
	case <-state.reloads:
		g.swapMaterial()
	default:
	}

	if state.ticks%growthInterval == 0 && state.triangles < maxTriangles {
		state.triangles++
		core.LogDebug("growing vertex buffer to %d triangles", state.triangles)
	}

	t := float32(state.elapsed)
	background := coldColour.Lerp(warmColour, 0.5+0.5*math.Sin(t))

	// offscreen pass
	list.SetupView().SetFramebuffer(state.framebuffer).SetViewport(0, 0, offscreenSize, offscreenSize)
	list.Clear().SetColour(0.1, 0.1, 0.1, 1).SetDepth(1)
	list.FillTexture().SetTexture(state.texture).SetPixels(checker(state.ticks))
	list.FillBuffer().
		SetBuffer(state.vertices).
		SetSize(triangleBytes(state.triangles)).
		SetData(triangles(state.triangles))
	list.SetupMaterial().
		SetMaterial(state.material).
		SetTexture(0, state.texture).
		SetUniform("tint", 1, 1, 1, 1).
		SetUniform("time", t)
	list.Render().SetMaterial(state.material).SetBuffer(state.vertices).SetCount(state.triangles * 3)

	// composite onto the backbuffer
	list.SetupView()
	list.Clear().SetColour(background.X, background.Y, background.Z, background.W)
	list.SetupMaterial().
		SetMaterial(state.material).
		SetTexture(0, state.target).
		SetUniform("tint", 1, 1, 1, 1).
		SetUniform("time", 0)
	list.Render().SetMaterial(state.material).SetBuffer(state.vertices).SetCount(3)

	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.state()
	g.Registry.ReleaseMaterial(state.material)
	g.Registry.ReleaseFramebuffer(state.framebuffer)
	g.Registry.ReleaseTexture(state.target)
	g.Registry.ReleaseTexture(state.texture)
	g.Registry.ReleaseBuffer(state.vertices)
	core.LogInfo("testbed shut down after %d ticks", state.ticks)
	return nil
}

func triangleBytes(n uint32) uint64 {
	// three vec2<f32> per triangle
	return uint64(n) * 3 * 2 * 4
}

// triangles lays n triangles out on a ring.
func triangles(n uint32) []byte {
	data := make([]byte, triangleBytes(n))
	offset := 0
	put := func(v math.Vec2) {
		binary.LittleEndian.PutUint32(data[offset:], stdmath.Float32bits(v.X))
		binary.LittleEndian.PutUint32(data[offset+4:], stdmath.Float32bits(v.Y))
		offset += 8
	}
	size := math.Clamp(float32(1)/float32(n), 0.05, 0.3)
	corners := [3]math.Vec2{
		math.NewVec2(0, size),
		math.NewVec2(-size, -size),
		math.NewVec2(size, -size),
	}
	for i := uint32(0); i < n; i++ {
		angle := 2 * stdmath.Pi * float32(i) / float32(n)
		centre := math.NewVec2Polar(1, angle).Scale(0.5)
		for _, corner := range corners {
			put(centre.Add(corner))
		}
	}
	return data
}

// checker returns an RGBA checkerboard whose colours shift with the tick.
func checker(tick uint64) []byte {
	pixels := make([]byte, textureSize*textureSize*4)
	shade := byte(tick % 256)
	for y := 0; y < textureSize; y++ {
		for x := 0; x < textureSize; x++ {
			i := (y*textureSize + x) * 4
			if (x+y)%2 == 0 {
				pixels[i], pixels[i+1], pixels[i+2] = shade, 255-shade, 128
			} else {
				pixels[i], pixels[i+1], pixels[i+2] = 255, 255, 255
			}
			pixels[i+3] = 255
		}
	}
	return pixels
}
