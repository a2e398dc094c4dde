package renderer

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/backend"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/headless"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/registry"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/scheduler"
)

type RendererType uint8

const (
	Headless RendererType = iota
	Vulkan
	DirectX
	Metal
	OpenGL
)

func (t RendererType) String() string {
	switch t {
	case Headless:
		return "headless"
	case Vulkan:
		return "vulkan"
	case DirectX:
		return "directx"
	case Metal:
		return "metal"
	case OpenGL:
		return "opengl"
	}
	return fmt.Sprintf("RendererType(%d)", uint8(t))
}

func ParseRendererType(name string) (RendererType, error) {
	for t := Headless; t <= OpenGL; t++ {
		if strings.EqualFold(name, t.String()) {
			return t, nil
		}
	}
	return Headless, fmt.Errorf("%w: %q", core.ErrNoBackend, name)
}

type Config struct {
	Backend   string `toml:"backend" yaml:"backend"`
	Threading string `toml:"threading" yaml:"threading"`
	Width     uint32 `toml:"width" yaml:"width"`
	Height    uint32 `toml:"height" yaml:"height"`
	// TargetFPS paces the producer; 0 runs unthrottled.
	TargetFPS uint32 `toml:"target_fps" yaml:"target_fps"`
	// MaxFrames stops the engine after that many frames; 0 runs until cancelled.
	MaxFrames   uint64 `toml:"max_frames" yaml:"max_frames"`
	CapturePath string `toml:"capture_path" yaml:"capture_path"`
	TraceSize   int    `toml:"trace_size" yaml:"trace_size"`
	// Largest single allocation the device accepts; 0 keeps the backend default.
	MaxBufferSize       uint64          `toml:"max_buffer_size" yaml:"max_buffer_size"`
	MaxTextureDimension uint32          `toml:"max_texture_dimension" yaml:"max_texture_dimension"`
	Limits              registry.Config `toml:"limits" yaml:"limits"`
}

func DefaultConfig() Config {
	return Config{
		Backend:   Headless.String(),
		Threading: scheduler.ModePipelined.String(),
		Width:     1280,
		Height:    720,
		TargetFPS: 60,
		TraceSize: 256,
		Limits:    registry.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if _, err := ParseRendererType(c.Backend); err != nil {
		return err
	}
	if _, err := scheduler.ParseMode(c.Threading); err != nil {
		return err
	}
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("%w: renderer size %dx%d", core.ErrInvalidConfig, c.Width, c.Height)
	}
	if c.TraceSize < 0 {
		return fmt.Errorf("%w: negative trace_size %d", core.ErrInvalidConfig, c.TraceSize)
	}
	return c.Limits.Validate()
}

// NewDevice creates the device for the configured backend. Only the headless
// backend is compiled in; asking for any other one fails with ErrNoBackend.
func NewDevice(config Config) (backend.Device, error) {
	t, err := ParseRendererType(config.Backend)
	if err != nil {
		return nil, err
	}
	switch t {
	case Headless:
		return headless.New(headless.Config{
			Width:               config.Width,
			Height:              config.Height,
			TraceSize:           config.TraceSize,
			MaxBufferSize:       config.MaxBufferSize,
			MaxTextureDimension: config.MaxTextureDimension,
		})
	}
	return nil, fmt.Errorf("%w: %s backend is not available in this build", core.ErrNoBackend, t)
}
