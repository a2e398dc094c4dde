package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadConfigTOML(t *testing.T) {
	path := writeConfig(t, "anima.toml", `
name = "demo"
log_level = "debug"

[renderer]
threading = "immediate"
width = 320
height = 240
max_frames = 10

[renderer.limits]
max_buffers = 8
max_textures = 8
max_materials = 4
max_framebuffers = 2

[assets]
shader_dir = "shaders"
watch = true
`)
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.Name != "demo" || config.LogLevel != "debug" {
		t.Errorf("name, log_level = %q, %q, want demo, debug", config.Name, config.LogLevel)
	}
	if config.Renderer.Width != 320 || config.Renderer.MaxFrames != 10 {
		t.Errorf("renderer = %+v, want width 320 and 10 frames", config.Renderer)
	}
	if config.Renderer.Limits.MaxBufferCount != 8 {
		t.Errorf("max_buffers = %d, want 8", config.Renderer.Limits.MaxBufferCount)
	}
	// keys absent from the file keep their defaults
	if config.Renderer.Backend != "headless" || config.Renderer.TargetFPS != 60 || config.Assets.Workers != 2 {
		t.Errorf("defaults lost: backend %q, target_fps %d, workers %d", config.Renderer.Backend, config.Renderer.TargetFPS, config.Assets.Workers)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, "anima.yaml", `
name: demo
renderer:
  threading: pipelined
  capture_path: out.png
assets:
  workers: 3
`)
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.Renderer.Threading != "pipelined" || config.Renderer.CapturePath != "out.png" || config.Assets.Workers != 3 {
		t.Errorf("LoadConfig() = %+v", config)
	}
	if config.Renderer.Limits.MaxBufferCount != 4096 {
		t.Errorf("max_buffers = %d, want default 4096", config.Renderer.Limits.MaxBufferCount)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown toml key", "a.toml", "colour = \"red\"\n"},
		{"unknown yaml key", "a.yaml", "colour: red\n"},
		{"bad log level", "a.toml", "log_level = \"loud\"\n"},
		{"unknown backend", "a.toml", "[renderer]\nbackend = \"glide\"\n"},
		{"watch without dir", "a.yaml", "assets:\n  watch: true\n"},
		{"empty pool", "a.toml", "[renderer.limits]\nmax_textures = 0\n"},
		{"unsupported format", "a.json", "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.file, tt.content))
			if !errors.Is(err, core.ErrInvalidConfig) && !errors.Is(err, core.ErrNoBackend) {
				t.Errorf("LoadConfig() error = %v, want a configuration error", err)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadConfig() error = %v, want ErrNotExist", err)
	}
}

func TestLoadConfigEmptyYAML(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, "empty.yml", ""))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.Name != "Anima" {
		t.Errorf("Name = %q, want default", config.Name)
	}
}

func TestShippedConfigs(t *testing.T) {
	for _, path := range []string{"../anima.toml", "../anima.yaml"} {
		if _, err := LoadConfig(path); err != nil {
			t.Errorf("LoadConfig(%s) error = %v", path, err)
		}
	}
}
