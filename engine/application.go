package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
)

type AssetsConfig struct {
	// Directory scanned for .wgsl files. Empty disables the shader library.
	ShaderDir string `toml:"shader_dir" yaml:"shader_dir"`
	// Reload shaders when they change on disk.
	Watch bool `toml:"watch" yaml:"watch"`
	// Number of job system workers used for reloads.
	Workers int `toml:"workers" yaml:"workers"`
}

type ApplicationConfig struct {
	// The application name, used in logs.
	Name     string          `toml:"name" yaml:"name"`
	LogLevel string          `toml:"log_level" yaml:"log_level"`
	Renderer renderer.Config `toml:"renderer" yaml:"renderer"`
	Assets   AssetsConfig    `toml:"assets" yaml:"assets"`
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:     "Anima",
		LogLevel: "info",
		Renderer: renderer.DefaultConfig(),
		Assets: AssetsConfig{
			Workers: 2,
		},
	}
}

// LoadConfig reads a .toml, .yaml or .yml file over the defaults and
// validates the result. Unknown keys are rejected.
func LoadConfig(path string) (*ApplicationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultApplicationConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(config); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", core.ErrInvalidConfig, path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s: %v", core.ErrInvalidConfig, path, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config format %q", core.ErrInvalidConfig, filepath.Ext(path))
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

func (c *ApplicationConfig) Validate() error {
	if _, err := core.ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Assets.Workers < 1 {
		return fmt.Errorf("%w: assets.workers must be at least 1, got %d", core.ErrInvalidConfig, c.Assets.Workers)
	}
	if c.Assets.Watch && c.Assets.ShaderDir == "" {
		return fmt.Errorf("%w: assets.watch needs assets.shader_dir", core.ErrInvalidConfig)
	}
	return c.Renderer.Validate()
}
