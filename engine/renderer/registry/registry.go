package registry

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type Config struct {
	/** @brief The maximum number of buffers alive at once. */
	MaxBufferCount uint32 `toml:"max_buffers" yaml:"max_buffers"`
	/** @brief The maximum number of textures alive at once. */
	MaxTextureCount uint32 `toml:"max_textures" yaml:"max_textures"`
	/** @brief The maximum number of materials alive at once. */
	MaxMaterialCount uint32 `toml:"max_materials" yaml:"max_materials"`
	/** @brief The maximum number of framebuffers alive at once. */
	MaxFramebufferCount uint32 `toml:"max_framebuffers" yaml:"max_framebuffers"`
}

func DefaultConfig() Config {
	return Config{
		MaxBufferCount:      4096,
		MaxTextureCount:     1024,
		MaxMaterialCount:    256,
		MaxFramebufferCount: 32,
	}
}

func (c Config) Validate() error {
	limits := []struct {
		name  string
		value uint32
	}{
		{"max_buffers", c.MaxBufferCount},
		{"max_textures", c.MaxTextureCount},
		{"max_materials", c.MaxMaterialCount},
		{"max_framebuffers", c.MaxFramebufferCount},
	}
	for _, l := range limits {
		if l.value == 0 {
			return fmt.Errorf("%w: %s must be > 0", core.ErrInvalidConfig, l.name)
		}
		if l.value > metadata.MaxPoolCapacity {
			return fmt.Errorf("%w: %s must be <= %d", core.ErrInvalidConfig, l.name, metadata.MaxPoolCapacity)
		}
	}
	return nil
}

// Registry owns one slot pool per resource kind. Pools are sized once in New.
// The producer creates and releases handles, the render thread resolves them
// and materializes backend state.
type Registry struct {
	ID uuid.UUID

	Buffers      *Pool[metadata.BufferInfo, metadata.BufferState]
	Textures     *Pool[metadata.TextureInfo, metadata.TextureState]
	Materials    *Pool[metadata.MaterialInfo, metadata.MaterialState]
	Framebuffers *Pool[metadata.FramebufferInfo, metadata.FramebufferState]
}

func New(config Config) (*Registry, error) {
	if err := config.Validate(); err != nil {
		core.LogError("%v", err)
		return nil, err
	}

	r := &Registry{
		ID:           uuid.New(),
		Buffers:      newPool[metadata.BufferInfo, metadata.BufferState](metadata.ResourceKindBuffer, config.MaxBufferCount),
		Textures:     newPool[metadata.TextureInfo, metadata.TextureState](metadata.ResourceKindTexture, config.MaxTextureCount),
		Materials:    newPool[metadata.MaterialInfo, metadata.MaterialState](metadata.ResourceKindMaterial, config.MaxMaterialCount),
		Framebuffers: newPool[metadata.FramebufferInfo, metadata.FramebufferState](metadata.ResourceKindFramebuffer, config.MaxFramebufferCount),
	}
	core.LogDebug("registry %s created (buffers=%d textures=%d materials=%d framebuffers=%d)",
		r.ID, config.MaxBufferCount, config.MaxTextureCount, config.MaxMaterialCount, config.MaxFramebufferCount)
	return r, nil
}

func (r *Registry) CreateBuffer(info metadata.BufferInfo) metadata.Handle {
	return r.Buffers.Create(info)
}

func (r *Registry) CreateTexture(info metadata.TextureInfo) metadata.Handle {
	return r.Textures.Create(info)
}

func (r *Registry) CreateMaterial(info metadata.MaterialInfo) metadata.Handle {
	return r.Materials.Create(info)
}

func (r *Registry) CreateFramebuffer(info metadata.FramebufferInfo) metadata.Handle {
	return r.Framebuffers.Create(info)
}

func (r *Registry) ReleaseBuffer(h metadata.Handle) bool {
	return r.Buffers.Release(h)
}

func (r *Registry) ReleaseTexture(h metadata.Handle) bool {
	return r.Textures.Release(h)
}

func (r *Registry) ReleaseMaterial(h metadata.Handle) bool {
	return r.Materials.Release(h)
}

func (r *Registry) ReleaseFramebuffer(h metadata.Handle) bool {
	return r.Framebuffers.Release(h)
}

// Live returns the number of occupied slots per kind, for diagnostics.
func (r *Registry) Live() map[metadata.ResourceKind]int {
	return map[metadata.ResourceKind]int{
		metadata.ResourceKindBuffer:      r.Buffers.Len(),
		metadata.ResourceKindTexture:     r.Textures.Len(),
		metadata.ResourceKindMaterial:    r.Materials.Len(),
		metadata.ResourceKindFramebuffer: r.Framebuffers.Len(),
	}
}
