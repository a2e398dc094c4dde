package metadata

import "github.com/gogpu/gputypes"

/**
 * @brief Creation parameters of a 2D texture.
 */
type TextureInfo struct {
	/** @brief The texture Name. */
	Name string
	/** @brief The texture Width. */
	Width uint32
	/** @brief The texture Height. */
	Height uint32
	/** @brief Pixel format. */
	Format gputypes.TextureFormat
	/** @brief How the texture is going to be bound. */
	Usage gputypes.TextureUsage
}

/**
 * @brief Backend side of a texture slot. Only touched by the render thread.
 */
type TextureState struct {
	DeviceID   uint64
	Generation uint32
	Width      uint32
	Height     uint32
}

func (s *TextureState) Materialized(generation uint32) bool {
	return s.DeviceID != 0 && s.Generation == generation
}

// BytesPerPixel returns 0 for formats without a fixed CPU layout.
func BytesPerPixel(format gputypes.TextureFormat) uint32 {
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return 4
	case gputypes.TextureFormatR8Unorm:
		return 1
	}
	return 0
}
