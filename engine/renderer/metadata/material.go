package metadata

/** @brief Creation parameters of a material: a WGSL program and its entry points. */
type MaterialInfo struct {
	Name string
	/** @brief WGSL source holding both stages. */
	Source        string
	VertexEntry   string
	FragmentEntry string
}

/**
 * @brief Backend side of a material slot. Only touched by the render thread.
 */
type MaterialState struct {
	DeviceID   uint64
	Generation uint32
	/** @brief Set when compilation failed for Generation, so it is not retried every frame. */
	Failed bool
}

func (s *MaterialState) Materialized(generation uint32) bool {
	return s.DeviceID != 0 && s.Generation == generation
}

// Uniform is a named vec4 value bound when a material is set up.
type Uniform struct {
	Name  string
	Value [4]float32
}

// TextureBinding attaches a texture handle to a material sampler slot.
type TextureBinding struct {
	Slot    uint32
	Texture Handle
}
