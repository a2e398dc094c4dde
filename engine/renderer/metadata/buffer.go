package metadata

import "github.com/gogpu/gputypes"

/** @brief Creation parameters of a GPU buffer. Immutable once created. */
type BufferInfo struct {
	/** @brief Debug name. */
	Name string
	/** @brief Initial size in bytes. */
	Size uint64
	/** @brief How the buffer is going to be bound. */
	Usage gputypes.BufferUsage
}

/**
 * @brief Backend side of a buffer slot. Only touched by the render thread.
 */
type BufferState struct {
	/** @brief Device object id, 0 until materialized. */
	DeviceID uint64
	/** @brief Slot generation the device object was created for. */
	Generation uint32
	/** @brief Size of the device allocation in bytes. */
	Size uint64
	/** @brief Usage the device object was created with. */
	Usage gputypes.BufferUsage
}

func (s *BufferState) Materialized(generation uint32) bool {
	return s.DeviceID != 0 && s.Generation == generation
}
