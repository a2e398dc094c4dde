package metadata

import "fmt"

const (
	/** @brief Number of bits of a handle holding the slot index. */
	HandleIndexBits = 20
	/** @brief Number of bits of a handle holding the slot generation. */
	HandleGenerationBits = 12

	HandleIndexMask      uint32 = (1 << HandleIndexBits) - 1
	HandleGenerationMask uint32 = (1 << HandleGenerationBits) - 1

	/** @brief Largest pool a handle can address. */
	MaxPoolCapacity = 1 << HandleIndexBits
)

/**
 * @brief Opaque reference to a pooled GPU resource. The low 20 bits hold the
 * slot index and the high 12 bits the slot generation at allocation time.
 * Handles are only ever produced by the registry.
 */
type Handle uint32

/** @brief The null handle. Commands referencing it do nothing. */
const InvalidHandle Handle = 0

func NewHandle(index, generation uint32) Handle {
	return Handle((index & HandleIndexMask) | ((generation & HandleGenerationMask) << HandleIndexBits))
}

func (h Handle) Index() uint32 {
	return uint32(h) & HandleIndexMask
}

func (h Handle) Generation() uint32 {
	return (uint32(h) >> HandleIndexBits) & HandleGenerationMask
}

// IsValid only rejects the null handle; staleness is checked by the registry.
func (h Handle) IsValid() bool {
	return h != InvalidHandle
}

func (h Handle) String() string {
	if h == InvalidHandle {
		return "handle(null)"
	}
	return fmt.Sprintf("handle(%d@%d)", h.Index(), h.Generation())
}

// NextGeneration advances a slot generation inside the 12 bit range,
// skipping 0 which marks a free slot.
func NextGeneration(generation uint32) uint32 {
	next := (generation + 1) & HandleGenerationMask
	if next == 0 {
		next = 1
	}
	return next
}

type ResourceKind uint8

const (
	ResourceKindBuffer ResourceKind = iota
	ResourceKindTexture
	ResourceKindMaterial
	ResourceKindFramebuffer
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceKindBuffer:
		return "buffer"
	case ResourceKindTexture:
		return "texture"
	case ResourceKindMaterial:
		return "material"
	case ResourceKindFramebuffer:
		return "framebuffer"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}
