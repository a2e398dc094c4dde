package registry

import (
	"sync/atomic"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// MaxAcquireAttempts is the number of full sweeps Create makes over a pool
// before reporting it as exhausted.
const MaxAcquireAttempts = 10

// slotClaimed marks a slot won by Create whose generation is not published
// yet. It has no bits inside the generation mask, so no handle validates
// against it.
const slotClaimed uint32 = 1 << 31

// slot is free while state is 0 and occupied while state equals generation.
// generation is only written by the creator holding the slot claimed.
type slot struct {
	generation atomic.Uint32
	state      atomic.Uint32
}

// Pool is a fixed capacity array of slots for one resource kind. I is the
// creation descriptor written by the producer, S the backend state owned by
// the render thread.
type Pool[I any, S any] struct {
	kind   metadata.ResourceKind
	slots  []slot
	infos  []I
	states []S
	live   atomic.Int32
}

func newPool[I any, S any](kind metadata.ResourceKind, capacity uint32) *Pool[I, S] {
	return &Pool[I, S]{
		kind:   kind,
		slots:  make([]slot, capacity),
		infos:  make([]I, capacity),
		states: make([]S, capacity),
	}
}

func (p *Pool[I, S]) Kind() metadata.ResourceKind {
	return p.kind
}

func (p *Pool[I, S]) Cap() int {
	return len(p.slots)
}

// Len returns the number of occupied slots.
func (p *Pool[I, S]) Len() int {
	return int(p.live.Load())
}

// Create acquires a free slot and stores info in it. It returns the null
// handle when the pool stays full for MaxAcquireAttempts sweeps.
func (p *Pool[I, S]) Create(info I) metadata.Handle {
	for attempt := 0; attempt < MaxAcquireAttempts; attempt++ {
		for i := range p.slots {
			s := &p.slots[i]
			if s.state.Load() != 0 {
				continue
			}
			if !s.state.CompareAndSwap(0, slotClaimed) {
				// somebody else won the slot
				continue
			}
			generation := metadata.NextGeneration(s.generation.Load())
			s.generation.Store(generation)
			p.infos[i] = info
			p.live.Add(1)
			s.state.Store(generation)
			return metadata.NewHandle(uint32(i), generation)
		}
	}
	core.LogError("%s pool exhausted (capacity %d), returning null handle", p.kind, len(p.slots))
	return metadata.InvalidHandle
}

// Release frees the slot referenced by h. The descriptor is left in place and
// overwritten by the next Create on the same slot. Releasing a stale or null
// handle is a no-op.
func (p *Pool[I, S]) Release(h metadata.Handle) bool {
	if !h.IsValid() {
		return false
	}
	index := h.Index()
	if index >= uint32(len(p.slots)) {
		core.LogWarn("release of %s %s out of range", p.kind, h)
		return false
	}
	if !p.slots[index].state.CompareAndSwap(h.Generation(), 0) {
		core.LogWarn("release of stale %s %s ignored", p.kind, h)
		return false
	}
	p.live.Add(-1)
	return true
}

// Validate reports whether h still refers to the occupant it was issued for.
func (p *Pool[I, S]) Validate(h metadata.Handle) bool {
	if !h.IsValid() {
		return false
	}
	index := h.Index()
	if index >= uint32(len(p.slots)) {
		return false
	}
	state := p.slots[index].state.Load()
	return state&metadata.HandleGenerationMask == h.Generation() && state != 0
}

// Resolve returns pointers to the descriptor and backend state of h. Callers
// are expected to Validate first; an invalid handle is logged and yields nils.
func (p *Pool[I, S]) Resolve(h metadata.Handle) (*I, *S) {
	if !p.Validate(h) {
		core.LogError("resolve of invalid %s %s", p.kind, h)
		return nil, nil
	}
	index := h.Index()
	return &p.infos[index], &p.states[index]
}

// Each calls fn for every occupied slot with its current handle.
func (p *Pool[I, S]) Each(fn func(h metadata.Handle, info *I, state *S)) {
	for i := range p.slots {
		generation := p.slots[i].state.Load()
		if generation == 0 || generation == slotClaimed {
			continue
		}
		fn(metadata.NewHandle(uint32(i), generation), &p.infos[i], &p.states[i])
	}
}

// EachState visits the backend state of every slot, occupied or not. The
// render thread uses it to tear down device objects left behind by released
// slots.
func (p *Pool[I, S]) EachState(fn func(state *S)) {
	for i := range p.states {
		fn(&p.states[i])
	}
}
