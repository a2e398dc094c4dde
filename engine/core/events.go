package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// A shader source changed on disk and was reloaded.
	// Context usage: Data is the shader name (string).
	EVENT_CODE_SHADER_RELOADED SystemEventCode = 0x02

	// The render thread finished replaying a frame.
	// Context usage: Data is the frame number (uint64).
	EVENT_CODE_FRAME_PRESENTED SystemEventCode = 0x03

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

// Should return true if handled. Handled events are not passed to later listeners.
type FnOnEvent func(context EventContext) bool

// EventBus dispatches events synchronously on the goroutine that fires them.
type EventBus struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]FnOnEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[SystemEventCode][]FnOnEvent),
	}
}

func (b *EventBus) Register(code SystemEventCode, fn FnOnEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered[code] = append(b.registered[code], fn)
}

// Unregister drops every listener for the given code.
func (b *EventBus) Unregister(code SystemEventCode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.registered, code)
}

// Fire returns true if one of the listeners handled the event.
func (b *EventBus) Fire(context EventContext) bool {
	b.mu.RLock()
	listeners := append([]FnOnEvent(nil), b.registered[context.Type]...)
	b.mu.RUnlock()

	for _, fn := range listeners {
		if fn(context) {
			return true
		}
	}
	return false
}
