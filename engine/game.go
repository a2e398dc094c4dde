package engine

import (
	"github.com/spaghettifunk/anima-gpu/engine/assets"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/commands"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/registry"
)

// Game is the producer side of the engine. The engine fills Registry, Events
// and Shaders in New, before any callback runs.
type Game struct {
	ApplicationConfig *ApplicationConfig
	Registry          *registry.Registry
	Events            *core.EventBus
	Shaders           *assets.ShaderLibrary
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnShutdown        Shutdown
}

type Initialize func() error

// Update records the commands of one tick into list. It runs on the
// producer goroutine and must not keep list after returning.
type Update func(deltaTime float64, list *commands.CommandList) error
type Shutdown func() error
