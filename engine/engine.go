package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/bmp"
	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/anima-gpu/engine/assets"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/backend"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/commands"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/registry"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/scheduler"
	"github.com/spaghettifunk/anima-gpu/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// Engine wires the producer (the game) to the consumer (the device) for one
// application. There is no global state: several engines may coexist.
type Engine struct {
	ID uuid.UUID

	currentStage Stage
	gameInstance *Game
	config       *ApplicationConfig

	events     *core.EventBus
	registry   *registry.Registry
	device     backend.Device
	dispatcher *backend.Dispatcher
	scheduler  scheduler.Scheduler
	metrics    *core.FrameMetrics
	clock      *core.Clock
	jobs       *systems.JobSystem
	shaders    *assets.ShaderLibrary

	isRunning atomic.Bool
	frame     uint64
	lastTime  float64
}

func New(g *Game) (*Engine, error) {
	config := g.ApplicationConfig
	if config == nil {
		config = DefaultApplicationConfig()
		g.ApplicationConfig = config
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	level, _ := core.ParseLogLevel(config.LogLevel)
	core.SetLogLevel(level)

	e := &Engine{
		ID:           uuid.New(),
		currentStage: EngineStageBooting,
		gameInstance: g,
		config:       config,
		events:       core.NewEventBus(),
		metrics:      core.NewFrameMetrics(),
		clock:        core.NewClock(),
	}

	reg, err := registry.New(config.Renderer.Limits)
	if err != nil {
		return nil, err
	}
	e.registry = reg

	device, err := renderer.NewDevice(config.Renderer)
	if err != nil {
		return nil, err
	}
	e.device = device
	e.dispatcher = backend.NewDispatcher(device, reg)

	mode, _ := scheduler.ParseMode(config.Renderer.Threading)
	e.scheduler, err = scheduler.New(mode, e.dispatcher,
		scheduler.WithMetrics(e.metrics),
		scheduler.WithFrameCallback(e.onFramePresented),
	)
	if err != nil {
		return nil, err
	}

	jobs, err := systems.NewJobSystem(config.Assets.Workers, 16)
	if err != nil {
		return nil, err
	}
	e.jobs = jobs
	e.shaders = assets.NewShaderLibrary(config.Assets.ShaderDir, jobs, e.events)

	g.Registry = reg
	g.Events = e.events
	g.Shaders = e.shaders

	e.currentStage = EngineStageBootComplete
	core.LogInfo("engine %s booted: %s device, %s scheduler", e.ID, device.Name(), mode)
	return e, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageBootComplete {
		return fmt.Errorf("engine initialize called in stage %d", e.currentStage)
	}
	e.currentStage = EngineStageInitializing

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)

	if e.config.Assets.ShaderDir != "" {
		if err := e.shaders.Load(); err != nil {
			return err
		}
		if e.config.Assets.Watch {
			if err := e.shaders.Watch(); err != nil {
				return err
			}
		}
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return fmt.Errorf("game initialize: %w", err)
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// Run drives the game until ctx is cancelled, the quit event fires, the
// configured frame budget is spent or the game returns an error. In
// pipelined mode the consumer runs on its own goroutine and is joined
// before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine run called in stage %d", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	var err error
	switch e.scheduler.Mode() {
	case scheduler.ModePipelined:
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			// the consumer only stops through Close so pending frames are never lost
			return e.scheduler.Run(context.Background())
		})
		g.Go(func() error {
			defer e.scheduler.Close()
			return e.produce(gctx)
		})
		err = g.Wait()
	default:
		err = e.produce(ctx)
		e.scheduler.Close()
	}

	fps, frameTime := e.metrics.Frame()
	core.LogInfo("submitted %d frames, replayed %d (%.1f fps, %.3f ms/frame), %d commands skipped",
		e.frame, e.metrics.Total(), fps, frameTime, e.dispatcher.Skipped())

	if path := e.config.Renderer.CapturePath; path != "" && err == nil {
		if cerr := e.Capture(path); cerr != nil {
			core.LogError("capture to %s failed: %v", path, cerr)
		}
	}
	return err
}

func (e *Engine) produce(ctx context.Context) error {
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	var targetFrameSeconds float64
	if fps := e.config.Renderer.TargetFPS; fps > 0 {
		targetFrameSeconds = 1.0 / float64(fps)
	}
	list := commands.New()

	for e.isRunning.Load() {
		if ctx.Err() != nil {
			return nil
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStart := time.Now()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta, list); err != nil {
				core.LogError("game update failed, shutting down: %v", err)
				return fmt.Errorf("game update: %w", err)
			}
		}

		if err := e.scheduler.Submit(ctx, list); err != nil {
			if errors.Is(err, core.ErrSchedulerClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		e.frame++

		if budget := e.config.Renderer.MaxFrames; budget > 0 && e.frame >= budget {
			core.LogInfo("frame budget of %d reached", budget)
			e.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		}

		// If there is time left, give it back to the OS.
		if remaining := time.Duration(targetFrameSeconds*float64(time.Second)) - time.Since(frameStart); remaining > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(remaining):
			}
		}

		// Update last time
		e.lastTime = currentTime
	}
	return nil
}

// Shutdown releases every device object and stops the background systems.
// It must be called after Run has returned.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			errs = append(errs, fmt.Errorf("game shutdown: %w", err))
		}
	}
	if err := e.scheduler.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.shaders.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.jobs.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	e.dispatcher.DestroyAll()
	if err := e.device.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	e.events.Unregister(core.EVENT_CODE_APPLICATION_QUIT)

	core.LogInfo("engine %s shut down", e.ID)
	return errors.Join(errs...)
}

type capturer interface {
	Capture() *image.RGBA
}

// Capture writes the device backbuffer to path as PNG or BMP, chosen by
// extension. Only devices that keep their backbuffer in memory support it.
func (e *Engine) Capture(path string) error {
	c, ok := e.device.(capturer)
	if !ok {
		return fmt.Errorf("%s device cannot capture frames", e.device.Name())
	}
	img := c.Capture()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(f, img)
	case ".bmp":
		err = bmp.Encode(f, img)
	default:
		err = fmt.Errorf("%w: capture format %q", core.ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	core.LogInfo("captured %dx%d frame to %s", img.Bounds().Dx(), img.Bounds().Dy(), path)
	return f.Close()
}

func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

func (e *Engine) Events() *core.EventBus {
	return e.events
}

func (e *Engine) Device() backend.Device {
	return e.device
}

func (e *Engine) Dispatcher() *backend.Dispatcher {
	return e.dispatcher
}

func (e *Engine) Metrics() *core.FrameMetrics {
	return e.metrics
}

// Frames is the number of frames the producer submitted.
func (e *Engine) Frames() uint64 {
	return e.frame
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) onFramePresented(number uint64) {
	e.events.Fire(core.EventContext{Type: core.EVENT_CODE_FRAME_PRESENTED, Data: number})
}

func (e *Engine) onEvent(context core.EventContext) bool {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}
