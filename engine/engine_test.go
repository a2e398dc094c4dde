package engine

import (
	"context"
	"errors"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/bmp"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/commands"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func testConfig(threading string, frames uint64) *ApplicationConfig {
	config := DefaultApplicationConfig()
	config.LogLevel = "error"
	config.Renderer.Threading = threading
	config.Renderer.Width = 16
	config.Renderer.Height = 16
	config.Renderer.TargetFPS = 0
	config.Renderer.MaxFrames = frames
	return config
}

// clearGame clears the backbuffer and grows a buffer by four bytes a frame.
func clearGame(config *ApplicationConfig) *Game {
	g := &Game{ApplicationConfig: config}
	var vb metadata.Handle
	var size uint64
	g.FnInitialize = func() error {
		vb = g.Registry.CreateBuffer(metadata.BufferInfo{Name: "vb", Size: 4, Usage: gputypes.BufferUsageVertex})
		return nil
	}
	g.FnUpdate = func(_ float64, list *commands.CommandList) error {
		size += 4
		list.SetupView()
		list.Clear().SetColour(1, 1, 0, 1)
		list.FillBuffer().SetBuffer(vb).SetSize(size).SetData(make([]byte, size))
		return nil
	}
	g.FnShutdown = func() error {
		g.Registry.ReleaseBuffer(vb)
		return nil
	}
	return g
}

func runEngine(t *testing.T, g *Game) *Engine {
	t.Helper()
	e, err := New(g)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return e
}

func TestRunFrameBudget(t *testing.T) {
	for _, threading := range []string{"immediate", "pipelined"} {
		t.Run(threading, func(t *testing.T) {
			e := runEngine(t, clearGame(testConfig(threading, 5)))

			if e.Frames() != 5 {
				t.Errorf("Frames() = %d, want 5", e.Frames())
			}
			if e.Metrics().Total() != 5 {
				t.Errorf("Metrics().Total() = %d, want 5", e.Metrics().Total())
			}
			if e.Dispatcher().Skipped() != 0 {
				t.Errorf("Dispatcher().Skipped() = %d, want 0", e.Dispatcher().Skipped())
			}
			if e.Dispatcher().Dispatched() != 15 {
				t.Errorf("Dispatcher().Dispatched() = %d, want 15", e.Dispatcher().Dispatched())
			}
			if err := e.Shutdown(); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
			if live := e.Registry().Live()[metadata.ResourceKindBuffer]; live != 0 {
				t.Errorf("live buffers after Shutdown = %d, want 0", live)
			}
		})
	}
}

func TestFramePresentedEvents(t *testing.T) {
	e, err := New(clearGame(testConfig("pipelined", 3)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Shutdown()

	var presented atomic.Uint64
	var last atomic.Uint64
	e.Events().Register(core.EVENT_CODE_FRAME_PRESENTED, func(ctx core.EventContext) bool {
		presented.Add(1)
		last.Store(ctx.Data.(uint64))
		return true
	})
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if presented.Load() != 3 || last.Load() != 3 {
		t.Errorf("presented %d frames, last %d, want 3 and 3", presented.Load(), last.Load())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	e, err := New(clearGame(testConfig("pipelined", 0)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run() did not return after cancel")
	}
	if e.Frames() != e.Metrics().Total() {
		t.Errorf("submitted %d frames but replayed %d", e.Frames(), e.Metrics().Total())
	}
	_ = e.Shutdown()
}

func TestRunReturnsGameError(t *testing.T) {
	boom := errors.New("boom")
	g := clearGame(testConfig("pipelined", 0))
	g.FnUpdate = func(float64, *commands.CommandList) error { return boom }

	e, err := New(g)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := e.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want boom", err)
	}
	_ = e.Shutdown()
}

func TestRunRequiresInitialize(t *testing.T) {
	e, err := New(clearGame(testConfig("immediate", 1)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.Run(context.Background()); err == nil {
		t.Errorf("Run() before Initialize error = nil, want error")
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	config := testConfig("immediate", 1)
	config.Renderer.Backend = "vulkan"
	if _, err := New(&Game{ApplicationConfig: config}); !errors.Is(err, core.ErrNoBackend) {
		t.Errorf("New() error = %v, want ErrNoBackend", err)
	}
}

func TestCapture(t *testing.T) {
	dir := t.TempDir()
	e := runEngine(t, clearGame(testConfig("immediate", 1)))
	defer e.Shutdown()

	pngPath := filepath.Join(dir, "frame.png")
	if err := e.Capture(pngPath); err != nil {
		t.Fatalf("Capture(png) error = %v", err)
	}
	f, err := os.Open(pngPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if r, g, b, _ := img.At(8, 8).RGBA(); r != 0xffff || g != 0xffff || b != 0 {
		t.Errorf("captured pixel = (%x, %x, %x), want yellow", r, g, b)
	}

	bmpPath := filepath.Join(dir, "frame.bmp")
	if err := e.Capture(bmpPath); err != nil {
		t.Fatalf("Capture(bmp) error = %v", err)
	}
	bf, err := os.Open(bmpPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer bf.Close()
	if cfg, err := bmp.DecodeConfig(bf); err != nil || cfg.Width != 16 {
		t.Errorf("bmp.DecodeConfig() = %+v, %v, want width 16", cfg, err)
	}

	if err := e.Capture(filepath.Join(dir, "frame.gif")); !errors.Is(err, core.ErrUnsupportedFormat) {
		t.Errorf("Capture(gif) error = %v, want ErrUnsupportedFormat", err)
	}
}
