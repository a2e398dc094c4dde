package testbed

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"os"
	"testing"

	"github.com/spaghettifunk/anima-gpu/engine"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/commands"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func newTestEngine(t *testing.T, frames uint64) (*TestGame, *engine.Engine) {
	t.Helper()
	config := engine.DefaultApplicationConfig()
	config.LogLevel = "error"
	config.Renderer.Width = 32
	config.Renderer.Height = 32
	config.Renderer.TargetFPS = 0
	config.Renderer.MaxFrames = frames

	tg := NewTestGame(config)
	e, err := engine.New(tg.Game)
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return tg, e
}

func TestUpdateRecordsBothPasses(t *testing.T) {
	tg, e := newTestEngine(t, 1)
	defer e.Shutdown()

	list := commands.New()
	if err := tg.Update(1.0/60.0, list); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	want := []commands.CommandKind{
		commands.KindSetupView, commands.KindClear, commands.KindFillTexture, commands.KindFillBuffer,
		commands.KindSetupMaterial, commands.KindRender,
		commands.KindSetupView, commands.KindClear, commands.KindSetupMaterial, commands.KindRender,
	}
	if list.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", list.Len(), len(want))
	}
	for i, kind := range want {
		if got := list.At(i).Kind(); got != kind {
			t.Errorf("At(%d).Kind() = %v, want %v", i, got, kind)
		}
	}
}

func TestShaderReloadSwapsMaterial(t *testing.T) {
	tg, e := newTestEngine(t, 1)
	defer e.Shutdown()

	old := tg.state().material
	if handled := e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_SHADER_RELOADED, Data: MaterialShader}); !handled {
		t.Fatalf("Fire(SHADER_RELOADED) not handled")
	}
	// other shaders are ignored
	e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_SHADER_RELOADED, Data: "flat"})

	if err := tg.Update(0, commands.New()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	fresh := tg.state().material
	if fresh == old {
		t.Fatalf("material handle unchanged after reload")
	}
	if e.Registry().Materials.Validate(old) {
		t.Errorf("old material %v still valid", old)
	}
	if !e.Registry().Materials.Validate(fresh) {
		t.Errorf("new material %v invalid", fresh)
	}
}

func TestRunAndShutdownReleasesEverything(t *testing.T) {
	tg, e := newTestEngine(t, 3)
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if e.Frames() != 3 || tg.state().ticks != 3 {
		t.Errorf("Frames(), ticks = %d, %d, want 3, 3", e.Frames(), tg.state().ticks)
	}
	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	for kind, n := range e.Registry().Live() {
		if n != 0 {
			t.Errorf("%s live after Shutdown = %d, want 0", kind, n)
		}
	}
}

func TestTriangles(t *testing.T) {
	for _, n := range []uint32{1, 2, 7} {
		data := triangles(n)
		if uint64(len(data)) != triangleBytes(n) {
			t.Errorf("len(triangles(%d)) = %d, want %d", n, len(data), triangleBytes(n))
		}
		for i := 0; i < len(data); i += 4 {
			v := math.Float32frombits(binary.LittleEndian.Uint32(data[i:]))
			if v < -1 || v > 1 {
				t.Errorf("triangles(%d) coordinate %d = %v, outside clip space", n, i/4, v)
				break
			}
		}
	}
}

func TestChecker(t *testing.T) {
	pixels := checker(3)
	if len(pixels) != textureSize*textureSize*4 {
		t.Fatalf("len(checker()) = %d, want %d", len(pixels), textureSize*textureSize*4)
	}
	if pixels[0] != 3 || pixels[4] != 255 {
		t.Errorf("first texels = %v, want shade 3 then white", pixels[:8])
	}
}

