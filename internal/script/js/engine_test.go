package js

import (
	"errors"
	"strings"
	"testing"

	"github.com/vovakirdan/pixelbox/internal/core"
	"github.com/vovakirdan/pixelbox/internal/registry"
	"github.com/vovakirdan/pixelbox/internal/script"
)

func newTestScope(t *testing.T, env script.Env) (script.Scope, *core.Surface) {
	t.Helper()
	if env.Surface == nil {
		env.Surface = core.NewSurface(64, 64, core.Black)
	}
	if env.Config.FrameRate == 0 {
		env.Config = core.DefaultConfig()
	}
	s, err := New().NewScope(env)
	if err != nil {
		t.Fatalf("NewScope() failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s, env.Surface
}

func mustRun(t *testing.T, s script.Scope, phase script.Phase, src string) {
	t.Helper()
	exe, err := s.Compile(phase, src)
	if err != nil {
		t.Fatalf("Compile(%s) failed: %v", phase, err)
	}
	if err := exe.Run(); err != nil {
		t.Fatalf("Run(%s) failed: %v", phase, err)
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	}
	return -1
}

func TestRegistered(t *testing.T) {
	if !registry.Exists(Name) {
		t.Fatalf("engine %q should self-register", Name)
	}
}

func TestSharedStateAcrossBlocks(t *testing.T) {
	s, _ := newTestScope(t, script.Env{})

	mustRun(t, s, script.PhaseInit, "state.n = 10; counter = 1;")

	update, err := s.Compile(script.PhaseUpdate, "state.n++; counter++;")
	if err != nil {
		t.Fatalf("Compile(update) failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := update.Run(); err != nil {
			t.Fatalf("update run %d failed: %v", i, err)
		}
	}

	if v, ok := s.Lookup("n"); !ok || asFloat(v) != 13 {
		t.Errorf("state.n = %v, expected 13", v)
	}
	if v, ok := s.Lookup("counter"); !ok || asFloat(v) != 4 {
		t.Errorf("counter = %v, expected 4", v)
	}
}

func TestDeclaredVariablesDoNotLeak(t *testing.T) {
	s, _ := newTestScope(t, script.Env{})

	mustRun(t, s, script.PhaseInit, "var secret = 1; let other = 2; const third = 3;")

	exe, err := s.Compile(script.PhaseUpdate,
		"if (typeof secret !== 'undefined' || typeof other !== 'undefined' || typeof third !== 'undefined') throw new Error('leak');")
	if err != nil {
		t.Fatalf("Compile(update) failed: %v", err)
	}
	if err := exe.Run(); err != nil {
		t.Errorf("init locals leaked into update: %v", err)
	}
}

func TestHostGlobals(t *testing.T) {
	s, _ := newTestScope(t, script.Env{Globals: map[string]any{"x": 0}})

	mustRun(t, s, script.PhaseUpdate, "x++;")
	mustRun(t, s, script.PhaseUpdate, "x++;")

	if v, _ := s.Lookup("x"); asFloat(v) != 2 {
		t.Errorf("x = %v, expected 2", v)
	}
}

func TestDrawing(t *testing.T) {
	s, surf := newTestScope(t, script.Env{})

	mustRun(t, s, script.PhaseInit, `
ctx.fillStyle = '#ff0000';
ctx.fillRect(1, 1, 2, 2);
ctx.setPixel(10, 10, 'white');
if (ctx.fillStyle !== '#ff0000') throw new Error('fillStyle = ' + ctx.fillStyle);
ctx.fillStyle = 'not a color';
if (ctx.fillStyle !== '#ff0000') throw new Error('invalid style was applied');
`)

	red := core.Color{R: 255, G: 0, B: 0, A: 255}
	if surf.Pixel(1, 1) != red || surf.Pixel(2, 2) != red {
		t.Error("fillRect should paint with the fill style")
	}
	if surf.Pixel(3, 3) != core.Black {
		t.Error("fillRect painted outside its rect")
	}
	if surf.Pixel(10, 10) != core.White {
		t.Error("setPixel should paint the given color")
	}
}

func TestBrowserStyleContext(t *testing.T) {
	s, surf := newTestScope(t, script.Env{})

	mustRun(t, s, script.PhaseInit, `
var c = document.getElementById('game-canvas');
var g = c.getContext('2d');
g.fillStyle = '#ffffff';
g.fillRect(0, 0, c.width, c.height);
window._ready = true;
`)

	if surf.Pixel(63, 63) != core.White {
		t.Error("document canvas context should draw on the surface")
	}
	if v, ok := s.Lookup("_ready"); !ok || v != true {
		t.Errorf("window properties should be globals, got %v", v)
	}
}

func TestEngineGlobals(t *testing.T) {
	frames := 7
	var printed []string
	s, _ := newTestScope(t, script.Env{
		FrameCount: func() int { return frames },
		Print:      func(msg string) { printed = append(printed, msg) },
	})

	mustRun(t, s, script.PhaseInit, `
state.rate = ENGINE.frameRate;
state.w = ENGINE.displayWidth;
state.frame = frameCount();
console.log('hello', 42);
`)

	if v, _ := s.Lookup("rate"); asFloat(v) != 30 {
		t.Errorf("ENGINE.frameRate = %v, expected 30", v)
	}
	if v, _ := s.Lookup("w"); asFloat(v) != 64 {
		t.Errorf("ENGINE.displayWidth = %v, expected 64", v)
	}
	if v, _ := s.Lookup("frame"); asFloat(v) != 7 {
		t.Errorf("frameCount() = %v, expected 7", v)
	}
	if len(printed) != 1 || printed[0] != "hello 42" {
		t.Errorf("console.log output = %v", printed)
	}
}

func TestRuntimeError(t *testing.T) {
	s, _ := newTestScope(t, script.Env{})

	exe, err := s.Compile(script.PhaseUpdate, "throw new Error('boom');")
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}

	err = exe.Run()
	var se *script.Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *script.Error, got %T %v", err, err)
	}
	if se.Phase != script.PhaseUpdate {
		t.Errorf("Phase = %q, expected update", se.Phase)
	}
	if se.Message != "Error: boom" {
		t.Errorf("Message = %q, expected %q", se.Message, "Error: boom")
	}
}

func TestReferenceError(t *testing.T) {
	s, _ := newTestScope(t, script.Env{})

	exe, err := s.Compile(script.PhaseUpdate, "missing();")
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}
	err = exe.Run()
	if err == nil || !strings.Contains(err.Error(), "ReferenceError") {
		t.Errorf("expected ReferenceError, got %v", err)
	}
}

func TestSyntaxError(t *testing.T) {
	s, _ := newTestScope(t, script.Env{})

	_, err := s.Compile(script.PhaseInit, "var = ;")
	var se *script.Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *script.Error, got %T %v", err, err)
	}
	if se.Phase != script.PhaseInit {
		t.Errorf("Phase = %q, expected init", se.Phase)
	}
	if !strings.Contains(se.Message, "SyntaxError") {
		t.Errorf("Message = %q, expected a SyntaxError", se.Message)
	}
}

func TestHugeLineIsClipped(t *testing.T) {
	s, surf := newTestScope(t, script.Env{})

	mustRun(t, s, script.PhaseInit, "ctx.fillStyle = 'white'; ctx.line(0, 0, 1e12, 0); ctx.line(0, 5, 1e300, 5);")
	if surf.Pixel(63, 0) != core.White || surf.Pixel(63, 5) != core.White {
		t.Error("clipped lines should reach the right edge")
	}
}

func TestBlockCannotEscapeWrapper(t *testing.T) {
	s, _ := newTestScope(t, script.Env{})

	for _, src := range []string{
		"}); leaked = 1; (function(){",
		"}, leaked = 1, function(){",
		"})(); leaked = 1; (function(){",
	} {
		_, err := s.Compile(script.PhaseUpdate, src)
		var se *script.Error
		if !errors.As(err, &se) {
			t.Errorf("Compile(%q) error = %v, expected *script.Error", src, err)
			continue
		}
		if se.Phase != script.PhaseUpdate {
			t.Errorf("Compile(%q) phase = %q, expected update", src, se.Phase)
		}
	}
	if v, ok := s.Lookup("leaked"); ok {
		t.Errorf("leaked = %v, compiling should not run user code", v)
	}
}

func TestSourceMapCommentIsIgnored(t *testing.T) {
	s, _ := newTestScope(t, script.Env{})

	mustRun(t, s, script.PhaseInit, "state.ok = 1;\n//# sourceMappingURL=/etc/hostname.map")
	if v, _ := s.Lookup("ok"); asFloat(v) != 1 {
		t.Errorf("state.ok = %v, expected 1", v)
	}
}

func TestEarlyReturn(t *testing.T) {
	s, _ := newTestScope(t, script.Env{})
	mustRun(t, s, script.PhaseUpdate, "state.a = 1; return; state.a = 2;")

	if v, _ := s.Lookup("a"); asFloat(v) != 1 {
		t.Errorf("return should end the block, state.a = %v", v)
	}
}

func TestClosedScope(t *testing.T) {
	s, _ := newTestScope(t, script.Env{})
	exe, err := s.Compile(script.PhaseUpdate, "")
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}

	s.Close()
	if err := exe.Run(); err == nil {
		t.Error("executables of a closed scope should not run")
	}
}

func TestNoSurface(t *testing.T) {
	if _, err := New().NewScope(script.Env{}); err == nil {
		t.Error("NewScope() without a surface should fail")
	}
}
