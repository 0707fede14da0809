package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/pixelbox/internal/config"
	"github.com/vovakirdan/pixelbox/internal/core"
	"github.com/vovakirdan/pixelbox/internal/game"
	"github.com/vovakirdan/pixelbox/internal/runtime"
)

var quiet = log.New(io.Discard)

func TestCheckRunsFrames(t *testing.T) {
	def := game.Definition{
		InitCode:   "console.log('ready');",
		UpdateCode: "ctx.setPixel(frameCount() % 64, 0, '#ffffff');",
	}

	var out bytes.Buffer
	res := check(def, core.DefaultConfig(), "", 10, &out, quiet)
	if res.err != nil {
		t.Fatalf("check() failed: %v", res.err)
	}
	if res.frames != 10 {
		t.Errorf("frames = %d, expected 10", res.frames)
	}
	if !strings.Contains(out.String(), "ready") {
		t.Errorf("output = %q, expected the console line", out.String())
	}
}

func TestCheckUsesLogger(t *testing.T) {
	def := game.Definition{InitCode: "", UpdateCode: ""}

	var logs bytes.Buffer
	res := check(def, core.DefaultConfig(), "", 1, &bytes.Buffer{}, log.New(&logs))
	if res.err != nil {
		t.Fatalf("check() failed: %v", res.err)
	}
	if !strings.Contains(logs.String(), "run started") {
		t.Errorf("logs = %q, expected the run lifecycle on the given logger", logs.String())
	}
}

func TestCheckUpdateError(t *testing.T) {
	def := game.Definition{
		InitCode:   "state.n = 0;",
		UpdateCode: "state.n++; if (state.n === 3) { undefinedThing(); }",
	}

	res := check(def, core.DefaultConfig(), "", 10, &bytes.Buffer{}, quiet)
	if !errors.Is(res.err, runtime.ErrUpdateExecution) {
		t.Fatalf("check() error = %v, expected an update error", res.err)
	}
	if res.frames != 2 {
		t.Errorf("frames = %d, expected 2", res.frames)
	}
	if got := exitCode(res.err); got != 4 {
		t.Errorf("exitCode() = %d, expected 4", got)
	}
}

func TestCheckInitError(t *testing.T) {
	def := game.Definition{InitCode: "throw new Error('x');", UpdateCode: ""}

	res := check(def, core.DefaultConfig(), "", 10, &bytes.Buffer{}, quiet)
	if !errors.Is(res.err, runtime.ErrInitExecution) {
		t.Fatalf("check() error = %v, expected an init error", res.err)
	}
	if res.surface == nil {
		t.Error("check() returned no surface")
	}
	if got := exitCode(res.err); got != 3 {
		t.Errorf("exitCode() = %d, expected 3", got)
	}
}

func TestCheckStarlark(t *testing.T) {
	def := game.Definition{
		InitCode:   "state['n'] = 0",
		UpdateCode: "state['n'] += 1",
		Engine:     "starlark",
	}

	res := check(def, core.DefaultConfig(), "", 5, &bytes.Buffer{}, quiet)
	if res.err != nil {
		t.Fatalf("check() failed: %v", res.err)
	}
	if res.frames != 5 {
		t.Errorf("frames = %d, expected 5", res.frames)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{errors.New("other"), 1},
		{fmt.Errorf("wrapped: %w", game.ErrDefinitionFormat), 2},
		{fmt.Errorf("wrapped: %w", runtime.ErrResourceUnavailable), 5},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.expected {
			t.Errorf("exitCode(%v) = %d, expected %d", tt.err, got, tt.expected)
		}
	}
}

func TestResolve(t *testing.T) {
	a := &app{cfg: config.Default()}
	a.cfg.Samples.Dir = ""
	a.cfg.Samples.URL = ""
	if err := a.initLogger(false); err != nil {
		t.Fatalf("initLogger() failed: %v", err)
	}
	ctx := context.Background()

	l, err := a.resolve(ctx, "snake", "")
	if err != nil {
		t.Fatalf("resolve(snake) failed: %v", err)
	}
	if l.source != "snake" || l.note != "" {
		t.Errorf("resolve(snake) = %q/%q, expected snake without note", l.source, l.note)
	}

	l, err = a.resolve(ctx, "no-such-sample", "")
	if err != nil {
		t.Fatalf("resolve(no-such-sample) failed: %v", err)
	}
	if l.source != game.DefaultSample || l.note == "" {
		t.Errorf("resolve(no-such-sample) = %q/%q, expected the noted default", l.source, l.note)
	}

	path := filepath.Join(t.TempDir(), "mine.json")
	if err := game.WriteFile(path, game.Definition{InitCode: "1;", UpdateCode: "2;"}); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	l, err = a.resolve(ctx, path, "")
	if err != nil {
		t.Fatalf("resolve(file) failed: %v", err)
	}
	if l.def.InitCode != "1;" || l.source != path {
		t.Errorf("resolve(file) = %+v, expected the file", l)
	}

	if _, err := a.resolve(ctx, filepath.Join(t.TempDir(), "missing.json"), ""); err == nil {
		t.Error("resolve(missing.json) succeeded, expected error")
	}
}
