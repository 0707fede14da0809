// Package script defines the pluggable execution strategy used by the runtime.
// An Engine turns source text into Executables bound to a per-run Scope; the
// runtime never evaluates code itself.
package script

import (
	"fmt"

	"github.com/vovakirdan/pixelbox/internal/core"
)

// Phase identifies which block of a definition is executing.
type Phase string

const (
	PhaseInit   Phase = "init"
	PhaseUpdate Phase = "update"
)

// Executable is a compiled block of user code.
type Executable interface {
	// Run executes the block to completion. Errors raised by user code are
	// returned, never panicked.
	Run() error
}

// ExecutableFunc adapts a plain function to Executable.
type ExecutableFunc func() error

// Run calls f().
func (f ExecutableFunc) Run() error {
	return f()
}

// Env is what a run exposes to user code.
type Env struct {
	Surface    *core.Surface
	Config     core.EngineConfig
	FrameCount func() int     // Ticks completed in the current run
	Print      func(string)   // Destination of console output; may be nil
	Globals    map[string]any // Host-provided extra globals
}

// Printf writes formatted output through Env.Print, if set.
func (e Env) Printf(format string, args ...any) {
	if e.Print != nil {
		e.Print(fmt.Sprintf(format, args...))
	}
}

// Scope is a single run's evaluation context. Every Executable compiled in
// a scope shares its engine-provided state (ctx, state, globals), but names
// declared locally by one block are not visible to another.
//
// A Scope is used from one goroutine at a time.
type Scope interface {
	Compile(phase Phase, src string) (Executable, error)

	// Lookup returns the current value of a shared global, converted to a
	// plain Go value.
	Lookup(name string) (any, bool)

	Close()
}

// Engine creates scopes for one scripting language.
type Engine interface {
	Name() string
	Title() string
	NewScope(env Env) (Scope, error)
}

// Error is a compile or runtime failure of user code.
type Error struct {
	Phase   Phase
	Message string
	Line    int // 1-based line within the block, 0 if unknown
	Err     error
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Phase, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Phase, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
