// Package star runs definition code as Starlark.
//
// Each block is a Starlark file whose top level runs once per Run. Names a
// block assigns are private to that block; data that must survive between
// init and update, or between ticks, lives in the predeclared `state` dict.
package star

import (
	"errors"
	"fmt"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/vovakirdan/pixelbox/internal/registry"
	"github.com/vovakirdan/pixelbox/internal/script"
)

// Name is the registry name of this engine.
const Name = "starlark"

func init() {
	registry.Register(Name, func() script.Engine { return New() })
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Engine creates Starlark scopes.
type Engine struct{}

// New creates a Starlark engine.
func New() *Engine {
	return &Engine{}
}

// Name implements script.Engine.
func (e *Engine) Name() string { return Name }

// Title implements script.Engine.
func (e *Engine) Title() string { return "Starlark" }

// NewScope implements script.Engine.
func (e *Engine) NewScope(env script.Env) (script.Scope, error) {
	if env.Surface == nil {
		return nil, errors.New("starlark: no drawing surface")
	}

	s := &scope{env: env, state: starlark.NewDict(8)}
	s.thread = &starlark.Thread{
		Name: "pixelbox",
		Print: func(_ *starlark.Thread, msg string) {
			if env.Print != nil {
				env.Print(msg)
			}
		},
	}

	predeclared, err := s.predeclared()
	if err != nil {
		return nil, fmt.Errorf("starlark: cannot install globals: %w", err)
	}
	s.predecl = predeclared
	return s, nil
}

type scope struct {
	env     script.Env
	thread  *starlark.Thread
	state   *starlark.Dict
	predecl starlark.StringDict
	closed  bool
}

// Compile implements script.Scope.
func (s *scope) Compile(phase script.Phase, src string) (script.Executable, error) {
	if s.closed {
		return nil, &script.Error{Phase: phase, Message: "scope is closed"}
	}

	_, prog, err := starlark.SourceProgramOptions(fileOptions, filename(phase), src, s.predecl.Has)
	if err != nil {
		return nil, convertError(phase, err)
	}
	return &executable{scope: s, phase: phase, prog: prog}, nil
}

// Lookup implements script.Scope. Keys of `state` win over host globals.
func (s *scope) Lookup(name string) (any, bool) {
	if v, found, err := s.state.Get(starlark.String(name)); err == nil && found {
		return toGo(v), true
	}
	if v, ok := s.predecl[name]; ok {
		return toGo(v), true
	}
	return nil, false
}

// Close implements script.Scope.
func (s *scope) Close() {
	s.closed = true
	s.thread.Cancel("scope closed")
}

type executable struct {
	scope *scope
	phase script.Phase
	prog  *starlark.Program
}

// Run implements script.Executable. Module globals are discarded after
// every run.
func (e *executable) Run() error {
	if e.scope.closed {
		return &script.Error{Phase: e.phase, Message: "scope is closed"}
	}
	if _, err := e.prog.Init(e.scope.thread, e.scope.predecl); err != nil {
		return convertError(e.phase, err)
	}
	return nil
}

func filename(phase script.Phase) string {
	return string(phase) + ".star"
}

func convertError(phase script.Phase, err error) error {
	se := &script.Error{Phase: phase, Message: err.Error(), Err: err}

	var (
		evalErr *starlark.EvalError
		synErr  syntax.Error
		resErrs resolve.ErrorList
	)
	switch {
	case errors.As(err, &evalErr):
		se.Message = evalErr.Msg
		for i := range evalErr.CallStack {
			fr := evalErr.CallStack.At(i)
			if fr.Pos.Filename() == filename(phase) {
				se.Line = int(fr.Pos.Line)
				break
			}
		}
	case errors.As(err, &synErr):
		se.Message = "syntax error: " + synErr.Msg
		se.Line = int(synErr.Pos.Line)
	case errors.As(err, &resErrs) && len(resErrs) > 0:
		se.Message = resErrs[0].Msg
		se.Line = int(resErrs[0].Pos.Line)
	}
	return se
}
