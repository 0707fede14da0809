// Package js runs definition code as JavaScript on the goja interpreter.
//
// Each block is compiled as a function body, the way `new Function(src)`
// treats it in a browser: var/let/const declarations stay local to the
// block, while sloppy-mode assignments to undeclared names and the shared
// `state` object persist across init and every update of the same run.
package js

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"

	"github.com/vovakirdan/pixelbox/internal/registry"
	"github.com/vovakirdan/pixelbox/internal/script"
)

// Name is the registry name of this engine.
const Name = "js"

func init() {
	registry.Register(Name, func() script.Engine { return New() })
}

// Engine creates goja-backed scopes.
type Engine struct{}

// New creates a JavaScript engine.
func New() *Engine {
	return &Engine{}
}

// Name implements script.Engine.
func (e *Engine) Name() string { return Name }

// Title implements script.Engine.
func (e *Engine) Title() string { return "JavaScript (goja)" }

// NewScope creates a fresh runtime with the engine globals installed.
func (e *Engine) NewScope(env script.Env) (script.Scope, error) {
	if env.Surface == nil {
		return nil, errors.New("js: no drawing surface")
	}

	s := &scope{vm: goja.New(), env: env}
	if err := s.install(); err != nil {
		return nil, fmt.Errorf("js: cannot install globals: %w", err)
	}
	return s, nil
}

type scope struct {
	vm     *goja.Runtime
	env    script.Env
	state  *goja.Object
	closed bool
}

// The wrapper adds one line before user code; reported lines are shifted back.
const (
	wrapperHead = "(function() {\n"
	wrapperTail = "\n})"
)

// Compile implements script.Scope.
func (s *scope) Compile(phase script.Phase, src string) (script.Executable, error) {
	if s.closed {
		return nil, &script.Error{Phase: phase, Message: "scope is closed"}
	}

	parsed, err := goja.Parse(string(phase)+".js", wrapperHead+src+wrapperTail, parser.WithDisableSourceMaps)
	if err != nil {
		return nil, convertError(phase, err)
	}
	// Evaluating the wrapper must only create the function. Source that
	// closes the wrapper early would otherwise run here, before init.
	if !singleFunction(parsed) {
		return nil, &script.Error{Phase: phase, Message: "SyntaxError: unbalanced braces close the block early"}
	}

	prog, err := goja.CompileAST(parsed, false)
	if err != nil {
		return nil, convertError(phase, err)
	}

	v, err := s.vm.RunProgram(prog)
	if err != nil {
		return nil, convertError(phase, err)
	}

	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, &script.Error{Phase: phase, Message: "block did not compile to a function"}
	}
	return &executable{scope: s, phase: phase, fn: fn}, nil
}

// singleFunction reports whether prog is exactly one function expression.
func singleFunction(prog *ast.Program) bool {
	if len(prog.Body) != 1 {
		return false
	}
	stmt, ok := prog.Body[0].(*ast.ExpressionStatement)
	if !ok {
		return false
	}
	_, ok = stmt.Expression.(*ast.FunctionLiteral)
	return ok
}

// Lookup implements script.Scope. Globals win over state properties.
func (s *scope) Lookup(name string) (any, bool) {
	if v := s.vm.Get(name); v != nil && !goja.IsUndefined(v) {
		return v.Export(), true
	}
	if v := s.state.Get(name); v != nil && !goja.IsUndefined(v) {
		return v.Export(), true
	}
	return nil, false
}

// Close implements script.Scope. Executables of a closed scope refuse to run.
func (s *scope) Close() {
	s.closed = true
}

type executable struct {
	scope *scope
	phase script.Phase
	fn    goja.Callable
}

// Run implements script.Executable.
func (e *executable) Run() error {
	if e.scope.closed {
		return &script.Error{Phase: e.phase, Message: "scope is closed"}
	}
	if _, err := e.fn(goja.Undefined()); err != nil {
		return convertError(e.phase, err)
	}
	return nil
}

var (
	syntaxLineRe = regexp.MustCompile(`Line (\d+):\d+`)
	stackLineRe  = regexp.MustCompile(`\.js:(\d+):\d+`)
)

// convertError maps goja errors to script.Error, keeping the JS-visible
// message ("TypeError: ...") and the line within the user's block.
func convertError(phase script.Phase, err error) error {
	se := &script.Error{Phase: phase, Message: err.Error(), Err: err}

	var exc *goja.Exception
	var syn *goja.CompilerSyntaxError
	switch {
	case errors.As(err, &exc):
		if v := exc.Value(); v != nil {
			se.Message = v.String()
		}
		se.Line = blockLine(stackLineRe, exc.Error())
	case errors.As(err, &syn):
		se.Message = "SyntaxError: " + syn.Message
		se.Line = blockLine(syntaxLineRe, err.Error())
	}
	return se
}

func blockLine(re *regexp.Regexp, msg string) int {
	m := re.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 1 {
		return 0
	}
	return n - 1
}
