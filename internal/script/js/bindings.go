package js

import (
	"math"
	"strings"

	"github.com/dop251/goja"

	"github.com/vovakirdan/pixelbox/internal/core"
)

type native = func(goja.FunctionCall) goja.Value

// install defines the engine globals:
//
//	ctx       2D drawing context bound to the run's surface
//	canvas    {width, height, getContext()} returning ctx
//	document  getElementById() returning canvas, for browser-style snippets
//	ENGINE    {frameRate, displayWidth, displayHeight}
//	state     object shared by init and every update
//	frameCount()  ticks completed so far
//	console   log/info/warn/error
//	window    alias of the global object
func (s *scope) install() error {
	vm := s.vm
	surf := s.env.Surface
	undef := goja.Undefined()

	ctx := vm.NewObject()
	methods := map[string]native{
		"fillRect": func(call goja.FunctionCall) goja.Value {
			surf.FillRect(rectArgs(call))
			return undef
		},
		"clearRect": func(call goja.FunctionCall) goja.Value {
			surf.ClearRect(rectArgs(call))
			return undef
		},
		"strokeRect": func(call goja.FunctionCall) goja.Value {
			surf.StrokeRect(rectArgs(call))
			return undef
		},
		"setPixel": func(call goja.FunctionCall) goja.Value {
			c := surf.FillColor()
			if arg := call.Argument(2); !goja.IsUndefined(arg) {
				parsed, err := core.ParseColor(arg.String())
				if err != nil {
					return undef
				}
				c = parsed
			}
			surf.SetPixel(intArg(call, 0), intArg(call, 1), c)
			return undef
		},
		"getPixel": func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(core.FormatColor(surf.Pixel(intArg(call, 0), intArg(call, 1))))
		},
		"line": func(call goja.FunctionCall) goja.Value {
			surf.Line(intArg(call, 0), intArg(call, 1), intArg(call, 2), intArg(call, 3))
			return undef
		},
		"clear": func(goja.FunctionCall) goja.Value {
			surf.Clear()
			return undef
		},
	}
	for name, fn := range methods {
		if err := ctx.Set(name, fn); err != nil {
			return err
		}
	}

	getFill := vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue(surf.FillStyle())
	})
	setFill := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		// Invalid styles are ignored, as a canvas does
		_ = surf.SetFillStyle(call.Argument(0).String())
		return undef
	})
	if err := ctx.DefineAccessorProperty("fillStyle", getFill, setFill, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return err
	}

	canvas := vm.NewObject()
	for name, v := range map[string]any{
		"width":  surf.Width(),
		"height": surf.Height(),
		"getContext": native(func(goja.FunctionCall) goja.Value {
			return ctx
		}),
	} {
		if err := canvas.Set(name, v); err != nil {
			return err
		}
	}
	for name, v := range map[string]any{
		"width":  surf.Width(),
		"height": surf.Height(),
		"canvas": canvas,
	} {
		if err := ctx.Set(name, v); err != nil {
			return err
		}
	}

	document := vm.NewObject()
	if err := document.Set("getElementById", native(func(goja.FunctionCall) goja.Value {
		return canvas
	})); err != nil {
		return err
	}

	engine := vm.NewObject()
	for name, v := range map[string]any{
		"frameRate":     s.env.Config.FrameRate,
		"displayWidth":  surf.Width(),
		"displayHeight": surf.Height(),
	} {
		if err := engine.Set(name, v); err != nil {
			return err
		}
	}

	console := vm.NewObject()
	printer := native(func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		if s.env.Print != nil {
			s.env.Print(strings.Join(parts, " "))
		}
		return undef
	})
	for _, name := range []string{"log", "info", "warn", "error"} {
		if err := console.Set(name, printer); err != nil {
			return err
		}
	}

	s.state = vm.NewObject()

	globals := map[string]any{
		"ctx":      ctx,
		"canvas":   canvas,
		"document": document,
		"ENGINE":   engine,
		"state":    s.state,
		"console":  console,
		"window":   vm.GlobalObject(),
		"frameCount": native(func(goja.FunctionCall) goja.Value {
			if s.env.FrameCount == nil {
				return vm.ToValue(0)
			}
			return vm.ToValue(s.env.FrameCount())
		}),
	}
	for name, v := range s.env.Globals {
		globals[name] = v
	}
	for name, v := range globals {
		if err := vm.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// rectArgs reads canvas-style (x, y, w, h) arguments.
func rectArgs(call goja.FunctionCall) core.Rect {
	return core.RectF(
		call.Argument(0).ToFloat(),
		call.Argument(1).ToFloat(),
		call.Argument(2).ToFloat(),
		call.Argument(3).ToFloat(),
	)
}

func intArg(call goja.FunctionCall, i int) int {
	f := call.Argument(i).ToFloat()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Floor(core.ClampF(f, -coordLimit, coordLimit)))
}

// coordLimit bounds script coordinates so surface arithmetic cannot overflow.
const coordLimit = 1 << 30
