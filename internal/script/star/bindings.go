package star

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/vovakirdan/pixelbox/internal/core"
)

type builtinFn = func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

// predeclared builds the names every block sees:
//
//	ctx          drawing functions bound to the run's surface
//	ENGINE       struct(width, height, frame_rate)
//	state        dict shared by init and every update
//	frame_count  ticks completed so far
//
// plus the host globals of the environment.
func (s *scope) predeclared() (starlark.StringDict, error) {
	surf := s.env.Surface

	rect := func(draw func(core.Rect)) builtinFn {
		return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var x, y, w, h starlark.Value
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 4, &x, &y, &w, &h); err != nil {
				return nil, err
			}
			f, err := floats(b.Name(), x, y, w, h)
			if err != nil {
				return nil, err
			}
			draw(core.RectF(f[0], f[1], f[2], f[3]))
			return starlark.None, nil
		}
	}

	fns := map[string]builtinFn{
		"fill_rect":   rect(surf.FillRect),
		"clear_rect":  rect(surf.ClearRect),
		"stroke_rect": rect(surf.StrokeRect),
		"set_pixel": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var x, y starlark.Value
			var style string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x, "y", &y, "color?", &style); err != nil {
				return nil, err
			}
			f, err := floats(b.Name(), x, y)
			if err != nil {
				return nil, err
			}
			c := surf.FillColor()
			if style != "" {
				if c, err = core.ParseColor(style); err != nil {
					return nil, fmt.Errorf("%s: %w", b.Name(), err)
				}
			}
			surf.SetPixel(toInt(f[0]), toInt(f[1]), c)
			return starlark.None, nil
		},
		"get_pixel": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var x, y starlark.Value
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &x, &y); err != nil {
				return nil, err
			}
			f, err := floats(b.Name(), x, y)
			if err != nil {
				return nil, err
			}
			return starlark.String(core.FormatColor(surf.Pixel(toInt(f[0]), toInt(f[1])))), nil
		},
		"line": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var x0, y0, x1, y1 starlark.Value
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 4, &x0, &y0, &x1, &y1); err != nil {
				return nil, err
			}
			f, err := floats(b.Name(), x0, y0, x1, y1)
			if err != nil {
				return nil, err
			}
			surf.Line(toInt(f[0]), toInt(f[1]), toInt(f[2]), toInt(f[3]))
			return starlark.None, nil
		},
		"clear": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			surf.Clear()
			return starlark.None, nil
		},
		"set_fill": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var style string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &style); err != nil {
				return nil, err
			}
			if err := surf.SetFillStyle(style); err != nil {
				return nil, fmt.Errorf("%s: %w", b.Name(), err)
			}
			return starlark.None, nil
		},
		"fill_style": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			return starlark.String(surf.FillStyle()), nil
		},
	}

	members := starlark.StringDict{
		"width":  starlark.MakeInt(surf.Width()),
		"height": starlark.MakeInt(surf.Height()),
	}
	for name, fn := range fns {
		members[name] = starlark.NewBuiltin(name, fn)
	}

	engine := starlarkstruct.FromStringDict(starlark.String("ENGINE"), starlark.StringDict{
		"width":      starlark.MakeInt(surf.Width()),
		"height":     starlark.MakeInt(surf.Height()),
		"frame_rate": starlark.MakeInt(s.env.Config.FrameRate),
	})

	out := starlark.StringDict{
		"ctx":    starlarkstruct.FromStringDict(starlark.String("ctx"), members),
		"ENGINE": engine,
		"state":  s.state,
		"frame_count": starlark.NewBuiltin("frame_count", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			if s.env.FrameCount == nil {
				return starlark.MakeInt(0), nil
			}
			return starlark.MakeInt(s.env.FrameCount()), nil
		}),
	}

	for name, v := range s.env.Globals {
		sv, err := toStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("global %q: %w", name, err)
		}
		// Host globals are read-only names; their mutable copy lives in state.
		out[name] = sv
		if err := s.state.SetKey(starlark.String(name), sv); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func floats(fn string, vals ...starlark.Value) ([]float64, error) {
	out := make([]float64, len(vals))
	for i, v := range vals {
		f, ok := starlark.AsFloat(v)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d: got %s, want number", fn, i+1, v.Type())
		}
		out[i] = f
	}
	return out, nil
}

func toInt(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Floor(core.ClampF(f, -coordLimit, coordLimit)))
}

// coordLimit bounds script coordinates so surface arithmetic cannot overflow.
const coordLimit = 1 << 30

func toStarlark(v any) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return x, nil
	case bool:
		return starlark.Bool(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case float64:
		return starlark.Float(x), nil
	case string:
		return starlark.String(x), nil
	case []any:
		elems := make([]starlark.Value, len(x))
		for i, e := range x {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		d := starlark.NewDict(len(x))
		for k, e := range x {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

// toGo converts a Starlark value to the plain Go value Lookup reports.
func toGo(v starlark.Value) any {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(x)
	case starlark.Int:
		if n, ok := x.Int64(); ok {
			return n
		}
		return x.String()
	case starlark.Float:
		return float64(x)
	case starlark.String:
		return string(x)
	case *starlark.List:
		out := make([]any, x.Len())
		for i := range out {
			out[i] = toGo(x.Index(i))
		}
		return out
	case starlark.Tuple:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = toGo(e)
		}
		return out
	case *starlark.Dict:
		out := make(map[string]any, x.Len())
		for _, item := range x.Items() {
			k, ok := starlark.AsString(item[0])
			if !ok {
				k = item[0].String()
			}
			out[k] = toGo(item[1])
		}
		return out
	}
	return v.String()
}
