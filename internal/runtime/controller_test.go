package runtime

import (
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/pixelbox/internal/core"
	"github.com/vovakirdan/pixelbox/internal/game"
	"github.com/vovakirdan/pixelbox/internal/script"
	_ "github.com/vovakirdan/pixelbox/internal/script/js"
	_ "github.com/vovakirdan/pixelbox/internal/script/star"
)

// recorder is a scripted engine: a block's source picks its behavior.
//
//	"fail"     Run returns an error
//	"panic"    Run panics
//	"bad"      Compile fails
//	"fail@N"   Run fails on its Nth call
//	anything else runs successfully
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) Name() string  { return "recorder" }
func (r *recorder) Title() string { return "Recorder" }

func (r *recorder) NewScope(env script.Env) (script.Scope, error) {
	return &recorderScope{r: r}, nil
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) count(phase script.Phase) int {
	n := 0
	for _, c := range r.Calls() {
		if c == string(phase) {
			n++
		}
	}
	return n
}

type recorderScope struct {
	r      *recorder
	closed bool
}

func (s *recorderScope) Compile(phase script.Phase, src string) (script.Executable, error) {
	if src == "bad" {
		return nil, &script.Error{Phase: phase, Message: "syntax", Line: 1}
	}

	failAt := -1
	if strings.HasPrefix(src, "fail@") {
		failAt = int(src[len("fail@")] - '0')
	}
	n := 0
	return script.ExecutableFunc(func() error {
		s.r.mu.Lock()
		s.r.calls = append(s.r.calls, string(phase))
		s.r.mu.Unlock()
		n++

		switch {
		case src == "fail", n == failAt:
			return &script.Error{Phase: phase, Message: "boom"}
		case src == "panic":
			panic("kaboom")
		}
		return nil
	}), nil
}

func (s *recorderScope) Lookup(string) (any, bool) { return nil, false }
func (s *recorderScope) Close()                    { s.closed = true }

type fixture struct {
	ctrl     *Controller
	sched    *ManualScheduler
	engine   *recorder
	surface  *core.Surface
	statuses []Status
	errs     []*RuntimeError
	reports  []RunReport
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	f := &fixture{
		sched:   NewManualScheduler(),
		engine:  &recorder{},
		surface: core.NewSurfaceFor(core.DefaultConfig()),
	}
	opts.Scheduler = f.sched
	opts.Logger = log.New(io.Discard)
	if opts.Engines == nil {
		opts.Engines = func(name string) (script.Engine, error) {
			if name != "recorder" {
				return nil, errors.New("unknown engine")
			}
			return f.engine, nil
		}
		opts.DefaultEngine = "recorder"
	}
	opts.OnStatus = func(s Status) { f.statuses = append(f.statuses, s) }
	opts.OnError = func(e *RuntimeError) { f.errs = append(f.errs, e) }
	opts.OnRunEnd = func(r RunReport) { f.reports = append(f.reports, r) }

	f.ctrl = New(opts)
	t.Cleanup(f.ctrl.Stop)
	return f
}

func (f *fixture) start(t *testing.T, init, update string) error {
	t.Helper()
	return f.ctrl.Start(&game.Definition{InitCode: init, UpdateCode: update}, f.surface)
}

func (f *fixture) steps(n int) {
	for i := 0; i < n; i++ {
		f.sched.Step()
	}
}

func TestInitRunsBeforeUpdate(t *testing.T) {
	f := newFixture(t, Options{})

	if err := f.start(t, "ok", "ok"); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if got := f.engine.Calls(); len(got) != 1 || got[0] != "init" {
		t.Fatalf("after Start calls = %v, expected [init]", got)
	}

	f.steps(2)
	got := f.engine.Calls()
	expected := []string{"init", "update", "update"}
	if strings.Join(got, ",") != strings.Join(expected, ",") {
		t.Errorf("calls = %v, expected %v", got, expected)
	}
	if f.ctrl.FrameCount() != 2 {
		t.Errorf("FrameCount() = %d, expected 2", f.ctrl.FrameCount())
	}
}

func TestInitFailurePreventsRun(t *testing.T) {
	f := newFixture(t, Options{})

	err := f.start(t, "fail", "ok")
	if !errors.Is(err, ErrInitExecution) {
		t.Fatalf("Start() error = %v, expected ErrInitExecution", err)
	}
	if errors.Is(err, ErrUpdateExecution) {
		t.Error("init failure should not match ErrUpdateExecution")
	}

	f.steps(3)
	if f.ctrl.Running() {
		t.Error("controller should not be running after init failure")
	}
	if n := f.engine.count(script.PhaseUpdate); n != 0 {
		t.Errorf("update ran %d times after init failure", n)
	}
	if f.sched.Active() != 0 {
		t.Error("no timer should be armed after init failure")
	}

	st := f.ctrl.Status()
	if st.Kind != StatusError || !strings.Contains(st.String(), "boom") {
		t.Errorf("status = %v %q, expected error with detail", st.Kind, st.String())
	}
	if len(f.errs) != 1 || f.errs[0].Phase != script.PhaseInit {
		t.Errorf("OnError calls = %v, expected one init error", f.errs)
	}
	if len(f.reports) != 1 || f.reports[0].Err == nil {
		t.Errorf("OnRunEnd calls = %v, expected one failed report", f.reports)
	}
}

func TestCompileErrorReportsPhase(t *testing.T) {
	f := newFixture(t, Options{})

	err := f.start(t, "ok", "bad")
	var rerr *RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RuntimeError, got %T %v", err, err)
	}
	if rerr.Phase != script.PhaseUpdate || rerr.Line != 1 {
		t.Errorf("got phase %s line %d, expected update line 1", rerr.Phase, rerr.Line)
	}
	if n := len(f.engine.Calls()); n != 0 {
		t.Errorf("no block should run when compilation fails, got %d calls", n)
	}
	if f.ctrl.Running() {
		t.Error("controller should be idle")
	}
}

func TestTicksNeverOverlap(t *testing.T) {
	var inFlight, overlaps, ticks atomic.Int32

	eng := &slowEngine{run: func() {
		if inFlight.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(2 * time.Millisecond)
		ticks.Add(1)
		inFlight.Add(-1)
	}}

	cfg := core.DefaultConfig()
	cfg.FrameRate = 1000
	ctrl := New(Options{
		Config:  cfg,
		Logger:  log.New(io.Discard),
		Engines: func(string) (script.Engine, error) { return eng, nil },
	})
	defer ctrl.Stop()

	if err := ctrl.Start(&game.Definition{}, core.NewSurfaceFor(cfg)); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 10 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	ctrl.Stop()

	if ticks.Load() < 10 {
		t.Fatalf("only %d ticks ran", ticks.Load())
	}
	if overlaps.Load() != 0 {
		t.Errorf("%d ticks overlapped", overlaps.Load())
	}
}

type slowEngine struct{ run func() }

func (e *slowEngine) Name() string  { return "slow" }
func (e *slowEngine) Title() string { return "Slow" }
func (e *slowEngine) NewScope(script.Env) (script.Scope, error) {
	return &slowScope{e: e}, nil
}

type slowScope struct{ e *slowEngine }

func (s *slowScope) Compile(phase script.Phase, _ string) (script.Executable, error) {
	if phase == script.PhaseInit {
		return script.ExecutableFunc(func() error { return nil }), nil
	}
	return script.ExecutableFunc(func() error { s.e.run(); return nil }), nil
}
func (s *slowScope) Lookup(string) (any, bool) { return nil, false }
func (s *slowScope) Close()                    {}

func TestUpdateFailureStopsRun(t *testing.T) {
	f := newFixture(t, Options{})

	if err := f.start(t, "ok", "fail@3"); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	f.steps(10)

	if f.ctrl.Running() {
		t.Error("controller should stop after update failure")
	}
	if n := f.engine.count(script.PhaseUpdate); n != 3 {
		t.Errorf("update ran %d times, expected 3", n)
	}
	if f.ctrl.FrameCount() != 2 {
		t.Errorf("FrameCount() = %d, expected 2", f.ctrl.FrameCount())
	}
	if f.sched.Active() != 0 {
		t.Error("timer should be cancelled after update failure")
	}

	if len(f.errs) != 1 {
		t.Fatalf("OnError called %d times, expected 1", len(f.errs))
	}
	if !errors.Is(f.errs[0], ErrUpdateExecution) || f.errs[0].Frame != 3 {
		t.Errorf("error = %v (frame %d), expected update failure on frame 3", f.errs[0], f.errs[0].Frame)
	}
	if st := f.ctrl.Status(); st.Kind != StatusError {
		t.Errorf("status = %v, expected error", st.Kind)
	}
	if len(f.reports) != 1 || f.reports[0].Frames != 2 {
		t.Errorf("run report = %+v, expected 2 frames", f.reports)
	}
}

func TestPanicIsContained(t *testing.T) {
	f := newFixture(t, Options{})

	if err := f.start(t, "ok", "panic"); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	f.steps(2)

	if f.ctrl.Running() {
		t.Error("panicking update should stop the run")
	}
	if len(f.errs) != 1 || !strings.Contains(f.errs[0].Message, "kaboom") {
		t.Errorf("errors = %v, expected recovered panic", f.errs)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{})

	f.ctrl.Stop()
	f.ctrl.Stop()

	if f.ctrl.Running() {
		t.Error("idle controller should not be running")
	}
	if st := f.ctrl.Status(); st.Kind != StatusNoGame || st.String() != "no game loaded" {
		t.Errorf("status = %q, expected %q", st.String(), "no game loaded")
	}
	if len(f.statuses) != 0 {
		t.Errorf("Stop() on an idle controller published %v", f.statuses)
	}

	if err := f.start(t, "ok", "ok"); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	f.ctrl.Stop()
	n := len(f.statuses)
	f.ctrl.Stop()

	if len(f.statuses) != n {
		t.Error("second Stop() should not publish a status")
	}
	if st := f.ctrl.Status(); st.String() != "stopped" {
		t.Errorf("status = %q, expected stopped", st.String())
	}
	if len(f.reports) != 1 {
		t.Errorf("OnRunEnd called %d times, expected 1", len(f.reports))
	}
}

func TestStrayTickIsIgnored(t *testing.T) {
	f := newFixture(t, Options{})

	if err := f.start(t, "ok", "ok"); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	gen := f.ctrl.gen
	f.ctrl.Stop()

	f.ctrl.tick(gen)
	if fired := f.sched.Step(); fired != 0 {
		t.Errorf("stopped timer fired %d times", fired)
	}
	if n := f.engine.count(script.PhaseUpdate); n != 0 {
		t.Errorf("update ran %d times after Stop", n)
	}
}

func TestRestartResetsFrameCount(t *testing.T) {
	f := newFixture(t, Options{})

	if err := f.start(t, "ok", "ok"); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	oldGen := f.ctrl.gen
	f.steps(3)
	if f.ctrl.FrameCount() != 3 {
		t.Fatalf("FrameCount() = %d, expected 3", f.ctrl.FrameCount())
	}

	if err := f.start(t, "ok", "ok"); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if f.ctrl.FrameCount() != 0 {
		t.Errorf("FrameCount() after restart = %d, expected 0", f.ctrl.FrameCount())
	}
	if f.sched.Active() != 1 {
		t.Errorf("active timers = %d, expected 1", f.sched.Active())
	}

	f.ctrl.tick(oldGen)
	if f.ctrl.FrameCount() != 0 {
		t.Error("tick from the previous run should be ignored")
	}

	f.steps(1)
	if f.ctrl.FrameCount() != 1 {
		t.Errorf("FrameCount() = %d, expected 1", f.ctrl.FrameCount())
	}
	if len(f.reports) != 1 || f.reports[0].Frames != 3 {
		t.Errorf("previous run report = %+v, expected 3 frames", f.reports)
	}
}

func TestTickInterval(t *testing.T) {
	f := newFixture(t, Options{})

	if err := f.start(t, "ok", "ok"); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if got, expected := f.sched.Interval(), time.Second/30; got != expected {
		t.Errorf("interval = %v, expected %v", got, expected)
	}
}

func TestSharedCounter(t *testing.T) {
	sched := NewManualScheduler()
	ctrl := New(Options{
		Scheduler: sched,
		Logger:    log.New(io.Discard),
		Globals:   map[string]any{"x": 0},
	})
	defer ctrl.Stop()

	def := &game.Definition{InitCode: "", UpdateCode: "x++;"}
	if err := ctrl.Start(def, core.NewSurfaceFor(ctrl.Config())); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		sched.Step()
	}

	v, ok := ctrl.Lookup("x")
	if !ok {
		t.Fatal("x should be visible")
	}
	if n, _ := v.(int64); n != 5 {
		t.Errorf("x = %v, expected 5", v)
	}
	if ctrl.FrameCount() != 5 {
		t.Errorf("FrameCount() = %d, expected 5", ctrl.FrameCount())
	}
}

func TestUpdateCannotRunDuringStart(t *testing.T) {
	sched := NewManualScheduler()
	ctrl := New(Options{Scheduler: sched, Logger: log.New(io.Discard)})
	defer ctrl.Stop()

	def := &game.Definition{
		InitCode:   "state.initSaw = typeof leaked === 'undefined' ? 'none' : leaked;",
		UpdateCode: "}); leaked = 'update-ran-first'; (function(){",
	}
	err := ctrl.Start(def, core.NewSurfaceFor(ctrl.Config()))
	var rerr *RuntimeError
	if !errors.As(err, &rerr) || rerr.Phase != script.PhaseUpdate {
		t.Fatalf("Start() error = %v, expected an update compile error", err)
	}
	if ctrl.Running() {
		t.Error("controller should be idle")
	}
	if v, ok := ctrl.Lookup("leaked"); ok {
		t.Errorf("leaked = %v, update code ran during Start", v)
	}
	if _, ok := ctrl.Lookup("initSaw"); ok {
		t.Error("init should not run when update fails to compile")
	}
}

func TestStarlarkDefinition(t *testing.T) {
	sched := NewManualScheduler()
	ctrl := New(Options{Scheduler: sched, Logger: log.New(io.Discard)})
	defer ctrl.Stop()

	def := &game.Definition{
		Engine:     "starlark",
		InitCode:   "state['n'] = 0\n",
		UpdateCode: "state['n'] += 1\nctx.set_pixel(state['n'], 0, 'white')\n",
	}
	surf := core.NewSurfaceFor(ctrl.Config())
	if err := ctrl.Start(def, surf); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	sched.Step()
	sched.Step()

	if v, _ := ctrl.Lookup("n"); v != int64(2) {
		t.Errorf("state['n'] = %v, expected 2", v)
	}
	snap := ctrl.Snapshot()
	if snap.Pixel(2, 0) != core.White {
		t.Error("snapshot should contain the drawn pixel")
	}
}

func TestInvalidInputLeavesRunAlone(t *testing.T) {
	f := newFixture(t, Options{})

	if err := f.start(t, "ok", "ok"); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	f.steps(2)

	// Malformed JSON never reaches the controller.
	if _, err := game.Parse([]byte("{not json")); !errors.Is(err, ErrDefinitionFormat) {
		t.Errorf("Parse() error = %v, expected ErrDefinitionFormat", err)
	}
	if _, err := game.Parse([]byte(`{"initCode": "ok"}`)); !errors.Is(err, ErrDefinitionFormat) {
		t.Errorf("Parse() error = %v, expected ErrDefinitionFormat", err)
	}

	if err := f.ctrl.Start(nil, f.surface); !errors.Is(err, ErrDefinitionFormat) {
		t.Errorf("Start(nil) error = %v, expected ErrDefinitionFormat", err)
	}
	if err := f.ctrl.Start(&game.Definition{}, nil); !errors.Is(err, ErrResourceUnavailable) {
		t.Errorf("Start(nil surface) error = %v, expected ErrResourceUnavailable", err)
	}
	if err := f.ctrl.Start(&game.Definition{Engine: "nope"}, f.surface); !errors.Is(err, ErrResourceUnavailable) {
		t.Errorf("unknown engine error = %v, expected ErrResourceUnavailable", err)
	}
	small := core.NewSurface(8, 8, core.Black)
	if err := f.ctrl.Start(&game.Definition{}, small); !errors.Is(err, ErrResourceUnavailable) {
		t.Errorf("wrong size error = %v, expected ErrResourceUnavailable", err)
	}

	if !f.ctrl.Running() || f.ctrl.FrameCount() != 2 {
		t.Errorf("running game changed: running=%v frames=%d", f.ctrl.Running(), f.ctrl.FrameCount())
	}
	if n := f.engine.count(script.PhaseInit); n != 1 {
		t.Errorf("init ran %d times, expected 1", n)
	}
}

func TestMissingUpdateCodeRunsNothing(t *testing.T) {
	f := newFixture(t, Options{})

	def, err := game.Parse([]byte(`{"initCode": "ok"}`))
	if !errors.Is(err, ErrDefinitionFormat) {
		t.Fatalf("Parse() error = %v, expected ErrDefinitionFormat", err)
	}
	if def != (game.Definition{}) {
		t.Errorf("Parse() returned %+v on error", def)
	}
	if n := len(f.engine.Calls()); n != 0 {
		t.Errorf("%d blocks ran", n)
	}
	if f.ctrl.Running() {
		t.Error("no run should start")
	}
}

func TestStartClearsSurface(t *testing.T) {
	f := newFixture(t, Options{})

	f.surface.Fill(core.White)
	if err := f.surface.SetFillStyle("red"); err != nil {
		t.Fatalf("SetFillStyle() failed: %v", err)
	}

	if err := f.start(t, "ok", "ok"); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if f.surface.Pixel(10, 10) != core.Black {
		t.Error("surface should be cleared to the background before init")
	}
	if f.surface.FillStyle() != "#000000" {
		t.Errorf("fill style = %q, expected reset", f.surface.FillStyle())
	}
}

func TestReportStatus(t *testing.T) {
	f := newFixture(t, Options{})

	f.ctrl.ReportLoading("snake")
	if st := f.ctrl.Status(); st.String() != "loading snake…" {
		t.Errorf("status = %q", st.String())
	}

	f.ctrl.ReportError(errors.New("fetch failed"))
	if st := f.ctrl.Status(); st.String() != "fetch failed" {
		t.Errorf("status = %q", st.String())
	}

	if err := f.start(t, "ok", "ok"); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	f.steps(4)
	st := f.ctrl.Status()
	if st.String() != "game running" || st.Frame != 4 || st.Engine != "recorder" {
		t.Errorf("status = %+v", st)
	}
	if last := f.statuses[len(f.statuses)-1]; last.Kind != StatusRunning {
		t.Errorf("last published status = %v, expected running", last.Kind)
	}
}

func TestObserverMayCallBack(t *testing.T) {
	var ctrl *Controller
	sched := NewManualScheduler()
	eng := &recorder{}
	done := make(chan struct{})

	ctrl = New(Options{
		Scheduler:     sched,
		Logger:        log.New(io.Discard),
		DefaultEngine: "recorder",
		Engines:       func(string) (script.Engine, error) { return eng, nil },
		OnError: func(*RuntimeError) {
			_ = ctrl.Status()
			ctrl.Stop()
			close(done)
		},
	})

	if err := ctrl.Start(&game.Definition{UpdateCode: "fail"}, core.NewSurfaceFor(ctrl.Config())); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	sched.Step()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnError observer deadlocked")
	}
}
