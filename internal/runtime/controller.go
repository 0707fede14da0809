// Package runtime runs game definitions: init once, then update on a fixed
// tick, with failures of user code stopping the run instead of the host.
package runtime

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/pixelbox/internal/core"
	"github.com/vovakirdan/pixelbox/internal/game"
	"github.com/vovakirdan/pixelbox/internal/registry"
	"github.com/vovakirdan/pixelbox/internal/script"
)

// DefaultEngine is used for definitions that do not name an engine.
const DefaultEngine = "js"

// Options configures a Controller. The zero value is usable.
type Options struct {
	Config        core.EngineConfig // Zero value means core.DefaultConfig()
	Scheduler     Scheduler         // Defaults to TickerScheduler
	Engines       func(name string) (script.Engine, error)
	DefaultEngine string
	Logger        *log.Logger
	Globals       map[string]any // Extra globals installed in every run
	Print         func(string)   // Script console output; logged if nil. Called with the lock held

	// Observers run after the Controller lock is released, so they may call
	// back into the Controller.
	OnStatus func(Status)
	OnError  func(*RuntimeError)
	OnRunEnd func(RunReport)
}

// RunReport summarizes a finished run, or a start that failed in user code.
type RunReport struct {
	Engine  string
	Frames  int
	Err     error
	Started time.Time
	Ended   time.Time
}

// Controller owns one run at a time. All methods are safe for concurrent use.
type Controller struct {
	opts   Options
	cfg    core.EngineConfig
	sched  Scheduler
	logger *log.Logger

	mu         sync.Mutex
	running    bool
	frameCount int
	gen        uint64 // Bumped on every start and stop; stale ticks compare against it
	timer      Timer
	scope      script.Scope
	update     script.Executable
	surface    *core.Surface
	engine     string
	started    time.Time
	status     Status
	pending    []func()
}

// New creates an idle Controller.
func New(opts Options) *Controller {
	cfg := opts.Config
	if cfg == (core.EngineConfig{}) {
		cfg = core.DefaultConfig()
	}
	if cfg.Background == "" {
		cfg.Background = core.DefaultBackground
	}

	sched := opts.Scheduler
	if sched == nil {
		sched = TickerScheduler{}
	}
	if opts.Engines == nil {
		opts.Engines = registry.Create
	}
	if opts.DefaultEngine == "" {
		opts.DefaultEngine = DefaultEngine
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Controller{
		opts:   opts,
		cfg:    cfg,
		sched:  sched,
		logger: logger.WithPrefix("runtime"),
		status: Status{Kind: StatusNoGame},
	}
}

// Start begins a new run of def on surface. A run in progress is stopped
// first. Invalid input is rejected before anything changes; a failing init
// block leaves the Controller idle.
func (c *Controller) Start(def *game.Definition, surface *core.Surface) error {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := def.Validate(); err != nil {
		c.logger.Warn("rejected definition", "error", err)
		return err
	}
	if surface == nil {
		return unavailable("no drawing surface")
	}
	if surface.Width() != c.cfg.Width || surface.Height() != c.cfg.Height {
		return unavailable("surface is %dx%d, expected %dx%d",
			surface.Width(), surface.Height(), c.cfg.Width, c.cfg.Height)
	}

	name := def.EngineOr(c.opts.DefaultEngine)
	engine, err := c.opts.Engines(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
	}

	c.stopLocked(nil)

	surface.SetBackground(c.cfg.BackgroundColor())
	surface.Reset()

	c.gen++
	gen := c.gen
	c.frameCount = 0
	c.surface = surface
	c.engine = name
	c.started = time.Now()

	scope, err := engine.NewScope(script.Env{
		Surface:    surface,
		Config:     c.cfg,
		FrameCount: func() int { return c.frameCount },
		Print:      c.print,
		Globals:    c.opts.Globals,
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
		c.setStatusLocked(Status{Kind: StatusError, Detail: err.Error(), Engine: name})
		return err
	}
	c.scope = scope

	initExe, err := scope.Compile(script.PhaseInit, def.InitCode)
	if err != nil {
		return c.failStartLocked(newRuntimeError(script.PhaseInit, 0, err))
	}
	updateExe, err := scope.Compile(script.PhaseUpdate, def.UpdateCode)
	if err != nil {
		return c.failStartLocked(newRuntimeError(script.PhaseUpdate, 0, err))
	}

	if rerr := c.execLocked(script.PhaseInit, initExe, 0); rerr != nil {
		return c.failStartLocked(rerr)
	}

	c.running = true
	c.update = updateExe
	c.timer = c.sched.Every(c.cfg.Interval(), func() { c.tick(gen) })
	c.setStatusLocked(Status{Kind: StatusRunning, Engine: name})
	c.logger.Info("run started", "engine", name, "fps", c.cfg.FrameRate)
	return nil
}

// Stop halts the current run. It is a no-op when idle.
func (c *Controller) Stop() {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopLocked(nil) {
		c.setStatusLocked(Status{Kind: StatusStopped, Engine: c.engine, Frame: c.frameCount})
	}
}

// Running reports whether a run is in progress.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// FrameCount returns the number of ticks completed by the current or last run.
func (c *Controller) FrameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameCount
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.status
	if s.Kind == StatusRunning {
		s.Frame = c.frameCount
	}
	return s
}

// Snapshot returns a copy of the surface of the current or last run, or nil
// if nothing has run yet.
func (c *Controller) Snapshot() *core.Surface {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.surface == nil {
		return nil
	}
	return c.surface.Clone()
}

// SnapshotInto copies the surface into dst, avoiding an allocation per frame.
func (c *Controller) SnapshotInto(dst *core.Surface) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.surface == nil {
		return false
	}
	return dst.CopyFrom(c.surface) == nil
}

// Config returns the engine configuration.
func (c *Controller) Config() core.EngineConfig {
	return c.cfg
}

// Lookup reads a shared global of the current or last run.
func (c *Controller) Lookup(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scope == nil {
		return nil, false
	}
	return c.scope.Lookup(name)
}

// ReportLoading publishes a loading status for src. Running state is unchanged.
func (c *Controller) ReportLoading(src string) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setStatusLocked(Status{Kind: StatusLoading, Detail: src})
}

// ReportError publishes a host-side failure, such as a definition that could
// not be loaded. Running state is unchanged.
func (c *Controller) ReportError(err error) {
	if err == nil {
		return
	}

	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setStatusLocked(Status{Kind: StatusError, Detail: err.Error(), Engine: c.engine})
}

// tick runs one update. Ticks from a stopped or replaced run are ignored.
func (c *Controller) tick(gen uint64) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || gen != c.gen {
		return
	}

	if rerr := c.execLocked(script.PhaseUpdate, c.update, c.frameCount+1); rerr != nil {
		c.logger.Error("update failed, stopping", "frame", rerr.Frame, "error", rerr)
		c.stopLocked(rerr)
		c.failLocked(rerr)
		return
	}
	c.frameCount++
}

// execLocked runs exe and converts errors and panics to RuntimeError.
func (c *Controller) execLocked(phase script.Phase, exe script.Executable, frame int) (rerr *RuntimeError) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("recovered panic in user code", "phase", phase, "panic", r, "stack", string(debug.Stack()))
			rerr = &RuntimeError{Phase: phase, Message: fmt.Sprintf("panic: %v", r), Frame: frame}
		}
	}()

	if err := exe.Run(); err != nil {
		return newRuntimeError(phase, frame, err)
	}
	return nil
}

// stopLocked ends the current run. It reports whether a run was stopped.
func (c *Controller) stopLocked(cause *RuntimeError) bool {
	if !c.running {
		return false
	}

	c.timer.Stop()
	c.timer = nil
	c.running = false
	c.gen++
	c.update = nil
	c.scope.Close()

	c.endRunLocked(cause)
	c.logger.Info("run stopped", "engine", c.engine, "frames", c.frameCount)
	return true
}

func (c *Controller) failStartLocked(rerr *RuntimeError) error {
	c.scope.Close()
	c.logger.Error("start failed", "phase", rerr.Phase, "error", rerr)
	c.endRunLocked(rerr)
	c.failLocked(rerr)
	return rerr
}

func (c *Controller) failLocked(rerr *RuntimeError) {
	c.setStatusLocked(Status{Kind: StatusError, Detail: rerr.Error(), Engine: c.engine, Frame: c.frameCount})
	if fn := c.opts.OnError; fn != nil {
		c.pending = append(c.pending, func() { fn(rerr) })
	}
}

func (c *Controller) endRunLocked(cause *RuntimeError) {
	fn := c.opts.OnRunEnd
	if fn == nil {
		return
	}

	report := RunReport{
		Engine:  c.engine,
		Frames:  c.frameCount,
		Started: c.started,
		Ended:   time.Now(),
	}
	if cause != nil {
		report.Err = cause
	}
	c.pending = append(c.pending, func() { fn(report) })
}

func (c *Controller) setStatusLocked(s Status) {
	c.status = s
	if fn := c.opts.OnStatus; fn != nil {
		c.pending = append(c.pending, func() { fn(s) })
	}
}

// flush delivers queued notifications. It must run after the lock is released.
func (c *Controller) flush() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

func (c *Controller) print(msg string) {
	if c.opts.Print != nil {
		c.opts.Print(msg)
		return
	}
	c.logger.Info("script output", "engine", c.engine, "msg", msg)
}
