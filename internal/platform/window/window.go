// Package window plays a definition in a desktop window.
package window

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/vovakirdan/pixelbox/internal/core"
	"github.com/vovakirdan/pixelbox/internal/game"
	"github.com/vovakirdan/pixelbox/internal/runtime"
)

// Config configures a window player.
type Config struct {
	Controller *runtime.Controller
	Definition *game.Definition
	Title      string
	Scale      int // Window pixels per surface pixel
	Logger     *log.Logger
}

type action int

const (
	actionNone action = iota
	actionRestart
	actionStop
	actionQuit
)

// Game implements ebiten.Game on top of a Controller. Ebitengine draws at
// its own rate; the controller keeps the game's tick rate.
type Game struct {
	cfg     Config
	ctrl    *runtime.Controller
	logger  *log.Logger
	surface *core.Surface // Handed to the controller; only it writes
	frame   *core.Surface
	img     *ebiten.Image
	status  runtime.Status
	title   string
	notice  string
}

// NewGame creates a window game. The run starts on the first Update.
func NewGame(cfg Config) *Game {
	if cfg.Title == "" {
		cfg.Title = "pixelbox"
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 8
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	ecfg := cfg.Controller.Config()
	return &Game{
		cfg:     cfg,
		ctrl:    cfg.Controller,
		logger:  logger.WithPrefix("window"),
		surface: core.NewSurfaceFor(ecfg),
		frame:   core.NewSurfaceFor(ecfg),
	}
}

// Start begins the run. It is called again on restart.
func (g *Game) Start() error {
	g.notice = ""
	err := g.ctrl.Start(g.cfg.Definition, g.surface)
	if err != nil {
		g.notice = err.Error()
		g.logger.Warn("start failed", "error", err)
	}
	g.refresh()
	return err
}

func (g *Game) pressed() action {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyEscape), inpututil.IsKeyJustPressed(ebiten.KeyQ):
		return actionQuit
	case inpututil.IsKeyJustPressed(ebiten.KeyR):
		return actionRestart
	case inpututil.IsKeyJustPressed(ebiten.KeyS):
		return actionStop
	}
	return actionNone
}

// apply performs a key action; it reports whether the window should close.
func (g *Game) apply(a action) bool {
	switch a {
	case actionQuit:
		g.ctrl.Stop()
		return true
	case actionRestart:
		_ = g.Start()
	case actionStop:
		g.ctrl.Stop()
	}
	return false
}

func (g *Game) refresh() {
	g.ctrl.SnapshotInto(g.frame)
	g.status = g.ctrl.Status()
}

// Title returns the window title for the current status.
func (g *Game) Title() string {
	switch {
	case g.notice != "" && g.status.Kind != runtime.StatusError:
		return fmt.Sprintf("%s · %s", g.cfg.Title, g.notice)
	case g.status.Kind == runtime.StatusRunning:
		return fmt.Sprintf("%s · frame %d", g.cfg.Title, g.status.Frame)
	}
	return fmt.Sprintf("%s · %s", g.cfg.Title, g.status)
}

// Update implements ebiten.Game.
func (g *Game) Update() error {
	if g.apply(g.pressed()) {
		return ebiten.Termination
	}
	g.refresh()

	if title := g.Title(); title != g.title {
		g.title = title
		ebiten.SetWindowTitle(title)
	}
	return nil
}

// Draw implements ebiten.Game.
func (g *Game) Draw(screen *ebiten.Image) {
	if g.img == nil {
		g.img = ebiten.NewImage(g.frame.Width(), g.frame.Height())
	}
	g.img.WritePixels(g.frame.Pix())
	screen.DrawImage(g.img, nil)
}

// Layout implements ebiten.Game. The surface is the logical screen;
// Ebitengine scales it to the window.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.frame.Width(), g.frame.Height()
}

// Run opens the window and blocks until it is closed.
func Run(cfg Config) error {
	g := NewGame(cfg)
	// Init errors are shown in the title; the window stays open for restart.
	_ = g.Start()

	ebiten.SetWindowTitle(g.Title())
	ebiten.SetWindowSize(g.frame.Width()*g.cfg.Scale, g.frame.Height()*g.cfg.Scale)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	err := ebiten.RunGame(g)
	g.ctrl.Stop()
	if errors.Is(err, ebiten.Termination) {
		return nil
	}
	return err
}
