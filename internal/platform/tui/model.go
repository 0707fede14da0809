package tui

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/pixelbox/internal/core"
	"github.com/vovakirdan/pixelbox/internal/game"
	"github.com/vovakirdan/pixelbox/internal/runtime"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	frameStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
)

// PlayerConfig configures a terminal player.
type PlayerConfig struct {
	Controller    *runtime.Controller
	Definition    *game.Definition
	Source        string // Shown in the title and used to name screenshots
	ScreenshotDir string // Defaults to ~/.pixelbox/screenshots
	AllowBack     bool   // Enables esc/b to leave the player without quitting
	Notice        string // Shown under the status line until the next key action
}

// startedMsg reports the result of Controller.Start.
type startedMsg struct{ err error }

// Model is the Bubble Tea model for playing a definition.
type Model struct {
	cfg      PlayerConfig
	ctrl     *runtime.Controller
	surface  *core.Surface // Handed to the controller; only it writes
	frame    *core.Surface // Copy shown by View
	status   runtime.Status
	keys     PlayerKeyMap
	help     help.Model
	notice   string
	width    int
	height   int
	quitting bool
	back     bool
}

// NewModel creates a new player model. The run starts in Init.
func NewModel(cfg PlayerConfig) Model {
	ecfg := cfg.Controller.Config()
	keys := DefaultPlayerKeyMap()
	keys.Back.SetEnabled(cfg.AllowBack)

	return Model{
		cfg:     cfg,
		ctrl:    cfg.Controller,
		surface: core.NewSurfaceFor(ecfg),
		frame:   core.NewSurfaceFor(ecfg),
		status:  cfg.Controller.Status(),
		keys:    keys,
		help:    help.New(),
		notice:  cfg.Notice,
	}
}

// Init starts the run and the refresh loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.startCmd(), frameCmd(m.ctrl.Config().FrameRate))
}

func (m Model) startCmd() tea.Cmd {
	ctrl, def, surface := m.ctrl, m.cfg.Definition, m.surface
	return func() tea.Msg {
		return startedMsg{err: ctrl.Start(def, surface)}
	}
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case startedMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		m.refresh()
		return m, nil

	case FrameMsg:
		m.refresh()
		return m, frameCmd(m.ctrl.Config().FrameRate)
	}

	return m, nil
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		m.ctrl.Stop()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Stop):
		m.ctrl.Stop()
		m.refresh()

	case key.Matches(msg, m.keys.Restart):
		m.notice = ""
		return m, m.startCmd()

	case key.Matches(msg, m.keys.Screenshot):
		path, err := m.saveScreenshot()
		if err != nil {
			m.notice = "screenshot failed: " + err.Error()
		} else {
			m.notice = "saved " + path
		}

	case key.Matches(msg, m.keys.Back):
		m.ctrl.Stop()
		m.back = true

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}

	return m, nil
}

// BackToMenu returns true if user requested to go back to menu.
func (m Model) BackToMenu() bool {
	return m.back
}

// IsQuitting returns true if user requested to quit entirely.
func (m Model) IsQuitting() bool {
	return m.quitting
}

// refresh copies the controller state into the model.
func (m *Model) refresh() {
	m.ctrl.SnapshotInto(m.frame)
	m.status = m.ctrl.Status()
}

// saveScreenshot writes the current frame as a PNG.
func (m *Model) saveScreenshot() (string, error) {
	dir := m.cfg.ScreenshotDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".pixelbox", "screenshots")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	// Generate filename with timestamp
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s.png", screenshotName(m.cfg.Source), timestamp)
	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := png.Encode(f, m.frame.Image()); err != nil {
		return "", err
	}
	return path, f.Close()
}

func screenshotName(source string) string {
	name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "pixelbox"
	}
	return name
}

// View renders the current state to a string for display.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	title := titleStyle.Render("pixelbox")
	if m.cfg.Source != "" {
		title += statusStyle.Render("  " + m.cfg.Source)
	}

	wide := m.width == 0 || m.width >= 2*m.frame.Width()+2
	screen := frameStyle.Render(RenderSurface(m.frame, wide))

	lines := []string{title, screen, m.statusLine()}
	if m.notice != "" {
		lines = append(lines, statusStyle.Render(m.notice))
	}
	lines = append(lines, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) statusLine() string {
	if m.status.Kind == runtime.StatusError {
		return errorStyle.Render(m.status.String())
	}
	line := m.status.String()
	if m.status.Kind == runtime.StatusRunning {
		line = fmt.Sprintf("%s · frame %d", line, m.status.Frame)
	}
	return statusStyle.Render(line)
}

// Run starts the Bubble Tea program with the given player configuration.
func Run(cfg PlayerConfig) error {
	p := tea.NewProgram(
		NewModel(cfg),
		tea.WithAltScreen(), // Use alternate screen buffer
	)

	_, err := p.Run()
	cfg.Controller.Stop()
	return err
}
