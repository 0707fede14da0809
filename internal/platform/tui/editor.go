package tui

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/pixelbox/internal/core"
	"github.com/vovakirdan/pixelbox/internal/game"
	"github.com/vovakirdan/pixelbox/internal/runtime"
	"github.com/vovakirdan/pixelbox/internal/storage"
)

var (
	paneStyle        = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240"))
	focusedPaneStyle = paneStyle.BorderForeground(lipgloss.Color("212"))
	labelStyle       = lipgloss.NewStyle().Bold(true)
)

// EditorConfig configures the definition editor.
type EditorConfig struct {
	Controller *runtime.Controller
	Definition game.Definition // Initial content
	Source     string
	Store      *storage.Store // Optional; enables ctrl+w
	ExportDir  string         // Directory of game-code.json; defaults to the working directory
	Now        func() time.Time
}

type pane int

const (
	paneInit pane = iota
	paneUpdate
)

type promptKind int

const (
	promptNone promptKind = iota
	promptImport
	promptSave
)

// EditorModel edits the init and update blocks next to a live preview.
type EditorModel struct {
	cfg     EditorConfig
	ctrl    *runtime.Controller
	panes   [2]textarea.Model
	focus   pane
	prompt  textinput.Model
	asking  promptKind
	engine  string
	display string
	source  string
	surface *core.Surface
	frame   *core.Surface
	status  runtime.Status
	keys    EditorKeyMap
	help    help.Model
	notice  string
	width   int
}

// NewEditorModel creates an editor holding cfg.Definition.
func NewEditorModel(cfg EditorConfig) EditorModel {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ecfg := cfg.Controller.Config()

	m := EditorModel{
		cfg:     cfg,
		ctrl:    cfg.Controller,
		prompt:  textinput.New(),
		surface: core.NewSurfaceFor(ecfg),
		frame:   core.NewSurfaceFor(ecfg),
		status:  cfg.Controller.Status(),
		keys:    DefaultEditorKeyMap(),
		help:    help.New(),
	}
	for i := range m.panes {
		ta := textarea.New()
		ta.ShowLineNumbers = true
		ta.CharLimit = 0
		ta.MaxHeight = 0
		ta.SetWidth(60)
		ta.SetHeight(12)
		m.panes[i] = ta
	}
	m.panes[paneInit].Placeholder = "init code, runs once"
	m.panes[paneUpdate].Placeholder = "update code, runs every tick"
	m.load(cfg.Definition, cfg.Source)
	m.panes[paneInit].Focus()
	return m
}

// load replaces the editor content with def.
func (m *EditorModel) load(def game.Definition, source string) {
	m.panes[paneInit].SetValue(def.InitCode)
	m.panes[paneUpdate].SetValue(def.UpdateCode)
	m.engine = def.Engine
	m.display = def.DisplayMode
	m.source = source
}

// Definition returns the definition currently being edited.
func (m EditorModel) Definition() game.Definition {
	display := m.display
	if display == "" {
		display = game.DefaultDisplayMode
	}
	def := game.Export(m.panes[paneInit].Value(), m.panes[paneUpdate].Value(), display, m.cfg.Now())
	def.Engine = m.engine
	return def
}

// Init starts the preview refresh loop.
func (m EditorModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, frameCmd(m.ctrl.Config().FrameRate))
}

// Update handles messages and updates the model state.
func (m EditorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.asking != promptNone {
			return m.handlePromptKey(msg)
		}
		if model, cmd, handled := m.handleKey(msg); handled {
			return model, cmd
		}

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
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

	var cmd tea.Cmd
	if m.asking != promptNone {
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}
	m.panes[m.focus], cmd = m.panes[m.focus].Update(msg)
	return m, cmd
}

func (m EditorModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.ctrl.Stop()
		return m, tea.Quit, true

	case key.Matches(msg, m.keys.SwitchPane):
		m.panes[m.focus].Blur()
		m.focus = 1 - m.focus
		return m, m.panes[m.focus].Focus(), true

	case key.Matches(msg, m.keys.Run):
		m.notice = ""
		def := m.Definition()
		ctrl, surface := m.ctrl, m.surface
		return m, func() tea.Msg {
			return startedMsg{err: ctrl.Start(&def, surface)}
		}, true

	case key.Matches(msg, m.keys.Stop):
		m.ctrl.Stop()
		m.refresh()
		return m, nil, true

	case key.Matches(msg, m.keys.Export):
		m.export()
		return m, nil, true

	case key.Matches(msg, m.keys.Import):
		return m, m.ask(promptImport, "import from: ", ""), true

	case key.Matches(msg, m.keys.Save):
		if m.cfg.Store == nil {
			m.notice = "library is not available"
			return m, nil, true
		}
		return m, m.ask(promptSave, "save as: ", libraryName(m.source)), true

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil, true
	}
	return m, nil, false
}

func (m *EditorModel) ask(kind promptKind, label, value string) tea.Cmd {
	m.asking = kind
	m.prompt.Prompt = label
	m.prompt.SetValue(value)
	m.prompt.CursorEnd()
	m.panes[m.focus].Blur()
	return m.prompt.Focus()
}

func (m EditorModel) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		return m, m.closePrompt()

	case msg.Type == tea.KeyEnter:
		value := strings.TrimSpace(m.prompt.Value())
		kind := m.asking
		cmd := m.closePrompt()
		if value == "" {
			return m, cmd
		}
		switch kind {
		case promptImport:
			m.importFile(value)
		case promptSave:
			m.save(value)
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m *EditorModel) closePrompt() tea.Cmd {
	m.asking = promptNone
	m.prompt.Blur()
	return m.panes[m.focus].Focus()
}

// export writes game-code.json.
func (m *EditorModel) export() {
	path := filepath.Join(m.cfg.ExportDir, game.ExportFilename)
	if err := game.WriteFile(path, m.Definition()); err != nil {
		m.notice = "export failed: " + err.Error()
		return
	}
	m.notice = "exported to " + path
}

// importFile replaces the content with a definition file. On error the
// content is left as it was.
func (m *EditorModel) importFile(path string) {
	def, err := game.LoadFile(path)
	if err != nil {
		if errors.Is(err, game.ErrDefinitionFormat) {
			m.notice = "invalid game file: " + err.Error()
		} else {
			m.notice = "import failed: " + err.Error()
		}
		return
	}
	m.load(def, path)
	m.notice = "imported " + path
}

func (m *EditorModel) save(name string) {
	if err := m.cfg.Store.SaveDefinition(name, m.Definition()); err != nil {
		m.notice = "save failed: " + err.Error()
		return
	}
	m.source = name
	m.notice = "saved to library as " + name
}

func libraryName(source string) string {
	name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

func (m *EditorModel) refresh() {
	m.ctrl.SnapshotInto(m.frame)
	m.status = m.ctrl.Status()
}

func (m *EditorModel) resize(width, height int) {
	m.width = width
	m.help.Width = width

	// Preview takes 64 columns plus its border
	paneWidth := width - m.frame.Width() - 6
	if paneWidth < 30 {
		paneWidth = 30
	}
	paneHeight := (height - 8) / 2
	if paneHeight < 4 {
		paneHeight = 4
	}
	for i := range m.panes {
		m.panes[i].SetWidth(paneWidth)
		m.panes[i].SetHeight(paneHeight)
	}
}

// View renders the editor.
func (m EditorModel) View() string {
	panes := make([]string, 0, 2)
	for i, label := range []string{"init", "update"} {
		style := paneStyle
		if pane(i) == m.focus && m.asking == promptNone {
			style = focusedPaneStyle
		}
		panes = append(panes, lipgloss.JoinVertical(lipgloss.Left,
			labelStyle.Render(label),
			style.Render(m.panes[i].View()),
		))
	}
	left := lipgloss.JoinVertical(lipgloss.Left, panes...)
	right := frameStyle.Render(RenderSurface(m.frame, false))

	title := titleStyle.Render("pixelbox editor")
	if m.source != "" {
		title += statusStyle.Render("  " + m.source)
	}

	status := statusStyle.Render(m.status.String())
	if m.status.Kind == runtime.StatusError {
		status = errorStyle.Render(m.status.String())
	}

	lines := []string{
		title,
		lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right),
		status,
	}
	if m.asking != promptNone {
		lines = append(lines, m.prompt.View())
	} else if m.notice != "" {
		lines = append(lines, statusStyle.Render(m.notice))
	}
	lines = append(lines, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// RunEditor starts the Bubble Tea editor.
func RunEditor(cfg EditorConfig) error {
	p := tea.NewProgram(
		NewEditorModel(cfg),
		tea.WithAltScreen(),
	)

	_, err := p.Run()
	cfg.Controller.Stop()
	return err
}
