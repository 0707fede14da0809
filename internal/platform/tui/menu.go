package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/pixelbox/internal/game"
	"github.com/vovakirdan/pixelbox/internal/storage"
)

// ItemKind tells where a menu entry is loaded from.
type ItemKind int

const (
	ItemSample ItemKind = iota
	ItemLibrary
)

// MenuItem represents a selectable definition in the menu.
type MenuItem struct {
	ID     string
	Engine string
	Kind   ItemKind
}

// Title returns the label shown in the menu.
func (i MenuItem) Title() string {
	engine := i.Engine
	if engine == "" {
		engine = "js"
	}
	if i.Kind == ItemLibrary {
		return fmt.Sprintf("%s (library, %s)", i.ID, engine)
	}
	return fmt.Sprintf("%s (%s)", i.ID, engine)
}

// MenuKeyMap defines the key bindings of the menu.
type MenuKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Quit   key.Binding
}

// DefaultMenuKeyMap returns default key bindings.
func DefaultMenuKeyMap() MenuKeyMap {
	return MenuKeyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k", "w")),
		Down:   key.NewBinding(key.WithKeys("down", "j", "s")),
		Select: key.NewBinding(key.WithKeys("enter", " ")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c")),
	}
}

// MenuModel is the Bubble Tea model for the definition picker.
type MenuModel struct {
	items    []MenuItem
	cursor   int
	width    int
	height   int
	keys     MenuKeyMap
	quitting bool
	selected *MenuItem // Set when user selects a definition
}

// MenuItems lists the samples, followed by the library when store is set.
func MenuItems(samples []game.SampleInfo, store *storage.Store) []MenuItem {
	items := make([]MenuItem, 0, len(samples))
	for _, s := range samples {
		items = append(items, MenuItem{ID: s.ID, Engine: s.Engine, Kind: ItemSample})
	}

	if store == nil {
		return items
	}
	entries, err := store.ListDefinitions()
	if err != nil {
		return items
	}
	for _, e := range entries {
		items = append(items, MenuItem{ID: e.Name, Engine: e.Engine, Kind: ItemLibrary})
	}
	return items
}

// NewMenuModel creates a new menu model.
func NewMenuModel(items []MenuItem, width, height int) MenuModel {
	return MenuModel{
		items:  items,
		width:  width,
		height: height,
		keys:   DefaultMenuKeyMap(),
	}
}

// Init initializes the menu model.
func (m MenuModel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the menu.
func (m MenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	}

	return m, nil
}

// handleKey processes keyboard input for menu navigation.
func (m MenuModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Select):
		if len(m.items) > 0 {
			selected := m.items[m.cursor]
			m.selected = &selected
		}
	}

	return m, nil
}

// View renders the menu.
func (m MenuModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(centerText(titleStyle.Render("P I X E L B O X"), m.width, 15))
	b.WriteString("\n\n")
	b.WriteString(centerText("Select a game", m.width, -1))
	b.WriteString("\n\n")

	if len(m.items) == 0 {
		b.WriteString(centerText("no games found", m.width, -1))
		b.WriteString("\n")
	}
	for i, item := range m.items {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		b.WriteString(centerText(cursor+item.Title(), m.width, -1))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	controls := "Up/Down: Navigate  |  Enter: Play  |  Q: Quit"
	b.WriteString(centerText(statusStyle.Render(controls), m.width, len(controls)))
	b.WriteString("\n")

	return b.String()
}

// Selected returns the selected menu item, or nil if none selected.
func (m MenuModel) Selected() *MenuItem {
	return m.selected
}

// IsQuitting returns true if user requested to quit.
func (m MenuModel) IsQuitting() bool {
	return m.quitting
}

// centerText centers text within width. visible is the printed width of
// text, or -1 when text has no escape sequences.
func centerText(text string, width, visible int) string {
	if visible < 0 {
		visible = len([]rune(text))
	}
	if visible >= width {
		return text
	}
	padding := (width - visible) / 2
	return strings.Repeat(" ", padding) + text
}
