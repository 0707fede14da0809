package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"

	"github.com/vovakirdan/pixelbox/internal/game"
	"github.com/vovakirdan/pixelbox/internal/runtime"
	"github.com/vovakirdan/pixelbox/internal/storage"
)

// SSHServerConfig holds configuration for the SSH server.
type SSHServerConfig struct {
	// Address is the host:port to listen on (e.g., ":23234").
	Address string

	// HostKeyPath is the path to the host key file.
	// If empty, a key will be auto-generated at ~/.pixelbox/host_key.
	HostKeyPath string

	// IdleTimeout is how long to wait before closing idle connections.
	IdleTimeout time.Duration

	// NewController builds the controller of one session.
	NewController func(source string) *runtime.Controller

	// Loader resolves sample ids; Samples lists them for the menu.
	Loader  game.Loader
	Samples func() []game.SampleInfo

	// Store is optional; its definitions are listed after the samples.
	Store *storage.Store

	Logger *log.Logger
}

// DefaultSSHServerConfig returns a config with sensible defaults.
func DefaultSSHServerConfig() SSHServerConfig {
	return SSHServerConfig{
		Address:     ":23234",
		IdleTimeout: 30 * time.Minute,
		Loader:      game.EmbeddedLoader{},
		Samples:     game.Samples,
	}
}

// SSHServer wraps a Wish SSH server that serves the player.
type SSHServer struct {
	config SSHServerConfig
	server *ssh.Server
	logger *log.Logger
}

// NewSSHServer creates a new SSH server with the given configuration.
func NewSSHServer(cfg SSHServerConfig) (*SSHServer, error) {
	if cfg.NewController == nil {
		return nil, errors.New("ssh: no controller factory")
	}
	if cfg.Loader == nil {
		cfg.Loader = game.EmbeddedLoader{}
	}
	if cfg.Samples == nil {
		cfg.Samples = game.Samples
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	srv := &SSHServer{
		config: cfg,
		logger: logger.WithPrefix("pixelbox-ssh"),
	}

	// Resolve host key path
	hostKeyPath := cfg.HostKeyPath
	if hostKeyPath == "" {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return nil, fmt.Errorf("cannot get home directory: %w", homeErr)
		}
		hostKeyPath = filepath.Join(home, ".pixelbox", "host_key")
	}

	// Ensure host key directory exists
	hostKeyDir := filepath.Dir(hostKeyPath)
	if mkdirErr := os.MkdirAll(hostKeyDir, 0o700); mkdirErr != nil {
		return nil, fmt.Errorf("cannot create host key directory: %w", mkdirErr)
	}

	server, err := wish.NewServer(
		wish.WithAddress(cfg.Address),
		wish.WithHostKeyPath(hostKeyPath),
		wish.WithIdleTimeout(cfg.IdleTimeout),
		wish.WithMiddleware(
			bubbletea.Middleware(srv.teaHandler),
			srv.loggingMiddleware,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot create SSH server: %w", err)
	}

	srv.server = server
	return srv, nil
}

// teaHandler creates a Bubble Tea program for each SSH session.
// `ssh host snake` plays the snake sample directly; a bare session opens the menu.
func (s *SSHServer) teaHandler(sshSession ssh.Session) (tea.Model, []tea.ProgramOption) {
	pty, _, ok := sshSession.Pty()
	if !ok {
		s.logger.Warn("no PTY requested", "user", sshSession.User())
		return nil, nil
	}

	var requested string
	if args := sshSession.Command(); len(args) > 0 {
		requested = args[0]
	}

	model := NewSessionModel(SessionConfig{
		Context:       sshSession.Context(),
		NewController: s.config.NewController,
		Loader:        s.config.Loader,
		Store:         s.config.Store,
		Items:         MenuItems(s.config.Samples(), s.config.Store),
		Requested:     requested,
		Width:         pty.Window.Width,
		Height:        pty.Window.Height,
		Logger:        s.logger.With("user", sshSession.User()),
	})

	return model, []tea.ProgramOption{
		tea.WithAltScreen(),
	}
}

// loggingMiddleware logs SSH session events.
func (s *SSHServer) loggingMiddleware(next ssh.Handler) ssh.Handler {
	return func(sshSession ssh.Session) {
		s.logger.Info("session started",
			"user", sshSession.User(),
			"remote", sshSession.RemoteAddr().String(),
			"command", strings.Join(sshSession.Command(), " "),
		)
		next(sshSession)
		s.logger.Info("session ended",
			"user", sshSession.User(),
			"remote", sshSession.RemoteAddr().String(),
		)
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *SSHServer) ListenAndServe(ctx context.Context) error {
	s.logger.Info("starting SSH server", "address", s.config.Address)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down...")
	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *SSHServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Addr returns the server's listen address string.
func (s *SSHServer) Addr() string {
	return s.config.Address
}

// SessionConfig configures one SSH session.
type SessionConfig struct {
	Context       context.Context
	NewController func(source string) *runtime.Controller
	Loader        game.Loader
	Store         *storage.Store
	Items         []MenuItem
	Requested     string // Sample to play without showing the menu
	Width, Height int
	Logger        *log.Logger
}

// loadedMsg carries a definition picked in the session.
type loadedMsg struct {
	def    game.Definition
	source string
	note   string
	err    error
}

// SessionModel manages the session flow: menu -> player -> menu.
// This is the top-level model used for SSH sessions.
type SessionModel struct {
	cfg      SessionConfig
	menu     MenuModel
	player   *Model
	ctrl     *runtime.Controller
	notice   string
	quitting bool
}

// NewSessionModel creates a new session model.
func NewSessionModel(cfg SessionConfig) SessionModel {
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return SessionModel{
		cfg:  cfg,
		menu: NewMenuModel(cfg.Items, cfg.Width, cfg.Height),
	}
}

// Init loads the requested sample, if any.
func (m SessionModel) Init() tea.Cmd {
	if m.cfg.Requested != "" {
		return m.loadSample(m.cfg.Requested)
	}
	return m.menu.Init()
}

func (m SessionModel) loadSample(id string) tea.Cmd {
	ctx, loader := m.cfg.Context, m.cfg.Loader
	return func() tea.Msg {
		res, err := game.LoadWithFallback(ctx, loader, id)
		if err != nil {
			return loadedMsg{err: err}
		}
		msg := loadedMsg{def: res.Definition, source: res.ID}
		if res.Fallback {
			msg.note = fmt.Sprintf("%q unavailable, playing %q", res.Requested, res.ID)
		}
		return msg
	}
}

func (m SessionModel) loadLibrary(name string) tea.Cmd {
	store := m.cfg.Store
	return func() tea.Msg {
		if store == nil {
			return loadedMsg{err: errors.New("library is not available")}
		}
		def, err := store.Definition(name)
		return loadedMsg{def: def, source: name, err: err}
	}
}

// Update handles messages for the session.
func (m SessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if wsm, ok := msg.(tea.WindowSizeMsg); ok {
		m.cfg.Width = wsm.Width
		m.cfg.Height = wsm.Height
	}

	if lm, ok := msg.(loadedMsg); ok {
		return m.startPlayer(lm)
	}

	if m.player != nil {
		return m.updatePlayer(msg)
	}
	return m.updateMenu(msg)
}

func (m SessionModel) startPlayer(msg loadedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.cfg.Logger.Warn("load failed", "error", msg.err)
		m.notice = "load failed: " + msg.err.Error()
		return m, nil
	}
	if msg.note != "" {
		m.cfg.Logger.Info(msg.note)
	}

	// One controller per played definition, so run history names the right source
	if m.ctrl != nil {
		m.ctrl.Stop()
	}
	ctrl := m.cfg.NewController(msg.source)
	m.ctrl = ctrl
	go func() {
		<-m.cfg.Context.Done()
		ctrl.Stop()
	}()

	def := msg.def
	player := NewModel(PlayerConfig{
		Controller: m.ctrl,
		Definition: &def,
		Source:     msg.source,
		AllowBack:  m.cfg.Requested == "",
		Notice:     msg.note,
	})
	m.player = &player
	m.notice = ""

	// Replay the size so the player lays out immediately
	size := tea.WindowSizeMsg{Width: m.cfg.Width, Height: m.cfg.Height}
	next, _ := m.player.Update(size)
	if p, ok := next.(Model); ok {
		m.player = &p
	}
	return m, m.player.Init()
}

// updateMenu handles updates when in menu mode.
func (m SessionModel) updateMenu(msg tea.Msg) (tea.Model, tea.Cmd) {
	newMenu, cmd := m.menu.Update(msg)
	if menuModel, ok := newMenu.(MenuModel); ok {
		m.menu = menuModel
	}

	if m.menu.IsQuitting() {
		m.quitting = true
		return m, tea.Quit
	}

	if selected := m.menu.Selected(); selected != nil {
		item := *selected
		m.menu.selected = nil
		if item.Kind == ItemLibrary {
			return m, m.loadLibrary(item.ID)
		}
		return m, m.loadSample(item.ID)
	}

	return m, cmd
}

// updatePlayer handles updates when in player mode.
func (m SessionModel) updatePlayer(msg tea.Msg) (tea.Model, tea.Cmd) {
	newModel, cmd := m.player.Update(msg)
	if p, ok := newModel.(Model); ok {
		m.player = &p
	}

	if m.player.BackToMenu() {
		m.player = nil
		m.menu = NewMenuModel(m.cfg.Items, m.cfg.Width, m.cfg.Height)
		return m, m.menu.Init()
	}

	if m.player.IsQuitting() {
		m.quitting = true
		return m, tea.Quit
	}

	return m, cmd
}

// View renders the current view.
func (m SessionModel) View() string {
	if m.quitting {
		return ""
	}
	if m.player != nil {
		return m.player.View()
	}

	view := m.menu.View()
	if m.notice != "" {
		view += "\n" + centerText(errorStyle.Render(m.notice), m.cfg.Width, len(m.notice))
	}
	return view
}

// RunSession runs the menu and player flow in the local terminal. Ending
// the session stops every controller it created.
func RunSession(cfg SessionConfig) error {
	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	cfg.Context = ctx

	p := tea.NewProgram(
		NewSessionModel(cfg),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && parent.Err() != nil {
		return nil
	}
	return err
}
