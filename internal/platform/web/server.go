// Package web serves a browser player: a static page, the sample set, a
// small JSON API to load and stop games, and a websocket frame stream.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/pixelbox/internal/core"
	"github.com/vovakirdan/pixelbox/internal/game"
	"github.com/vovakirdan/pixelbox/internal/runtime"
)

//go:embed static
var staticFiles embed.FS

// maxDefinitionSize bounds POST /api/game bodies.
const maxDefinitionSize = 1 << 20

// Config configures the web player.
type Config struct {
	Address    string
	Controller *runtime.Controller
	Loader     game.Loader             // Defaults to game.EmbeddedLoader
	Samples    func() []game.SampleInfo // Defaults to game.Samples
	Logger     *log.Logger
}

// Server is the browser player. Every viewer watches the same game.
type Server struct {
	cfg    Config
	ctrl   *runtime.Controller
	logger *log.Logger
	mux    *http.ServeMux
	http   *http.Server

	surface *core.Surface // Handed to the controller; only it writes

	socketsRw sync.RWMutex
	sockets   []*Socket
}

// StatusResponse is the body of GET /api/status and of API replies.
type StatusResponse struct {
	Status  string `json:"status"`
	Kind    string `json:"kind"`
	Running bool   `json:"running"`
	Frame   int    `json:"frame"`
	Engine  string `json:"engine,omitempty"`
	Sample  string `json:"sample,omitempty"`
	Note    string `json:"note,omitempty"`
	Error   string `json:"error,omitempty"`
}

type sampleEntry struct {
	ID     string `json:"id"`
	Engine string `json:"engine"`
	URL    string `json:"url"`
}

// NewServer creates a web player around cfg.Controller.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Controller == nil {
		return nil, errors.New("web: no controller")
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

	s := &Server{
		cfg:     cfg,
		ctrl:    cfg.Controller,
		logger:  logger.WithPrefix("web"),
		mux:     http.NewServeMux(),
		surface: core.NewSurfaceFor(cfg.Controller.Config()),
		sockets: make([]*Socket, 0, 2),
	}

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("web: %w", err)
	}

	s.mux.Handle("GET /", noCache(http.FileServer(http.FS(static))))
	s.mux.HandleFunc("GET /samples/", s.handleSamples)
	s.mux.HandleFunc("GET /samples/{file}", s.handleSample)
	s.mux.HandleFunc("POST /api/game", s.handleGame)
	s.mux.HandleFunc("POST /api/play", s.handlePlay)
	s.mux.HandleFunc("POST /api/stop", s.handleStop)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /ws/", s.handleSocket)

	s.http = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Address
}

// ListenAndServe serves until ctx is done, streaming frames to websockets.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("web: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting web server", "address", ln.Addr().String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.broadcastLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops the server, closes every socket and stops the game.
func (s *Server) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.http.Shutdown(shutdownCtx)
	s.closeSockets()
	s.ctrl.Stop()
	return err
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	samples := s.cfg.Samples()
	entries := make([]sampleEntry, 0, len(samples))
	for _, info := range samples {
		engine := info.Engine
		if engine == "" {
			engine = runtime.DefaultEngine
		}
		entries = append(entries, sampleEntry{
			ID:     info.ID,
			Engine: engine,
			URL:    "/samples/" + info.ID + ".json",
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	id, ok := strings.CutSuffix(file, ".json")
	if !ok {
		http.NotFound(w, r)
		return
	}

	def, err := s.cfg.Loader.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, game.ErrDefinitionFormat) {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeError(w, http.StatusNotFound, err)
		return
	}

	data, err := game.Marshal(def)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

// handleGame starts a posted definition. A malformed body is rejected
// without touching the game in progress.
func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDefinitionSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	def, err := game.Parse(data)
	if err != nil {
		s.logger.Warn("rejected definition", "remote", r.RemoteAddr, "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.start(w, &def, "", "")
}

// handlePlay starts a sample by id, falling back to the default sample.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	requested := r.URL.Query().Get("sample")
	s.ctrl.ReportLoading(requested)

	res, err := game.LoadWithFallback(r.Context(), s.cfg.Loader, requested)
	if err != nil {
		s.ctrl.ReportError(err)
		writeError(w, http.StatusNotFound, err)
		return
	}

	note := ""
	if res.Fallback {
		note = fmt.Sprintf("%q failed to load, playing %q", res.Requested, res.ID)
		s.logger.Warn("sample fallback", "requested", res.Requested, "loaded", res.ID, "error", res.Cause)
	}
	s.start(w, &res.Definition, res.ID, note)
}

func (s *Server) start(w http.ResponseWriter, def *game.Definition, sample, note string) {
	err := s.ctrl.Start(def, s.surface)
	resp := s.statusResponse()
	resp.Sample = sample
	resp.Note = note

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, runtime.ErrDefinitionFormat):
		resp.Error = err.Error()
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.Is(err, runtime.ErrResourceUnavailable):
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
	default:
		// Init failed; the status already carries the error
		resp.Error = err.Error()
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Stop()
	writeJSON(w, http.StatusOK, s.statusResponse())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statusResponse())
}

func (s *Server) statusResponse() StatusResponse {
	st := s.ctrl.Status()
	return StatusResponse{
		Status:  st.String(),
		Kind:    st.Kind.String(),
		Running: s.ctrl.Running(),
		Frame:   s.ctrl.FrameCount(),
		Engine:  st.Engine,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// noCache keeps browsers from holding on to an old player page.
func noCache(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		h.ServeHTTP(w, r)
	})
}
