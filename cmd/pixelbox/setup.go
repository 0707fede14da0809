package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/pixelbox/internal/config"
	"github.com/vovakirdan/pixelbox/internal/game"
	"github.com/vovakirdan/pixelbox/internal/runtime"
	"github.com/vovakirdan/pixelbox/internal/storage"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// app holds what every command shares: configuration, logger and library.
type app struct {
	cfg     config.Config
	source  string // Where cfg came from
	logger  *log.Logger
	logFile *os.File
	store   *storage.Store
}

// setup loads the configuration and applies the global flags. Terminal
// modes pass toFile so log output does not corrupt the screen.
func setup(cmd *cobra.Command, toFile bool) (*app, error) {
	cfg, source, err := config.LoadWithSource(flagConfig)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("fps") {
		cfg.Engine.FrameRate = flagFPS
	}
	if flags.Changed("db") {
		cfg.Storage.Path = flagDBPath
	}
	if flags.Changed("engine") {
		cfg.Engine.Script = flagEngine
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, source: source}
	if err := a.initLogger(toFile); err != nil {
		return nil, err
	}
	a.logger.Debug("loaded config", "source", source)
	return a, nil
}

func (a *app) initLogger(toFile bool) error {
	var out io.Writer = os.Stderr
	if toFile && a.cfg.Log.File != "" {
		path, err := config.ExpandPath(a.cfg.Log.File)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("cannot create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("cannot open log file: %w", err)
		}
		a.logFile = f
		out = f
	}

	level, err := log.ParseLevel(a.cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("config: log: %w", err)
	}
	a.logger = log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           level,
	})
	log.SetDefault(a.logger)
	return nil
}

// openStore opens the library. A library that cannot be opened is logged
// and left nil; playing still works without it.
func (a *app) openStore() *storage.Store {
	if a.store != nil {
		return a.store
	}
	path, err := config.ExpandPath(a.cfg.Storage.Path)
	if err == nil {
		a.store, err = storage.Open(path)
	}
	if err != nil {
		a.logger.Warn("library unavailable", "path", a.cfg.Storage.Path, "error", err)
		return nil
	}
	return a.store
}

// requireStore is openStore for commands that cannot work without it.
func (a *app) requireStore() (*storage.Store, error) {
	path, err := config.ExpandPath(a.cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	if a.store == nil {
		if a.store, err = storage.Open(path); err != nil {
			return nil, fmt.Errorf("cannot open library: %w", err)
		}
	}
	return a.store, nil
}

// Close releases the library and the log file.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// loader resolves sample ids: a configured URL first, then the samples
// directory, then the embedded set.
func (a *app) loader() game.Loader {
	dir := game.DirLoader{Root: a.samplesDir()}
	if a.cfg.Samples.URL == "" {
		return dir
	}
	remote := game.HTTPLoader{BaseURL: a.cfg.Samples.URL, Client: httpClient}
	return game.LoaderFunc(func(ctx context.Context, id string) (game.Definition, error) {
		def, err := remote.Load(ctx, id)
		if err != nil {
			a.logger.Warn("remote sample failed", "id", id, "error", err)
			return dir.Load(ctx, id)
		}
		return def, nil
	})
}

func (a *app) samplesDir() string {
	if a.cfg.Samples.Dir == "" {
		return ""
	}
	dir, err := config.ExpandPath(a.cfg.Samples.Dir)
	if err != nil {
		return ""
	}
	return dir
}

func (a *app) samples() []game.SampleInfo {
	return game.DirLoader{Root: a.samplesDir()}.List()
}

// newController builds a controller whose finished runs are recorded in
// the library under source.
func (a *app) newController(source string, opts runtime.Options) *runtime.Controller {
	opts.Config = a.cfg.Engine.Core()
	opts.DefaultEngine = a.cfg.Engine.Script
	if opts.Logger == nil {
		opts.Logger = a.logger
	}

	store := a.openStore()
	if store != nil && source != "" {
		opts.OnRunEnd = func(r runtime.RunReport) {
			rec := storage.RunRecord{
				Source:    source,
				Engine:    r.Engine,
				Frames:    r.Frames,
				StartedAt: r.Started,
				EndedAt:   r.Ended,
			}
			if r.Err != nil {
				rec.Error = r.Err.Error()
			}
			if _, err := store.RecordRun(rec); err != nil {
				a.logger.Warn("cannot record run", "source", source, "error", err)
			}
		}
	}
	return runtime.New(opts)
}
