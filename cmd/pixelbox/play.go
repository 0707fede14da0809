package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/pixelbox/internal/game"
	"github.com/vovakirdan/pixelbox/internal/platform/tui"
	"github.com/vovakirdan/pixelbox/internal/platform/window"
	"github.com/vovakirdan/pixelbox/internal/runtime"
)

var (
	flagWindow  bool
	flagSample  string
	flagLibrary string
)

var playCmd = &cobra.Command{
	Use:   "play [file|url|sample]",
	Short: "Play a definition",
	Long: `Play a game definition in the terminal or in a desktop window.

The argument is a definition file, an http(s) URL or a sample id. A sample
that fails to load falls back to the default sample once. Without an
argument a menu lists the samples and the library.

Controls:
  S          - Stop
  R          - Restart
  Ctrl+S     - Save a PNG screenshot
  B/Esc      - Back to the menu
  Q/Ctrl+C   - Quit

Examples:
  pixelbox play
  pixelbox play snake
  pixelbox play ./game-code.json
  pixelbox play --library mygame --window
  pixelbox play https://example.com/games/pong.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().BoolVar(&flagWindow, "window", false, "Play in a desktop window instead of the terminal")
	playCmd.Flags().StringVar(&flagSample, "sample", "", "Sample id to play")
	playCmd.Flags().StringVar(&flagLibrary, "library", "", "Library entry to play")
}

// loaded is a resolved definition and the name runs are recorded under.
type loaded struct {
	def    game.Definition
	source string
	note   string
}

func runPlay(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, !flagWindow)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	target := flagSample
	if len(args) > 0 {
		target = args[0]
	}

	// No target: the menu picks one
	if target == "" && flagLibrary == "" && !flagWindow {
		store := a.openStore()
		return tui.RunSession(tui.SessionConfig{
			Context: ctx,
			NewController: func(source string) *runtime.Controller {
				return a.newController(source, runtime.Options{})
			},
			Loader: a.loader(),
			Store:  store,
			Items:  tui.MenuItems(a.samples(), store),
			Logger: a.logger,
		})
	}

	l, err := a.resolve(ctx, target, flagLibrary)
	if err != nil {
		return err
	}
	if l.note != "" {
		a.logger.Warn(l.note)
	}

	ctrl := a.newController(l.source, runtime.Options{})
	if flagWindow {
		return window.Run(window.Config{
			Controller: ctrl,
			Definition: &l.def,
			Title:      a.cfg.Window.Title + " - " + l.source,
			Scale:      a.cfg.Window.Scale,
			Logger:     a.logger,
		})
	}
	return tui.Run(tui.PlayerConfig{
		Controller: ctrl,
		Definition: &l.def,
		Source:     l.source,
		Notice:     l.note,
	})
}

// resolve finds a definition by library name, file, URL or sample id.
func (a *app) resolve(ctx context.Context, target, library string) (loaded, error) {
	if library != "" {
		store, err := a.requireStore()
		if err != nil {
			return loaded{}, err
		}
		def, err := store.Definition(library)
		if err != nil {
			return loaded{}, err
		}
		return loaded{def: def, source: library}, nil
	}

	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		def, err := game.Fetch(ctx, httpClient, target)
		if err != nil {
			return loaded{}, err
		}
		return loaded{def: def, source: target}, nil
	}

	if _, err := os.Stat(target); err == nil || strings.HasSuffix(target, ".json") {
		def, err := game.LoadFile(target)
		if err != nil {
			return loaded{}, err
		}
		return loaded{def: def, source: target}, nil
	}

	if target == "" {
		target = a.cfg.Samples.Default
	}
	res, err := game.LoadWithFallback(ctx, a.loader(), target)
	if err != nil {
		return loaded{}, fmt.Errorf("cannot load sample %q: %w", target, err)
	}
	l := loaded{def: res.Definition, source: res.ID}
	if res.Fallback {
		l.note = fmt.Sprintf("%q failed to load, playing %q", res.Requested, res.ID)
	}
	return l, nil
}

// exitCode maps runtime errors to process exit codes for scripts.
func exitCode(err error) int {
	switch {
	case errors.Is(err, runtime.ErrDefinitionFormat):
		return 2
	case errors.Is(err, runtime.ErrInitExecution):
		return 3
	case errors.Is(err, runtime.ErrUpdateExecution):
		return 4
	case errors.Is(err, runtime.ErrResourceUnavailable):
		return 5
	}
	return 1
}
