package main

import (
	"fmt"
	"image/png"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/pixelbox/internal/core"
	"github.com/vovakirdan/pixelbox/internal/game"
	"github.com/vovakirdan/pixelbox/internal/runtime"
)

var (
	flagFrames int
	flagPNG    string
	flagASCII  bool
)

var checkCmd = &cobra.Command{
	Use:   "check <file|sample>",
	Short: "Run a definition headless and report errors",
	Long: `Run init once and update for a number of frames without waiting for
the clock, then report how far the game got. Script output is printed.

The exit code tells what failed: 2 for a malformed definition, 3 for an
init error, 4 for an update error and 5 for a missing engine.

Examples:
  pixelbox check ./game-code.json
  pixelbox check snake --frames 900 --png snake.png
  pixelbox check ./game-code.json --ascii`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().IntVar(&flagFrames, "frames", 300, "Number of update ticks to run")
	checkCmd.Flags().StringVar(&flagPNG, "png", "", "Write the final frame to a PNG file")
	checkCmd.Flags().BoolVar(&flagASCII, "ascii", false, "Print the final frame as text")
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	l, err := a.resolve(cmd.Context(), args[0], "")
	if err != nil {
		return err
	}
	if l.note != "" {
		a.logger.Warn(l.note)
	}

	out := cmd.OutOrStdout()
	res := check(l.def, a.cfg.Engine.Core(), a.cfg.Engine.Script, flagFrames, out, a.logger)

	fmt.Fprintf(out, "%s: %d/%d frames, %s\n", l.source, res.frames, flagFrames, res.status)
	if flagASCII {
		fmt.Fprintln(out, res.surface.String())
	}
	if flagPNG != "" {
		if err := writePNG(flagPNG, res.surface); err != nil {
			return err
		}
	}
	return res.err
}

type checkResult struct {
	frames  int
	status  runtime.Status
	surface *core.Surface
	err     error
}

// check runs def for up to frames ticks on a manual scheduler.
func check(def game.Definition, cfg core.EngineConfig, engine string, frames int, out io.Writer, logger *log.Logger) checkResult {
	sched := runtime.NewManualScheduler()
	var runErr error
	ctrl := runtime.New(runtime.Options{
		Config:        cfg,
		Scheduler:     sched,
		DefaultEngine: engine,
		Logger:        logger,
		Print: func(line string) {
			fmt.Fprintln(out, line)
		},
		OnError: func(err *runtime.RuntimeError) {
			runErr = err
		},
	})
	defer ctrl.Stop()

	surface := core.NewSurfaceFor(ctrl.Config())
	if err := ctrl.Start(&def, surface); err != nil {
		return checkResult{status: ctrl.Status(), surface: surface, err: err}
	}
	for i := 0; i < frames && ctrl.Running(); i++ {
		sched.Step()
	}

	return checkResult{
		frames:  ctrl.FrameCount(),
		status:  ctrl.Status(),
		surface: surface, // Ticks run on this goroutine
		err:     runErr,
	}
}

func writePNG(path string, s *core.Surface) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := png.Encode(f, s.Image()); err != nil {
		return fmt.Errorf("cannot encode %s: %w", path, err)
	}
	return f.Close()
}
