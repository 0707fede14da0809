package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/pixelbox/internal/game"
	"github.com/vovakirdan/pixelbox/internal/platform/tui"
	"github.com/vovakirdan/pixelbox/internal/runtime"
)

var flagExportDir string

var editCmd = &cobra.Command{
	Use:   "edit [file]",
	Short: "Edit a definition with a live preview",
	Long: `Open the editor: an init pane, an update pane and a live preview.
Without a file the editor starts from the default sample.

Controls:
  Tab      - Switch pane
  Ctrl+R   - Run
  Ctrl+X   - Stop
  Ctrl+E   - Export to game-code.json
  Ctrl+O   - Import a definition file
  Ctrl+W   - Save to the library
  F1       - Help
  Ctrl+C   - Quit

Examples:
  pixelbox edit
  pixelbox edit ./game-code.json
  pixelbox edit --export-dir ./games`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEdit,
}

func init() {
	editCmd.Flags().StringVar(&flagExportDir, "export-dir", "", "Directory for game-code.json (default: working directory)")
}

func runEdit(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		def    game.Definition
		source string
	)
	if len(args) > 0 {
		source = args[0]
		// A missing file starts empty and is created on export
		if _, statErr := os.Stat(source); statErr == nil {
			if def, err = game.LoadFile(source); err != nil {
				return err
			}
		}
	} else {
		res, err := game.LoadWithFallback(cmd.Context(), a.loader(), a.cfg.Samples.Default)
		if err != nil {
			return err
		}
		def, source = res.Definition, res.ID
	}

	store := a.openStore()
	return tui.RunEditor(tui.EditorConfig{
		Controller: a.newController(source, runtime.Options{}),
		Definition: def,
		Source:     source,
		Store:      store,
		ExportDir:  flagExportDir,
	})
}
