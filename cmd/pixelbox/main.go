// pixelbox plays and edits tiny scripted games on a 64x64 pixel surface.
//
// Usage:
//
//	pixelbox play [file|sample]  - Play a definition (menu when omitted)
//	pixelbox edit [file]         - Edit init/update code with a live preview
//	pixelbox serve               - Serve the web and SSH players
//	pixelbox check <file>        - Run a definition headless for N frames
//	pixelbox export              - Build game-code.json from two source files
//	pixelbox samples             - List the sample games
//	pixelbox library ...         - Manage saved definitions and run history
//
// Global flags:
//
//	--config <path>     - Config file (default search: ~/.pixelbox, ./configs)
//	--fps <rate>        - Tick rate (default: 30)
//	--db <path>         - Library database (default: ~/.pixelbox/library.db)
//	--engine <name>     - Script engine for definitions that name none
//	--log-level <lvl>   - debug, info, warn or error
//	--profile           - Write a CPU profile to the working directory
package main

import (
	"fmt"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	// Import engines to register them
	_ "github.com/vovakirdan/pixelbox/internal/script/js"
	_ "github.com/vovakirdan/pixelbox/internal/script/star"
)

var (
	// Global flags
	flagConfig   string
	flagFPS      int
	flagDBPath   string
	flagEngine   string
	flagLogLevel string
	flagProfile  bool

	stopProfile interface{ Stop() }
)

func main() {
	err := rootCmd.Execute()
	if stopProfile != nil {
		stopProfile.Stop()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "pixelbox",
	Short: "pixelbox - tiny scripted games on a 64x64 pixel surface",
	Long: `pixelbox runs small games made of two code blocks: init, run once,
and update, run 30 times per second against a 64x64 drawing surface.
A runtime error in either block stops the game and is reported.

Available commands:
  play     - Play a definition file, a sample or a library entry
  edit     - Edit a definition with a live preview
  serve    - Start the web and SSH players
  check    - Run a definition headless and report errors
  export   - Assemble game-code.json from source files
  samples  - List the sample games
  library  - Manage the local library

Examples:
  pixelbox play
  pixelbox play snake
  pixelbox play ./game-code.json --window
  pixelbox edit ./game-code.json
  pixelbox serve --http :8080 --ssh :23234
  pixelbox check ./game-code.json --frames 300`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagProfile {
			stopProfile = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook, profile.Quiet)
		}
	},
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a config YAML file")
	rootCmd.PersistentFlags().IntVar(&flagFPS, "fps", 30, "Tick rate (frames per second)")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Path to the library database (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagEngine, "engine", "", "Script engine for definitions that name none (js, starlark)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagProfile, "profile", false, "Write a CPU profile to the working directory")

	// Add subcommands
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(samplesCmd)
	rootCmd.AddCommand(libraryCmd)
}
