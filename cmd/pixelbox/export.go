package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/pixelbox/internal/game"
)

var (
	flagInitFile    string
	flagUpdateFile  string
	flagOutput      string
	flagDisplayMode string
	flagDefEngine   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Assemble game-code.json from source files",
	Long: `Read the init and update code from two files and write a definition
in the exchange format, stamped with the current time.

Examples:
  pixelbox export --init init.js --update update.js
  pixelbox export --init init.star --update update.star --script-engine starlark -o star.json
  pixelbox export --init init.js --update update.js -o -`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&flagInitFile, "init", "", "File with the init code")
	exportCmd.Flags().StringVar(&flagUpdateFile, "update", "", "File with the update code")
	exportCmd.Flags().StringVarP(&flagOutput, "output", "o", game.ExportFilename, `Output file, "-" for stdout`)
	exportCmd.Flags().StringVar(&flagDisplayMode, "display-mode", game.DefaultDisplayMode, "Display mode recorded in the definition")
	exportCmd.Flags().StringVar(&flagDefEngine, "script-engine", "", "Engine recorded in the definition (empty: host default)")
	_ = exportCmd.MarkFlagRequired("init")
	_ = exportCmd.MarkFlagRequired("update")
}

func runExport(cmd *cobra.Command, _ []string) error {
	initCode, err := os.ReadFile(flagInitFile)
	if err != nil {
		return err
	}
	updateCode, err := os.ReadFile(flagUpdateFile)
	if err != nil {
		return err
	}

	def := game.Export(string(initCode), string(updateCode), flagDisplayMode, time.Now())
	def.Engine = flagDefEngine
	if err := def.Validate(); err != nil {
		return err
	}

	if flagOutput == "-" {
		data, err := game.Marshal(def)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	if err := game.WriteFile(flagOutput, def); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", flagOutput)
	return nil
}
