package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/pixelbox/internal/registry"
	"github.com/vovakirdan/pixelbox/internal/runtime"
)

var samplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "List the sample games",
	Long:  `Shows the sample games and the script engines that can run them.`,
	Args:  cobra.NoArgs,
	RunE:  runSamples,
}

func runSamples(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	samples := a.samples()
	if len(samples) == 0 {
		fmt.Fprintln(out, "No samples available.")
		return nil
	}

	fmt.Fprintln(out, "Available samples:")
	fmt.Fprintln(out)

	// Calculate column widths
	maxIDLen := 2 // "ID" header
	for _, s := range samples {
		if len(s.ID) > maxIDLen {
			maxIDLen = len(s.ID)
		}
	}

	// Print header
	fmt.Fprintf(out, "  %-*s  %s\n", maxIDLen, "ID", "Engine")
	fmt.Fprintf(out, "  %-*s  %s\n", maxIDLen, "--", "------")

	for _, s := range samples {
		engine := s.Engine
		if engine == "" {
			engine = a.cfg.Engine.Script
		}
		if engine == "" {
			engine = runtime.DefaultEngine
		}
		fmt.Fprintf(out, "  %-*s  %s\n", maxIDLen, s.ID, engine)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Engines:")
	for _, e := range registry.List() {
		fmt.Fprintf(out, "  %-*s  %s\n", maxIDLen, e.Name, e.Title)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Run 'pixelbox play <id>' to play a sample.")
	return nil
}
