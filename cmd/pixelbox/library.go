package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vovakirdan/pixelbox/internal/game"
	"github.com/vovakirdan/pixelbox/internal/platform/tui"
)

var flagRunsLimit int

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage saved definitions and run history",
	Long: `The library is a local database of saved definitions and of every
finished run, with its frame count and error.

Examples:
  pixelbox library list
  pixelbox library save ./game-code.json mygame
  pixelbox library show mygame > mygame.json
  pixelbox library rm mygame
  pixelbox library runs snake
  pixelbox library history`,
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved definitions",
	Args:  cobra.NoArgs,
	RunE:  runLibraryList,
}

var librarySaveCmd = &cobra.Command{
	Use:   "save <file> [name]",
	Short: "Save a definition file to the library",
	Long:  `Save a definition file. The name defaults to the file name without extension.`,
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runLibrarySave,
}

var libraryShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a saved definition as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runLibraryShow,
}

var libraryRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Delete a saved definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runLibraryRm,
}

var libraryRunsCmd = &cobra.Command{
	Use:   "runs [source]",
	Short: "Show recent runs",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLibraryRuns,
}

var libraryHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse the run history interactively",
	Args:  cobra.NoArgs,
	RunE:  runLibraryHistory,
}

func init() {
	libraryRunsCmd.Flags().IntVarP(&flagRunsLimit, "limit", "n", 10, "Number of runs to show")

	libraryCmd.AddCommand(libraryListCmd)
	libraryCmd.AddCommand(librarySaveCmd)
	libraryCmd.AddCommand(libraryShowCmd)
	libraryCmd.AddCommand(libraryRmCmd)
	libraryCmd.AddCommand(libraryRunsCmd)
	libraryCmd.AddCommand(libraryHistoryCmd)
}

func runLibraryList(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.requireStore()
	if err != nil {
		return err
	}
	entries, err := store.ListDefinitions()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "The library is empty.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Save a definition with 'pixelbox library save <file>' or ctrl+w in the editor.")
		return nil
	}

	maxNameLen := 4 // "Name" header
	for _, e := range entries {
		if len(e.Name) > maxNameLen {
			maxNameLen = len(e.Name)
		}
	}

	fmt.Fprintf(out, "  %-*s  %-8s  %-8s  %s\n", maxNameLen, "Name", "Engine", "Size", "Updated")
	fmt.Fprintf(out, "  %-*s  %-8s  %-8s  %s\n", maxNameLen, "----", "------", "----", "-------")
	for _, e := range entries {
		engine := e.Engine
		if engine == "" {
			engine = "-"
		}
		fmt.Fprintf(out, "  %-*s  %-8s  %-8d  %s\n", maxNameLen, e.Name, engine, e.Size, e.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func runLibrarySave(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	def, err := game.LoadFile(args[0])
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	if len(args) > 1 {
		name = args[1]
	}

	store, err := a.requireStore()
	if err != nil {
		return err
	}
	if err := store.SaveDefinition(name, def); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", name)
	return nil
}

func runLibraryShow(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.requireStore()
	if err != nil {
		return err
	}
	def, err := store.Definition(args[0])
	if err != nil {
		return err
	}
	data, err := game.Marshal(def)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runLibraryRm(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.requireStore()
	if err != nil {
		return err
	}
	if err := store.DeleteDefinition(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func runLibraryRuns(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	source := ""
	if len(args) > 0 {
		source = args[0]
	}

	store, err := a.requireStore()
	if err != nil {
		return err
	}
	runs, err := store.RecentRuns(source, flagRunsLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	fmt.Fprintf(out, "  %-16s  %-8s  %-8s  %-16s  %s\n", "Source", "Engine", "Frames", "Date", "Result")
	fmt.Fprintf(out, "  %-16s  %-8s  %-8s  %-16s  %s\n", "------", "------", "------", "----", "------")
	for _, r := range runs {
		result := "ok"
		if r.Error != "" {
			result = r.Error
		}
		fmt.Fprintf(out, "  %-16s  %-8s  %-8d  %-16s  %s\n", r.Source, r.Engine, r.Frames, r.StartedAt.Local().Format("2006-01-02 15:04"), result)
	}

	if source != "" {
		stats, err := store.Stats(source)
		if err == nil {
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Runs: %d  Failed: %d  Best: %d frames\n", stats.Runs, stats.Failures, stats.MaxFrames)
		}
	}
	return nil
}

func runLibraryHistory(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.requireStore()
	if err != nil {
		return err
	}

	// Get terminal size for the initial layout
	width, height := 100, 30 // Defaults
	if w, h, termErr := term.GetSize(int(os.Stdout.Fd())); termErr == nil {
		width = w
		height = h
	}
	return tui.RunHistory(store, width, height)
}
