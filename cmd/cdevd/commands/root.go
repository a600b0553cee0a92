package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cdevd",
		Short: "cdevd - container device event daemon",
		Long: `cdevd filters kernel device events with udev-style rule files and
applies the results to containers.

Events run through two rule dialects:
  - Filter rules decide whether an event is forwarded, which cgroup
    manager applies device access, and what extra state is kept
  - Node rules decide device node ownership, permissions, tags and
    symlinks for forwarded events`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newTestCommand())
	rootCmd.AddCommand(newTranslateCommand())

	return rootCmd
}
