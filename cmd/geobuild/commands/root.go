package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// ErrHalted is returned after a failed pass has printed its diagnostic.
var ErrHalted = errors.New("build halted")

var (
	// Global flags
	varsFile   string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "geobuild",
		Short: "geobuild - imperative build configuration for CMake projects",
		Long: `geobuild runs a project's geobuild.star build script and compiles what it
declares into a CMake include file (geobuild-gen.cmake) and, when enabled, the
mod.json package manifest.

CMake invokes geobuild with its variables piped on stdin as KEY=VALUE;;KEY=VALUE.
Running geobuild without a subcommand is the same as "geobuild generate".`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose && zerolog.GlobalLevel() > zerolog.DebugLevel {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, version, false)
		},
	}

	rootCmd.PersistentFlags().StringVar(&varsFile, "vars-file", "", "read CMake variables from a file instead of stdin")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newGenerateCommand(version))
	rootCmd.AddCommand(newCheckUpdatesCommand(version))
	rootCmd.AddCommand(newWatchCommand(version))
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newPoliciesCommand())
	rootCmd.AddCommand(newStagesCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}
