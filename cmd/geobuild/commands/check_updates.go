package commands

import (
	"github.com/spf13/cobra"
)

func newCheckUpdatesCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-updates",
		Short: "Run a pass and check every dependency for updates now",
		Long: `Run a generation pass with the update check forced on. Every dependency
hosted on GitHub is checked regardless of the geobuild.yaml setting and of when it
was last checked, and every result is printed, including up to date ones.

Set GITHUB_TOKEN to raise the GitHub API rate limit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, version, true)
		},
	}
}
