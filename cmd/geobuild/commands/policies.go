package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/geobuild/geobuild/pkg/config"
	"github.com/geobuild/geobuild/pkg/engine"
	"github.com/geobuild/geobuild/pkg/policy"
)

func newPoliciesCommand() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List the lint policies a pass would evaluate",
		Long: `List the built-in policies and those found in the project's policy directory,
with the enable and disable lists from geobuild.yaml applied.`,
		Example: `  # Policies of the project in the current directory
  geobuild policies

  # Print the Rego of one policy
  geobuild policies show source-location`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pe, err := projectPolicies(cmd, project)
			if err != nil {
				return err
			}
			list := pe.ListPolicies()

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSEVERITY\tENABLED\tSOURCE\tDESCRIPTION")
			for _, p := range list {
				source := p.Source
				if source == "" {
					source = "built-in"
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", p.Name, p.Severity, p.Enabled, source, p.Description)
			}
			return tw.Flush()
		},
	}

	show := &cobra.Command{
		Use:   "show NAME",
		Short: "Print a policy's Rego",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pe, err := projectPolicies(cmd, project)
			if err != nil {
				return err
			}
			p, err := pe.GetPolicy(args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			}
			fmt.Fprint(cmd.OutOrStdout(), p.Rego)
			if !strings.HasSuffix(p.Rego, "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&project, "project", ".", "project directory holding geobuild.yaml")
	cmd.AddCommand(show)

	return cmd
}

func projectPolicies(cmd *cobra.Command, project string) (*policy.Engine, error) {
	settings, err := config.LoadSettings(project, nil)
	if err != nil {
		return nil, err
	}
	return engine.LoadPolicies(cmd.Context(), log.Logger, settings.Policy)
}
