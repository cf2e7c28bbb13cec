package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/geobuild/geobuild/pkg/config"
	"github.com/geobuild/geobuild/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		project string
		limit   int
		checks  bool
	)

	cmd := &cobra.Command{
		Use:   "history [--checks [KEY]]",
		Short: "Show recorded passes and update checks",
		Long: `List the generation passes recorded in the state database, newest first.
With --checks, list the stored update-check state of every dependency instead,
or of the one dependency named by KEY.

The database location comes from geobuild.yaml (state_path) or GEOBUILD_STATE_DB.`,
		Example: `  # Last 20 passes of the project in the current directory
  geobuild history

  # Update-check state as JSON
  geobuild history --project ../mymod --checks --json

  # Update-check state of one dependency
  geobuild history --checks cpm:fmt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && !checks {
				return fmt.Errorf("a dependency key needs --checks")
			}

			settings, err := config.LoadSettings(project, nil)
			if err != nil {
				return err
			}

			store, err := stores.Open(cmd.Context(), stores.Config{Path: settings.StatePath})
			if err != nil {
				return fmt.Errorf("failed to open state database: %w", err)
			}
			defer store.Close()

			var rows interface{}
			switch {
			case checks && len(args) > 0:
				var rec *stores.CheckRecord
				rec, err = store.GetCheck(cmd.Context(), args[0])
				rows = []*stores.CheckRecord{rec}
			case checks:
				rows, err = store.ListChecks(cmd.Context())
			default:
				rows, err = store.ListPasses(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			switch rows := rows.(type) {
			case []*stores.CheckRecord:
				fmt.Fprintln(tw, "DEPENDENCY\tSTATUS\tLATEST\tLAST CHECKED")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Key, r.Status, orDash(r.Latest), r.LastCheckedAt.Local().Format(time.DateTime))
				}
			case []*stores.Pass:
				fmt.Fprintln(tw, "PASS\tPROJECT\tSTATUS\tSTARTED\tDURATION\tERROR")
				for _, p := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						p.ID, p.Project, p.Status, p.StartedAt.Local().Format(time.DateTime), passDuration(p), passError(p))
				}
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&project, "project", ".", "project directory holding geobuild.yaml")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of passes to show")
	cmd.Flags().BoolVar(&checks, "checks", false, "show update-check state instead of passes")

	return cmd
}

func passDuration(p *stores.Pass) string {
	if p.CompletedAt == nil {
		return "-"
	}
	return p.CompletedAt.Sub(p.StartedAt).Round(time.Millisecond).String()
}

func passError(p *stores.Pass) string {
	switch {
	case p.Error != nil && p.ErrorKind != nil:
		return *p.ErrorKind + ": " + *p.Error
	case p.Error != nil:
		return *p.Error
	}
	return ""
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
