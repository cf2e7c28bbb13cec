package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/geobuild/geobuild/pkg/engine"
)

func newStagesCommand() *cobra.Command {
	var dot bool

	cmd := &cobra.Command{
		Use:   "stages",
		Short: "Print the stages of a generation pass",
		Long: `Print the stages of a generation pass grouped by level. Stages on the same
level run concurrently. With --dot the graph is printed in Graphviz format.`,
		Example: `  geobuild stages --dot | dot -Tsvg > stages.svg`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := engine.New(engine.Options{})
			if err != nil {
				return err
			}
			g := e.Graph()
			if dot {
				fmt.Fprint(cmd.OutOrStdout(), g.ToDOT())
				return nil
			}
			for i, level := range g.Levels() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", i, strings.Join(level, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "print the graph in Graphviz DOT format")
	return cmd
}
