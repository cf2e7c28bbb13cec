package commands

import (
	"github.com/spf13/cobra"
)

func newGenerateCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Run one generation pass",
		Long: `Run the build script once and write geobuild-gen.cmake (and mod.json when
manifest generation is enabled). Both files are replaced together or not at all;
a file whose content did not change is left untouched.`,
		Example: `  # As CMake runs it
  echo "CMAKE_PROJECT_NAME=demo;;..." | geobuild generate

  # From a saved handoff
  geobuild generate --vars-file build/geobuild-vars.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, version, false)
		},
	}
}

func runGenerate(cmd *cobra.Command, version string, force bool) error {
	vars, err := readVars(cmd)
	if err != nil {
		return err
	}

	tel, err := newTelemetry(projectDir(vars), version, "")
	if err != nil {
		return err
	}
	defer shutdown(cmd.Context(), tel)

	e, err := newEngine(cmd, tel, version, force)
	if err != nil {
		return err
	}
	_, err = runPass(cmd, e, vars, force)
	return err
}
