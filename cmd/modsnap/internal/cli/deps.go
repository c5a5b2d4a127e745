package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var depsFlags struct {
	json        bool
	includeRoot bool
}

var depsCmd = &cobra.Command{
	Use:   "deps <module>",
	Short: "Print the transitive dependencies of a module",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeps,
}

func init() {
	depsCmd.Flags().BoolVar(&depsFlags.json, "json", false,
		"Output as JSON")
	depsCmd.Flags().BoolVar(&depsFlags.includeRoot, "include-root", false,
		"Append the module itself")

	rootCmd.AddCommand(depsCmd)
}

func runDeps(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	deps, err := p.closure(args[0], depsFlags.includeRoot)
	if err != nil {
		return err
	}
	if depsFlags.json {
		if deps == nil {
			deps = []string{}
		}
		return outputJSON(cmd.OutOrStdout(), deps)
	}
	for _, d := range deps {
		fmt.Fprintln(cmd.OutOrStdout(), d)
	}
	return nil
}
