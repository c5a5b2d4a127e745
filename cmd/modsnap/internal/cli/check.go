package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/detector"
)

var checkFlags struct {
	json bool
	jobs int
}

var checkCmd = &cobra.Command{
	Use:   "check [module...]",
	Short: "List modules whose sources changed and record their new state",
	Long: `Compares each module with its snapshot and prints the modules that
need a rebuild, one per line, in argument order.

The snapshot of every checked module is rewritten, so a second check
reports nothing until files change again. Use 'modsnap status' for a
read-only view, or 'modsnap build' to rewrite snapshots only after a
successful rebuild.

Without arguments, every module included by settings.gradle is checked.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkFlags.json, "json", false,
		"Output as JSON")
	checkCmd.Flags().IntVar(&checkFlags.jobs, "jobs", 0,
		"Modules checked concurrently (default from config)")

	rootCmd.AddCommand(checkCmd)
}

// CheckOutput is the JSON output format for modsnap check.
type CheckOutput struct {
	Stale     []string            `json:"stale"`
	Bootstrap []string            `json:"bootstrap"`
	Recovered []string            `json:"recovered"`
	Failed    []ModuleErrorOutput `json:"failed"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	names, err := p.moduleNames(args)
	if err != nil {
		return err
	}

	report, checkErr := p.checker(detector.CommitOnCheck, checkFlags.jobs).Check(cmd.Context(), names)

	out := cmd.OutOrStdout()
	if checkFlags.json {
		result := CheckOutput{
			Stale:     report.StaleNames(),
			Bootstrap: []string{},
			Recovered: []string{},
			Failed:    moduleErrors(report),
		}
		for _, r := range report.Results {
			if r.Bootstrap {
				result.Bootstrap = append(result.Bootstrap, r.Module)
			}
			if r.Recovered != nil {
				result.Recovered = append(result.Recovered, r.Module)
			}
		}
		if err := outputJSON(out, result); err != nil {
			return err
		}
		return checkErr
	}

	for _, r := range report.Results {
		if r.Recovered != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: snapshot discarded: %v\n", r.Module, r.Recovered)
		}
	}
	for _, name := range report.StaleNames() {
		fmt.Fprintln(out, name)
	}
	return checkErr
}
