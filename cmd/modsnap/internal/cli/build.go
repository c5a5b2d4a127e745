package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/detector"
	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/dispatch"
	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/runner"
)

var buildFlags struct {
	includeRoot bool
	dryRun      bool
	jobs        int
	task        string
	json        bool
}

var buildCmd = &cobra.Command{
	Use:   "build <module>",
	Short: "Rebuild the stale dependencies of a module",
	Long: `Resolves the transitive dependencies of a module, checks each of them
and rebuilds the stale ones in dependency discovery order, one at a time.

A module's snapshot is rewritten only after its rebuild succeeded. The
first failed rebuild stops the run; that module and every module after it
stay stale for the next run.

The build tool is the configured build.command, else ./gradlew, else
gradle on PATH. The task is build.task with {module} expanded.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&buildFlags.includeRoot, "include-root", false,
		"Also check and rebuild the module itself, after its dependencies")
	buildCmd.Flags().BoolVar(&buildFlags.dryRun, "dry-run", false,
		"Print the tasks that would run without running them")
	buildCmd.Flags().IntVar(&buildFlags.jobs, "jobs", 0,
		"Modules checked concurrently (default from config)")
	buildCmd.Flags().StringVar(&buildFlags.task, "task", "",
		"Task template, overrides build.task")
	buildCmd.Flags().BoolVar(&buildFlags.json, "json", false,
		"Output the summary as JSON")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	names, err := p.closure(args[0], buildFlags.includeRoot)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintf(out, "%s has no dependencies\n", args[0])
		return nil
	}

	template := p.cfg.Build.Task
	if buildFlags.task != "" {
		template = buildFlags.task
	}

	report, checkErr := p.checker(detector.CommitOnSuccess, buildFlags.jobs).Check(cmd.Context(), names)
	if checkErr != nil {
		// Modules that could not be checked are reported but do not block
		// rebuilding the others.
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", checkErr)
	}

	d := dispatch.New(report.Results, dispatch.WithTaskTemplate(template))
	if d.Len() == 0 {
		fmt.Fprintln(out, "All modules are up to date")
		return checkErr
	}

	if buildFlags.dryRun {
		for task, ok := d.Next(); ok; task, ok = d.Next() {
			fmt.Fprintf(out, "%s\t%s\n", task.Module, task.Name)
		}
		return checkErr
	}

	r := runner.New(
		runner.WithProjectRoot(p.root),
		runner.WithCommand(p.cfg.Build.Command),
		runner.WithArgs(p.cfg.Build.Args...),
		runner.WithEnv(p.cfg.Build.Env...),
		runner.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	)
	sum, runErr := d.Run(cmd.Context(), r)

	if buildFlags.json {
		if err := outputJSON(out, sum); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "built %d, failed %d, skipped %d in %s\n",
			len(sum.Built), len(sum.Failed), len(sum.Skipped), sum.Elapsed.Round(time.Millisecond))
	}
	if runErr != nil {
		return runErr
	}
	return checkErr
}
