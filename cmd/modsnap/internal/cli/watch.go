package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/detector"
	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/runner"
	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/watch"
)

var watchFlags struct {
	debounce    int
	includeRoot bool
	verbose     bool
	json        bool
	noColor     bool
}

var watchCmd = &cobra.Command{
	Use:   "watch <module>",
	Short: "Rebuild a module's stale dependencies whenever their files change",
	Long: `Watches the source trees of a module's dependencies and, once changes
settle, checks them and rebuilds the stale ones, exactly like
'modsnap build'.

Example output:

  $ modsnap watch app

  modsnap: watching 3 modules (41 directories) in /path/to/project
  modsnap: modules: login, core, net
  modsnap: ready

  [14:32:15] checking login...
  [14:32:19] ✓ login rebuilt

Press Ctrl+C to stop watching.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchFlags.debounce, "debounce", 0,
		"Debounce window in milliseconds (default from config)")
	watchCmd.Flags().BoolVar(&watchFlags.includeRoot, "include-root", false,
		"Also watch and rebuild the module itself")
	watchCmd.Flags().BoolVar(&watchFlags.verbose, "verbose", false,
		"Show file-level changes")
	watchCmd.Flags().BoolVar(&watchFlags.json, "json", false,
		"Stream JSON events (for tooling integration)")
	watchCmd.Flags().BoolVar(&watchFlags.noColor, "no-color", false,
		"Disable colored output")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	names, err := p.closure(args[0], watchFlags.includeRoot)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("%s has no dependencies to watch (use --include-root)", args[0])
	}

	debounce := p.cfg.Debounce()
	if watchFlags.debounce > 0 {
		debounce = time.Duration(watchFlags.debounce) * time.Millisecond
	}

	w, err := watch.New(watch.Config{
		Project: p.root,
		Modules: names,
		Locator: p.layout,
		Filter:  p.filter,
		Checker: p.checker(detector.CommitOnSuccess, 0),
		Runner: runner.New(
			runner.WithProjectRoot(p.root),
			runner.WithCommand(p.cfg.Build.Command),
			runner.WithArgs(p.cfg.Build.Args...),
			runner.WithEnv(p.cfg.Build.Env...),
			runner.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		),
		TaskTemplate: p.cfg.Build.Task,
		Debounce:     debounce,
		Logger: watch.NewLogger(watch.LoggerConfig{
			Writer:  cmd.OutOrStdout(),
			Verbose: watchFlags.verbose,
			NoColor: watchFlags.noColor,
			JSON:    watchFlags.json,
		}),
	})
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return w.Run(ctx)
}
