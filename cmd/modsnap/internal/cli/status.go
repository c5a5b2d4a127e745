package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/detector"
	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/snapshot"
)

var statusFlags struct {
	verbose bool
	json    bool
	diff    bool
}

var statusCmd = &cobra.Command{
	Use:   "status [module...]",
	Short: "Show which modules are stale without recording anything",
	Long: `Shows which modules changed since their snapshot was written.

Nothing is written: running status any number of times leaves every
snapshot untouched.

The --verbose flag shows individual path changes (added, modified,
deleted, type changed). The --diff flag prints a unified diff of the old
and new tree listings. The --json flag outputs the result as JSON.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusFlags.verbose, "verbose", false,
		"Show individual path changes")
	statusCmd.Flags().BoolVar(&statusFlags.json, "json", false,
		"Output as JSON")
	statusCmd.Flags().BoolVar(&statusFlags.diff, "diff", false,
		"Print a unified diff of the snapshot listings")

	rootCmd.AddCommand(statusCmd)
}

// ModuleStatus is the JSON output format for one module in modsnap status.
type ModuleStatus struct {
	Module       string              `json:"module"`
	Stale        bool                `json:"stale"`
	Bootstrap    bool                `json:"bootstrap"`
	Files        int                 `json:"files"`
	Dirs         int                 `json:"dirs"`
	Changes      *detector.ChangeSet `json:"changes,omitempty"`
	AffectedDirs []string            `json:"affected_dirs,omitempty"`
	Error        string              `json:"error,omitempty"`
	Kind         string              `json:"kind,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	names, err := p.moduleNames(args)
	if err != nil {
		return err
	}

	// The checker updates its own copy, so keep the stored trees for --diff.
	before := map[string]*snapshot.DirNode{}
	if statusFlags.diff {
		for _, n := range names {
			if old, err := snapshot.Load(p.layout.SnapshotPath(n)); err == nil {
				before[n] = old
			}
		}
	}

	report, checkErr := p.checker(detector.CommitOnSuccess, 0).Check(cmd.Context(), names)
	out := cmd.OutOrStdout()

	if statusFlags.json {
		statuses := make([]ModuleStatus, 0, len(report.Results))
		for _, r := range report.Results {
			s := ModuleStatus{Module: r.Module, Stale: r.Stale(), Bootstrap: r.Bootstrap, Changes: r.Changes}
			s.Files, s.Dirs = r.Snapshot.Count()
			if !r.Changes.IsEmpty() {
				s.AffectedDirs = r.Changes.AffectedDirs()
			}
			if r.Err != nil {
				s.Error = r.Err.Error()
				s.Kind = string(detector.Classify(r.Err))
			}
			statuses = append(statuses, s)
		}
		if err := outputJSON(out, statuses); err != nil {
			return err
		}
		return checkErr
	}

	stale := report.Stale()
	if len(stale) == 0 && checkErr == nil {
		fmt.Fprintln(out, "All modules are up to date")
		return nil
	}

	fmt.Fprintf(out, "Stale modules (%d):\n", len(stale))
	for _, r := range stale {
		switch {
		case r.Bootstrap && r.Recovered != nil:
			fmt.Fprintf(out, "  %s (snapshot unreadable: %v)\n", r.Module, r.Recovered)
		case r.Bootstrap:
			fmt.Fprintf(out, "  %s (no snapshot)\n", r.Module)
		default:
			fmt.Fprintf(out, "  %s (%d changes)\n", r.Module, r.Changes.TotalChanges())
		}

		if statusFlags.verbose {
			files, dirs := r.Snapshot.Count()
			fmt.Fprintf(out, "      tracking %d files in %d directories\n", files, dirs)
			if !r.Changes.IsEmpty() {
				fmt.Fprintf(out, "      in: %s\n", strings.Join(r.Changes.AffectedDirs(), ", "))
				printChanges(cmd, r.Changes)
			}
		}
		if statusFlags.diff {
			if old, ok := before[r.Module]; ok {
				d, err := snapshot.DiffDump(r.Module+" (snapshot)", old, r.Module+" (disk)", r.Snapshot)
				if err != nil {
					return err
				}
				fmt.Fprint(out, d)
			}
		}
	}

	var be *detector.BatchError
	if errors.As(checkErr, &be) {
		fmt.Fprintf(out, "\nFailed modules (%d):\n", len(be.Errors))
		for _, me := range be.Errors {
			fmt.Fprintf(out, "  %s: %s: %v\n", me.Module, me.Kind(), me.Err)
		}
	}

	fmt.Fprintln(out, "\nRun 'modsnap build <module>' to rebuild stale modules")
	return checkErr
}

func printChanges(cmd *cobra.Command, cs *detector.ChangeSet) {
	out := cmd.OutOrStdout()
	for _, group := range []struct {
		mark  string
		paths []string
	}{
		{"+", cs.Added},
		{"~", cs.Modified},
		{"-", cs.Deleted},
		{"!", cs.TypeChanged},
	} {
		for _, p := range group.paths {
			fmt.Fprintf(out, "      %s %s\n", group.mark, p)
		}
	}
}
