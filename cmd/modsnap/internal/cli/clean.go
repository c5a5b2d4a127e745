package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/snapshot"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [module...]",
	Short: "Delete snapshot files so the next run rebuilds from scratch",
	RunE:  runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	names, err := p.moduleNames(args)
	if err != nil {
		return err
	}

	var errs []error
	for _, n := range names {
		path := p.layout.SnapshotPath(n)
		if !snapshot.Exists(path) {
			continue
		}
		if err := snapshot.Remove(path); err != nil {
			errs = append(errs, fmt.Errorf("module %s: %w", n, err))
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", path)
	}
	return errors.Join(errs...)
}
