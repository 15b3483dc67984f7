package app

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aptsnap/internal/snapper"
)

var (
	snapIgnoreAuto bool
	snapDryRun     bool
	snapBackend    string
	snapPrefix     string
	snapVerbose    bool
	snapYes        bool

	snapshotCmd = &cobra.Command{
		Use:   "snapshot [path...]",
		Short: "Snapshot the filesystems the given paths live on",
		Long: `Runs the same pipeline as the APT hook against explicit paths: each
path is mapped to the ZFS dataset it lives on, duplicates collapse to
one snapshot per dataset, and every snapshot shares one run-scoped
name.

With no arguments the root filesystem is snapshotted. Paths must be
absolute; they need not exist, the nearest existing ancestor decides
the dataset, just as it does for files a package is about to create.`,
		Example: `  # Snapshot the datasets behind /usr and /etc
  aptsnap snapshot /usr /etc

  # Preview without creating anything
  aptsnap snapshot --dry-run /var

  # Non-interactive
  aptsnap snapshot --yes /opt`,
		RunE: runManualSnapshot,
	}
)

func init() {
	snapshotCmd.Flags().BoolVar(&snapIgnoreAuto, "ignore-auto-snapshot", false, "snapshot datasets even when com.sun:auto-snapshot is off")
	snapshotCmd.Flags().BoolVar(&snapDryRun, "dry-run", false, "resolve and plan but create nothing")
	snapshotCmd.Flags().StringVar(&snapBackend, "backend", "", "backend override: auto, lib, cli, or null")
	snapshotCmd.Flags().StringVar(&snapPrefix, "prefix", "", "snapshot name prefix override")
	snapshotCmd.Flags().BoolVar(&snapVerbose, "verbose", false, "print per-dataset outcomes")
	snapshotCmd.Flags().BoolVar(&snapYes, "yes", false, "skip the confirmation prompt")

	RootCmd.AddCommand(snapshotCmd)
}

func runManualSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		paths = []string{"/"}
	}
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("path %q must be absolute", p)
		}
	}

	if !snapYes && !snapDryRun {
		if !confirm(fmt.Sprintf("Snapshot the filesystems behind %s?", strings.Join(paths, ", "))) {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	result, err := runSnapshot(cfg, &snapper.Transaction{
		Reason: "manual",
		Paths:  paths,
	}, snapBackend, snapPrefix, snapIgnoreAuto, snapDryRun)
	if err != nil {
		return err
	}

	printResult(result, snapVerbose, snapDryRun)
	return nil
}
