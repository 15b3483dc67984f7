package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aptsnap/internal/dpkg"
	"github.com/blackwell-systems/aptsnap/internal/hookproto"
	"github.com/blackwell-systems/aptsnap/internal/snapper"
	"github.com/blackwell-systems/aptsnap/internal/volumes"
	"github.com/blackwell-systems/aptsnap/internal/zfsbackend"
)

var (
	hookIgnoreAuto bool
	hookDryRun     bool
	hookBackend    string
	hookPrefix     string
	hookVerbose    bool

	hookCmd = &cobra.Command{
		Use:   "hook",
		Short: "Run as the APT Pre-Install-Pkgs hook",
		Long: `Reads the package list APT supplies before dpkg runs, maps every file
those packages install or remove to the ZFS dataset it lives on, and
snapshots each affected dataset under one run-scoped name.

APT invokes this command through the DPkg::Pre-Install-Pkgs hook;
'aptsnap setup' registers it. The hook report arrives on the file
descriptor named by APT_HOOK_INFO_FD, or on stdin with older APT
versions.

The exit status is non-zero when any affected filesystem cannot be
resolved or snapshotted, which makes APT abort the transaction before
dpkg changes anything. A transaction that changes no packages succeeds
without touching ZFS.`,
		Example: `  # Normally invoked by APT; a captured report can be replayed by hand
  aptsnap hook --dry-run --verbose < report.txt`,
		RunE: runHook,
	}
)

func init() {
	hookCmd.Flags().BoolVar(&hookIgnoreAuto, "ignore-auto-snapshot", false, "snapshot datasets even when com.sun:auto-snapshot is off")
	hookCmd.Flags().BoolVar(&hookDryRun, "dry-run", false, "resolve and plan but create nothing")
	hookCmd.Flags().StringVar(&hookBackend, "backend", "", "backend override: auto, lib, cli, or null")
	hookCmd.Flags().StringVar(&hookPrefix, "prefix", "", "snapshot name prefix override")
	hookCmd.Flags().BoolVar(&hookVerbose, "verbose", false, "print per-dataset outcomes")

	RootCmd.AddCommand(hookCmd)
}

func runHook(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	stream, err := hookproto.InfoStream()
	if err != nil {
		return err
	}
	report, err := hookproto.Parse(stream)
	if err != nil {
		return fmt.Errorf("failed to parse hook report: %w", err)
	}
	if report.Empty() {
		if hookVerbose {
			fmt.Println("No package changes, nothing to snapshot.")
		}
		return nil
	}

	paths, err := hookproto.AffectedPaths(report, dpkg.New())
	if err != nil {
		return fmt.Errorf("failed to enumerate affected files: %w", err)
	}

	result, err := runSnapshot(cfg, &snapper.Transaction{
		Reason:          "apt-hook",
		ProtocolVersion: report.Version,
		PackageCount:    len(report.Changes),
		Paths:           paths,
	}, hookBackend, hookPrefix, hookIgnoreAuto, hookDryRun)
	if err != nil {
		return hookFailure(err)
	}

	printResult(result, hookVerbose, hookDryRun)
	return nil
}

// hookFailure shapes the abort message APT shows the user. The two
// failure classes keep their identity so the message can say whether
// resolution or snapshot creation went wrong.
func hookFailure(err error) error {
	var resErr *volumes.ResolutionError
	if errors.As(err, &resErr) {
		return fmt.Errorf("aborting transaction: %w (not on ZFS?)", resErr)
	}
	var createErr *zfsbackend.CreationError
	if errors.As(err, &createErr) {
		return fmt.Errorf("aborting transaction: %w", createErr)
	}
	return err
}
