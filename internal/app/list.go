package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aptsnap/internal/output"
	"github.com/blackwell-systems/aptsnap/internal/snapper"
)

var (
	listLive        bool
	listSnapshots   bool
	listMissed      bool
	listFilesystems bool
	listLimit       int

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List journaled runs or live snapshots",
		Long: `Shows the run journal: one line per snapshot pass with its package,
path, and dataset counts, the snapshot name, and the status.

--snapshots switches to the per-dataset outcome rows, --missed to the
package operations the watch daemon saw go by without a covering run,
--live asks the backend which aptsnap snapshots actually exist, with
their space usage, and --filesystems shows the ZFS filesystems the
backend can snapshot at all.`,
		Example: `  # Recent runs
  aptsnap list

  # Per-dataset outcomes
  aptsnap list --snapshots

  # What is really on disk
  aptsnap list --live

  # Package operations that bypassed the hook
  aptsnap list --missed

  # Snapshot-capable filesystems
  aptsnap list --filesystems`,
		RunE: runList,
	}
)

func init() {
	listCmd.Flags().BoolVar(&listLive, "live", false, "list snapshots from the backend instead of the journal")
	listCmd.Flags().BoolVar(&listSnapshots, "snapshots", false, "list per-dataset outcomes instead of runs")
	listCmd.Flags().BoolVar(&listMissed, "missed", false, "list dpkg activity that bypassed the hook")
	listCmd.Flags().BoolVar(&listFilesystems, "filesystems", false, "list the ZFS filesystems the backend sees")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum journal rows, 0 for all")

	RootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if listLive || listFilesystems {
		backend, err := detectBackend(cfg, "")
		if err != nil {
			return err
		}
		if listFilesystems {
			filesystems, err := backend.ListFilesystems()
			if err != nil {
				return fmt.Errorf("failed to list filesystems: %w", err)
			}
			fmt.Print(output.RenderFilesystemTable(filesystems))
			return nil
		}
		snaps, err := snapper.ManagedSnapshots(backend, cfg.SnapshotPrefix)
		if err != nil {
			return fmt.Errorf("failed to list snapshots: %w", err)
		}
		fmt.Print(output.RenderLiveSnapshotTable(snaps))
		return nil
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	switch {
	case listSnapshots:
		records, err := st.ListSnapshots(listLimit)
		if err != nil {
			return fmt.Errorf("failed to read journal: %w", err)
		}
		fmt.Print(output.RenderRecordTable(records))
	case listMissed:
		events, err := st.ListMissedEvents(listLimit)
		if err != nil {
			return fmt.Errorf("failed to read journal: %w", err)
		}
		fmt.Print(output.RenderMissedEventTable(events))
	default:
		runs, err := st.ListRuns(listLimit)
		if err != nil {
			return fmt.Errorf("failed to read journal: %w", err)
		}
		fmt.Print(output.RenderRunTable(runs))
	}
	return nil
}
