package app

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aptsnap/internal/output"
	"github.com/blackwell-systems/aptsnap/internal/watcher"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show hook, backend, daemon, and journal health",
	Long: `Displays the operational state at a glance:

  • Whether the APT hook is registered
  • Which snapshot backend the probe picks
  • How many ZFS filesystems are visible
  • Whether the watch daemon is running
  • Journal statistics and the most recent run`,
	Example: `  # Check status
  aptsnap status`,
	RunE: runStatus,
}

func init() {
	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	const label = "%-10s"

	fmt.Println()

	if hookInstalled(aptConfPath) {
		fmt.Printf(label+"registered (%s)\n", "Hook:", aptConfPath)
	} else {
		fmt.Printf(label+"not registered  (run 'sudo aptsnap setup')\n", "Hook:")
	}

	backend, err := detectBackend(cfg, "")
	if err != nil {
		fmt.Printf(label+"unavailable: %v\n", "Backend:", err)
	} else {
		fmt.Printf(label+"%s\n", "Backend:", backend.Name())
		if filesystems, err := backend.ListFilesystems(); err == nil {
			fmt.Printf(label+"%d ZFS filesystems visible\n", "Pools:", len(filesystems))
		}
	}

	if running, err := watcher.IsDaemonRunning(defaultPIDFile); err == nil && running {
		fmt.Printf(label+"running\n", "Watch:")
	} else {
		fmt.Printf(label+"stopped  (run 'aptsnap watch --daemon')\n", "Watch:")
	}

	st, err := openStore(cfg)
	if err != nil {
		fmt.Printf(label+"%v\n", "Journal:", err)
		fmt.Println()
		return nil
	}
	defer st.Close()
	fmt.Printf(label+"%s\n", "Journal:", cfg.DBPath)

	if latest, err := st.LatestRun(); err == nil && latest != nil {
		fmt.Printf(label+"%s  %s (%s)\n", "Last run:", humanize.Time(latest.StartedAt), latest.SnapshotName, latest.Status)
	}

	stats, err := st.Stats()
	if err != nil {
		return fmt.Errorf("failed to read journal statistics: %w", err)
	}
	fmt.Println()
	fmt.Print(output.RenderStats(stats))
	fmt.Println()
	return nil
}
