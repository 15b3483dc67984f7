package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aptsnap/internal/config"
	"github.com/blackwell-systems/aptsnap/internal/watcher"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common issues and check system health",
	Long: `Runs diagnostic checks on the aptsnap installation.

Checks:
  • Configuration parses
  • A snapshot backend is usable and sees ZFS filesystems
  • The APT hook is registered and points at this binary
  • The journal opens and passes an integrity check
  • Recent dpkg activity was covered by a run`,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println("Running aptsnap diagnostics...")
	fmt.Println()

	criticalIssues := 0
	warningIssues := 0

	// Configuration. A broken config counts as critical but the remaining
	// checks still run against the defaults.
	cfg, err := loadConfig()
	if err != nil {
		fmt.Println("✗ Configuration:", err)
		criticalIssues++
		cfg = config.Default()
	} else {
		fmt.Println("✓ Configuration loaded")
	}

	// Backend probe.
	backend, err := detectBackend(cfg, "")
	if err != nil {
		fmt.Println("✗ No usable snapshot backend:", err)
		fmt.Println("  Action: Install zfsutils-linux, or set zfs_command in the config")
		criticalIssues++
	} else {
		fmt.Printf("✓ Backend: %s\n", backend.Name())

		filesystems, err := backend.ListFilesystems()
		if err != nil {
			fmt.Println("✗ Cannot list ZFS filesystems:", err)
			criticalIssues++
		} else if len(filesystems) == 0 {
			fmt.Println("⚠ No ZFS filesystems visible — nothing will ever be snapshotted")
			warningIssues++
		} else {
			fmt.Printf("✓ %d ZFS filesystems visible\n", len(filesystems))
		}
	}

	// Hook registration.
	executable, exeErr := os.Executable()
	data, err := os.ReadFile(aptConfPath)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("✗ APT hook not registered")
		} else {
			fmt.Printf("✗ Cannot read %s: %v\n", aptConfPath, err)
		}
		fmt.Println("  Action: Run 'sudo aptsnap setup'")
		criticalIssues++
	} else {
		conf := string(data)
		switch {
		case !strings.Contains(conf, "Pre-Install-Pkgs"):
			fmt.Printf("✗ %s does not register a Pre-Install-Pkgs hook\n", aptConfPath)
			fmt.Println("  Action: Run 'sudo aptsnap setup'")
			criticalIssues++
		case exeErr == nil && !strings.Contains(conf, executable):
			fmt.Println("⚠ APT hook points at a different aptsnap binary")
			fmt.Println("  Action: Run 'sudo aptsnap setup' to update it")
			warningIssues++
		case !strings.Contains(conf, `::Version "3"`):
			fmt.Println("⚠ APT hook not pinned to protocol version 3")
			fmt.Println("  Action: Run 'sudo aptsnap setup' to rewrite the drop-in")
			warningIssues++
		default:
			fmt.Println("✓ APT hook registered:", aptConfPath)
		}
	}

	// Journal.
	st, err := openStore(cfg)
	if err != nil {
		fmt.Println("✗ Journal:", err)
		criticalIssues++
	} else {
		defer st.Close()
		var integrity string
		if err := st.DB().QueryRow("PRAGMA integrity_check").Scan(&integrity); err != nil {
			fmt.Println("✗ Journal integrity check failed:", err)
			criticalIssues++
		} else if integrity != "ok" {
			fmt.Println("✗ Journal corrupted:", integrity)
			fmt.Println("  Action: Move the database aside; the next hook run recreates it")
			criticalIssues++
		} else {
			fmt.Println("✓ Journal healthy:", cfg.DBPath)
		}

		// Missed events mean dpkg ran without a snapshot. Warning only:
		// the damage is done, the fix is the hook registration above.
		events, err := st.ListMissedEvents(0)
		if err != nil {
			fmt.Println("⚠ Cannot read missed events:", err)
			warningIssues++
		} else if len(events) > 0 {
			fmt.Printf("⚠ %d package operations ran without a snapshot\n", len(events))
			fmt.Println("  Action: 'aptsnap list --missed' shows them")
			warningIssues++
		} else {
			fmt.Println("✓ No missed package operations")
		}
	}

	// Watch daemon. Optional, so a warning at most.
	running, err := watcher.IsDaemonRunning(defaultPIDFile)
	if err != nil {
		fmt.Println("⚠ Cannot check watch daemon:", err)
		warningIssues++
	} else if !running {
		fmt.Println("⚠ Watch daemon not running — dpkg runs that bypass APT go unnoticed")
		fmt.Println("  Action: Run 'aptsnap watch --daemon'")
		warningIssues++
	} else {
		fmt.Println("✓ Watch daemon running")
	}

	fmt.Println()
	if criticalIssues == 0 && warningIssues == 0 {
		fmt.Println("✓ All checks passed!")
		return nil
	}
	if criticalIssues > 0 {
		fmt.Printf("Found %d critical issue(s) and %d warning(s).\n", criticalIssues, warningIssues)
		return fmt.Errorf("diagnostics failed")
	}
	fmt.Printf("Found %d warning(s).\n", warningIssues)
	return nil
}
