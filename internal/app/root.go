package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aptsnap/internal/config"
)

var (
	configPath string
	dbPath     string

	// RootCmd is the root command for aptsnap.
	RootCmd = &cobra.Command{
		Use:   "aptsnap",
		Short: "ZFS snapshots before APT package operations",
		Long: `aptsnap snapshots the ZFS filesystems an APT transaction is about to
touch, one snapshot per affected dataset, so a bad upgrade is one
rollback away.

It runs as a DPkg::Pre-Install-Pkgs hook: APT hands it the package list
before dpkg starts, aptsnap maps every file those packages install or
remove to the dataset it lives on, and snapshots each affected dataset
under a single run-scoped name. A failure aborts the transaction before
dpkg changes anything.

Quick Start:
  1. sudo aptsnap setup       # register the APT hook
  2. apt upgrade              # snapshots happen automatically
  3. aptsnap list             # see what was taken
  4. aptsnap prune --yes      # apply the retention policy

Examples:
  # Snapshot the filesystems /usr and /etc live on
  aptsnap snapshot /usr /etc

  # Show the run journal
  aptsnap list

  # Preview what prune would destroy
  aptsnap prune

  # Health checks
  aptsnap doctor`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Println("aptsnap: ZFS snapshots before APT package operations")
			fmt.Println()
			if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
				fmt.Println("Run 'sudo aptsnap setup' to register the APT hook.")
				fmt.Println("Run 'aptsnap --help' for the full reference.")
			} else {
				fmt.Println("Tip: Run 'aptsnap status' for a health summary.")
				fmt.Println("     Run 'aptsnap list' to see recent runs.")
				fmt.Println("     Run 'aptsnap --help' for all commands.")
			}
			return nil
		},
	}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: "+config.DefaultPath+")")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "journal database path (default: from config)")

	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}
