package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aptsnap/internal/config"
	"github.com/blackwell-systems/aptsnap/internal/output"
	"github.com/blackwell-systems/aptsnap/internal/snapper"
)

var (
	pruneKeep      int
	pruneOlderThan string
	pruneBackend   string
	pruneYes       bool

	pruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Destroy aptsnap snapshots beyond the retention policy",
		Long: `Applies the retention policy to the snapshots aptsnap created: a
snapshot survives while it is among the newest --keep on its dataset
or younger than --older-than. Snapshots without the configured prefix
belong to someone else and are never touched.

Without --yes this is a dry run that only prints the plan. Journal
rows for destroyed snapshots are kept as history.`,
		Example: `  # Preview with the configured policy
  aptsnap prune

  # Keep the newest 5 per dataset, drop the rest
  aptsnap prune --keep 5 --yes

  # Everything older than 30 days
  aptsnap prune --older-than 30d --yes`,
		RunE: runPrune,
	}
)

func init() {
	pruneCmd.Flags().IntVar(&pruneKeep, "keep", -1, "snapshots to keep per dataset (default: from config)")
	pruneCmd.Flags().StringVar(&pruneOlderThan, "older-than", "", "age limit like 30d or 72h (default: from config)")
	pruneCmd.Flags().StringVar(&pruneBackend, "backend", "", "backend override: auto, lib, cli, or null")
	pruneCmd.Flags().BoolVar(&pruneYes, "yes", false, "destroy instead of just printing the plan")

	RootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	policy, err := prunePolicy(cfg)
	if err != nil {
		return err
	}
	if policy.Empty() {
		fmt.Println("Retention policy is empty, nothing would ever be pruned.")
		fmt.Println("Set --keep or --older-than, or retention in the config file.")
		return nil
	}

	backend, err := detectBackend(cfg, pruneBackend)
	if err != nil {
		return err
	}

	doomed, err := snapper.PlanPrune(backend, cfg.SnapshotPrefix, policy, time.Now())
	if err != nil {
		return fmt.Errorf("failed to plan prune: %w", err)
	}
	if len(doomed) == 0 {
		fmt.Println("Nothing to prune.")
		return nil
	}

	if !pruneYes {
		fmt.Printf("Would destroy %d snapshots:\n\n", len(doomed))
		fmt.Print(output.RenderLiveSnapshotTable(doomed))
		fmt.Println()
		fmt.Println("Run again with --yes to destroy them.")
		return nil
	}

	fmt.Printf("Destroying %d snapshots...\n", len(doomed))
	progress := output.NewProgress(len(doomed), "Destroying snapshots")
	for _, snap := range doomed {
		if err := backend.DestroySnapshot(snap.Dataset, snap.Name); err != nil {
			fmt.Println()
			return fmt.Errorf("failed to destroy %s@%s: %w", snap.Dataset, snap.Name, err)
		}
		progress.Increment()
	}
	progress.Finish()

	fmt.Printf("\n✓ Destroyed %d snapshots\n", len(doomed))
	return nil
}

// prunePolicy resolves the retention policy. Explicit flags replace the
// configured policy entirely, so 'prune --keep 5' means exactly that and
// not "5 plus whatever max_age_days keeps".
func prunePolicy(cfg *config.Config) (snapper.RetentionPolicy, error) {
	if pruneKeep < 0 && pruneOlderThan == "" {
		return snapper.RetentionPolicy{
			KeepLast: cfg.Retention.KeepLast,
			MaxAge:   cfg.Retention.MaxAge(),
		}, nil
	}

	var policy snapper.RetentionPolicy
	if pruneKeep > 0 {
		policy.KeepLast = pruneKeep
	}
	if pruneOlderThan != "" {
		age, err := parseAge(pruneOlderThan)
		if err != nil {
			return snapper.RetentionPolicy{}, err
		}
		policy.MaxAge = age
	}
	return policy, nil
}
