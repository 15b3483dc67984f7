package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// aptConfPath is the configuration drop-in registering the hook. APT
// reads apt.conf.d fragments in lexical order; 80 lands after the stock
// Debian fragments.
const aptConfPath = "/etc/apt/apt.conf.d/80aptsnap"

var (
	setupPrint bool
	setupPath  string

	setupCmd = &cobra.Command{
		Use:   "setup",
		Short: "Register the APT hook",
		Long: `Writes the APT configuration drop-in that runs 'aptsnap hook' before
every dpkg invocation, speaking hook protocol version 3.

The drop-in names the current executable, so rerun setup after moving
the binary. --print writes the configuration to stdout instead, for
inspection or manual installation.`,
		Example: `  # Install the hook (needs root)
  sudo aptsnap setup

  # Show what would be written
  aptsnap setup --print`,
		RunE: runSetup,
	}
)

func init() {
	setupCmd.Flags().BoolVar(&setupPrint, "print", false, "print the drop-in instead of writing it")
	setupCmd.Flags().StringVar(&setupPath, "path", aptConfPath, "where to write the drop-in")

	RootCmd.AddCommand(setupCmd)
}

// aptConf renders the drop-in for the given aptsnap binary. APT looks up
// Tools::Options under the command's first word, so the Version key uses
// the bare executable path.
func aptConf(executable string) string {
	return fmt.Sprintf(`// Snapshot affected ZFS filesystems before dpkg runs.
// Installed by 'aptsnap setup'.
DPkg::Pre-Install-Pkgs { %q; };
DPkg::Tools::Options::%s::Version "3";
`, executable+" hook", executable)
}

// hookInstalled reports whether the drop-in exists and still registers a
// Pre-Install-Pkgs hook for aptsnap.
func hookInstalled(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), "Pre-Install-Pkgs") &&
		strings.Contains(string(data), "aptsnap")
}

func runSetup(cmd *cobra.Command, args []string) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate this executable: %w", err)
	}
	conf := aptConf(executable)

	if setupPrint {
		fmt.Print(conf)
		return nil
	}

	if existing, err := os.ReadFile(setupPath); err == nil && string(existing) == conf {
		fmt.Printf("✓ Hook already registered: %s\n", setupPath)
		return nil
	}

	if err := os.WriteFile(setupPath, []byte(conf), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", setupPath, err)
	}

	fmt.Printf("✓ Hook registered: %s\n", setupPath)
	fmt.Println()
	fmt.Println("APT will now snapshot affected ZFS filesystems before dpkg runs.")
	fmt.Println("Try it: sudo apt install --reinstall hello")
	return nil
}
