package app

import "testing"

func TestListCommandFlags(t *testing.T) {
	for _, name := range []string{"live", "snapshots", "missed", "filesystems", "limit"} {
		if listCmd.Flags().Lookup(name) == nil {
			t.Errorf("expected --%s flag to be registered", name)
		}
	}

	limit := listCmd.Flags().Lookup("limit")
	if limit.DefValue != "20" {
		t.Errorf("--limit default = %s, want 20", limit.DefValue)
	}
}
