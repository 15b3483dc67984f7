package app

import (
	"testing"
	"time"

	"github.com/blackwell-systems/aptsnap/internal/config"
)

func TestPruneCommandFlags(t *testing.T) {
	for _, name := range []string{"keep", "older-than", "backend", "yes"} {
		if pruneCmd.Flags().Lookup(name) == nil {
			t.Errorf("expected --%s flag to be registered", name)
		}
	}
}

func TestPrunePolicy(t *testing.T) {
	oldKeep, oldOlder := pruneKeep, pruneOlderThan
	defer func() { pruneKeep, pruneOlderThan = oldKeep, oldOlder }()

	cfg := config.Default()
	cfg.Retention.KeepLast = 10
	cfg.Retention.MaxAgeDays = 90

	t.Run("config policy by default", func(t *testing.T) {
		pruneKeep, pruneOlderThan = -1, ""
		policy, err := prunePolicy(cfg)
		if err != nil {
			t.Fatalf("prunePolicy() error = %v", err)
		}
		if policy.KeepLast != 10 {
			t.Errorf("KeepLast = %d, want 10", policy.KeepLast)
		}
		if want := 90 * 24 * time.Hour; policy.MaxAge != want {
			t.Errorf("MaxAge = %v, want %v", policy.MaxAge, want)
		}
	})

	t.Run("keep flag replaces the whole policy", func(t *testing.T) {
		pruneKeep, pruneOlderThan = 5, ""
		policy, err := prunePolicy(cfg)
		if err != nil {
			t.Fatalf("prunePolicy() error = %v", err)
		}
		if policy.KeepLast != 5 {
			t.Errorf("KeepLast = %d, want 5", policy.KeepLast)
		}
		if policy.MaxAge != 0 {
			t.Errorf("MaxAge = %v, want 0 when only --keep is given", policy.MaxAge)
		}
	})

	t.Run("older-than flag replaces the whole policy", func(t *testing.T) {
		pruneKeep, pruneOlderThan = -1, "30d"
		policy, err := prunePolicy(cfg)
		if err != nil {
			t.Fatalf("prunePolicy() error = %v", err)
		}
		if policy.KeepLast != 0 {
			t.Errorf("KeepLast = %d, want 0 when only --older-than is given", policy.KeepLast)
		}
		if want := 30 * 24 * time.Hour; policy.MaxAge != want {
			t.Errorf("MaxAge = %v, want %v", policy.MaxAge, want)
		}
	})

	t.Run("both flags", func(t *testing.T) {
		pruneKeep, pruneOlderThan = 5, "24h"
		policy, err := prunePolicy(cfg)
		if err != nil {
			t.Fatalf("prunePolicy() error = %v", err)
		}
		if policy.KeepLast != 5 || policy.MaxAge != 24*time.Hour {
			t.Errorf("policy = %+v, want KeepLast 5 and MaxAge 24h", policy)
		}
	})

	t.Run("bad age", func(t *testing.T) {
		pruneKeep, pruneOlderThan = -1, "banana"
		if _, err := prunePolicy(cfg); err == nil {
			t.Error("prunePolicy() expected error for a bad --older-than")
		}
	})

	t.Run("keep zero yields the empty policy", func(t *testing.T) {
		pruneKeep, pruneOlderThan = 0, ""
		policy, err := prunePolicy(cfg)
		if err != nil {
			t.Fatalf("prunePolicy() error = %v", err)
		}
		if !policy.Empty() {
			t.Errorf("policy = %+v, want empty", policy)
		}
	})
}
