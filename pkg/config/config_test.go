package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/strata-systems/strata/pkg/types"
)

func writeConfig(t *testing.T, dir, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// TestLoadMissingFile tests that no file means defaults
func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Durability != types.DurabilityStandard {
		t.Errorf("default durability = %q, want standard", cfg.Durability)
	}
}

// TestLoadDurabilityValues tests each recognized mode
func TestLoadDurabilityValues(t *testing.T) {
	for _, mode := range []types.DurabilityMode{
		types.DurabilityCache,
		types.DurabilityStandard,
		types.DurabilityAlways,
	} {
		t.Run(string(mode), func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, `durability = "`+string(mode)+`"`+"\n")
			cfg, err := Load(dir)
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if cfg.Durability != mode {
				t.Errorf("durability = %q, want %q", cfg.Durability, mode)
			}
		})
	}
}

// TestLoadRejectsUnknownDurability tests validation
func TestLoadRejectsUnknownDurability(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `durability = "paranoid"`+"\n")
	if _, err := Load(dir); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("Load() = %v, want ErrInvalidArgument", err)
	}
}

// TestLoadRejectsMalformedToml tests parse failures
func TestLoadRejectsMalformedToml(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "durability = [broken\n")
	if _, err := Load(dir); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("Load() = %v, want ErrInvalidArgument", err)
	}
}

// TestSyncTuning tests the optional sync knobs
func TestSyncTuning(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "durability = \"standard\"\nsync_interval_ms = 250\nsync_batch = 64\n")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.SyncInterval() != 250*time.Millisecond {
		t.Errorf("SyncInterval() = %v, want 250ms", cfg.SyncInterval())
	}
	if cfg.SyncBatch != 64 {
		t.Errorf("SyncBatch = %d, want 64", cfg.SyncBatch)
	}

	writeConfig(t, dir, "sync_batch = -1\n")
	if _, err := Load(dir); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("negative sync_batch: Load() = %v, want ErrInvalidArgument", err)
	}
}

// TestLoadIgnoresReservedKeys tests forward compatibility
func TestLoadIgnoresReservedKeys(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "durability = \"always\"\nfuture_option = 42\n")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() with reserved key error: %v", err)
	}
	if cfg.Durability != types.DurabilityAlways {
		t.Errorf("durability = %q, want always", cfg.Durability)
	}
}
