package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/strata-systems/strata/pkg/types"
)

// FileName is the configuration file inside a database directory.
const FileName = "strata.toml"

// StrataConfig is the configuration the database consumes at open.
// Unknown keys in the file are reserved and ignored.
type StrataConfig struct {
	Durability     types.DurabilityMode `toml:"durability"`
	SyncIntervalMs int64                `toml:"sync_interval_ms"`
	SyncBatch      int                  `toml:"sync_batch"`
}

// Default returns the configuration of an on-disk database with no
// strata.toml: standard durability with the stock group-sync window.
func Default() StrataConfig {
	return StrataConfig{Durability: types.DurabilityStandard}
}

// SyncInterval returns the configured group-sync interval, or zero for
// "use the WAL default".
func (c StrataConfig) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMs) * time.Millisecond
}

// Load reads dir/strata.toml. A missing file yields Default(); a present
// file must parse and carry a recognized durability value.
func Load(dir string) (StrataConfig, error) {
	raw, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return StrataConfig{}, types.InvalidArgumentf("read %s: %v", FileName, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return StrataConfig{}, types.InvalidArgumentf("parse %s: %v", FileName, err)
	}
	if !cfg.Durability.Valid() {
		return StrataConfig{}, types.InvalidArgumentf("unknown durability mode %q", cfg.Durability)
	}
	if cfg.SyncIntervalMs < 0 || cfg.SyncBatch < 0 {
		return StrataConfig{}, types.InvalidArgumentf("sync tuning values must not be negative")
	}
	return cfg, nil
}
