// Package config loads the tunable knobs of the storage and index
// layers from an optional pagedb.toml in the data directory, falling
// back to the documented defaults when the file is absent or only
// partially specified.
package config

import (
	"os"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// Config holds every configurable knob. PAGE_SIZE is deliberately not
// here: it is fixed at compile time (storage.PageSize).
type Config struct {
	RecordsPerPage      int     `toml:"records_per_page"`
	PoolSize            int     `toml:"pool_size"`
	BlockSize           int     `toml:"block_size"`
	ReorganizeThreshold float64 `toml:"reorganize_threshold"`
	Fanout              int     `toml:"fanout"`
	FanoutL2            int     `toml:"fanout_l2"`
	BucketSize          int     `toml:"bucket_size"`
	GlobalDepth         int     `toml:"global_depth"`
	Order               int     `toml:"order"`
}

// Default returns the documented default knob values (§6.4).
func Default() Config {
	return Config{
		RecordsPerPage:      10,
		PoolSize:            50,
		BlockSize:           20,
		ReorganizeThreshold: 0.1,
		Fanout:              20,
		FanoutL2:            5,
		BucketSize:          20,
		GlobalDepth:         2,
		Order:               20,
	}
}

// Load reads path and overlays any fields it sets onto the defaults. A
// missing file is not an error: Load returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "config: reading %s", path)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: parsing %s", path)
	}
	return cfg, nil
}
