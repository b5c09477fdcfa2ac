// Package config loads the server's configuration surface
// (SPEC_FULL.md/spec.md §6): {bind_address, world_directory,
// view_distance, cache_initial_bytes, cache_max_bytes,
// worker_pool_size, compression_threshold, online_mode, seed}.
//
// The YAML file layer is grounded on dmitrymodder-minewire's main.go
// (gopkg.in/yaml.v3 struct-tagged Config, decoded via yaml.NewDecoder,
// zero-value defaults applied after decode). The teacher's own
// cmd/server/main.go uses bare `flag` for its handful of settings;
// that stays as the CLI override layer — flags take precedence over
// whatever the YAML file specifies, matching the teacher's existing
// flag-first call sites one-for-one, just now layered on top of a
// file instead of being the only source.
package config

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration surface.
type Config struct {
	BindAddress          string `yaml:"bind_address"`
	WorldDirectory       string `yaml:"world_directory"`
	ViewDistance         int    `yaml:"view_distance"`
	CacheInitialBytes    int64  `yaml:"cache_initial_bytes"`
	CacheMaxBytes        int64  `yaml:"cache_max_bytes"`
	WorkerPoolSize       int    `yaml:"worker_pool_size"`
	CompressionThreshold int    `yaml:"compression_threshold"`
	OnlineMode           bool   `yaml:"online_mode"`
	Seed                 int64  `yaml:"seed"`
}

// Defaults returns the configuration surface's documented defaults.
// worker_pool_size's default (CPU count) is resolved by the caller
// (runtime.NumCPU(), see pkg/gen.New) rather than baked in here, so
// config stays free of a runtime dependency.
func Defaults() Config {
	return Config{
		BindAddress:          ":25565",
		WorldDirectory:       "world",
		ViewDistance:         10,
		CacheInitialBytes:    256 * 1024 * 1024,
		CacheMaxBytes:        2 * 1024 * 1024 * 1024,
		WorkerPoolSize:       0, // 0 means "use runtime.NumCPU()"
		CompressionThreshold: 256,
		OnlineMode:           true,
		Seed:                 0,
	}
}

// LoadFile reads a YAML config file, starting from Defaults and
// overwriting only the fields present in the file.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// BindFlags registers cfg's fields on fs, pre-populated with cfg's
// current values so a caller can LoadFile first, then apply flag
// overrides on top — flags win, matching the teacher's flag-first
// cmd/server/main.go.
func BindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.BindAddress, "address", cfg.BindAddress, "Address to listen on")
	fs.StringVar(&cfg.WorldDirectory, "world", cfg.WorldDirectory, "World directory")
	fs.IntVar(&cfg.ViewDistance, "view-distance", cfg.ViewDistance, "View distance in chunks (2-32)")
	fs.Int64Var(&cfg.CacheInitialBytes, "cache-initial-bytes", cfg.CacheInitialBytes, "Initial chunk cache budget in bytes")
	fs.Int64Var(&cfg.CacheMaxBytes, "cache-max-bytes", cfg.CacheMaxBytes, "Maximum chunk cache budget in bytes")
	fs.IntVar(&cfg.WorkerPoolSize, "workers", cfg.WorkerPoolSize, "Generation worker pool size (0 = CPU count)")
	fs.IntVar(&cfg.CompressionThreshold, "compression-threshold", cfg.CompressionThreshold, "Packet compression threshold in bytes (-1 disables)")
	fs.BoolVar(&cfg.OnlineMode, "online-mode", cfg.OnlineMode, "Verify players against the session server")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "World seed")
}

// Validate clamps/rejects out-of-range values, per spec.md §6's
// "view_distance (default 10, clamped 2..32)" rule and the analogous
// sanity bounds for the rest of the surface.
func (c *Config) Validate() error {
	if c.ViewDistance < 2 {
		c.ViewDistance = 2
	}
	if c.ViewDistance > 32 {
		c.ViewDistance = 32
	}
	if c.CacheMaxBytes <= 0 {
		return fmt.Errorf("config: cache_max_bytes must be positive, got %d", c.CacheMaxBytes)
	}
	if c.CacheInitialBytes > c.CacheMaxBytes {
		return fmt.Errorf("config: cache_initial_bytes (%d) exceeds cache_max_bytes (%d)", c.CacheInitialBytes, c.CacheMaxBytes)
	}
	if c.WorkerPoolSize < 0 {
		return fmt.Errorf("config: worker_pool_size cannot be negative")
	}
	if c.BindAddress == "" {
		return fmt.Errorf("config: bind_address is required")
	}
	if c.WorldDirectory == "" {
		return fmt.Errorf("config: world_directory is required")
	}
	return nil
}
