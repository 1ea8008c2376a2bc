// Package config parses and validates the module's load-time configuration:
// the flat key/value argument list a host passes at module-load time,
// optionally layered over defaults read from a YAML file the way
// internal/config layers subsystem config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values and bounds for the module's tunables.
const (
	DefaultMaxMemory              int64 = 256 * 1024 * 1024
	MinMaxMemory                  int64 = 20 * 1024 * 1024
	DefaultCleanupIntervalSeconds int64 = 300

	// BlockCacheBytes is the fixed reservation for the store's read block
	// cache, carved out of max_memory before the write-buffer/index split.
	BlockCacheBytes int64 = 8 * 1024 * 1024
)

// ConfigError reports a fatal load-time configuration problem: missing
// path, an out-of-range budget, or an unparseable value.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// Config is the module's load-time configuration.
type Config struct {
	// Path is the filesystem directory owned by the embedded store.
	Path string `yaml:"path"`

	// MaxMemory is the store's total RAM budget in bytes.
	MaxMemory int64 `yaml:"max_memory"`

	// CleanupIntervalSeconds is the sweeper period; 0 disables periodic
	// sweeping, explicit cleanup still works.
	CleanupIntervalSeconds int64 `yaml:"cleanup_interval"`

	// VerifyChecksums flips the store's read-options from the package
	// default (checksums off, favor latency) to verify-on-read, for
	// operators who need at-rest integrity over cache-miss latency.
	VerifyChecksums bool `yaml:"verify_checksums"`

	// CleanupInterval is derived from CleanupIntervalSeconds during
	// Normalize; it is not read from YAML or load-args directly.
	CleanupInterval time.Duration `yaml:"-"`
}

// Default returns a Config populated with every package default, still
// missing the required Path.
func Default() *Config {
	return &Config{
		MaxMemory:              DefaultMaxMemory,
		CleanupIntervalSeconds: DefaultCleanupIntervalSeconds,
		VerifyChecksums:        false,
	}
}

// LoadDefaults reads a YAML defaults file into a fresh Config, the way
// internal/config.LoadConfig reads the cache's subsystem YAML. Missing
// fields keep Default's values; callers normalize afterward.
func LoadDefaults(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read defaults file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal defaults file %s: %w", path, err)
	}
	return cfg, nil
}

// ParseArgs applies the host's flat load-argument list — alternating
// key/value pairs — on top of base, returning a new Config. base may be
// nil, in which case Default() is used. Unknown keys are ignored.
func ParseArgs(args []string, base *Config) (*Config, error) {
	if base == nil {
		base = Default()
	}
	cfg := *base

	if len(args)%2 != 0 {
		return nil, &ConfigError{Field: "args", Msg: "odd number of load arguments"}
	}

	for i := 0; i < len(args); i += 2 {
		key, val := args[i], args[i+1]
		switch key {
		case "path":
			cfg.Path = val
		case "max-memory", "max_memory":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, &ConfigError{Field: key, Msg: "not an integer"}
			}
			cfg.MaxMemory = n
		case "cleanup-interval", "cleanup_interval":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, &ConfigError{Field: key, Msg: "not an integer"}
			}
			cfg.CleanupIntervalSeconds = n
		case "verify-checksums", "verify_checksums":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return nil, &ConfigError{Field: key, Msg: "not a boolean"}
			}
			cfg.VerifyChecksums = b
		default:
			// unknown keys are ignored, matching a host that may pass
			// arguments meant for a newer version of this module
		}
	}

	return &cfg, nil
}

// Normalize validates the parsed config and derives CleanupInterval,
// mirroring internal/config's AdjustConfig normalize-after-parse step. It
// must run once, after ParseArgs/LoadDefaults and before the config is used.
func (c *Config) Normalize() error {
	if c.Path == "" {
		return &ConfigError{Field: "path", Msg: "required"}
	}
	if c.MaxMemory < MinMaxMemory {
		return &ConfigError{Field: "max_memory", Msg: fmt.Sprintf("must be >= %d bytes", MinMaxMemory)}
	}
	if c.CleanupIntervalSeconds < 0 {
		return &ConfigError{Field: "cleanup_interval", Msg: "must be >= 0"}
	}
	c.CleanupInterval = time.Duration(c.CleanupIntervalSeconds) * time.Second
	return nil
}

// SweeperEnabled reports whether periodic sweeping is configured on.
func (c *Config) SweeperEnabled() bool {
	return c.CleanupIntervalSeconds > 0
}

// StoreBudget is the derived byte-budget split fed to the embedded store's
// options at open time.
type StoreBudget struct {
	BlockCacheBytes int64
	WriteBufferBytes int64
	OverheadBytes    int64
}

// Budget splits MaxMemory into the embedded store's tuning knobs: 8 MiB
// reserved for the block cache, two thirds of the remainder for write
// buffers, one third left for indexes/bloom filters/overhead.
func (c *Config) Budget() StoreBudget {
	remaining := c.MaxMemory - BlockCacheBytes
	if remaining < 0 {
		remaining = 0
	}
	return StoreBudget{
		BlockCacheBytes:  BlockCacheBytes,
		WriteBufferBytes: (remaining * 2) / 3,
		OverheadBytes:    remaining - (remaining*2)/3,
	}
}

// EnsurePath creates Path (and any missing parents) if it does not already
// exist, matching a load-time mkdir-p-at-load convention: a merely-absent
// directory is fine, only a non-directory collision at Path is fatal.
func (c *Config) EnsurePath() error {
	if c.Path == "" {
		return &ConfigError{Field: "path", Msg: "required"}
	}
	if err := os.MkdirAll(c.Path, 0o755); err != nil {
		return fmt.Errorf("config: ensure path %s: %w", c.Path, err)
	}
	return nil
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
