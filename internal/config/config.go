package config

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"

	"github.com/dshills/cardest/internal/errors"
	"github.com/dshills/cardest/internal/feature"
	"github.com/dshills/cardest/internal/log"
	"github.com/dshills/cardest/internal/sql/cardinality"
	"github.com/dshills/cardest/internal/statscache"
)

// Config represents the complete estimator configuration.
type Config struct {
	// Logging configuration
	Log log.Config `json:"log" toml:"log"`

	// Estimation session defaults
	Estimation EstimationConfig `json:"estimation" toml:"estimation"`

	// Statistics cache configuration
	Cache CacheConfig `json:"cache" toml:"cache"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics" toml:"metrics"`
}

// EstimationConfig holds the per-query estimation defaults.
type EstimationConfig struct {
	EnableStats                 bool    `json:"enable_stats" toml:"enable_stats"`
	EnablePartitionStats        bool    `json:"enable_partition_stats" toml:"enable_partition_stats"`
	EnableMaterializedViewStats bool    `json:"enable_materialized_view_stats" toml:"enable_materialized_view_stats"`
	Debug                       bool    `json:"debug" toml:"debug"`
	GenerateStatsFactor         float64 `json:"generate_stats_factor" toml:"generate_stats_factor"`
	MinSelectivity              float64 `json:"min_selectivity" toml:"min_selectivity"`
}

// CacheConfig represents statistics cache configuration.
type CacheConfig struct {
	TTL      string `json:"ttl" toml:"ttl"` // duration string
	Capacity uint64 `json:"capacity" toml:"capacity"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool `json:"enabled" toml:"enabled"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	session := cardinality.DefaultSession()
	return &Config{
		Log: log.DefaultConfig(),
		Estimation: EstimationConfig{
			EnableStats:                 session.EnableStats,
			EnablePartitionStats:        session.EnablePartitionStats,
			EnableMaterializedViewStats: session.EnableMaterializedViewStats,
			GenerateStatsFactor:         session.GenerateStatsFactor,
			MinSelectivity:              session.MinSelectivity,
		},
		Cache: CacheConfig{
			TTL:      "10m",
			Capacity: 100000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadFromFile loads configuration from a TOML or JSON file. Files with a
// .toml extension are decoded as TOML, everything else as JSON.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigFileErrorf(path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, errors.ConfigFileErrorf(path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.ConfigFileErrorf(path, errors.Newf(errors.ConfigFileError,
				"unknown configuration key \"%s\"", undecoded[0].String()))
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.ConfigFileErrorf(path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var err error

	if !log.ValidLevel(c.Log.Level) {
		err = multierr.Append(err, errors.InvalidConfigError("log.level",
			"invalid log level: %s", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		err = multierr.Append(err, errors.InvalidConfigError("log.format",
			"invalid log format: %s", c.Log.Format))
	}

	if f := c.Estimation.GenerateStatsFactor; f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		err = multierr.Append(err, errors.InvalidConfigError("estimation.generate_stats_factor",
			"generate stats factor must be positive, got %g", f))
	}
	if s := c.Estimation.MinSelectivity; !(s > 0 && s <= 1) {
		err = multierr.Append(err, errors.InvalidConfigError("estimation.min_selectivity",
			"min selectivity must be in (0, 1], got %g", s))
	}

	if _, perr := c.CacheTTL(); perr != nil {
		err = multierr.Append(err, errors.InvalidConfigError("cache.ttl",
			"invalid cache ttl %q: %v", c.Cache.TTL, perr))
	}

	return err
}

// CacheTTL parses the cache TTL. An empty TTL keeps entries until evicted.
func (c *Config) CacheTTL() (time.Duration, error) {
	if c.Cache.TTL == "" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, errors.Newf(errors.InvalidParameterValue, "negative duration %s", c.Cache.TTL)
	}
	return ttl, nil
}

// Session returns the estimation session defaults. Feature overrides from
// the environment are applied on top.
func (c *Config) Session() cardinality.Session {
	s := cardinality.Session{
		EnableStats:                 c.Estimation.EnableStats,
		EnablePartitionStats:        c.Estimation.EnablePartitionStats,
		EnableMaterializedViewStats: c.Estimation.EnableMaterializedViewStats,
		Debug:                       c.Estimation.Debug,
		GenerateStatsFactor:         c.Estimation.GenerateStatsFactor,
		MinSelectivity:              c.Estimation.MinSelectivity,
	}
	return applyFeatures(s)
}

// CacheOptions converts the cache section into statistics cache options.
// The configuration must have been validated.
func (c *Config) CacheOptions() statscache.Options {
	ttl, _ := c.CacheTTL()
	return statscache.Options{
		TTL:      ttl,
		Capacity: c.Cache.Capacity,
	}
}

// applyFeatures lets feature flags force statistics sources off and strict
// estimation on. They never enable a source the configuration disabled.
func applyFeatures(s cardinality.Session) cardinality.Session {
	s.EnableStats = s.EnableStats && feature.IsEnabled(feature.Statistics)
	s.EnablePartitionStats = s.EnablePartitionStats && feature.IsEnabled(feature.PartitionStatistics)
	s.EnableMaterializedViewStats = s.EnableMaterializedViewStats &&
		feature.IsEnabled(feature.MaterializedViewStatistics)
	s.Debug = s.Debug || feature.IsEnabled(feature.StrictEstimation)
	return s
}
