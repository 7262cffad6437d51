package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/dshills/cardest/internal/errors"
	"github.com/dshills/cardest/internal/feature"
	"github.com/dshills/cardest/internal/sql/cardinality"
	"github.com/dshills/cardest/internal/testutil"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Estimation.EnableStats)
	assert.Equal(t, float64(cardinality.DefaultGenerateStatsFactor), cfg.Estimation.GenerateStatsFactor)
	assert.Equal(t, cardinality.DefaultMinSelectivity, cfg.Estimation.MinSelectivity)

	opts := cfg.CacheOptions()
	assert.Equal(t, 10*time.Minute, opts.TTL)
	assert.Equal(t, uint64(100000), opts.Capacity)
}

func TestLoadFromFile(t *testing.T) {
	t.Run("toml", func(t *testing.T) {
		path := testutil.WriteFile(t, "cardest.toml", `
[log]
level = "debug"
format = "json"

[estimation]
enable_partition_stats = false
min_selectivity = 0.001

[cache]
ttl = "30s"
capacity = 50
`)
		cfg, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.False(t, cfg.Estimation.EnablePartitionStats)
		assert.True(t, cfg.Estimation.EnableStats, "unset keys keep defaults")
		assert.Equal(t, 0.001, cfg.Estimation.MinSelectivity)
		assert.Equal(t, 30*time.Second, cfg.CacheOptions().TTL)
		assert.Equal(t, uint64(50), cfg.CacheOptions().Capacity)
	})

	t.Run("json", func(t *testing.T) {
		path := testutil.WriteFile(t, "cardest.json",
			`{"estimation": {"debug": true, "generate_stats_factor": 4}, "metrics": {"enabled": false}}`)
		cfg, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.True(t, cfg.Estimation.Debug)
		assert.Equal(t, 4.0, cfg.Estimation.GenerateStatsFactor)
		assert.False(t, cfg.Metrics.Enabled)
	})

	t.Run("unknown toml key", func(t *testing.T) {
		path := testutil.WriteFile(t, "bad.toml", "[estimation]\nenable_magic = true\n")
		_, err := LoadFromFile(path)
		require.Error(t, err)
		assert.True(t, errors.IsError(err, errors.ConfigFileError))
		assert.Contains(t, err.Error(), path)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.json"))
		require.Error(t, err)
		assert.True(t, errors.IsError(err, errors.ConfigFileError))
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := LoadFromFile(testutil.WriteFile(t, "bad.json", "{"))
		assert.True(t, errors.IsError(err, errors.ConfigFileError))
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := LoadFromFile(testutil.WriteFile(t, "bad.json", `{"estimation": {"min_selectivity": 2}}`))
		require.Error(t, err)
		assert.True(t, errors.IsError(err, errors.InvalidParameterValue))
	})
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Estimation.GenerateStatsFactor = 0
	cfg.Estimation.MinSelectivity = 0
	cfg.Cache.TTL = "soon"

	err := cfg.Validate()
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 5)
	for _, e := range errs {
		assert.True(t, errors.IsError(e, errors.InvalidParameterValue), e.Error())
	}

	cfg = DefaultConfig()
	cfg.Cache.TTL = "-1m"
	assert.Error(t, cfg.Validate())

	cfg.Cache.TTL = ""
	require.NoError(t, cfg.Validate())
	assert.Zero(t, cfg.CacheOptions().TTL)
}

func TestSession(t *testing.T) {
	t.Cleanup(feature.Reset)

	cfg := DefaultConfig()
	cfg.Estimation.MinSelectivity = 0.01
	s := cfg.Session()
	assert.True(t, s.EnableStats)
	assert.True(t, s.EnablePartitionStats)
	assert.True(t, s.EnableMaterializedViewStats)
	assert.False(t, s.Debug)
	assert.Equal(t, 0.01, s.MinSelectivity)

	feature.Disable(feature.PartitionStatistics)
	feature.Enable(feature.StrictEstimation)
	s = cfg.Session()
	assert.False(t, s.EnablePartitionStats)
	assert.True(t, s.Debug)

	// Flags never re-enable a source the configuration turned off.
	feature.Reset()
	cfg.Estimation.EnableStats = false
	assert.False(t, cfg.Session().EnableStats)
}
