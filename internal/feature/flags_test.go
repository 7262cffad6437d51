package feature

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlags(t *testing.T) {
	t.Cleanup(Reset)

	t.Run("BasicEnableDisable", func(t *testing.T) {
		assert.True(t, IsEnabled(Statistics))

		Disable(Statistics)
		assert.False(t, IsEnabled(Statistics))

		Enable(Statistics)
		assert.True(t, IsEnabled(Statistics))

		assert.False(t, IsEnabled(StrictEstimation))
		Enable(StrictEstimation)
		assert.True(t, IsEnabled(StrictEstimation))
		Disable(StrictEstimation)
		assert.False(t, IsEnabled(StrictEstimation))

		assert.False(t, IsEnabled("no_such_flag"))
	})

	t.Run("EnvironmentVariables", func(t *testing.T) {
		t.Setenv("CARDEST_FEATURE_PARTITION_STATISTICS", "false")
		t.Setenv("CARDEST_FEATURE_STRICT_ESTIMATION", "not-a-bool")

		m := newManager()
		assert.False(t, m.IsEnabled(PartitionStatistics))
		assert.True(t, m.IsOverridden(PartitionStatistics))
		assert.False(t, m.IsEnabled(StrictEstimation))
		assert.False(t, m.IsOverridden(StrictEstimation))

		m.Enable(PartitionStatistics)
		assert.True(t, m.IsEnabled(PartitionStatistics))
	})

	t.Run("OnChangeCallbacks", func(t *testing.T) {
		m := newManager()
		var (
			mu      sync.Mutex
			changes []bool
		)
		m.OnChange(func(flag Flag, enabled bool) {
			if flag != MaterializedViewStatistics {
				return
			}
			mu.Lock()
			changes = append(changes, enabled)
			mu.Unlock()
		})

		m.Enable(MaterializedViewStatistics) // already enabled
		m.Disable(MaterializedViewStatistics)
		m.Enable(MaterializedViewStatistics)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []bool{false, true}, changes)
	})

	t.Run("GetMetadata", func(t *testing.T) {
		metadata, exists := GetMetadata(Statistics)
		require.True(t, exists)
		assert.Equal(t, Statistics, metadata.Name)
		assert.Equal(t, "statistics", metadata.Category)
		assert.True(t, metadata.DefaultValue)

		_, exists = GetMetadata("non_existent_flag")
		assert.False(t, exists)
	})

	t.Run("GetByCategory", func(t *testing.T) {
		assert.Equal(t,
			[]Flag{MaterializedViewStatistics, PartitionStatistics, Statistics},
			GetByCategory("statistics"))
		assert.Equal(t, []Flag{StrictEstimation}, GetByCategory("debug"))
		assert.Empty(t, GetByCategory("execution"))
	})

	t.Run("Reset", func(t *testing.T) {
		Enable(StrictEstimation)
		Disable(Statistics)

		Reset()
		assert.False(t, IsEnabled(StrictEstimation))
		assert.True(t, IsEnabled(Statistics))
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 1000; j++ {
					_ = IsEnabled(Statistics)
					_ = GetAll()
				}
			}()
		}
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 1000; j++ {
					if j%2 == 0 {
						Enable(StrictEstimation)
					} else {
						Disable(StrictEstimation)
					}
				}
			}()
		}
		wg.Wait()
	})

	t.Run("DebugString", func(t *testing.T) {
		Reset()
		debug := DebugString()
		assert.Contains(t, debug, "Feature Flags:")
		assert.Contains(t, debug, "Statistics:")
		assert.Contains(t, debug, "Debug:")
		assert.Contains(t, debug, "partition_statistics")
		assert.Contains(t, debug, "[stable]")
		assert.Less(t, strings.Index(debug, "Debug:"), strings.Index(debug, "Statistics:"))
	})
}
