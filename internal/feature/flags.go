package feature

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Flag represents a feature flag
type Flag string

// Feature flags for the estimator
const (
	// Statistics sources
	Statistics                 Flag = "statistics"
	PartitionStatistics        Flag = "partition_statistics"
	MaterializedViewStatistics Flag = "materialized_view_statistics"

	// Debug
	StrictEstimation Flag = "strict_estimation"
)

// FlagMetadata contains metadata about a feature flag
type FlagMetadata struct {
	Name         Flag
	Description  string
	DefaultValue bool
	Category     string
	Stability    string // "stable", "beta", "experimental"
}

// Manager manages feature flags
type Manager struct {
	flags    map[Flag]*flagState
	mu       sync.RWMutex
	onChange []func(Flag, bool)
	metadata map[Flag]*FlagMetadata
}

type flagState struct {
	enabled    atomic.Bool
	overridden atomic.Bool
	envVar     string
}

var globalManager = newManager()

func newManager() *Manager {
	m := &Manager{
		flags:    make(map[Flag]*flagState),
		metadata: make(map[Flag]*FlagMetadata),
	}
	m.registerFlags()
	m.loadFromEnvironment()
	return m
}

func (m *Manager) registerFlags() {
	m.register(&FlagMetadata{
		Name:         Statistics,
		Description:  "Read cached column statistics during estimation",
		DefaultValue: true,
		Category:     "statistics",
		Stability:    "stable",
	})
	m.register(&FlagMetadata{
		Name:         PartitionStatistics,
		Description:  "Merge per-partition column statistics of selected partitions",
		DefaultValue: true,
		Category:     "statistics",
		Stability:    "stable",
	})
	m.register(&FlagMetadata{
		Name:         MaterializedViewStatistics,
		Description:  "Estimate materialized index scans from the view definition",
		DefaultValue: true,
		Category:     "statistics",
		Stability:    "beta",
	})
	m.register(&FlagMetadata{
		Name:         StrictEstimation,
		Description:  "Fail optimization on estimation errors instead of falling back",
		DefaultValue: false,
		Category:     "debug",
		Stability:    "stable",
	})
}

func (m *Manager) register(metadata *FlagMetadata) {
	state := &flagState{envVar: flagToEnvVar(metadata.Name)}
	state.enabled.Store(metadata.DefaultValue)
	m.flags[metadata.Name] = state
	m.metadata[metadata.Name] = metadata
}

// loadFromEnvironment applies CARDEST_FEATURE_* overrides. Values that do
// not parse as booleans are ignored.
func (m *Manager) loadFromEnvironment() {
	for _, state := range m.flags {
		if val := os.Getenv(state.envVar); val != "" {
			if enabled, err := strconv.ParseBool(val); err == nil {
				state.enabled.Store(enabled)
				state.overridden.Store(true)
			}
		}
	}
}

// IsEnabled checks if a feature flag is enabled
func IsEnabled(flag Flag) bool {
	return globalManager.IsEnabled(flag)
}

// IsEnabled checks if a feature flag is enabled
func (m *Manager) IsEnabled(flag Flag) bool {
	m.mu.RLock()
	state, exists := m.flags[flag]
	m.mu.RUnlock()
	if !exists {
		return false
	}
	return state.enabled.Load()
}

// IsOverridden reports whether the flag was set from the environment.
func (m *Manager) IsOverridden(flag Flag) bool {
	m.mu.RLock()
	state, exists := m.flags[flag]
	m.mu.RUnlock()
	return exists && state.overridden.Load()
}

// Enable enables a feature flag
func Enable(flag Flag) {
	globalManager.Enable(flag)
}

// Enable enables a feature flag
func (m *Manager) Enable(flag Flag) {
	m.setFlag(flag, true)
}

// Disable disables a feature flag
func Disable(flag Flag) {
	globalManager.Disable(flag)
}

// Disable disables a feature flag
func (m *Manager) Disable(flag Flag) {
	m.setFlag(flag, false)
}

func (m *Manager) setFlag(flag Flag, enabled bool) {
	m.mu.RLock()
	state, exists := m.flags[flag]
	callbacks := m.onChange
	m.mu.RUnlock()
	if !exists {
		return
	}

	if state.enabled.Swap(enabled) != enabled {
		for _, cb := range callbacks {
			cb(flag, enabled)
		}
	}
}

// OnChange registers a callback for flag changes
func OnChange(callback func(Flag, bool)) {
	globalManager.OnChange(callback)
}

// OnChange registers a callback for flag changes
func (m *Manager) OnChange(callback func(Flag, bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, callback)
}

// GetAll returns all flag states
func GetAll() map[Flag]bool {
	return globalManager.GetAll()
}

// GetAll returns all flag states
func (m *Manager) GetAll() map[Flag]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[Flag]bool, len(m.flags))
	for flag, state := range m.flags {
		result[flag] = state.enabled.Load()
	}
	return result
}

// GetMetadata returns metadata for a flag
func GetMetadata(flag Flag) (*FlagMetadata, bool) {
	return globalManager.GetMetadata(flag)
}

// GetMetadata returns metadata for a flag
func (m *Manager) GetMetadata(flag Flag) (*FlagMetadata, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	metadata, exists := m.metadata[flag]
	return metadata, exists
}

// GetByCategory returns the flags of a category in name order.
func GetByCategory(category string) []Flag {
	return globalManager.GetByCategory(category)
}

// GetByCategory returns the flags of a category in name order.
func (m *Manager) GetByCategory(category string) []Flag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Flag
	for flag, metadata := range m.metadata {
		if metadata.Category == category {
			result = append(result, flag)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Reset resets all flags to their default values
func Reset() {
	globalManager.Reset()
}

// Reset resets all flags to their default values
func (m *Manager) Reset() {
	m.mu.RLock()
	defaults := make(map[Flag]bool, len(m.metadata))
	for flag, metadata := range m.metadata {
		defaults[flag] = metadata.DefaultValue
	}
	m.mu.RUnlock()

	for flag, value := range defaults {
		m.setFlag(flag, value)
		m.flags[flag].overridden.Store(false)
	}
}

func flagToEnvVar(flag Flag) string {
	return "CARDEST_FEATURE_" + strings.ToUpper(string(flag))
}

// DebugString returns a debug string with all flag states
func DebugString() string {
	return globalManager.DebugString()
}

// DebugString returns a debug string with all flag states, grouped by
// category.
func (m *Manager) DebugString() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	categories := make(map[string][]Flag)
	for flag, metadata := range m.metadata {
		categories[metadata.Category] = append(categories[metadata.Category], flag)
	}
	names := make([]string, 0, len(categories))
	for category := range categories {
		names = append(names, category)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Feature Flags:\n")
	for _, category := range names {
		flags := categories[category]
		sort.Slice(flags, func(i, j int) bool { return flags[i] < flags[j] })

		fmt.Fprintf(&b, "\n%s:\n", strings.ToUpper(category[:1])+category[1:])
		for _, flag := range flags {
			state := m.flags[flag]
			metadata := m.metadata[flag]

			status := "disabled"
			if state.enabled.Load() {
				status = "enabled"
			}
			override := ""
			if state.overridden.Load() {
				override = " (overridden)"
			}
			fmt.Fprintf(&b, "  %-30s: %-8s [%s]%s - %s\n",
				flag, status, metadata.Stability, override, metadata.Description)
		}
	}
	return b.String()
}
