// Package cardinality derives row counts and column statistics for the
// expressions of a memo.
package cardinality

import (
	"sync"

	"github.com/dshills/cardest/internal/log"
	"github.com/dshills/cardest/internal/metrics"
	"github.com/dshills/cardest/internal/sql/plan"
	"github.com/dshills/cardest/internal/sql/stats"
	"github.com/dshills/cardest/internal/statscache"
)

const (
	// DefaultGenerateStatsFactor is the number of rows a generator is
	// assumed to produce per input row and output column.
	DefaultGenerateStatsFactor = 8
	// DefaultMinSelectivity is the smallest selectivity a filter may have
	// unless it is known to select nothing.
	DefaultMinSelectivity = 1e-4
)

// Session holds the per-query settings that influence estimation.
type Session struct {
	// EnableStats uses cached column statistics. When false every scan
	// column is unknown.
	EnableStats bool
	// EnablePartitionStats merges per-partition column statistics of the
	// selected partitions instead of using table level statistics.
	EnablePartitionStats bool
	// EnableMaterializedViewStats lets scans of a materialized index use
	// the statistics of the view's defining query.
	EnableMaterializedViewStats bool
	// Internal marks queries issued by the system itself, such as
	// statistics collection. They never read cached statistics.
	Internal bool
	// Debug makes estimation failures fail the optimization instead of
	// falling back to child statistics.
	Debug bool
	// GenerateStatsFactor is the expansion factor of Generate.
	GenerateStatsFactor float64
	// MinSelectivity floors filter selectivities.
	MinSelectivity float64
}

// DefaultSession returns the settings used when nothing is configured.
func DefaultSession() Session {
	return Session{
		EnableStats:                 true,
		EnablePartitionStats:        true,
		EnableMaterializedViewStats: true,
		GenerateStatsFactor:         DefaultGenerateStatsFactor,
		MinSelectivity:              DefaultMinSelectivity,
	}
}

// Context carries everything one estimation pass needs. A Context belongs
// to a single query; it is never shared between concurrent optimizations.
type Context struct {
	Session  Session
	Provider statscache.Provider
	Logger   log.Logger

	mu                 sync.Mutex
	cteStats           map[plan.CTEID]*stats.Statistics
	viewStats          map[plan.RelationID]*stats.Statistics
	keyColumns         plan.ColumnSet
	hasUnknownColStats bool
}

// NewContext returns a context for one query. A nil provider knows no
// statistics and a nil logger discards.
func NewContext(session Session, provider statscache.Provider, logger log.Logger) *Context {
	if provider == nil {
		provider = statscache.New(statscache.Options{})
	}
	if logger == nil {
		logger = log.Discard()
	}
	if session.GenerateStatsFactor <= 0 {
		session.GenerateStatsFactor = DefaultGenerateStatsFactor
	}
	if session.MinSelectivity <= 0 {
		session.MinSelectivity = DefaultMinSelectivity
	}
	return &Context{
		Session:    session,
		Provider:   provider,
		Logger:     logger,
		cteStats:   make(map[plan.CTEID]*stats.Statistics),
		viewStats:  make(map[plan.RelationID]*stats.Statistics),
		keyColumns: make(plan.ColumnSet),
	}
}

// AddKeyColumns registers columns used as join, grouping or partition
// keys. An unknown statistic on one of them marks the query.
func (c *Context) AddKeyColumns(cols ...*plan.Column) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, col := range cols {
		c.keyColumns.Add(col.ID)
	}
}

// IsKeyColumn reports whether id was registered with AddKeyColumns.
func (c *Context) IsKeyColumn(id plan.ColumnID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keyColumns.Contains(id)
}

// HasUnknownColStats reports whether estimation relied on unknown
// statistics of a key column.
func (c *Context) HasUnknownColStats() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasUnknownColStats
}

func (c *Context) markUnknownColStats() {
	c.mu.Lock()
	first := !c.hasUnknownColStats
	c.hasUnknownColStats = true
	c.mu.Unlock()
	if first {
		metrics.UnknownColumnStatsCounter.Inc()
	}
}

// SetViewStatistics registers the statistics of a materialized view's
// defining query for the scan with the given relation id.
func (c *Context) SetViewStatistics(rel plan.RelationID, s *stats.Statistics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewStats[rel] = s
}

// ViewStatistics returns the statistics registered for rel, or nil.
func (c *Context) ViewStatistics(rel plan.RelationID) *stats.Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewStats[rel]
}

// CTEStatistics returns the statistics published by a CTE producer.
func (c *Context) CTEStatistics(id plan.CTEID) (*stats.Statistics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.cteStats[id]
	return s, ok
}

func (c *Context) putCTEStatistics(id plan.CTEID, s *stats.Statistics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cteStats[id] = s
}

// noteUnknownKeys marks the query when one of cols is a registered key
// column whose statistic in s is unknown.
func (c *Context) noteUnknownKeys(s *stats.Statistics, cols []*plan.Column) {
	for _, col := range cols {
		if !c.IsKeyColumn(col.ID) {
			continue
		}
		if cs, ok := s.Column(col.ID); !ok || cs.IsUnknown {
			c.markUnknownColStats()
			return
		}
	}
}
