package catalog

import (
	"sync"
	"time"
)

// ChangeType represents the type of data change that occurred.
type ChangeType int

const (
	ChangeInsert ChangeType = iota
	ChangeUpdate
	ChangeDelete
	ChangeTruncate
)

// pendingChanges tracks rows modified since the table was last analyzed.
type pendingChanges struct {
	LastModified time.Time
	Inserted     int64
	Deleted      int64
	Truncated    bool
}

// ChangeTracker accumulates row changes since the last ANALYZE so that the
// optimizer can add a pending delta to cached row counts.
type ChangeTracker struct {
	mu      sync.RWMutex
	pending map[TableID]*pendingChanges
}

// NewChangeTracker creates an empty tracker.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{pending: make(map[TableID]*pendingChanges)}
}

// RecordChange registers a data change on a table.
func (ct *ChangeTracker) RecordChange(tableID TableID, changeType ChangeType, changeCount int64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	p, ok := ct.pending[tableID]
	if !ok {
		p = &pendingChanges{}
		ct.pending[tableID] = p
	}
	p.LastModified = time.Now()

	switch changeType {
	case ChangeInsert:
		p.Inserted += changeCount
	case ChangeDelete:
		p.Deleted += changeCount
	case ChangeTruncate:
		p.Inserted, p.Deleted = 0, 0
		p.Truncated = true
	case ChangeUpdate:
		// Updates do not change the row count.
	}
}

// DeltaRowCount returns the net number of rows added since the last
// analyze. It never goes below zero; a truncate is reported through
// Truncated instead.
func (ct *ChangeTracker) DeltaRowCount(tableID TableID) float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	p, ok := ct.pending[tableID]
	if !ok {
		return 0
	}
	delta := p.Inserted - p.Deleted
	if delta < 0 {
		return 0
	}
	return float64(delta)
}

// Truncated reports whether the table was truncated since the last analyze.
func (ct *ChangeTracker) Truncated(tableID TableID) bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	p, ok := ct.pending[tableID]
	return ok && p.Truncated
}

// MarkAnalyzed clears the pending changes of a table.
func (ct *ChangeTracker) MarkAnalyzed(tableID TableID) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	delete(ct.pending, tableID)
}

// ChangedTables returns the tables that have pending changes.
func (ct *ChangeTracker) ChangedTables() []TableID {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	ids := make([]TableID, 0, len(ct.pending))
	for id := range ct.pending {
		ids = append(ids, id)
	}
	return ids
}
