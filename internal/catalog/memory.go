package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/cardest/internal/errors"
)

const defaultDatabaseName = "default"

// MemoryCatalog is an in-memory implementation of the Catalog interface.
// It's useful for testing and for fixture-driven estimation.
type MemoryCatalog struct {
	mu     sync.RWMutex
	tables map[string]*Table // "database.table" -> Table
	byID   map[TableID]*Table
	nextID TableID
}

// NewMemoryCatalog creates a new in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		tables: make(map[string]*Table),
		byID:   make(map[TableID]*Table),
		nextID: 1,
	}
}

func tableKey(database, tableName string) string {
	if database == "" {
		database = defaultDatabaseName
	}
	return strings.ToLower(database + "." + tableName)
}

// AddTable registers a table. A zero ID is replaced by the next free id.
func (c *MemoryCatalog) AddTable(t *Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := tableKey(t.Database, t.TableName)
	if _, exists := c.tables[key]; exists {
		return fmt.Errorf("table %q already exists", t.QualifiedName())
	}
	if t.ID == 0 {
		for c.byID[c.nextID] != nil {
			c.nextID++
		}
		t.ID = c.nextID
		c.nextID++
	} else if _, exists := c.byID[t.ID]; exists {
		return fmt.Errorf("table id %d already in use", t.ID)
	}
	if t.ReportedRowCount == 0 && t.IndexRowCounts == nil {
		t.ReportedRowCount = -1
	}

	c.tables[key] = t
	c.byID[t.ID] = t
	return nil
}

// GetTable retrieves a table by name.
func (c *MemoryCatalog) GetTable(database, tableName string) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tables[tableKey(database, tableName)]
	if !ok {
		return nil, errors.UndefinedTableError(tableName)
	}
	return t, nil
}

// GetTableByID retrieves a table by id.
func (c *MemoryCatalog) GetTableByID(id TableID) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("table id %d does not exist", id)
	}
	return t, nil
}

// ListTables returns the tables of a database ordered by name.
func (c *MemoryCatalog) ListTables(database string) ([]*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	prefix := tableKey(database, "")
	var out []*Table
	for key, t := range c.tables {
		if strings.HasPrefix(key, prefix) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableName < out[j].TableName })
	return out, nil
}

// DropTable removes a table.
func (c *MemoryCatalog) DropTable(database, tableName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := tableKey(database, tableName)
	t, ok := c.tables[key]
	if !ok {
		return errors.UndefinedTableError(tableName)
	}
	delete(c.tables, key)
	delete(c.byID, t.ID)
	return nil
}
