package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dshills/cardest/internal/sql/plan"
)

// Statistics is the estimated output of an operator.
type Statistics struct {
	// RowCount is never negative except for UnknownRowCount.
	RowCount float64
	// WidthInJoinCluster counts the relations joined below this operator.
	WidthInJoinCluster int
	// DeltaRowCount is the number of rows loaded since the scanned table was
	// last analyzed.
	DeltaRowCount float64
	columns       map[plan.ColumnID]ColumnStat
}

// New returns statistics without column statistics.
func New(rowCount float64, widthInJoinCluster int) *Statistics {
	return &Statistics{
		RowCount:           rowCount,
		WidthInJoinCluster: widthInJoinCluster,
		columns:            make(map[plan.ColumnID]ColumnStat),
	}
}

// NewUnknown returns statistics with an unknown statistic for every column.
func NewUnknown(rowCount float64, cols []*plan.Column) *Statistics {
	s := New(rowCount, 1)
	for _, c := range cols {
		s.SetColumn(c.ID, UnknownForType(c.Type))
	}
	return s
}

// Column returns the statistic of a column.
func (s *Statistics) Column(id plan.ColumnID) (ColumnStat, bool) {
	cs, ok := s.columns[id]
	return cs, ok
}

// ColumnOrUnknown returns the statistic of a column, or Unknown.
func (s *Statistics) ColumnOrUnknown(id plan.ColumnID) ColumnStat {
	if cs, ok := s.columns[id]; ok {
		return cs
	}
	return Unknown
}

// SetColumn sets the statistic of a column.
func (s *Statistics) SetColumn(id plan.ColumnID, cs ColumnStat) {
	if s.columns == nil {
		s.columns = make(map[plan.ColumnID]ColumnStat)
	}
	s.columns[id] = cs
}

// HasColumn reports whether a statistic exists for id.
func (s *Statistics) HasColumn(id plan.ColumnID) bool {
	_, ok := s.columns[id]
	return ok
}

// ColumnIDs returns the ids with statistics in ascending order.
func (s *Statistics) ColumnIDs() []plan.ColumnID {
	ids := make([]plan.ColumnID, 0, len(s.columns))
	for id := range s.columns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NumColumns returns the number of column statistics.
func (s *Statistics) NumColumns() int {
	return len(s.columns)
}

// Clone returns a copy that can be modified independently.
func (s *Statistics) Clone() *Statistics {
	out := &Statistics{
		RowCount:           s.RowCount,
		WidthInJoinCluster: s.WidthInJoinCluster,
		DeltaRowCount:      s.DeltaRowCount,
		columns:            make(map[plan.ColumnID]ColumnStat, len(s.columns)),
	}
	for id, cs := range s.columns {
		out.columns[id] = cs
	}
	return out
}

// WithRowCountAndEnforceValid returns a copy with a new row count whose
// column statistics are made consistent with it.
func (s *Statistics) WithRowCountAndEnforceValid(rowCount float64) *Statistics {
	out := s.Clone()
	out.RowCount = rowCount
	out.EnforceValid()
	return out
}

// EnforceValid lowers NDV and null counts that exceed the row count.
func (s *Statistics) EnforceValid() {
	if s.RowCount < 0 {
		return
	}
	for id, cs := range s.columns {
		if cs.IsUnknown {
			continue
		}
		if cs.NDV <= s.RowCount && cs.NumNulls <= s.RowCount-cs.NDV {
			continue
		}
		cs.NDV = math.Min(cs.NDV, s.RowCount)
		cs.NumNulls = math.Max(0, math.Min(cs.NumNulls, s.RowCount-cs.NDV))
		cs.Count = s.RowCount
		s.columns[id] = cs
	}
}

// Normalize clamps every column statistic to valid values for the current
// row count.
func (s *Statistics) Normalize() {
	if math.IsNaN(s.RowCount) {
		s.RowCount = UnknownRowCount
	}
	for id, cs := range s.columns {
		if cs.IsUnknown {
			continue
		}
		if math.IsNaN(cs.NDV) || cs.NDV < 0 {
			cs.NDV = 0
		}
		if math.IsNaN(cs.NumNulls) || cs.NumNulls < 0 {
			cs.NumNulls = 0
		}
		if s.RowCount >= 0 {
			cs.NDV = math.Min(cs.NDV, s.RowCount)
			cs.NumNulls = math.Min(cs.NumNulls, s.RowCount)
		}
		if math.IsNaN(cs.MinValue) {
			cs.MinValue, cs.MinLiteral = math.Inf(-1), nil
		}
		if math.IsNaN(cs.MaxValue) {
			cs.MaxValue, cs.MaxLiteral = math.Inf(1), nil
		}
		if cs.MinValue > cs.MaxValue && cs.NDV > 0 {
			cs.MinValue, cs.MaxValue = cs.MaxValue, cs.MinValue
			cs.MinLiteral, cs.MaxLiteral = cs.MaxLiteral, cs.MinLiteral
		}
		s.columns[id] = cs
	}
}

// UpdateNDV lowers the NDV of every column present in both s and other to
// the smaller of the two. Row count and other fields are left as they are,
// and so are unknown statistics on either side.
func (s *Statistics) UpdateNDV(other *Statistics) {
	for id, next := range other.columns {
		cur, ok := s.columns[id]
		if !ok || cur.IsUnknown || next.IsUnknown {
			continue
		}
		if next.NDV < cur.NDV {
			cur.NDV = next.NDV
			s.columns[id] = cur
		}
	}
}

// IsInputColumnsUnknown reports whether any of cols has an unknown statistic.
func (s *Statistics) IsInputColumnsUnknown(cols []*plan.Column) bool {
	for _, c := range cols {
		if cs, ok := s.columns[c.ID]; ok && cs.IsUnknown {
			return true
		}
	}
	return false
}

// AnyUnknown reports whether any of the given columns is unknown.
func (s *Statistics) AnyUnknown(ids plan.ColumnSet) bool {
	for id := range ids {
		if cs, ok := s.columns[id]; ok && cs.IsUnknown {
			return true
		}
	}
	return false
}

// Equal reports whether s and other hold the same values.
func (s *Statistics) Equal(other *Statistics) bool {
	if s.RowCount != other.RowCount || s.WidthInJoinCluster != other.WidthInJoinCluster ||
		len(s.columns) != len(other.columns) {
		return false
	}
	for id, cs := range s.columns {
		o, ok := other.columns[id]
		if !ok || !sameColumnStat(cs, o) {
			return false
		}
	}
	return true
}

func sameColumnStat(a, b ColumnStat) bool {
	return a.NDV == b.NDV && a.MinValue == b.MinValue && a.MaxValue == b.MaxValue &&
		a.NumNulls == b.NumNulls && a.AvgSizeBytes == b.AvgSizeBytes &&
		a.Count == b.Count && a.IsUnknown == b.IsUnknown
}

func (s *Statistics) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "rows=%.4g width=%d", s.RowCount, s.WidthInJoinCluster)
	for _, id := range s.ColumnIDs() {
		fmt.Fprintf(&sb, "\n  #%d: %s", id, s.columns[id])
	}
	return sb.String()
}
