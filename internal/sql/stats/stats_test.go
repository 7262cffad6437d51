package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cardest/internal/catalog"
	"github.com/dshills/cardest/internal/sql/types"
)

func rng(low, high, ndv float64) StatisticRange {
	return StatisticRange{Low: low, High: high, NDV: ndv, Type: types.Integer}
}

func TestOverlapPercentWith(t *testing.T) {
	inf := math.Inf(1)
	tests := []struct {
		name     string
		r, other StatisticRange
		expected float64
	}{
		{"half overlap", rng(0, 100, 100), rng(50, 150, 100), 0.5},
		{"equal ranges", rng(0, 100, 100), rng(0, 100, 10), 1},
		{"disjoint", rng(0, 10, 10), rng(20, 30, 10), 0},
		{"empty", rng(0, 10, 10), EmptyRange(types.Integer), 0},
		{"zero ndv", rng(0, 10, 0), rng(0, 10, 10), 0},
		{"both unbounded wider", UnboundedRange(10, types.Integer), UnboundedRange(20, types.Integer), 1},
		{"both unbounded narrower", UnboundedRange(20, types.Integer), UnboundedRange(10, types.Integer), 0.5},
		{"unbounded ndv", rng(-inf, inf, inf), rng(-inf, inf, 10), 0.5},
		{"single value", rng(0, 5, 10), rng(5, 5, 1), 0.1},
		{"infinite length", rng(-inf, 10, 10), rng(0, 5, 5), 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, tt.r.OverlapPercentWith(tt.other), 1e-9)
		})
	}
}

func TestRangeIntersect(t *testing.T) {
	got := rng(0, 100, 100).Intersect(rng(50, 150, 100))
	assert.Equal(t, 50.0, got.Low)
	assert.Equal(t, 100.0, got.High)
	assert.InDelta(t, 50.0, got.NDV, 1e-9)

	bounded := rng(0, 10, 7)
	assert.Equal(t, bounded, bounded.Intersect(UnboundedRange(1, types.Integer)))
	assert.Equal(t, bounded, UnboundedRange(1, types.Integer).Intersect(bounded))

	assert.True(t, rng(0, 10, 10).Intersect(rng(20, 30, 10)).IsEmpty())
}

func TestRangeUnion(t *testing.T) {
	got := rng(0, 50, 51).Union(rng(51, 100, 50))
	assert.Equal(t, 0.0, got.Low)
	assert.Equal(t, 100.0, got.High)
	assert.InDelta(t, 101.0, got.NDV, 1e-9)

	same := rng(0, 10, 10).Union(rng(0, 10, 10))
	assert.InDelta(t, 10.0, same.NDV, 1e-9)

	assert.Equal(t, rng(1, 2, 2), EmptyRange(types.Integer).Union(rng(1, 2, 2)))
}

func TestColumnStatValidity(t *testing.T) {
	lit := types.NewValue(int32(1))
	assert.True(t, ColumnStat{NDV: 0, MinLiteral: &lit, Count: 10}.IsMalformed())
	assert.True(t, ColumnStat{NDV: 3, NumNulls: 10, Count: 10}.IsMalformed())
	assert.False(t, ColumnStat{NDV: 3, NumNulls: 1, Count: 10}.IsMalformed())
	assert.False(t, Unknown.IsMalformed())

	assert.True(t, ColumnStat{NDV: 101, Count: 10}.IsImplausible(10))
	assert.False(t, ColumnStat{NDV: 100, Count: 10}.IsImplausible(10))
	assert.False(t, Unknown.IsImplausible(0))

	assert.Equal(t, 0.25, ColumnStat{NumNulls: 25}.NullFraction(100))
	assert.Equal(t, 0.0, Unknown.NullFraction(100))
	assert.Equal(t, 42.0, UnknownWithCount(42).Count)
	assert.True(t, UnknownWithCount(42).IsUnknown)
}

func TestApplySelectivity(t *testing.T) {
	cs := ColumnStat{NDV: 100, NumNulls: 0, MinValue: 0, MaxValue: 99}
	got := cs.ApplySelectivity(0.5, 1000)
	assert.InDelta(t, 100-100*math.Pow(0.5, 10), got.NDV, 1e-9)

	unique := ColumnStat{NDV: 1000, NumNulls: 0}
	assert.InDelta(t, 100.0, unique.ApplySelectivity(0.1, 1000).NDV, 1e-9)

	assert.Equal(t, Unknown, Unknown.ApplySelectivity(0.1, 1000))
}

func TestStatisticsEnforceValid(t *testing.T) {
	s := New(1000, 1)
	s.SetColumn(1, ColumnStat{NDV: 500, NumNulls: 10, Count: 1000})
	s.SetColumn(2, Unknown)

	out := s.WithRowCountAndEnforceValid(100)
	cs, ok := out.Column(1)
	require.True(t, ok)
	assert.Equal(t, 100.0, cs.NDV)
	assert.Equal(t, 0.0, cs.NumNulls)
	assert.Equal(t, 100.0, cs.Count)
	assert.Equal(t, Unknown, out.ColumnOrUnknown(2))

	// The receiver is left untouched.
	orig, _ := s.Column(1)
	assert.Equal(t, 500.0, orig.NDV)
}

func TestStatisticsNormalize(t *testing.T) {
	s := New(10, 1)
	s.SetColumn(1, ColumnStat{NDV: 50, NumNulls: 20, MinValue: 9, MaxValue: 1})
	s.SetColumn(2, ColumnStat{NDV: math.NaN(), MinValue: math.NaN(), MaxValue: 3})
	s.Normalize()

	cs, _ := s.Column(1)
	assert.Equal(t, 10.0, cs.NDV)
	assert.Equal(t, 10.0, cs.NumNulls)
	assert.Equal(t, 1.0, cs.MinValue)
	assert.Equal(t, 9.0, cs.MaxValue)

	cs, _ = s.Column(2)
	assert.Equal(t, 0.0, cs.NDV)
	assert.True(t, math.IsInf(cs.MinValue, -1))
}

func TestStatisticsUpdateNDVIsMonotonic(t *testing.T) {
	s := New(100, 2)
	s.SetColumn(1, ColumnStat{NDV: 100})
	s.SetColumn(2, ColumnStat{NDV: 50})

	other := New(7, 1)
	other.SetColumn(1, ColumnStat{NDV: 80})
	other.SetColumn(2, ColumnStat{NDV: 70})
	other.SetColumn(3, ColumnStat{NDV: 5})
	s.UpdateNDV(other)

	assert.Equal(t, 80.0, s.ColumnOrUnknown(1).NDV)
	assert.Equal(t, 50.0, s.ColumnOrUnknown(2).NDV)
	assert.False(t, s.HasColumn(3))
	assert.Equal(t, 100.0, s.RowCount)

	unknown := New(1, 1)
	unknown.SetColumn(1, Unknown)
	s.UpdateNDV(unknown)
	assert.Equal(t, 80.0, s.ColumnOrUnknown(1).NDV)

	before := s.Clone()
	s.UpdateNDV(before)
	assert.True(t, s.Equal(before))

	stored := New(100, 1)
	stored.SetColumn(1, Unknown)
	smaller := New(100, 1)
	smaller.SetColumn(1, ColumnStat{NDV: 0})
	stored.UpdateNDV(smaller)
	assert.True(t, stored.ColumnOrUnknown(1).IsUnknown)
	assert.Equal(t, Unknown.NDV, stored.ColumnOrUnknown(1).NDV)
}

func TestMergePartitionColumnStats(t *testing.T) {
	merged, ok := MergePartitionColumnStats([]PartitionColumnStat{
		{Count: 100, NDV: 10, MinValue: 0, MaxValue: 9, NumNulls: 5, DataSize: 380},
		{Count: 100, NDV: 10, MinValue: 10, MaxValue: 19, DataSize: 400},
	}, types.Integer)
	require.True(t, ok)
	assert.Equal(t, 200.0, merged.Count)
	assert.InDelta(t, 20.0, merged.NDV, 1e-9)
	assert.Equal(t, 5.0, merged.NumNulls)
	assert.Equal(t, 0.0, merged.MinValue)
	assert.Equal(t, 19.0, merged.MaxValue)
	assert.InDelta(t, 4.0, merged.AvgSizeBytes, 1e-9)

	_, ok = MergePartitionColumnStats([]PartitionColumnStat{
		{Count: 100, NDV: 10}, UnknownPartitionColumnStat,
	}, types.Integer)
	assert.False(t, ok)

	_, ok = MergePartitionColumnStats(nil, types.Integer)
	assert.False(t, ok)
}

func TestHistogram(t *testing.T) {
	h := &Histogram{Buckets: []Bucket{
		{Lower: 0, Upper: 10, Count: 100, NDV: 10},
		{Lower: 20, Upper: 30, Count: 100, NDV: 10},
	}}
	assert.Equal(t, 200.0, h.TotalCount())
	assert.InDelta(t, 1.0, h.RangeFraction(0, 30), 1e-9)
	assert.InDelta(t, 0.25, h.RangeFraction(0, 5), 1e-9)
	assert.InDelta(t, 0.0, h.RangeFraction(12, 18), 1e-9)
	assert.InDelta(t, 0.05, h.EqualFraction(25), 1e-9)
	assert.Equal(t, 0.0, h.EqualFraction(15))

	r := h.Restrict(5, 25)
	require.Len(t, r.Buckets, 2)
	assert.InDelta(t, 100.0, r.TotalCount(), 1e-9)
	assert.InDelta(t, 50.0, h.Scale(0.25).TotalCount(), 1e-9)
}

func TestCombineSelectivity(t *testing.T) {
	assert.InDelta(t, 0.06, float64(CombineSelectivity(LogicalAnd, 0.2, 0.3)), 1e-9)
	assert.InDelta(t, 0.44, float64(CombineSelectivity(LogicalOr, 0.2, 0.3)), 1e-9)
	assert.Equal(t, Selectivity(1), CombineSelectivity(LogicalAnd))
	assert.Equal(t, Selectivity(1e-4), Selectivity(0).Floor(1e-4))
	assert.Equal(t, Selectivity(1), Selectivity(1.5).Clamp())
}

func TestTableMetaRowCount(t *testing.T) {
	var m *TableMeta
	assert.Equal(t, UnknownRowCount, m.RowCount(1))
	m = &TableMeta{RowCounts: map[catalog.IndexID]float64{10: 500}}
	assert.Equal(t, 500.0, m.RowCount(10))
	assert.Equal(t, UnknownRowCount, m.RowCount(11))
}
