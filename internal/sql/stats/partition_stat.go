package stats

import (
	"math"

	"github.com/dshills/cardest/internal/sql/types"
)

// PartitionColumnStat is the statistic of a column within one partition.
type PartitionColumnStat struct {
	Count      float64
	NDV        float64
	NumNulls   float64
	DataSize   float64
	MinValue   float64
	MaxValue   float64
	MinLiteral *types.Value
	MaxLiteral *types.Value
	IsUnknown  bool
}

// UnknownPartitionColumnStat is returned for partitions without statistics.
var UnknownPartitionColumnStat = PartitionColumnStat{
	Count:     UnknownRowCount,
	NDV:       1,
	MinValue:  math.Inf(-1),
	MaxValue:  math.Inf(1),
	IsUnknown: true,
}

// MergePartitionColumnStats combines the statistics of several partitions
// of one column. It returns false when parts is empty or any part is
// unknown; callers then fall back to table level statistics.
func MergePartitionColumnStats(parts []PartitionColumnStat, typ types.DataType) (ColumnStat, bool) {
	if len(parts) == 0 {
		return Unknown, false
	}
	for _, p := range parts {
		if p.IsUnknown {
			return Unknown, false
		}
	}

	first := parts[0]
	merged := ColumnStat{
		MinValue:   first.MinValue,
		MaxValue:   first.MaxValue,
		MinLiteral: first.MinLiteral,
		MaxLiteral: first.MaxLiteral,
	}
	rng := StatisticRange{
		Low: first.MinValue, High: first.MaxValue,
		LowLiteral: first.MinLiteral, HighLiteral: first.MaxLiteral,
		NDV: first.NDV, Type: typ,
	}
	var count, nulls, size float64
	for i, p := range parts {
		count += p.Count
		nulls += p.NumNulls
		size += p.DataSize
		if i == 0 {
			continue
		}
		rng = rng.Union(StatisticRange{
			Low: p.MinValue, High: p.MaxValue,
			LowLiteral: p.MinLiteral, HighLiteral: p.MaxLiteral,
			NDV: p.NDV, Type: typ,
		})
	}

	merged.MinValue, merged.MinLiteral = rng.Low, rng.LowLiteral
	merged.MaxValue, merged.MaxLiteral = rng.High, rng.HighLiteral
	merged.NDV = math.Min(rng.NDV, count)
	merged.NumNulls = nulls
	merged.Count = count
	if nonNull := count - nulls; nonNull > 0 {
		merged.AvgSizeBytes = size / nonNull
	} else if typ != nil {
		merged.AvgSizeBytes = typ.Width()
	}
	return merged, true
}
