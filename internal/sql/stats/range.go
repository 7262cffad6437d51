package stats

import (
	"math"

	"github.com/dshills/cardest/internal/sql/types"
)

const (
	// Overlap assumed between two ranges whose intersection is unbounded
	// when their NDVs cannot be compared.
	infiniteToInfiniteOverlap = 0.5
	// Overlap assumed between an unbounded range and a bounded intersection.
	infiniteToFiniteOverlap = 0.25
)

// StatisticRange is a numeric interval [Low, High] holding NDV distinct
// values. An empty range has NaN bounds.
type StatisticRange struct {
	Low         float64
	High        float64
	LowLiteral  *types.Value
	HighLiteral *types.Value
	NDV         float64
	Type        types.DataType
}

// EmptyRange returns a range that contains no values.
func EmptyRange(typ types.DataType) StatisticRange {
	return StatisticRange{Low: math.NaN(), High: math.NaN(), NDV: 0, Type: typ}
}

// UnboundedRange returns (-Inf, +Inf) with ndv distinct values.
func UnboundedRange(ndv float64, typ types.DataType) StatisticRange {
	return StatisticRange{Low: math.Inf(-1), High: math.Inf(1), NDV: ndv, Type: typ}
}

// PointRange returns the single value v.
func PointRange(v float64, lit *types.Value, typ types.DataType) StatisticRange {
	return StatisticRange{Low: v, High: v, LowLiteral: lit, HighLiteral: lit, NDV: 1, Type: typ}
}

// IsEmpty reports whether the range contains no values.
func (r StatisticRange) IsEmpty() bool {
	return math.IsNaN(r.Low) && math.IsNaN(r.High)
}

// IsInfinite reports whether either bound is infinite.
func (r StatisticRange) IsInfinite() bool {
	return math.IsInf(r.Low, 0) || math.IsInf(r.High, 0)
}

// IsBothInfinite reports whether both bounds are infinite.
func (r StatisticRange) IsBothInfinite() bool {
	return math.IsInf(r.Low, 0) && math.IsInf(r.High, 0)
}

// Length returns High - Low.
func (r StatisticRange) Length() float64 {
	return r.High - r.Low
}

// OverlapPercentWith returns the fraction of r covered by other.
func (r StatisticRange) OverlapPercentWith(other StatisticRange) float64 {
	if r.IsEmpty() || other.IsEmpty() || r.NDV <= 0 || other.NDV <= 0 {
		return 0
	}
	if r.Low == other.Low && r.High == other.High && !r.IsBothInfinite() {
		return 1
	}

	intersect := math.Min(r.High, other.High) - math.Max(r.Low, other.Low)
	if math.IsInf(intersect, 0) {
		if !math.IsInf(r.NDV, 0) && !math.IsInf(other.NDV, 0) {
			return math.Min(other.NDV/r.NDV, 1)
		}
		return infiniteToInfiniteOverlap
	}
	if intersect == 0 {
		// Single value ranges.
		return 1 / math.Max(r.NDV, 1)
	}
	if intersect < 0 {
		return 0
	}
	length := r.Length()
	if math.IsInf(length, 0) {
		return infiniteToFiniteOverlap
	}
	return intersect / length
}

// Intersect returns the common part of r and other. Intersecting with an
// unbounded range leaves the other operand unchanged.
func (r StatisticRange) Intersect(other StatisticRange) StatisticRange {
	switch {
	case r.IsEmpty() || other.IsEmpty():
		return EmptyRange(r.Type)
	case other.IsBothInfinite():
		return r
	case r.IsBothInfinite():
		return other
	}

	low, lowLit := r.Low, r.LowLiteral
	if other.Low > low {
		low, lowLit = other.Low, other.LowLiteral
	}
	high, highLit := r.High, r.HighLiteral
	if other.High < high {
		high, highLit = other.High, other.HighLiteral
	}
	if low > high {
		return EmptyRange(r.Type)
	}
	return StatisticRange{
		Low:         low,
		High:        high,
		LowLiteral:  lowLit,
		HighLiteral: highLit,
		NDV:         r.overlappingNDV(other),
		Type:        r.Type,
	}
}

func (r StatisticRange) overlappingNDV(other StatisticRange) float64 {
	left := r.OverlapPercentWith(other) * r.NDV
	right := other.OverlapPercentWith(r) * other.NDV
	return math.Min(math.Min(r.NDV, other.NDV), math.Max(left, right))
}

// Union returns the span of r and other. The NDV counts overlapping
// values once.
func (r StatisticRange) Union(other StatisticRange) StatisticRange {
	switch {
	case r.IsEmpty():
		return other
	case other.IsEmpty():
		return r
	}

	pThis := r.OverlapPercentWith(other)
	pOther := other.OverlapPercentWith(r)
	maxOverlapNDV := math.Max(pThis*r.NDV, pOther*other.NDV)
	ndv := maxOverlapNDV + (1-pThis)*r.NDV + (1-pOther)*other.NDV

	low, lowLit := r.Low, r.LowLiteral
	if other.Low < low {
		low, lowLit = other.Low, other.LowLiteral
	}
	high, highLit := r.High, r.HighLiteral
	if other.High > high {
		high, highLit = other.High, other.HighLiteral
	}
	return StatisticRange{
		Low:         low,
		High:        high,
		LowLiteral:  lowLit,
		HighLiteral: highLit,
		NDV:         ndv,
		Type:        r.Type,
	}
}

// Contains reports whether v lies within the bounds.
func (r StatisticRange) Contains(v float64) bool {
	return !r.IsEmpty() && v >= r.Low && v <= r.High
}
