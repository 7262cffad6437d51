package stats

import "math"

// Selectivity is the fraction of rows that satisfy a predicate.
type Selectivity float64

// LogicalOp represents a logical operator for combining selectivities.
type LogicalOp int

const (
	LogicalAnd LogicalOp = iota
	LogicalOr
)

// CombineSelectivity combines multiple selectivities assuming independence.
func CombineSelectivity(op LogicalOp, selectivities ...Selectivity) Selectivity {
	if len(selectivities) == 0 {
		return 1.0
	}

	result := selectivities[0]
	for i := 1; i < len(selectivities); i++ {
		switch op {
		case LogicalAnd:
			result = result * selectivities[i]
		case LogicalOr:
			// Inclusion-exclusion.
			result = result + selectivities[i] - (result * selectivities[i])
		}
	}
	return result.Clamp()
}

// Clamp restricts s to [0, 1].
func (s Selectivity) Clamp() Selectivity {
	if math.IsNaN(float64(s)) {
		return 1
	}
	return Selectivity(math.Max(0, math.Min(1, float64(s))))
}

// Floor returns s raised to at least min.
func (s Selectivity) Floor(min float64) Selectivity {
	if float64(s) < min {
		return Selectivity(min)
	}
	return s
}
