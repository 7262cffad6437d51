package cardinality

import (
	"math"

	"github.com/dshills/cardest/internal/sql/plan"
	"github.com/dshills/cardest/internal/sql/stats"
)

// JoinEstimator derives the statistics of a join from the statistics of
// its inputs.
type JoinEstimator struct {
	ctx    *Context
	filter *FilterEstimator
}

// NewJoinEstimator returns a join estimator using the settings of ctx.
func NewJoinEstimator(ctx *Context) *JoinEstimator {
	return &JoinEstimator{ctx: ctx, filter: NewFilterEstimator(ctx)}
}

// equiKey is one equality condition oriented so that left reads the left
// input.
type equiKey struct {
	left, right plan.Expression
	lcs, rcs    stats.ColumnStat
	// ndvL and ndvR replace an unknown NDV by the row count of the side.
	ndvL, ndvR float64
	nullSafe   bool
	// sel is the fraction of the cross product that matches.
	sel float64
}

func (j *JoinEstimator) equiKeys(left, right *stats.Statistics, conds []*plan.Comparison) []equiKey {
	keys := make([]equiKey, 0, len(conds))
	for _, c := range conds {
		l, r := c.Left, c.Right
		if !readsOnly(l, left) && readsOnly(l, right) {
			l, r = r, l
		}
		k := equiKey{
			left:     l,
			right:    r,
			lcs:      EstimateExpression(l, left),
			rcs:      EstimateExpression(r, right),
			nullSafe: c.Op == plan.OpNullSafeEqual,
		}
		k.ndvL = keyNDV(k.lcs, left.RowCount)
		k.ndvR = keyNDV(k.rcs, right.RowCount)
		k.sel = 1 / math.Max(math.Max(k.ndvL, k.ndvR), 1)
		if !k.nullSafe {
			k.sel *= (1 - k.lcs.NullFraction(left.RowCount)) * (1 - k.rcs.NullFraction(right.RowCount))
		}
		keys = append(keys, k)
	}
	return keys
}

func keyNDV(cs stats.ColumnStat, rows float64) float64 {
	if cs.IsUnknown {
		return math.Max(rows, 1)
	}
	return cs.NDV
}

func readsOnly(e plan.Expression, s *stats.Statistics) bool {
	for _, c := range plan.InputColumns(e) {
		if !s.HasColumn(c.ID) {
			return false
		}
	}
	return true
}

// correlatedGroups partitions keys into sets of conditions that read the
// same base table column of the same relation on either side. Conditions in one set are not
// independent, so only the most selective of them counts.
func correlatedGroups(keys []equiKey) [][]int {
	parent := make([]int, len(keys))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	owner := make(map[plan.Origin]int)
	for i, k := range keys {
		for _, col := range plan.InputColumns(k.left, k.right) {
			if col.Origin == nil {
				continue
			}
			if j, ok := owner[*col.Origin]; ok {
				parent[find(i)] = find(j)
				continue
			}
			owner[*col.Origin] = i
		}
	}

	byRoot := make(map[int]int)
	var groups [][]int
	for i := range keys {
		root := find(i)
		idx, ok := byRoot[root]
		if !ok {
			idx = len(groups)
			byRoot[root] = idx
			groups = append(groups, nil)
		}
		groups[idx] = append(groups[idx], i)
	}
	return groups
}

// combine multiplies, over the correlated groups, the smallest value fn
// returns for a key of the group.
func combine(keys []equiKey, fn func(equiKey) float64) float64 {
	sel := 1.0
	for _, group := range correlatedGroups(keys) {
		best := math.Inf(1)
		for _, i := range group {
			best = math.Min(best, fn(keys[i]))
		}
		sel *= best
	}
	return sel
}

// Estimate returns the statistics of join over inputs left and right.
func (j *JoinEstimator) Estimate(left, right *stats.Statistics, join *plan.Join) *stats.Statistics {
	keys := j.equiKeys(left, right, join.EqualConditions)
	if join.Type.IsSemiOrAnti() {
		return j.estimateSemiAnti(left, right, join, keys)
	}

	L, R := left.RowCount, right.RowCount
	out := stats.New(stats.UnknownRowCount, left.WidthInJoinCluster+right.WidthInJoinCluster)
	copyColumns(out, left)
	copyColumns(out, right)
	if L < 0 || R < 0 {
		return out
	}

	inner := L * R
	if len(keys) > 0 {
		inner *= combine(keys, func(k equiKey) float64 { return k.sel })
	}
	if len(join.OtherConditions) > 0 {
		joined := out.Clone()
		joined.RowCount = inner
		inner *= j.filter.Selectivity(join.OtherConditions, joined)
	}
	if L > 0 && R > 0 {
		inner = math.Max(inner, 1)
	}

	rows := inner
	switch join.Type {
	case plan.LeftOuterJoin:
		rows = math.Max(inner, L)
	case plan.RightOuterJoin:
		rows = math.Max(inner, R)
	case plan.FullOuterJoin:
		rows = math.Max(inner, math.Max(L, R))
	}
	out.RowCount = rows

	scaleSide(out, left, rows)
	scaleSide(out, right, rows)
	for _, k := range keys {
		j.intersectKey(out, k, join.Type, rows-inner)
	}
	out.EnforceValid()
	return out
}

func (j *JoinEstimator) estimateSemiAnti(left, right *stats.Statistics, join *plan.Join, keys []equiKey) *stats.Statistics {
	preserved, other := left, right
	if !join.Type.PreservesLeft() {
		preserved, other = right, left
	}
	out := stats.New(stats.UnknownRowCount, left.WidthInJoinCluster+right.WidthInJoinCluster)
	copyColumns(out, preserved)
	if preserved.RowCount < 0 {
		return out
	}

	semi := 1.0
	if other.RowCount == 0 {
		semi = 0
	}
	if len(keys) > 0 {
		semi *= combine(keys, func(k equiKey) float64 {
			ndvP, ndvO, csP, rowsP := k.ndvL, k.ndvR, k.lcs, left.RowCount
			if !join.Type.PreservesLeft() {
				ndvP, ndvO, csP, rowsP = k.ndvR, k.ndvL, k.rcs, right.RowCount
			}
			s := math.Min(1, ndvO/math.Max(ndvP, 1))
			if !k.nullSafe {
				s *= 1 - csP.NullFraction(rowsP)
			}
			return s
		})
	}
	if len(join.OtherConditions) > 0 {
		joined := out.Clone()
		copyColumns(joined, other)
		joined.RowCount = preserved.RowCount * semi
		semi *= j.filter.Selectivity(join.OtherConditions, joined)
	}

	rows := preserved.RowCount * semi
	if join.Type.IsAnti() {
		rows = preserved.RowCount * math.Max(j.ctx.Session.MinSelectivity, 1-semi)
	} else if preserved.RowCount > 0 && other.RowCount > 0 {
		rows = math.Max(rows, 1)
	}
	out.RowCount = rows
	scaleSide(out, preserved, rows)
	if !join.Type.IsAnti() {
		for _, k := range keys {
			j.intersectKey(out, k, join.Type, 0)
		}
	}
	out.EnforceValid()
	return out
}

func copyColumns(dst, src *stats.Statistics) {
	for _, id := range src.ColumnIDs() {
		cs, _ := src.Column(id)
		dst.SetColumn(id, cs)
	}
}

// scaleSide scales the columns of one input present in out to the output
// row count.
func scaleSide(out, side *stats.Statistics, rows float64) {
	if side.RowCount <= 0 || rows >= side.RowCount {
		return
	}
	ratio := rows / side.RowCount
	for _, id := range side.ColumnIDs() {
		if cs, ok := out.Column(id); ok {
			out.SetColumn(id, cs.ApplySelectivity(ratio, side.RowCount))
		}
	}
}

// intersectKey narrows both sides of a key to the common range. unmatched
// is the number of rows an outer join pads with NULLs.
func (j *JoinEstimator) intersectKey(out *stats.Statistics, k equiKey, typ plan.JoinType, unmatched float64) {
	if k.lcs.IsUnknown || k.rcs.IsUnknown {
		return
	}
	rng := k.lcs.Range(k.left.Type()).Intersect(k.rcs.Range(k.right.Type()))
	ndv := math.Min(k.lcs.NDV, k.rcs.NDV)

	update := func(e plan.Expression, padded bool) {
		col := columnOf(e)
		if col == nil {
			return
		}
		cs, ok := out.Column(col.ID)
		if !ok || cs.IsUnknown {
			return
		}
		if !rng.IsEmpty() {
			cs.MinValue, cs.MinLiteral = rng.Low, rng.LowLiteral
			cs.MaxValue, cs.MaxLiteral = rng.High, rng.HighLiteral
		}
		cs.NDV = math.Min(cs.NDV, ndv)
		cs.Histogram = nil
		switch {
		case padded:
			cs.NumNulls = math.Max(0, unmatched)
		case !k.nullSafe && (typ == plan.InnerJoin || typ == plan.CrossJoin || typ.IsSemiOrAnti()):
			cs.NumNulls = 0
		}
		out.SetColumn(col.ID, cs)
	}
	update(k.left, typ == plan.RightOuterJoin || typ == plan.FullOuterJoin)
	update(k.right, typ == plan.LeftOuterJoin || typ == plan.FullOuterJoin)
}
