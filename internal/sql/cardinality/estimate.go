package cardinality

import (
	"time"

	crdberrors "github.com/cockroachdb/errors"

	"github.com/dshills/cardest/internal/errors"
	"github.com/dshills/cardest/internal/log"
	"github.com/dshills/cardest/internal/metrics"
	"github.com/dshills/cardest/internal/sql/memo"
	"github.com/dshills/cardest/internal/sql/plan"
	"github.com/dshills/cardest/internal/sql/stats"
)

// Estimate derives the statistics of ge from the statistics of its child
// groups and reconciles them with its group. Children must have been
// estimated first.
//
// A failing rule falls back to the statistics of the first child unless
// the session is in debug mode or the failure is an internal assertion, in
// which case the error is returned.
func Estimate(ctx *Context, m *memo.Memo, ge *memo.GroupExpression) error {
	group := m.Group(ge.Group())
	if group == nil {
		return errors.InvalidPlanError("group %d does not exist", ge.Group())
	}
	op := ge.Operator()
	kind := op.Kind().String()

	children := make([]*stats.Statistics, len(ge.Children()))
	for i := range children {
		if g := m.ChildGroup(ge, i); g != nil {
			children[i] = g.Statistics()
		}
	}

	candidate, err := derive(ctx, op, group.Output(), children)
	outcome := metrics.OutcomeOK
	reliable := false
	if err != nil {
		if ctx.Session.Debug || errors.IsAssertionFailure(err) {
			metrics.EstimationCounter.WithLabelValues(kind, metrics.OutcomeError).Inc()
			return crdberrors.Wrapf(err, "estimating group %d", group.ID())
		}
		ctx.Logger.Warn("statistics estimation failed, using fallback",
			log.Int("group", int(group.ID())),
			log.String("operator", kind),
			log.Err(err))
		candidate = fallback(children, group.Output())
		outcome = metrics.OutcomeFallback
	} else {
		reliable = !usesUnknownInputs(op, candidate, children)
	}

	candidate.Normalize()
	group.Reconcile(ge, candidate, reliable)
	metrics.EstimationCounter.WithLabelValues(kind, outcome).Inc()
	return nil
}

// derive runs the calculator, turning a panic into an estimation error.
func derive(ctx *Context, op plan.Operator, output []*plan.Column, children []*stats.Statistics) (s *stats.Statistics, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, errors.EstimationFailedError(op.Kind().String(), crdberrors.Newf("panic: %v", r))
		}
	}()
	return NewCalculator(ctx).Derive(op, output, children)
}

// fallback returns the statistics used when a rule fails: those of the
// first child, or all-unknown columns over one row.
func fallback(children []*stats.Statistics, output []*plan.Column) *stats.Statistics {
	if len(children) > 0 && children[0] != nil {
		return children[0].Clone()
	}
	return stats.NewUnknown(1, output)
}

// usesUnknownInputs reports whether an input column of op has unknown
// statistics in its children or in the derived result.
func usesUnknownInputs(op plan.Operator, candidate *stats.Statistics, children []*stats.Statistics) bool {
	inputs := plan.InputColumns(op.Expressions()...)
	if len(inputs) == 0 {
		return false
	}
	if candidate.IsInputColumnsUnknown(inputs) {
		return true
	}
	for _, child := range children {
		if child != nil && child.IsInputColumnsUnknown(inputs) {
			return true
		}
	}
	return false
}

// EstimateMemo estimates every expression reachable from the root of m,
// children before parents.
func EstimateMemo(ctx *Context, m *memo.Memo) error {
	start := time.Now()
	defer func() {
		metrics.EstimationDuration.Observe(time.Since(start).Seconds())
	}()

	exprs := m.BottomUp(m.Root())
	registerKeyColumns(ctx, exprs)
	for _, ge := range exprs {
		if err := Estimate(ctx, m, ge); err != nil {
			return err
		}
	}
	ctx.Logger.Debug("estimated memo",
		log.Int("groups", m.NumGroups()),
		log.Int("expressions", len(exprs)),
		log.Duration("elapsed", time.Since(start)))
	return nil
}

// registerKeyColumns records the join, grouping and partition keys of
// exprs so that scans can flag unknown statistics on them.
func registerKeyColumns(ctx *Context, exprs []*memo.GroupExpression) {
	for _, ge := range exprs {
		switch op := ge.Operator().(type) {
		case *plan.Join:
			for _, cond := range op.EqualConditions {
				ctx.AddKeyColumns(plan.InputColumns(cond)...)
			}
		case *plan.Aggregate:
			ctx.AddKeyColumns(plan.InputColumns(op.GroupBy...)...)
		case *plan.PartitionTopN:
			ctx.AddKeyColumns(plan.InputColumns(op.PartitionBy...)...)
		case *plan.Window:
			for _, p := range op.Functions {
				if wf, ok := p.Expr.(*plan.WindowFunc); ok {
					ctx.AddKeyColumns(plan.InputColumns(wf.PartitionBy...)...)
				}
			}
		}
	}
}

// Scans returns the distinct scan operators reachable from the root of m.
func Scans(m *memo.Memo) []*plan.Scan {
	var out []*plan.Scan
	seen := make(map[*plan.Scan]bool)
	for _, ge := range m.BottomUp(m.Root()) {
		if s, ok := ge.Operator().(*plan.Scan); ok && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
