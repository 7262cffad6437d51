package memo

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dshills/cardest/internal/sql/plan"
	"github.com/dshills/cardest/internal/sql/stats"
)

// Group is a set of logically equivalent expressions sharing one
// statistics estimate.
type Group struct {
	id     GroupID
	output []*plan.Column

	mu            sync.Mutex
	exprs         []*GroupExpression
	statistics    *stats.Statistics
	statsReliable bool
}

// ID returns the group id.
func (g *Group) ID() GroupID { return g.id }

// Output returns the columns produced by every expression of the group.
func (g *Group) Output() []*plan.Column { return g.output }

// Expressions returns a snapshot of the group's expressions.
func (g *Group) Expressions() []*GroupExpression {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*GroupExpression(nil), g.exprs...)
}

// Statistics returns a copy of the stored statistics, or nil if none has
// been derived yet.
func (g *Group) Statistics() *stats.Statistics {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statistics == nil {
		return nil
	}
	return g.statistics.Clone()
}

// HasStatistics reports whether statistics have been derived.
func (g *Group) HasStatistics() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statistics != nil
}

// StatsReliable reports whether the first derivation used only known
// column statistics for the expressions of its operator.
func (g *Group) StatsReliable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statsReliable
}

// Reconcile records a derivation of ge's statistics in the group. The
// first derivation is stored as is together with its reliability. Later
// ones only lower the stored NDVs; the stored row count never changes so
// that alternative plans of the group stay comparable.
func (g *Group) Reconcile(ge *GroupExpression, candidate *stats.Statistics, reliable bool) *stats.Statistics {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.statistics == nil {
		g.statistics = candidate.Clone()
		g.statsReliable = reliable
	} else {
		g.statistics.UpdateNDV(candidate)
	}
	if ge != nil {
		ge.setDerived(candidate.RowCount)
	}
	return g.statistics.Clone()
}

// ResetStatistics forgets the stored statistics of the group and the
// derived flags of its expressions.
func (g *Group) ResetStatistics() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statistics = nil
	g.statsReliable = false
	for _, ge := range g.exprs {
		ge.mu.Lock()
		ge.statDerived = false
		ge.estOutputRowCount = 0
		ge.mu.Unlock()
	}
}

// GroupExpression is one operator of a group together with the ids of
// its child groups.
type GroupExpression struct {
	op          plan.Operator
	children    []GroupID
	group       GroupID
	fingerprint uint64

	mu                sync.Mutex
	estOutputRowCount float64
	statDerived       bool
}

// Operator returns the operator.
func (ge *GroupExpression) Operator() plan.Operator { return ge.op }

// Children returns the child group ids.
func (ge *GroupExpression) Children() []GroupID { return ge.children }

// Group returns the owning group id.
func (ge *GroupExpression) Group() GroupID { return ge.group }

// Fingerprint returns the hash used to detect duplicate expressions.
func (ge *GroupExpression) Fingerprint() uint64 { return ge.fingerprint }

// EstOutputRowCount returns the row count of the last derivation for this
// expression.
func (ge *GroupExpression) EstOutputRowCount() float64 {
	ge.mu.Lock()
	defer ge.mu.Unlock()
	return ge.estOutputRowCount
}

// StatDerived reports whether statistics were derived for this expression.
func (ge *GroupExpression) StatDerived() bool {
	ge.mu.Lock()
	defer ge.mu.Unlock()
	return ge.statDerived
}

func (ge *GroupExpression) setDerived(rowCount float64) {
	ge.mu.Lock()
	ge.estOutputRowCount = rowCount
	ge.statDerived = true
	ge.mu.Unlock()
}

func (ge *GroupExpression) String() string {
	var sb strings.Builder
	sb.WriteString(ge.op.Kind().String())
	if exprs := ge.op.Expressions(); len(exprs) > 0 {
		parts := make([]string, len(exprs))
		for i, e := range exprs {
			parts[i] = e.String()
		}
		fmt.Fprintf(&sb, " %s", strings.Join(parts, ", "))
	}
	for _, c := range ge.children {
		fmt.Fprintf(&sb, " G%d", c)
	}
	return sb.String()
}
