package memo

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/dshills/cardest/internal/sql/plan"
)

// GroupID indexes a group in the memo arena. The zero value is invalid.
type GroupID int

// Memo collects a forest of query plans structured by logical
// equivalency. Groups are stored in an arena and reference their children
// by id, so the structure holds no cycles.
type Memo struct {
	mu       sync.RWMutex
	groups   []*Group // groups[id-1]
	interned map[uint64][]*GroupExpression
	root     GroupID
}

// New returns an empty memo.
func New() *Memo {
	return &Memo{interned: make(map[uint64][]*GroupExpression)}
}

// AddGroup creates a new group holding op over the given child groups. An
// expression identical to one already memoized is not added again; the
// existing expression is returned instead.
func (m *Memo) AddGroup(op plan.Operator, children ...GroupID) (*GroupExpression, error) {
	return m.add(0, op, children)
}

// AddToGroup adds an alternative expression to an existing group.
func (m *Memo) AddToGroup(id GroupID, op plan.Operator, children ...GroupID) (*GroupExpression, error) {
	if m.Group(id) == nil {
		return nil, fmt.Errorf("group %d does not exist", id)
	}
	return m.add(id, op, children)
}

func (m *Memo) add(target GroupID, op plan.Operator, children []GroupID) (*GroupExpression, error) {
	if op == nil {
		return nil, fmt.Errorf("nil operator")
	}
	if arity := op.Arity(); arity != len(children) {
		return nil, fmt.Errorf("%s expects %d children, got %d", op.Kind(), arity, len(children))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	childOutputs := make([][]*plan.Column, len(children))
	for i, c := range children {
		g := m.groupLocked(c)
		if g == nil {
			return nil, fmt.Errorf("child group %d does not exist", c)
		}
		childOutputs[i] = g.output
	}

	fp := fingerprint(op, children)
	for _, existing := range m.interned[fp] {
		if sameExpression(existing, op, children) {
			return existing, nil
		}
	}

	ge := &GroupExpression{
		op:          op,
		children:    append([]GroupID(nil), children...),
		fingerprint: fp,
	}

	var g *Group
	if target == 0 {
		g = &Group{
			id:     GroupID(len(m.groups) + 1),
			output: plan.OutputColumns(op, childOutputs),
		}
		m.groups = append(m.groups, g)
	} else {
		g = m.groupLocked(target)
	}
	ge.group = g.id

	g.mu.Lock()
	g.exprs = append(g.exprs, ge)
	g.mu.Unlock()

	m.interned[fp] = append(m.interned[fp], ge)
	return ge, nil
}

// Group returns the group with the given id, or nil.
func (m *Memo) Group(id GroupID) *Group {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.groupLocked(id)
}

func (m *Memo) groupLocked(id GroupID) *Group {
	if id <= 0 || int(id) > len(m.groups) {
		return nil
	}
	return m.groups[id-1]
}

// NumGroups returns the number of groups.
func (m *Memo) NumGroups() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups)
}

// SetRoot marks the group producing the query result.
func (m *Memo) SetRoot(id GroupID) error {
	if m.Group(id) == nil {
		return fmt.Errorf("group %d does not exist", id)
	}
	m.mu.Lock()
	m.root = id
	m.mu.Unlock()
	return nil
}

// Root returns the root group id, or the last group when none was set.
func (m *Memo) Root() GroupID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.root == 0 {
		return GroupID(len(m.groups))
	}
	return m.root
}

// ChildGroup returns the group of the i-th child of ge.
func (m *Memo) ChildGroup(ge *GroupExpression, i int) *Group {
	if i < 0 || i >= len(ge.children) {
		return nil
	}
	return m.Group(ge.children[i])
}

// BottomUp returns every expression reachable from root so that the
// expressions of child groups come before their parents.
func (m *Memo) BottomUp(root GroupID) []*GroupExpression {
	var (
		out     []*GroupExpression
		visited = make(map[GroupID]bool)
		visit   func(id GroupID)
	)
	visit = func(id GroupID) {
		if visited[id] {
			return
		}
		visited[id] = true
		g := m.Group(id)
		if g == nil {
			return
		}
		exprs := g.Expressions()
		for _, ge := range exprs {
			for _, c := range ge.children {
				visit(c)
			}
		}
		out = append(out, exprs...)
	}
	visit(root)
	return out
}

// String renders the memo one group per line.
func (m *Memo) String() string {
	m.mu.RLock()
	groups := append([]*Group(nil), m.groups...)
	m.mu.RUnlock()

	var sb strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&sb, "G%d:", g.id)
		for _, ge := range g.Expressions() {
			fmt.Fprintf(&sb, " [%s]", ge)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func fingerprint(op plan.Operator, children []GroupID) uint64 {
	h := xxhash.New()
	fmt.Fprintf(h, "%d|%v|%+v", op.Kind(), children, op)
	for _, e := range op.Expressions() {
		h.WriteString("|")
		h.WriteString(e.String())
	}
	return h.Sum64()
}

func sameExpression(ge *GroupExpression, op plan.Operator, children []GroupID) bool {
	if len(ge.children) != len(children) {
		return false
	}
	for i := range children {
		if ge.children[i] != children[i] {
			return false
		}
	}
	return reflect.DeepEqual(ge.op, op)
}
