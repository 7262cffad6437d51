package fixture

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/dshills/cardest/internal/catalog"
	cerrors "github.com/dshills/cardest/internal/errors"
	"github.com/dshills/cardest/internal/sql/memo"
	"github.com/dshills/cardest/internal/sql/plan"
	"github.com/dshills/cardest/internal/sql/types"
	"github.com/dshills/cardest/internal/statscache"
)

// Node is one operator of a fixture plan. Which fields apply depends on Op.
type Node struct {
	Op string `yaml:"op"`
	// Label names the node's group in expectations and reports.
	Label string `yaml:"label,omitempty"`
	// Alias qualifies the node's output columns.
	Alias string `yaml:"alias,omitempty"`

	// scan
	Table      string   `yaml:"table,omitempty"`
	Database   string   `yaml:"database,omitempty"`
	Columns    []string `yaml:"columns,omitempty"`
	Index      string   `yaml:"index,omitempty"`
	Partitions []string `yaml:"partitions,omitempty"`

	// filter, project, aggregate, window, generate, one_row
	Where   []string `yaml:"where,omitempty"`
	Select  []Item   `yaml:"select,omitempty"`
	GroupBy []string `yaml:"group_by,omitempty"`

	// join
	JoinType string   `yaml:"join_type,omitempty"`
	On       []string `yaml:"on,omitempty"`
	// Commute adds the join with its inputs swapped to the same group.
	Commute bool `yaml:"commute,omitempty"`

	// union, except, intersect
	Distinct bool       `yaml:"distinct,omitempty"`
	Values   [][]string `yaml:"values,omitempty"`

	// limit, top_n, sort, partition_top_n
	Limit       int64    `yaml:"limit,omitempty"`
	Offset      int64    `yaml:"offset,omitempty"`
	OrderBy     []string `yaml:"order_by,omitempty"`
	PartitionBy []string `yaml:"partition_by,omitempty"`
	GlobalLimit bool     `yaml:"global_limit,omitempty"`

	// assert_num_rows
	Assert string `yaml:"assert,omitempty"`
	Count  int64  `yaml:"count,omitempty"`

	// with, cte
	Name string `yaml:"name,omitempty"`

	// repeat
	GroupingSets [][]string `yaml:"grouping_sets,omitempty"`

	// empty
	Schema []ColumnSpec `yaml:"schema,omitempty"`

	Children []*Node `yaml:"children,omitempty"`
}

// Item is an output expression with an optional name. In YAML it is
// either a plain expression string or a mapping with expr and as keys.
type Item struct {
	Expr string `yaml:"expr"`
	As   string `yaml:"as,omitempty"`
}

// UnmarshalYAML accepts the scalar shorthand.
func (it *Item) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		it.Expr = value.Value
		return nil
	}
	type plain Item
	return value.Decode((*plain)(it))
}

// Build resolves the fixture into a catalog, a statistics cache and a memo.
func (f *Fixture) Build() (*Scenario, error) {
	return f.BuildWith(statscache.Options{})
}

// BuildWith is Build with a statistics cache configured by opts.
func (f *Fixture) BuildWith(opts statscache.Options) (*Scenario, error) {
	cat, err := buildCatalog(f.Tables)
	if err != nil {
		return nil, err
	}
	if len(f.Changes) > 0 && opts.Deltas == nil {
		if opts.Deltas, err = trackChanges(cat, f.Changes); err != nil {
			return nil, err
		}
	}
	cache := statscache.New(opts)
	if err := f.Statistics.Apply(cache, cat); err != nil {
		return nil, err
	}

	b := &builder{
		cat:    cat,
		memo:   memo.New(),
		labels: make(map[string]memo.GroupID),
		ctes:   make(map[string]cteDef),
	}
	root, _, err := b.build(f.Plan)
	if err != nil {
		return nil, errors.Wrapf(err, "fixture %q", f.Name)
	}
	if err := b.memo.SetRoot(root); err != nil {
		return nil, err
	}
	b.labels["root"] = root

	return &Scenario{
		Fixture: f,
		Catalog: cat,
		Cache:   cache,
		Memo:    b.memo,
		Labels:  b.labels,
	}, nil
}

type cteDef struct {
	id    plan.CTEID
	scope scope
}

type builder struct {
	cat          *catalog.MemoryCatalog
	memo         *memo.Memo
	alloc        plan.ColumnAllocator
	labels       map[string]memo.GroupID
	ctes         map[string]cteDef
	nextCTE      plan.CTEID
	nextRelation plan.RelationID
}

func (b *builder) build(n *Node) (memo.GroupID, scope, error) {
	if n == nil {
		return 0, nil, errors.New("missing plan node")
	}
	id, sc, err := b.buildOp(n)
	if err != nil {
		if n.Label != "" {
			return 0, nil, errors.Wrapf(err, "%s %q", n.Op, n.Label)
		}
		return 0, nil, errors.Wrapf(err, "%s", n.Op)
	}
	if n.Label != "" {
		if _, dup := b.labels[n.Label]; dup || n.Label == "root" {
			return 0, nil, errors.Newf("duplicate node label %q", n.Label)
		}
		b.labels[n.Label] = id
	}
	return id, sc.requalify(n.Alias), nil
}

func (b *builder) add(op plan.Operator, children ...memo.GroupID) (memo.GroupID, error) {
	ge, err := b.memo.AddGroup(op, children...)
	if err != nil {
		return 0, err
	}
	return ge.Group(), nil
}

// buildChildren builds the children of n, requiring want of them. A
// negative want accepts any number above zero.
func (b *builder) buildChildren(n *Node, want int) ([]memo.GroupID, []scope, error) {
	switch {
	case want < 0 && len(n.Children) == 0:
		return nil, nil, errors.New("expected at least one child")
	case want >= 0 && len(n.Children) != want:
		return nil, nil, errors.Newf("expected %d children, got %d", want, len(n.Children))
	}
	ids := make([]memo.GroupID, len(n.Children))
	scopes := make([]scope, len(n.Children))
	for i, c := range n.Children {
		var err error
		if ids[i], scopes[i], err = b.build(c); err != nil {
			return nil, nil, err
		}
	}
	return ids, scopes, nil
}

func (b *builder) buildOp(n *Node) (memo.GroupID, scope, error) {
	switch strings.ToLower(n.Op) {
	case "scan":
		return b.scan(n)
	case "cte":
		return b.cteConsumer(n)
	case "with":
		return b.with(n)
	case "one_row":
		return b.oneRow(n)
	case "empty":
		return b.empty(n)
	case "join":
		return b.join(n)
	case "union", "except", "intersect":
		return b.setOp(n)
	}

	ids, scopes, err := b.buildChildren(n, 1)
	if err != nil {
		return 0, nil, err
	}
	child, in := ids[0], scopes[0]
	scalar := &binder{scope: in}

	switch strings.ToLower(n.Op) {
	case "filter":
		conds, err := scalar.bindAll(n.Where)
		if err != nil {
			return 0, nil, err
		}
		var conjuncts []plan.Expression
		for _, c := range conds {
			conjuncts = append(conjuncts, plan.Conjuncts(c)...)
		}
		id, err := b.add(&plan.Filter{Conjuncts: conjuncts}, child)
		return id, in, err

	case "project":
		projections, out, err := b.projections(n.Select, scalar, in)
		if err != nil {
			return 0, nil, err
		}
		id, err := b.add(&plan.Project{Projections: projections}, child)
		return id, out, err

	case "aggregate":
		groupBy, err := scalar.bindAll(n.GroupBy)
		if err != nil {
			return 0, nil, err
		}
		projections, out, err := b.projections(n.Select, &binder{scope: in, aggregates: true}, in)
		if err != nil {
			return 0, nil, err
		}
		id, err := b.add(&plan.Aggregate{GroupBy: groupBy, Outputs: projections}, child)
		return id, out, err

	case "window":
		w := &plan.Window{}
		out := append(scope{}, in...)
		wb := &binder{scope: in, windows: true}
		for _, it := range n.Select {
			e, err := wb.bindString(it.Expr)
			if err != nil {
				return 0, nil, err
			}
			if _, ok := e.(*plan.WindowFunc); !ok {
				return 0, nil, errors.Newf("%q is not a window function", it.Expr)
			}
			col := b.newColumn(it, e)
			w.Functions = append(w.Functions, plan.Projection{Column: col, Expr: e})
			out = append(out, scopeColumn{col: col})
		}
		id, err := b.add(w, child)
		return id, out, err

	case "generate":
		g := &plan.Generate{}
		out := append(scope{}, in...)
		for _, it := range n.Select {
			e, err := scalar.bindString(it.Expr)
			if err != nil {
				return 0, nil, err
			}
			col := b.newColumn(it, e)
			g.Generators = append(g.Generators, e)
			g.Outputs = append(g.Outputs, col)
			out = append(out, scopeColumn{col: col})
		}
		id, err := b.add(g, child)
		return id, out, err

	case "limit":
		id, err := b.add(&plan.Limit{Limit: n.Limit, Offset: n.Offset}, child)
		return id, in, err

	case "top_n":
		orderBy, err := bindOrderBy(scalar, n.OrderBy)
		if err != nil {
			return 0, nil, err
		}
		id, err := b.add(&plan.TopN{Limit: n.Limit, Offset: n.Offset, OrderBy: orderBy}, child)
		return id, in, err

	case "sort":
		orderBy, err := bindOrderBy(scalar, n.OrderBy)
		if err != nil {
			return 0, nil, err
		}
		id, err := b.add(&plan.Sort{OrderBy: orderBy}, child)
		return id, in, err

	case "partition_top_n":
		partitionBy, err := scalar.bindAll(n.PartitionBy)
		if err != nil {
			return 0, nil, err
		}
		orderBy, err := bindOrderBy(scalar, n.OrderBy)
		if err != nil {
			return 0, nil, err
		}
		id, err := b.add(&plan.PartitionTopN{
			PartitionBy:    partitionBy,
			OrderBy:        orderBy,
			PartitionLimit: n.Limit,
			HasGlobalLimit: n.GlobalLimit,
		}, child)
		return id, in, err

	case "assert_num_rows":
		a, err := parseAssertion(n.Assert)
		if err != nil {
			return 0, nil, err
		}
		id, err := b.add(&plan.AssertNumRows{Assertion: a, DesiredCount: n.Count}, child)
		return id, in, err

	case "repeat":
		r := &plan.Repeat{}
		for _, set := range n.GroupingSets {
			exprs, err := scalar.bindAll(set)
			if err != nil {
				return 0, nil, err
			}
			r.GroupingSets = append(r.GroupingSets, exprs)
		}
		id, err := b.add(r, child)
		return id, in, err

	case "exchange":
		id, err := b.add(&plan.Exchange{}, child)
		return id, in, err

	case "sink":
		id, err := b.add(&plan.Sink{}, child)
		return id, in, err
	}
	return 0, nil, cerrors.FeatureNotSupportedError(fmt.Sprintf("operator %q", n.Op))
}

// projections binds output items. A bare column reference without a name
// passes the input column through; everything else gets a new column.
func (b *builder) projections(items []Item, eb *binder, in scope) ([]plan.Projection, scope, error) {
	if len(items) == 0 {
		return nil, nil, errors.New("no output expressions")
	}
	out := make(scope, 0, len(items))
	projections := make([]plan.Projection, 0, len(items))
	for _, it := range items {
		e, err := eb.bindString(it.Expr)
		if err != nil {
			return nil, nil, err
		}
		if ref, ok := e.(*plan.ColumnRef); ok && it.As == "" {
			projections = append(projections, plan.Projection{Column: ref.Column, Expr: e})
			out = append(out, scopeColumn{qualifier: qualifierOf(in, ref.Column), col: ref.Column})
			continue
		}
		col := b.newColumn(it, e)
		projections = append(projections, plan.Projection{Column: col, Expr: e})
		out = append(out, scopeColumn{col: col})
	}
	return projections, out, nil
}

// newColumn allocates the output column of an item. Renamed column
// references keep the origin of the referenced column.
func (b *builder) newColumn(it Item, e plan.Expression) *plan.Column {
	name := it.As
	if name == "" {
		name = e.String()
	}
	col := b.alloc.NewColumn(name, e.Type())
	if ref, ok := e.(*plan.ColumnRef); ok {
		col.Origin = ref.Column.Origin
		col.Hidden = ref.Column.Hidden
		col.Nullable = ref.Column.Nullable
	}
	return col
}

func qualifierOf(s scope, col *plan.Column) string {
	for _, sc := range s {
		if sc.col == col {
			return sc.qualifier
		}
	}
	return ""
}

func bindOrderBy(b *binder, items []string) ([]plan.Expression, error) {
	trimmed := make([]string, len(items))
	for i, it := range items {
		s := strings.TrimSpace(it)
		upper := strings.ToUpper(s)
		switch {
		case strings.HasSuffix(upper, " DESC"):
			s = s[:len(s)-len(" DESC")]
		case strings.HasSuffix(upper, " ASC"):
			s = s[:len(s)-len(" ASC")]
		}
		trimmed[i] = s
	}
	return b.bindAll(trimmed)
}

func parseAssertion(s string) (plan.Assertion, error) {
	switch strings.ToUpper(s) {
	case "EQ", "=":
		return plan.AssertEQ, nil
	case "NE", "<>", "!=":
		return plan.AssertNE, nil
	case "LT", "<":
		return plan.AssertLT, nil
	case "LE", "<=":
		return plan.AssertLE, nil
	case "GT", ">":
		return plan.AssertGT, nil
	case "GE", ">=":
		return plan.AssertGE, nil
	}
	return 0, errors.Newf("unknown assertion %q", s)
}

func (b *builder) scan(n *Node) (memo.GroupID, scope, error) {
	if len(n.Children) != 0 {
		return 0, nil, errors.New("scan takes no children")
	}
	table, err := b.cat.GetTable(n.Database, n.Table)
	if err != nil {
		return 0, nil, err
	}

	b.nextRelation++
	s := &plan.Scan{Table: table, RelationID: b.nextRelation}
	if len(n.Columns) == 0 {
		for _, c := range table.Columns {
			s.Columns = append(s.Columns, b.alloc.NewScanColumn(s.RelationID, table, c))
		}
	}
	for _, name := range n.Columns {
		c := table.Column(name)
		if c == nil {
			return 0, nil, cerrors.UndefinedColumnError(name, table.TableName)
		}
		s.Columns = append(s.Columns, b.alloc.NewScanColumn(s.RelationID, table, c))
	}

	if n.Index != "" {
		idx := findIndex(table, n.Index)
		if idx == nil {
			return 0, nil, errors.Newf("table %q has no index %q", table.TableName, n.Index)
		}
		s.SelectedIndexID = idx.ID
	}
	if n.Partitions != nil {
		s.SelectedPartitions = []catalog.PartitionID{}
		for _, name := range n.Partitions {
			p := findPartition(table, name)
			if p == nil {
				return 0, nil, errors.Newf("table %q has no partition %q", table.TableName, name)
			}
			s.SelectedPartitions = append(s.SelectedPartitions, p.ID)
		}
	}

	id, err := b.add(s)
	return id, newScope(table.TableName, s.Columns), err
}

var joinTypes = map[string]plan.JoinType{
	"":                     plan.InnerJoin,
	"inner":                plan.InnerJoin,
	"cross":                plan.CrossJoin,
	"left":                 plan.LeftOuterJoin,
	"left_outer":           plan.LeftOuterJoin,
	"right":                plan.RightOuterJoin,
	"right_outer":          plan.RightOuterJoin,
	"full":                 plan.FullOuterJoin,
	"full_outer":           plan.FullOuterJoin,
	"left_semi":            plan.LeftSemiJoin,
	"right_semi":           plan.RightSemiJoin,
	"left_anti":            plan.LeftAntiJoin,
	"right_anti":           plan.RightAntiJoin,
	"null_aware_left_anti": plan.NullAwareLeftAntiJoin,
}

func (b *builder) join(n *Node) (memo.GroupID, scope, error) {
	typ, ok := joinTypes[strings.ToLower(n.JoinType)]
	if !ok {
		return 0, nil, errors.Newf("unknown join type %q", n.JoinType)
	}
	ids, scopes, err := b.buildChildren(n, 2)
	if err != nil {
		return 0, nil, err
	}
	left, right := scopes[0], scopes[1]

	both := &binder{scope: append(append(scope{}, left...), right...)}
	conds, err := both.bindAll(n.On)
	if err != nil {
		return 0, nil, err
	}
	j := &plan.Join{Type: typ}
	leftCols, rightCols := plan.NewColumnSet(left.columns()...), plan.NewColumnSet(right.columns()...)
	for _, c := range conds {
		for _, conj := range plan.Conjuncts(c) {
			if eq := splitEquality(conj, leftCols, rightCols); eq != nil {
				j.EqualConditions = append(j.EqualConditions, eq)
			} else {
				j.OtherConditions = append(j.OtherConditions, conj)
			}
		}
	}
	if typ == plan.CrossJoin && len(j.EqualConditions) > 0 {
		return 0, nil, errors.New("cross join with equality conditions")
	}

	id, err := b.add(j, ids[0], ids[1])
	if err != nil {
		return 0, nil, err
	}
	if n.Commute {
		if typ != plan.InnerJoin && typ != plan.CrossJoin {
			return 0, nil, errors.Newf("cannot commute a %s join", typ)
		}
		swapped := &plan.Join{Type: typ, OtherConditions: j.OtherConditions}
		for _, eq := range j.EqualConditions {
			swapped.EqualConditions = append(swapped.EqualConditions, plan.NewComparison(eq.Op, eq.Right, eq.Left))
		}
		if _, err := b.memo.AddToGroup(id, swapped, ids[1], ids[0]); err != nil {
			return 0, nil, err
		}
	}

	switch {
	case typ.PreservesLeft():
		return id, left, nil
	case typ.IsSemiOrAnti():
		return id, right, nil
	}
	return id, append(append(scope{}, left...), right...), nil
}

// splitEquality returns conj as an equality with its left operand over the
// left input and its right operand over the right input, or nil.
func splitEquality(conj plan.Expression, left, right plan.ColumnSet) *plan.Comparison {
	cmp, ok := conj.(*plan.Comparison)
	if !ok || cmp.Op != plan.OpEqual {
		return nil
	}
	within := func(e plan.Expression, set plan.ColumnSet) bool {
		cols := plan.InputColumns(e)
		if len(cols) == 0 {
			return false
		}
		for _, c := range cols {
			if !set.Contains(c.ID) {
				return false
			}
		}
		return true
	}
	switch {
	case within(cmp.Left, left) && within(cmp.Right, right):
		return cmp
	case within(cmp.Left, right) && within(cmp.Right, left):
		return plan.NewComparison(plan.OpEqual, cmp.Right, cmp.Left)
	}
	return nil
}

func (b *builder) setOp(n *Node) (memo.GroupID, scope, error) {
	kind := map[string]plan.SetOpKind{"union": plan.Union, "except": plan.Except, "intersect": plan.Intersect}[strings.ToLower(n.Op)]
	if kind != plan.Union && len(n.Values) > 0 {
		return 0, nil, errors.New("values are only allowed in union")
	}
	ids, scopes, err := b.buildChildren(n, -1)
	if err != nil {
		return 0, nil, err
	}

	first := scopes[0]
	s := &plan.SetOp{Op: kind, Distinct: n.Distinct}
	for i, sc := range scopes {
		if len(sc) != len(first) {
			return 0, nil, errors.Newf("child %d has %d columns, expected %d", i, len(sc), len(first))
		}
		s.ChildOutputs = append(s.ChildOutputs, sc.columns())
	}
	for i, sc := range first {
		typ := sc.col.Type
		for _, other := range scopes[1:] {
			typ = types.WiderOf(typ, other[i].col.Type)
		}
		s.Outputs = append(s.Outputs, b.alloc.NewColumn(sc.col.Name, typ))
	}

	empty := &binder{}
	for _, row := range n.Values {
		if len(row) != len(s.Outputs) {
			return 0, nil, errors.Newf("constant row has %d values, expected %d", len(row), len(s.Outputs))
		}
		exprs, err := empty.bindAll(row)
		if err != nil {
			return 0, nil, err
		}
		projections := make([]plan.Projection, len(exprs))
		for i, e := range exprs {
			projections[i] = plan.Projection{Column: b.alloc.NewColumn(s.Outputs[i].Name, e.Type()), Expr: e}
		}
		s.ConstantRows = append(s.ConstantRows, projections)
	}

	id, err := b.add(s, ids...)
	return id, newScope("", s.Outputs), err
}

func (b *builder) with(n *Node) (memo.GroupID, scope, error) {
	if n.Name == "" {
		return 0, nil, errors.New("with requires a name")
	}
	if len(n.Children) != 2 {
		return 0, nil, errors.Newf("expected 2 children, got %d", len(n.Children))
	}
	if _, dup := b.ctes[strings.ToLower(n.Name)]; dup {
		return 0, nil, errors.Newf("CTE %q is already defined", n.Name)
	}

	body, bodyScope, err := b.build(n.Children[0])
	if err != nil {
		return 0, nil, err
	}
	b.nextCTE++
	cteID := b.nextCTE
	producer, err := b.add(&plan.CTEProducer{ID: cteID}, body)
	if err != nil {
		return 0, nil, err
	}
	b.ctes[strings.ToLower(n.Name)] = cteDef{id: cteID, scope: bodyScope}

	main, mainScope, err := b.build(n.Children[1])
	if err != nil {
		return 0, nil, err
	}
	id, err := b.add(&plan.CTEAnchor{ID: cteID}, producer, main)
	return id, mainScope, err
}

func (b *builder) cteConsumer(n *Node) (memo.GroupID, scope, error) {
	def, ok := b.ctes[strings.ToLower(n.Name)]
	if !ok {
		return 0, nil, errors.Newf("CTE %q is not defined", n.Name)
	}
	b.nextRelation++
	c := &plan.CTEConsumer{ID: def.id, ProducerColumns: make(map[plan.ColumnID]*plan.Column)}
	for _, sc := range def.scope {
		col := b.alloc.NewColumn(sc.col.Name, sc.col.Type)
		col.Hidden, col.Nullable = sc.col.Hidden, sc.col.Nullable
		if sc.col.Origin != nil {
			origin := *sc.col.Origin
			origin.Relation = b.nextRelation
			col.Origin = &origin
		}
		c.Outputs = append(c.Outputs, col)
		c.ProducerColumns[col.ID] = sc.col
	}
	id, err := b.add(c)
	return id, newScope(n.Name, c.Outputs), err
}

func (b *builder) oneRow(n *Node) (memo.GroupID, scope, error) {
	o := &plan.OneRowRelation{}
	projections, out, err := b.projections(n.Select, &binder{}, nil)
	if err != nil {
		return 0, nil, err
	}
	o.Projections = projections
	id, err := b.add(o)
	return id, out, err
}

func (b *builder) empty(n *Node) (memo.GroupID, scope, error) {
	e := &plan.EmptyRelation{}
	for _, cs := range n.Schema {
		typ := types.Parse(cs.Type)
		if typ == types.Unknown {
			return 0, nil, errors.Newf("column %q has unknown type %q", cs.Name, cs.Type)
		}
		e.Columns = append(e.Columns, b.alloc.NewColumn(cs.Name, typ))
	}
	id, err := b.add(e)
	return id, newScope("", e.Columns), err
}
