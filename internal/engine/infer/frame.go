// # internal/engine/infer/frame.go
package infer

import (
	"rtinfer/internal/engine/cfg"
	"rtinfer/internal/engine/registry"
	"rtinfer/internal/engine/ssa"
	"rtinfer/internal/engine/syntax"
	"rtinfer/internal/engine/types"
)

// value is an expression result: a type, plus a literal integer or integer
// range when the expression is a constant the engine can fold.
type value struct {
	t     types.Type
	lit   int64
	known bool
	rng   *rangeLit
}

type rangeLit struct {
	lo, hi    int64
	exclusive bool
}

func typed(t types.Type) value {
	if t == nil {
		t = types.Empty
	}
	return value{t: t}
}

func literal(n int64) value {
	return value{t: types.SmallInt, lit: n, known: true}
}

var emptyValue = value{t: types.Empty}

// joinValues unions the types; a literal survives only when every input
// carries the same one.
func joinValues(vs ...value) value {
	if len(vs) == 0 {
		return emptyValue
	}
	ts := make([]types.Type, len(vs))
	sameLit := vs[0].known
	for i, v := range vs {
		ts[i] = v.t
		if !v.known || v.lit != vs[0].lit {
			sameLit = false
		}
	}
	out := value{t: types.Simplify(types.Join(ts...))}
	if sameLit {
		out.lit, out.known = vs[0].lit, true
	}
	return out
}

// frame executes one method body for one signature.
type frame struct {
	e    *Engine
	tree *syntax.Tree
	m    *registry.Method
	form *ssa.Form
	recv types.Type
	args []types.Type

	params   []value
	paramIdx int
	vals     map[ssa.Binding]value
	nodes    map[syntax.NodeID]value
	visited  []bool
	returns  []types.Type

	// reads of the op being executed, by syntax node
	reads map[syntax.NodeID]ssa.Binding
	from  ssa.Binding
}

func newFrame(e *Engine, m *registry.Method, form *ssa.Form, recv types.Type, args []types.Type) *frame {
	return &frame{
		e:       e,
		tree:    e.tree,
		m:       m,
		form:    form,
		recv:    recv,
		args:    args,
		vals:    make(map[ssa.Binding]value),
		nodes:   make(map[syntax.NodeID]value),
		visited: make([]bool, len(form.Graph.Blocks)),
	}
}

// run walks reachable blocks once in reverse post-order and joins what every
// exit returns.
func (f *frame) run() *types.Union {
	f.params = f.bindArgs()
	for _, b := range f.form.Order {
		f.block(b)
		f.visited[b] = true
		f.foldBackEdges(b)
	}
	return types.Join(f.returns...)
}

// foldBackEdges joins what b carries around a loop into the phis of the
// header it jumps back to. Blocks after the loop come later in the order and
// read the widened merge.
func (f *frame) foldBackEdges(b int) {
	done := make(map[int]bool)
	for _, e := range f.form.Graph.Blocks[b].Succs {
		h := e.To
		if done[h] || !f.visited[h] || !f.form.Dominates(h, b) {
			continue
		}
		done[h] = true
		for i, p := range f.form.Preds[h] {
			if p != b {
				continue
			}
			for _, phi := range f.form.Phis[h] {
				f.vals[phi.Def] = joinValues(f.vals[phi.Def], f.load(phi.Operands[i]))
			}
		}
	}
}

func (f *frame) block(b int) {
	preds := f.form.Preds[b]
	for _, phi := range f.form.Phis[b] {
		var in []value
		loopHeader := false
		for i, p := range preds {
			if !f.visited[p] {
				// back edge: the body has not run yet
				loopHeader = true
				continue
			}
			in = append(in, f.load(phi.Operands[i]))
		}
		v := joinValues(in...)
		if loopHeader {
			v.known = false
		}
		f.vals[phi.Def] = v
	}

	blk := f.form.Graph.Blocks[b]
	for i := range blk.Ops {
		op := &blk.Ops[i]
		f.bindReads(op, f.form.Uses[b][i])
		f.exec(op, f.form.Defs[b][i])
	}
}

func (f *frame) bindReads(op *cfg.Op, uses []ssa.Binding) {
	f.reads = make(map[syntax.NodeID]ssa.Binding, len(op.Reads))
	f.from = ssa.Binding{}
	for i, r := range op.Reads {
		if i >= len(uses) {
			break
		}
		if !r.Node.Valid() {
			f.from = uses[i]
			continue
		}
		f.reads[r.Node] = uses[i]
	}
}

// load returns the value of an SSA binding. A binding with no reaching
// definition is nil.
func (f *frame) load(b ssa.Binding) value {
	if b.Undefined() {
		return typed(types.NullType)
	}
	if v, ok := f.vals[b]; ok {
		return v
	}
	return emptyValue
}

func (f *frame) define(defs []ssa.Binding, i int, v value) {
	if i < len(defs) {
		f.vals[defs[i]] = v
	}
}

func (f *frame) exec(op *cfg.Op, defs []ssa.Binding) {
	switch op.Kind {
	case cfg.OpParam:
		v := emptyValue
		if f.paramIdx < len(f.params) {
			v = f.params[f.paramIdx]
			if p := f.m.Params[f.paramIdx]; p.Default.Valid() && v.t == nil {
				v = f.eval(p.Default)
			}
		}
		f.paramIdx++
		if v.t == nil {
			v = typed(types.NullType)
		}
		f.define(defs, 0, v)

	case cfg.OpAssign:
		v := f.assignSource(op)
		f.define(defs, 0, v)
		switch f.tree.Kind(op.Site) {
		case "assignment", "operator_assignment":
			f.nodes[op.Site] = v
		}

	case cfg.OpMultiAssign:
		src := f.eval(op.Node)
		f.destructure(op.Targets, src, defs, new(int))
		f.nodes[op.Site] = src

	case cfg.OpEval, cfg.OpBranch:
		if op.Node.Valid() {
			f.eval(op.Node)
		}

	case cfg.OpReturn:
		var v value
		switch {
		case op.From != "":
			v = f.load(f.from)
		case op.Node.Valid():
			v = f.eval(op.Node)
		default:
			v = typed(types.NullType)
		}
		f.returns = append(f.returns, v.t)

	case cfg.OpCopy:
		f.define(defs, 0, f.load(f.from))

	case cfg.OpUnknown:
		// not modelled; contributes nothing
	}
}

// bindArgs matches the entry argument types to the formal parameters, in
// declaration order. A nil type marks a missing argument.
func (f *frame) bindArgs() []value {
	params := f.m.Params
	out := make([]value, len(params))

	required, after := 0, 0
	restSeen := false
	for _, p := range params {
		switch p.Kind {
		case registry.ParamRequired:
			required++
			if restSeen {
				after++
			}
		case registry.ParamRest:
			restSeen = true
		}
	}
	optional := len(f.args) - required

	next := 0
	take := func() value {
		if next >= len(f.args) {
			return value{}
		}
		next++
		return typed(f.args[next-1])
	}
	for i, p := range params {
		switch p.Kind {
		case registry.ParamRequired:
			out[i] = take()
		case registry.ParamOptional:
			if optional > 0 {
				optional--
				out[i] = take()
			}
		case registry.ParamRest:
			n := len(f.args) - next - after
			if n < 0 {
				n = 0
			}
			out[i] = typed(types.NewTuple(f.args[next : next+n]...))
			next += n
		case registry.ParamKeyword:
			if !p.Default.Valid() {
				out[i] = emptyValue
			}
		case registry.ParamKeywordRest:
			out[i] = typed(types.Mapping)
		case registry.ParamBlock:
			out[i] = typed(types.Join(types.Callable, types.NullType))
		}
	}
	return out
}

// assignSource evaluates the value bound by a local assignment.
func (f *frame) assignSource(op *cfg.Op) value {
	t := f.tree
	if op.Operator != "" {
		old := f.read(t.Field(op.Site, "left"))
		return f.combine(op.Site, old, op.Operator, op.Node)
	}
	if !op.Node.Valid() {
		return typed(types.NullType)
	}
	switch t.Kind(op.Node) {
	case "for":
		seq := f.eval(loopValue(t, op.Node))
		if tup, ok := types.Simplify(seq.t).(*types.Tuple); ok {
			return typed(types.Simplify(tup.ElementUnion()))
		}
		return emptyValue
	case "rescue":
		return typed(f.rescued(op.Node))
	}
	return f.eval(op.Node)
}

func loopValue(t *syntax.Tree, forNode syntax.NodeID) syntax.NodeID {
	v := t.Field(forNode, "value")
	if t.Kind(v) == "in" {
		if kids := t.Children(v); len(kids) > 0 {
			return kids[0]
		}
	}
	return v
}

// rescued is the type bound by "rescue Foo, Bar => e".
func (f *frame) rescued(rescue syntax.NodeID) types.Type {
	t := f.tree
	var classes []types.Type
	for _, c := range t.Children(rescue) {
		if t.Kind(c) != "exceptions" {
			continue
		}
		for _, ex := range t.Children(c) {
			if name, ok := f.constantName(ex); ok {
				classes = append(classes, types.Instance(name))
			}
		}
	}
	if len(classes) == 0 {
		return types.Instance("StandardError")
	}
	return types.Simplify(types.Join(classes...))
}

// read resolves a local variable node through the current op's reads.
func (f *frame) read(id syntax.NodeID) value {
	if b, ok := f.reads[id]; ok {
		return f.load(b)
	}
	return typed(types.NullType)
}

// destructure binds multiple-assignment targets from src. defs follow
// cfg.Op.Defs order.
func (f *frame) destructure(targets []cfg.Target, src value, defs []ssa.Binding, next *int) {
	var elems []types.Type
	switch s := types.Simplify(src.t).(type) {
	case *types.Tuple:
		elems = s.Elems
	default:
		if types.IsEmpty(src.t) {
			elems = nil
			for range targets {
				elems = append(elems, types.Empty)
			}
		} else {
			elems = []types.Type{src.t}
		}
	}

	restAt := -1
	for i, tg := range targets {
		if tg.Rest {
			restAt = i
		}
	}
	for i, tg := range targets {
		var v value
		switch {
		case restAt >= 0 && i == restAt:
			after := len(targets) - restAt - 1
			end := len(elems) - after
			if end < i {
				end = i
			}
			if i > len(elems) {
				v = typed(&types.Tuple{})
			} else {
				v = typed(types.NewTuple(elems[i:end]...))
			}
		case restAt >= 0 && i > restAt:
			idx := len(elems) - (len(targets) - i)
			v = typed(elementOr(elems, idx))
		default:
			v = typed(elementOr(elems, i))
		}
		f.bindTarget(tg, v, defs, next)
	}
}

func elementOr(elems []types.Type, i int) types.Type {
	if i < 0 || i >= len(elems) {
		return types.NullType
	}
	return elems[i]
}

func (f *frame) bindTarget(tg cfg.Target, v value, defs []ssa.Binding, next *int) {
	switch {
	case len(tg.Nested) > 0:
		f.destructure(tg.Nested, v, defs, next)
	case tg.Var != "":
		f.define(defs, *next, v)
		*next++
	case tg.Rest:
		// anonymous splat
	case tg.Node.Valid():
		f.assignTo(tg.Node, v)
	}
}
