package cfg

import (
	"fmt"
	"strconv"

	"rtinfer/internal/engine/registry"
	"rtinfer/internal/engine/syntax"
)

// controlKinds need their own blocks when used as values.
var controlKinds = map[string]bool{
	"if":              true,
	"unless":          true,
	"conditional":     true,
	"if_modifier":     true,
	"unless_modifier": true,
	"while":           true,
	"until":           true,
	"while_modifier":  true,
	"until_modifier":  true,
	"for":             true,
	"case":            true,
	"begin":           true,
}

// opaqueKinds are closures and nested definitions. Their bodies are not part
// of the enclosing method's flow.
var opaqueKinds = map[string]bool{
	"block":            true,
	"do_block":         true,
	"lambda":           true,
	"method":           true,
	"singleton_method": true,
	"class":            true,
	"module":           true,
	"singleton_class":  true,
}

// unknownKinds are statements the engine does not model.
var unknownKinds = map[string]bool{
	"case_match":      true,
	"alias":           true,
	"undef":           true,
	"retry":           true,
	"redo":            true,
	"begin_block":     true,
	"end_block":       true,
	"class":           true,
	"module":          true,
	"singleton_class": true,
}

// Parameter markers stored in Op.Operator of OpParam.
const (
	ParamRest        = "*"
	ParamKeyword     = "key"
	ParamKeywordRest = "**"
	ParamBlock       = "&"
)

type loopCtx struct {
	header int
	dst    string
	breaks []int
}

type builder struct {
	tree     *syntax.Tree
	g        *Graph
	cur      int
	declared map[string]bool
	loops    []*loopCtx
	temps    int
}

// Build constructs the control-flow graph for m's body. Every block in the
// result is reachable from the entry.
func Build(tree *syntax.Tree, m *registry.Method) (*Graph, error) {
	if tree == nil || m == nil {
		return nil, fmt.Errorf("cfg: nil tree or method")
	}
	b := &builder{
		tree:     tree,
		g:        &Graph{Temps: make(map[syntax.NodeID]string)},
		declared: make(map[string]bool),
	}
	b.cur = b.newBlock()
	b.g.Entry = b.cur

	positional := 0
	for _, p := range m.Params {
		op := Op{Kind: OpParam, Var: p.Name, Node: p.Node, Site: p.Node, Index: -1}
		switch p.Kind {
		case registry.ParamRequired, registry.ParamOptional:
			op.Index = positional
			positional++
		case registry.ParamRest:
			op.Index = positional
			op.Operator = ParamRest
			positional++
		case registry.ParamKeyword:
			op.Operator = ParamKeyword
		case registry.ParamKeywordRest:
			op.Operator = ParamKeywordRest
		case registry.ParamBlock:
			op.Operator = ParamBlock
		}
		if p.Default.Valid() {
			op.Node = p.Default
			op.Reads = b.pre(p.Default)
		}
		if p.Name == "" {
			p.Name = "%arg" + strconv.Itoa(positional)
			op.Var = p.Name
		}
		b.declare(p.Name)
		b.emit(op)
	}

	b.body(m.Body, true)
	return b.g, nil
}

func (b *builder) newBlock() int {
	id := len(b.g.Blocks)
	b.g.Blocks = append(b.g.Blocks, &Block{ID: id})
	return id
}

func (b *builder) edge(from, to int, kind EdgeKind) {
	if from < 0 {
		return
	}
	blk := b.g.Blocks[from]
	blk.Succs = append(blk.Succs, Edge{To: to, Kind: kind})
}

func (b *builder) emit(op Op) {
	if b.cur < 0 {
		return
	}
	if !op.Site.Valid() {
		op.Site = op.Node
	}
	blk := b.g.Blocks[b.cur]
	blk.Ops = append(blk.Ops, op)
}

func (b *builder) exit() {
	if b.cur < 0 {
		return
	}
	b.g.Blocks[b.cur].Exit = true
	b.g.Exits = append(b.g.Exits, b.cur)
	b.cur = -1
}

func (b *builder) declare(name string) {
	if name == "" || b.declared[name] {
		return
	}
	b.declared[name] = true
	b.g.Locals = append(b.g.Locals, name)
}

func (b *builder) temp() string {
	b.temps++
	return "%t" + strconv.Itoa(b.temps)
}

// join creates a block fed by every live end in ends. It returns -1 when no
// path reaches it.
func (b *builder) join(ends []int, kinds []EdgeKind) int {
	live := false
	for _, e := range ends {
		if e >= 0 {
			live = true
		}
	}
	if !live {
		return -1
	}
	j := b.newBlock()
	for i, e := range ends {
		b.edge(e, j, kinds[i])
	}
	return j
}

// body lowers a method body, whose last value is returned.
func (b *builder) body(stmts []syntax.NodeID, implicitReturn bool) {
	main, rescues, elseClause, ensure := b.partition(stmts)
	if len(rescues) == 0 && elseClause == syntax.NoNode && ensure == syntax.NoNode {
		b.seq(main, implicitReturn, "")
		if implicitReturn && b.cur >= 0 {
			b.emit(Op{Kind: OpReturn, Node: syntax.NoNode})
			b.exit()
		}
		return
	}
	t := b.temp()
	b.protected(main, rescues, elseClause, ensure, t)
	if implicitReturn && b.cur >= 0 {
		b.emit(Op{Kind: OpReturn, Node: syntax.NoNode, From: t, Reads: []Read{{Node: syntax.NoNode, Var: t}}})
		b.exit()
	}
}

func (b *builder) partition(stmts []syntax.NodeID) (main, rescues []syntax.NodeID, elseClause, ensure syntax.NodeID) {
	elseClause, ensure = syntax.NoNode, syntax.NoNode
	for _, s := range stmts {
		switch b.tree.Kind(s) {
		case "rescue":
			rescues = append(rescues, s)
		case "else":
			elseClause = s
		case "ensure":
			ensure = s
		default:
			main = append(main, s)
		}
	}
	return main, rescues, elseClause, ensure
}

// seq lowers statements in order. With ret set the last statement is
// returned; with dst set its value is bound to dst.
func (b *builder) seq(stmts []syntax.NodeID, ret bool, dst string) {
	if len(stmts) == 0 {
		switch {
		case ret:
			return
		case dst != "":
			b.emit(Op{Kind: OpAssign, Var: dst, Node: syntax.NoNode})
		}
		return
	}
	for i, s := range stmts {
		if b.cur < 0 {
			return
		}
		last := i == len(stmts)-1
		switch {
		case last && ret:
			b.returnValue(s)
		case last && dst != "":
			b.into(s, dst)
		default:
			b.stmt(s)
		}
	}
}

// returnValue lowers the implicit return of s.
func (b *builder) returnValue(s syntax.NodeID) {
	if b.jump(s) {
		return
	}
	reads := b.pre(s)
	b.emit(Op{Kind: OpReturn, Node: s, Reads: reads})
	b.exit()
}

// into lowers s and binds its value to dst.
func (b *builder) into(s syntax.NodeID, dst string) {
	if b.jump(s) {
		return
	}
	reads := b.pre(s)
	if t, ok := b.g.Temps[s]; ok {
		b.emit(Op{Kind: OpCopy, Var: dst, From: t, Node: s, Reads: []Read{{Node: syntax.NoNode, Var: t}}})
		return
	}
	b.emit(Op{Kind: OpAssign, Var: dst, Node: s, Reads: reads})
}

// stmt lowers s for its effects.
func (b *builder) stmt(s syntax.NodeID) {
	kind := b.tree.Kind(s)
	switch {
	case b.jump(s):
		return
	case controlKinds[kind]:
		b.control(s, "")
		return
	case unknownKinds[kind]:
		b.emit(Op{Kind: OpUnknown, Node: s})
		return
	case kind == "parenthesized_statements":
		b.seq(b.tree.Children(s), false, "")
		return
	}
	reads := b.pre(s)
	if b.hoisted(s) {
		return
	}
	b.emit(Op{Kind: OpEval, Node: s, Reads: reads})
}

// jump lowers return, break and next. It reports whether s was one.
func (b *builder) jump(s syntax.NodeID) bool {
	switch b.tree.Kind(s) {
	case "return":
		reads := b.pre(s)
		b.emit(Op{Kind: OpReturn, Node: s, Reads: reads})
		b.exit()
		return true
	case "break", "next":
		if len(b.loops) == 0 {
			b.emit(Op{Kind: OpUnknown, Node: s})
			return true
		}
		loop := b.loops[len(b.loops)-1]
		reads := b.pre(s)
		if b.tree.Kind(s) == "next" {
			b.emit(Op{Kind: OpEval, Node: s, Reads: reads})
			b.edge(b.cur, loop.header, LoopBack)
			b.cur = -1
			return true
		}
		if loop.dst != "" {
			b.emit(Op{Kind: OpAssign, Var: loop.dst, Node: s, Reads: reads})
		} else {
			b.emit(Op{Kind: OpEval, Node: s, Reads: reads})
		}
		if b.cur >= 0 {
			loop.breaks = append(loop.breaks, b.cur)
		}
		b.cur = -1
		return true
	}
	return false
}

// hoisted reports whether s is a local assignment already emitted by pre.
func (b *builder) hoisted(s syntax.NodeID) bool {
	_, ok := b.localTarget(s)
	return ok || b.isMultiAssign(s)
}

// localTarget returns the local name assigned by an assignment node.
func (b *builder) localTarget(s syntax.NodeID) (string, bool) {
	switch b.tree.Kind(s) {
	case "assignment", "operator_assignment":
		left := b.tree.Field(s, "left")
		if b.tree.Kind(left) == "identifier" {
			return b.tree.Node(left).Text, true
		}
	}
	return "", false
}

func (b *builder) isMultiAssign(s syntax.NodeID) bool {
	if b.tree.Kind(s) != "assignment" {
		return false
	}
	switch b.tree.Kind(b.tree.Field(s, "left")) {
	case "left_assignment_list", "rest_assignment", "destructured_left_assignment":
		return true
	}
	return false
}

// pre walks an expression in evaluation order, emitting hoisted local
// assignments and lowering nested control constructs into temporaries. It
// returns the local reads the consuming op needs.
func (b *builder) pre(id syntax.NodeID) []Read {
	t := b.tree
	kind := t.Kind(id)
	switch {
	case !id.Valid():
		return nil
	case opaqueKinds[kind]:
		return nil
	case controlKinds[kind]:
		tmp := b.temp()
		b.control(id, tmp)
		b.g.Temps[id] = tmp
		return []Read{{Node: id, Var: tmp}}
	case kind == "identifier":
		name := t.Node(id).Text
		if b.declared[name] {
			return []Read{{Node: id, Var: name}}
		}
		return nil
	}

	if name, ok := b.localTarget(id); ok {
		var reads []Read
		op := Op{Kind: OpAssign, Var: name, Node: t.Field(id, "right"), Site: id}
		if kind == "operator_assignment" {
			left := t.Field(id, "left")
			b.declare(name)
			reads = append(reads, Read{Node: left, Var: name})
			op.Operator = t.Node(id).Op
		}
		b.declare(name)
		op.Reads = append(reads, b.pre(op.Node)...)
		b.emit(op)
		return nil
	}
	if b.isMultiAssign(id) {
		right := t.Field(id, "right")
		reads := b.pre(right)
		targets := b.targets(t.Field(id, "left"))
		b.emit(Op{Kind: OpMultiAssign, Node: right, Site: id, Targets: targets, Reads: append(reads, b.targetReads(targets)...)})
		return nil
	}

	var reads []Read
	skip := syntax.NoNode
	switch kind {
	case "call":
		skip = t.Field(id, "method")
	case "scope_resolution":
		skip = t.Field(id, "name")
	}
	for _, c := range t.Children(id) {
		if c == skip {
			continue
		}
		reads = append(reads, b.pre(c)...)
	}
	return reads
}

// targets collects multiple-assignment destinations, declaring locals.
func (b *builder) targets(left syntax.NodeID) []Target {
	t := b.tree
	var items []syntax.NodeID
	if t.Kind(left) == "rest_assignment" {
		items = []syntax.NodeID{left}
	} else {
		items = t.Children(left)
	}
	var out []Target
	for _, c := range items {
		switch t.Kind(c) {
		case "identifier":
			name := t.Node(c).Text
			b.declare(name)
			out = append(out, Target{Var: name, Node: c})
		case "rest_assignment":
			tg := Target{Rest: true, Node: c}
			if kids := t.Children(c); len(kids) > 0 && t.Kind(kids[0]) == "identifier" {
				tg.Var = t.Node(kids[0]).Text
				b.declare(tg.Var)
			}
			out = append(out, tg)
		case "destructured_left_assignment":
			out = append(out, Target{Node: c, Nested: b.targets(c)})
		default:
			out = append(out, Target{Node: c})
		}
	}
	return out
}

// targetReads collects locals read by non-local targets such as x[i] or
// obj.attr.
func (b *builder) targetReads(ts []Target) []Read {
	var out []Read
	for _, tg := range ts {
		if len(tg.Nested) > 0 {
			out = append(out, b.targetReads(tg.Nested)...)
			continue
		}
		if tg.Var == "" && tg.Node.Valid() && !tg.Rest {
			out = append(out, b.pre(tg.Node)...)
		}
	}
	return out
}

// control lowers a branching or looping construct. When dst is set the
// construct's value is bound to it on every path.
func (b *builder) control(id syntax.NodeID, dst string) {
	t := b.tree
	if b.cur < 0 {
		return
	}
	switch t.Kind(id) {
	case "if", "elsif":
		b.ifElse(t.Field(id, "condition"), b.clause(t.Field(id, "consequence")), t.Field(id, "alternative"), false, dst)
	case "unless":
		b.ifElse(t.Field(id, "condition"), b.clause(t.Field(id, "consequence")), t.Field(id, "alternative"), true, dst)
	case "if_modifier":
		b.ifElse(t.Field(id, "condition"), []syntax.NodeID{t.Field(id, "body")}, syntax.NoNode, false, dst)
	case "unless_modifier":
		b.ifElse(t.Field(id, "condition"), []syntax.NodeID{t.Field(id, "body")}, syntax.NoNode, true, dst)
	case "conditional":
		b.ternary(id, dst)
	case "while", "until":
		b.loop(id, t.Field(id, "condition"), b.clause(t.Field(id, "body")), t.Kind(id) == "until", dst)
	case "while_modifier", "until_modifier":
		b.loop(id, t.Field(id, "condition"), []syntax.NodeID{t.Field(id, "body")}, t.Kind(id) == "until_modifier", dst)
	case "for":
		b.forLoop(id, dst)
	case "case":
		b.caseWhen(id, dst)
	case "begin":
		kids := t.Children(id)
		if len(kids) == 1 && t.Kind(kids[0]) == "body_statement" {
			kids = t.Children(kids[0])
		}
		main, rescues, elseClause, ensure := b.partition(kids)
		b.protected(main, rescues, elseClause, ensure, dst)
	}
}

// clause returns the statements of a then/else/do wrapper.
func (b *builder) clause(id syntax.NodeID) []syntax.NodeID {
	if !id.Valid() {
		return nil
	}
	switch b.tree.Kind(id) {
	case "then", "else", "do", "body_statement", "ensure":
		return b.tree.Children(id)
	}
	return []syntax.NodeID{id}
}

func (b *builder) branch(cond syntax.NodeID) int {
	reads := b.pre(cond)
	b.emit(Op{Kind: OpBranch, Node: cond, Reads: reads})
	return b.cur
}

func (b *builder) ifElse(cond syntax.NodeID, then []syntax.NodeID, alt syntax.NodeID, negate bool, dst string) {
	split := b.branch(cond)
	if split < 0 {
		return
	}
	onTrue, onFalse := BranchTrue, BranchFalse
	if negate {
		onTrue, onFalse = BranchFalse, BranchTrue
	}

	b.cur = b.newBlock()
	b.edge(split, b.cur, onTrue)
	b.seq(then, false, dst)
	thenEnd := b.cur

	b.cur = b.newBlock()
	b.edge(split, b.cur, onFalse)
	switch b.tree.Kind(alt) {
	case "elsif":
		b.control(alt, dst)
	case "":
		if dst != "" {
			b.emit(Op{Kind: OpAssign, Var: dst, Node: syntax.NoNode, Site: cond})
		}
	default:
		b.seq(b.clause(alt), false, dst)
	}
	elseEnd := b.cur

	b.cur = b.join([]int{thenEnd, elseEnd}, []EdgeKind{Fallthrough, Fallthrough})
}

func (b *builder) ternary(id syntax.NodeID, dst string) {
	t := b.tree
	split := b.branch(t.Field(id, "condition"))
	if split < 0 {
		return
	}
	ends := make([]int, 0, 2)
	for i, arm := range []syntax.NodeID{t.Field(id, "consequence"), t.Field(id, "alternative")} {
		b.cur = b.newBlock()
		kind := BranchTrue
		if i == 1 {
			kind = BranchFalse
		}
		b.edge(split, b.cur, kind)
		if dst != "" {
			b.into(arm, dst)
		} else {
			b.stmt(arm)
		}
		ends = append(ends, b.cur)
	}
	b.cur = b.join(ends, []EdgeKind{Fallthrough, Fallthrough})
}

func (b *builder) loop(id, cond syntax.NodeID, body []syntax.NodeID, negate bool, dst string) {
	header := b.newBlock()
	b.edge(b.cur, header, Fallthrough)
	b.cur = header
	b.branch(cond)

	onTrue, onFalse := BranchTrue, BranchFalse
	if negate {
		onTrue, onFalse = BranchFalse, BranchTrue
	}
	ctx := &loopCtx{header: header, dst: dst}
	b.loops = append(b.loops, ctx)
	b.cur = b.newBlock()
	b.edge(header, b.cur, onTrue)
	b.seq(body, false, "")
	b.edge(b.cur, header, LoopBack)
	b.loops = b.loops[:len(b.loops)-1]

	b.afterLoop(id, header, onFalse, ctx)
}

func (b *builder) forLoop(id syntax.NodeID, dst string) {
	t := b.tree
	value := t.Field(id, "value")
	if t.Kind(value) == "in" {
		if kids := t.Children(value); len(kids) > 0 {
			value = kids[0]
		}
	}
	reads := b.pre(value)
	b.emit(Op{Kind: OpEval, Node: value, Reads: reads})

	header := b.newBlock()
	b.edge(b.cur, header, Fallthrough)
	b.cur = header
	b.emit(Op{Kind: OpBranch, Node: syntax.NoNode, Site: id})

	ctx := &loopCtx{header: header, dst: dst}
	b.loops = append(b.loops, ctx)
	b.cur = b.newBlock()
	b.edge(header, b.cur, BranchTrue)
	pattern := t.Field(id, "pattern")
	if t.Kind(pattern) == "identifier" {
		name := t.Node(pattern).Text
		b.declare(name)
		b.emit(Op{Kind: OpAssign, Var: name, Node: id, Site: pattern, Reads: b.readsOf(value)})
	}
	b.seq(b.clause(t.Field(id, "body")), false, "")
	b.edge(b.cur, header, LoopBack)
	b.loops = b.loops[:len(b.loops)-1]

	b.afterLoop(id, header, BranchFalse, ctx)
}

// readsOf re-derives the local reads of an expression already lowered.
func (b *builder) readsOf(id syntax.NodeID) []Read {
	var out []Read
	b.tree.Walk(id, func(n syntax.NodeID) bool {
		if opaqueKinds[b.tree.Kind(n)] {
			return false
		}
		if tmp, ok := b.g.Temps[n]; ok {
			out = append(out, Read{Node: n, Var: tmp})
			return false
		}
		if b.tree.Kind(n) == "identifier" && b.declared[b.tree.Node(n).Text] {
			out = append(out, Read{Node: n, Var: b.tree.Node(n).Text})
		}
		return true
	})
	return out
}

func (b *builder) afterLoop(id syntax.NodeID, header int, exitKind EdgeKind, ctx *loopCtx) {
	normal := b.newBlock()
	b.edge(header, normal, exitKind)
	b.cur = normal
	if ctx.dst != "" {
		b.emit(Op{Kind: OpAssign, Var: ctx.dst, Node: syntax.NoNode, Site: id})
	}
	if len(ctx.breaks) == 0 {
		return
	}
	ends := append([]int{normal}, ctx.breaks...)
	kinds := make([]EdgeKind, len(ends))
	b.cur = b.join(ends, kinds)
}

func (b *builder) caseWhen(id syntax.NodeID, dst string) {
	t := b.tree
	if v := t.Field(id, "value"); v.Valid() {
		reads := b.pre(v)
		b.emit(Op{Kind: OpEval, Node: v, Reads: reads})
	}
	var ends []int
	var elseClause syntax.NodeID = syntax.NoNode
	for _, c := range t.Children(id) {
		if b.cur < 0 {
			break
		}
		switch t.Kind(c) {
		case "when":
			var body []syntax.NodeID
			for _, w := range t.Children(c) {
				if t.Kind(w) == "pattern" || w == t.Field(c, "pattern") {
					reads := b.pre(w)
					b.emit(Op{Kind: OpEval, Node: w, Reads: reads})
					continue
				}
				if t.Kind(w) == "then" {
					body = t.Children(w)
				}
			}
			b.emit(Op{Kind: OpBranch, Node: syntax.NoNode, Site: c})
			split := b.cur
			b.cur = b.newBlock()
			b.edge(split, b.cur, BranchTrue)
			b.seq(body, false, dst)
			ends = append(ends, b.cur)
			b.cur = b.newBlock()
			b.edge(split, b.cur, BranchFalse)
		case "else":
			elseClause = c
		}
	}
	if b.cur >= 0 {
		if elseClause.Valid() {
			b.seq(b.clause(elseClause), false, dst)
		} else if dst != "" {
			b.emit(Op{Kind: OpAssign, Var: dst, Node: syntax.NoNode, Site: id})
		}
	}
	ends = append(ends, b.cur)
	b.cur = b.join(ends, make([]EdgeKind, len(ends)))
}

// protected lowers begin/rescue/else/ensure. Each rescue clause is an
// alternative path from the start of the protected region.
func (b *builder) protected(main, rescues []syntax.NodeID, elseClause, ensure syntax.NodeID, dst string) {
	t := b.tree
	if len(rescues) == 0 {
		stmts := append(append([]syntax.NodeID(nil), main...), b.clause(elseClause)...)
		b.seq(stmts, false, dst)
		if ensure.Valid() {
			b.seq(b.clause(ensure), false, "")
		}
		return
	}

	b.emit(Op{Kind: OpBranch, Node: syntax.NoNode})
	split := b.cur
	if split < 0 {
		return
	}

	b.cur = b.newBlock()
	b.edge(split, b.cur, BranchTrue)
	stmts := append(append([]syntax.NodeID(nil), main...), b.clause(elseClause)...)
	b.seq(stmts, false, dst)
	ends := []int{b.cur}

	for _, r := range rescues {
		b.cur = b.newBlock()
		b.edge(split, b.cur, BranchFalse)
		var body []syntax.NodeID
		for _, c := range t.Children(r) {
			switch t.Kind(c) {
			case "exception_variable":
				for _, v := range t.Children(c) {
					if t.Kind(v) == "identifier" {
						name := t.Node(v).Text
						b.declare(name)
						b.emit(Op{Kind: OpAssign, Var: name, Node: r, Site: c})
					}
				}
			case "then":
				body = t.Children(c)
			}
		}
		b.seq(body, false, dst)
		ends = append(ends, b.cur)
	}
	b.cur = b.join(ends, make([]EdgeKind, len(ends)))
	if ensure.Valid() {
		b.seq(b.clause(ensure), false, "")
	}
}
