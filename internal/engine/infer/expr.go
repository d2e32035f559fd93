// # internal/engine/infer/expr.go
package infer

import (
	"strconv"
	"strings"

	"rtinfer/internal/engine/fields"
	"rtinfer/internal/engine/syntax"
	"rtinfer/internal/engine/types"
)

// Fixnum bounds on a 64-bit VM; integer literals outside them are Bignums.
const (
	maxFixnum = 1<<62 - 1
	minFixnum = -(1 << 62)
)

// eval returns the value of an expression node. Every node is evaluated at
// most once per frame; a hoisted assignment or a control construct lowered
// into a temporary is answered from what its op already computed.
func (f *frame) eval(id syntax.NodeID) value {
	if !id.Valid() {
		return typed(types.NullType)
	}
	if _, ok := f.form.Graph.Temps[id]; ok {
		return f.read(id)
	}
	if v, ok := f.nodes[id]; ok {
		return v
	}
	v := f.evalNode(id)
	if v.t == nil {
		v.t = types.Empty
	}
	f.nodes[id] = v
	return v
}

func (f *frame) evalNode(id syntax.NodeID) value {
	t := f.tree
	n := t.Node(id)
	switch n.Kind {
	case "integer":
		return integerLiteral(n.Text)
	case "float":
		return typed(types.Float)
	case "rational":
		return typed(types.Instance("Rational"))
	case "complex":
		return typed(types.Instance("Complex"))
	case "string", "chained_string", "heredoc_body", "subshell", "interpolation":
		f.evalChildren(id)
		return typed(types.Text)
	case "heredoc_beginning", "character", "bare_string":
		return typed(types.Text)
	case "simple_symbol", "delimited_symbol", "hash_key_symbol", "bare_symbol":
		f.evalChildren(id)
		return typed(types.Symbolic)
	case "regex":
		f.evalChildren(id)
		return typed(types.Instance("Regexp"))
	case "nil":
		return typed(types.NullType)
	case "true":
		return typed(types.True)
	case "false":
		return typed(types.False)
	case "self":
		return typed(f.recv)
	case "array":
		return f.sequence(t.Children(id))
	case "string_array":
		return typed(repeatTuple(types.Text, len(t.Children(id))))
	case "symbol_array":
		return typed(repeatTuple(types.Symbolic, len(t.Children(id))))
	case "hash":
		f.evalChildren(id)
		return typed(types.Mapping)
	case "pair":
		f.evalChildren(id)
		return emptyValue
	case "range":
		return f.rangeValue(id)
	case "lambda", "block", "do_block":
		return typed(types.Callable)
	case "method", "singleton_method":
		return typed(types.Symbolic)
	case "parenthesized_statements", "begin_block", "end_block":
		v := typed(types.NullType)
		for _, c := range t.Children(id) {
			v = f.eval(c)
		}
		return v
	case "identifier":
		if b, ok := f.reads[id]; ok {
			return f.load(b)
		}
		return f.call(id, typed(f.recv), n.Text, nil, true)
	case "constant", "scope_resolution":
		name, _ := f.constantName(id)
		return typed(types.SingletonOf(name))
	case "instance_variable":
		return typed(f.e.store.Read(f.fieldKey(n.Text)))
	case "class_variable":
		return typed(f.e.store.Read(f.fieldKey(n.Text)))
	case "global_variable":
		return typed(f.e.store.Read(fields.Global(n.Text)))
	case "assignment":
		return f.assignment(id)
	case "operator_assignment":
		return f.operatorAssignment(id)
	case "binary":
		return f.binary(id)
	case "unary":
		return f.unary(id)
	case "call":
		return f.callNode(id)
	case "element_reference":
		recv := f.eval(t.Field(id, "object"))
		args, ok := f.arguments(elementArgs(t, id))
		if !ok {
			return emptyValue
		}
		return f.call(id, recv, "[]", args, false)
	case "super":
		return f.super(id, nil, true)
	case "yield":
		f.evalChildren(id)
		return emptyValue
	case "return", "break", "next", "argument_list", "right_assignment_list":
		return f.argumentValue(t.Children(id))
	case "rescue_modifier":
		var vs []value
		for _, c := range t.Children(id) {
			vs = append(vs, f.eval(c))
		}
		return joinValues(vs...)
	}
	f.evalChildren(id)
	return emptyValue
}

func (f *frame) evalChildren(id syntax.NodeID) {
	for _, c := range f.tree.Children(id) {
		f.eval(c)
	}
}

func integerLiteral(text string) value {
	n, err := strconv.ParseInt(text, 0, 64)
	if err != nil || n > maxFixnum || n < minFixnum {
		return typed(types.BigInt)
	}
	return literal(n)
}

func repeatTuple(t types.Type, n int) *types.Tuple {
	elems := make([]types.Type, n)
	for i := range elems {
		elems[i] = t
	}
	return &types.Tuple{Elems: elems}
}

// sequence builds the tuple of an array literal. A splatted tuple spreads
// into place; splatting anything else leaves the length unknown.
func (f *frame) sequence(items []syntax.NodeID) value {
	t := f.tree
	var elems []types.Type
	unknown := false
	for _, c := range items {
		switch t.Kind(c) {
		case "splat_argument":
			inner := f.splatted(c)
			if tup, ok := types.Simplify(inner.t).(*types.Tuple); ok {
				elems = append(elems, tup.Elems...)
				continue
			}
			unknown = true
		case "pair", "hash_splat_argument":
			f.eval(c)
			elems = append(elems, types.Mapping)
		default:
			elems = append(elems, f.eval(c).t)
		}
	}
	if unknown {
		return emptyValue
	}
	return typed(&types.Tuple{Elems: elems})
}

func (f *frame) splatted(splat syntax.NodeID) value {
	kids := f.tree.Children(splat)
	if len(kids) == 0 {
		return emptyValue
	}
	return f.eval(kids[0])
}

// argumentValue is the value of return/break/next arguments: nil for none,
// the value for one, a tuple for several.
func (f *frame) argumentValue(kids []syntax.NodeID) value {
	if len(kids) == 1 && f.tree.Kind(kids[0]) == "argument_list" {
		kids = f.tree.Children(kids[0])
	}
	switch {
	case len(kids) == 0:
		return typed(types.NullType)
	case len(kids) == 1 && f.tree.Kind(kids[0]) != "splat_argument":
		return f.eval(kids[0])
	}
	return f.sequence(kids)
}

func (f *frame) rangeValue(id syntax.NodeID) value {
	t := f.tree
	lo := f.eval(t.Field(id, "begin"))
	hi := f.eval(t.Field(id, "end"))
	v := typed(types.Instance("Range"))
	if lo.known && hi.known {
		v.rng = &rangeLit{lo: lo.lit, hi: hi.lit, exclusive: t.Node(id).Op == "..."}
	}
	return v
}

// constantName resolves a constant or scope resolution lexically from the
// namespace of the method being analysed. Unknown names stay as written.
func (f *frame) constantName(id syntax.NodeID) (string, bool) {
	name := constantText(f.tree, id)
	if name == "" {
		return "", false
	}
	if resolved, ok := f.e.reg.ResolveConstant(f.m.Namespace, name); ok {
		return resolved, true
	}
	return strings.TrimPrefix(name, "::"), true
}

func constantText(t *syntax.Tree, id syntax.NodeID) string {
	switch t.Kind(id) {
	case "constant":
		return t.Node(id).Text
	case "scope_resolution":
		scope := t.Field(id, "scope")
		name := constantText(t, t.Field(id, "name"))
		if !scope.Valid() {
			return "::" + name
		}
		return constantText(t, scope) + "::" + name
	}
	return ""
}

// fieldKey scopes @ivars to the class declaring the current method and @@cvars
// to the class itself, even from a class method.
func (f *frame) fieldKey(name string) fields.Key {
	owner := f.m.Owner
	if strings.HasPrefix(name, "@@") {
		if target, ok := types.Instance(owner).SingletonTarget(); ok {
			owner = target
		}
	}
	return fields.Instance(owner, name)
}

func (f *frame) assignment(id syntax.NodeID) value {
	t := f.tree
	right := t.Field(id, "right")
	var v value
	if t.Kind(right) == "right_assignment_list" {
		v = f.sequence(t.Children(right))
	} else {
		v = f.eval(right)
	}
	return f.assignTo(t.Field(id, "left"), v)
}

// assignTo stores v into a non-local target and returns the assignment's
// value.
func (f *frame) assignTo(left syntax.NodeID, v value) value {
	t := f.tree
	switch t.Kind(left) {
	case "instance_variable", "class_variable":
		return typed(f.e.writeField(f.fieldKey(t.Node(left).Text), v.t))
	case "global_variable":
		return typed(f.e.writeField(fields.Global(t.Node(left).Text), v.t))
	case "element_reference":
		recv := f.eval(t.Field(left, "object"))
		args, ok := f.arguments(elementArgs(t, left))
		if ok {
			f.call(left, recv, "[]=", append(args, v), false)
		}
	case "call":
		recv := f.eval(t.Field(left, "receiver"))
		name := t.Node(t.Field(left, "method")).Text
		f.call(left, recv, name+"=", []value{v}, false)
	}
	return v
}

func (f *frame) operatorAssignment(id syntax.NodeID) value {
	t := f.tree
	left := t.Field(id, "left")
	var old value
	switch t.Kind(left) {
	case "instance_variable", "class_variable":
		old = typed(f.e.store.Read(f.fieldKey(t.Node(left).Text)))
	case "global_variable":
		old = typed(f.e.store.Read(fields.Global(t.Node(left).Text)))
	case "element_reference":
		recv := f.eval(t.Field(left, "object"))
		args, ok := f.arguments(elementArgs(t, left))
		if !ok {
			return emptyValue
		}
		old = f.call(left, recv, "[]", args, false)
	case "call":
		recv := f.eval(t.Field(left, "receiver"))
		old = f.call(left, recv, t.Node(t.Field(left, "method")).Text, nil, false)
	default:
		old = f.read(left)
	}
	v := f.combine(id, old, t.Node(id).Op, t.Field(id, "right"))
	return f.assignTo(left, v)
}

// combine computes "old op= right".
func (f *frame) combine(site syntax.NodeID, old value, operator string, right syntax.NodeID) value {
	rhs := f.eval(right)
	switch operator {
	case "||=":
		return typed(types.Simplify(types.Join(truthy(old.t), rhs.t)))
	case "&&=":
		return typed(types.Simplify(types.Join(falsy(old.t), rhs.t)))
	}
	return f.call(site, old, strings.TrimSuffix(operator, "="), []value{rhs}, false)
}

func truthy(t types.Type) types.Type {
	var out []types.Type
	for _, m := range types.Members(t) {
		if m != types.NullType && m != types.False {
			out = append(out, m)
		}
	}
	return types.Join(out...)
}

func falsy(t types.Type) types.Type {
	var out []types.Type
	for _, m := range types.Members(t) {
		if m == types.NullType || m == types.False {
			out = append(out, m)
		}
	}
	return types.Join(out...)
}

func (f *frame) binary(id syntax.NodeID) value {
	t := f.tree
	l := f.eval(t.Field(id, "left"))
	r := f.eval(t.Field(id, "right"))
	switch op := t.Node(id).Op; op {
	case "&&", "and":
		return typed(types.Simplify(types.Join(falsy(l.t), r.t)))
	case "||", "or":
		return typed(types.Simplify(types.Join(truthy(l.t), r.t)))
	case "!~":
		return typed(types.Boolean)
	default:
		return f.call(id, l, op, []value{r}, false)
	}
}

func (f *frame) unary(id syntax.NodeID) value {
	t := f.tree
	operand := t.Field(id, "operand")
	if !operand.Valid() {
		if kids := t.Children(id); len(kids) > 0 {
			operand = kids[len(kids)-1]
		}
	}
	switch op := t.Node(id).Op; op {
	case "defined?":
		return typed(types.Join(types.Text, types.NullType))
	case "!", "not":
		return f.call(id, f.eval(operand), "!", nil, false)
	case "-":
		v := f.eval(operand)
		if v.known && v.lit != minFixnum {
			return literal(-v.lit)
		}
		if t.Kind(operand) == "float" {
			return v
		}
		return f.call(id, v, "-@", nil, false)
	case "+":
		return f.call(id, f.eval(operand), "+@", nil, false)
	default:
		return f.call(id, f.eval(operand), op, nil, false)
	}
}

// callNode evaluates a method call: receiver, arguments, then dispatch.
func (f *frame) callNode(id syntax.NodeID) value {
	t := f.tree
	method := t.Field(id, "method")
	argNode := t.Field(id, "arguments")

	if t.Kind(method) == "super" {
		args, ok := f.arguments(t.Children(argNode))
		if !ok {
			return emptyValue
		}
		return f.super(id, args, false)
	}

	recvNode := t.Field(id, "receiver")
	recv, implicit := typed(f.recv), true
	if recvNode.Valid() {
		recv, implicit = f.eval(recvNode), false
	}
	args, ok := f.arguments(t.Children(argNode))
	if !ok {
		return emptyValue
	}

	name := "call"
	if method.Valid() {
		name = t.Node(method).Text
	}
	if t.Node(id).Op != "&." || !types.AsUnion(recv.t).Contains(types.NullType) {
		return f.call(id, recv, name, args, implicit)
	}
	// safe navigation: nil short-circuits
	res := f.call(id, typed(withoutNull(recv.t)), name, args, implicit)
	return typed(types.Simplify(types.Join(res.t, types.NullType)))
}

func withoutNull(t types.Type) types.Type {
	var out []types.Type
	for _, m := range types.Members(t) {
		if m != types.NullType {
			out = append(out, m)
		}
	}
	return types.Simplify(types.Join(out...))
}

func elementArgs(t *syntax.Tree, id syntax.NodeID) []syntax.NodeID {
	obj := t.Field(id, "object")
	var out []syntax.NodeID
	for _, c := range t.Children(id) {
		if c != obj {
			out = append(out, c)
		}
	}
	return out
}

// arguments evaluates a call's argument nodes. Keyword pairs collapse into a
// trailing Mapping; block arguments are dropped. ok is false when a splat of
// unknown length makes the positional count unknowable.
func (f *frame) arguments(nodes []syntax.NodeID) ([]value, bool) {
	t := f.tree
	var out []value
	keywords := false
	ok := true
	for _, c := range nodes {
		switch t.Kind(c) {
		case "splat_argument":
			inner := f.splatted(c)
			tup, isTuple := types.Simplify(inner.t).(*types.Tuple)
			if !isTuple {
				ok = false
				continue
			}
			for _, e := range tup.Elems {
				out = append(out, typed(e))
			}
		case "pair", "hash_splat_argument":
			f.eval(c)
			keywords = true
		case "block_argument", "block", "do_block":
		default:
			out = append(out, f.eval(c))
		}
	}
	if keywords {
		out = append(out, typed(types.Mapping))
	}
	return out, ok
}
