// # internal/engine/infer/dispatch.go
package infer

import (
	"fmt"
	"math/big"
	"strings"

	"rtinfer/internal/engine/diag"
	"rtinfer/internal/engine/registry"
	"rtinfer/internal/engine/syntax"
	"rtinfer/internal/engine/types"
)

// coreConstructors are the results of .new on core classes the lattice
// models as primitives.
var coreConstructors = map[string]types.Type{
	"String": types.Text,
	"Hash":   types.Mapping,
	"Proc":   types.Callable,
	"Array":  types.Empty,
	"Object": types.Instance(registry.RootClass),
}

// call dispatches name on recv at site. Each receiver member is matched with
// each combination of argument members; any combination without a matching
// method is reported once for the site and contributes nothing.
func (f *frame) call(site syntax.NodeID, recv value, name string, args []value, implicit bool) value {
	if types.IsEmpty(recv.t) {
		return emptyValue
	}
	for _, a := range args {
		if types.IsEmpty(a.t) {
			return emptyValue
		}
	}
	if v, ok := foldLiteral(recv, name, args); ok {
		return v
	}
	if tup, ok := types.Simplify(recv.t).(*types.Tuple); ok {
		if v, ok := f.tupleMethod(tup, name, args); ok {
			return v
		}
	}

	combos := f.combinations(args)
	var results []types.Type
	var failed []string
	for _, r := range types.Members(recv.t) {
		for _, combo := range combos {
			res, ok := f.resolve(site, r, name, combo, implicit)
			if ok {
				results = append(results, res)
				continue
			}
			failed = append(failed, describeCall(r, combo))
		}
	}
	if len(failed) > 0 {
		f.unresolved(site, recv.t, name, failed)
	}
	return typed(types.Simplify(types.Join(results...)))
}

// combinations expands union arguments into concrete operand lists. Past the
// configured cap every argument is matched as its whole union.
func (f *frame) combinations(args []value) [][]types.Type {
	total := 1
	for _, a := range args {
		total *= len(types.Members(a.t))
		if total > f.e.opts.MaxCombinations {
			whole := make([]types.Type, len(args))
			for i, a := range args {
				whole[i] = a.t
			}
			return [][]types.Type{whole}
		}
	}
	out := [][]types.Type{{}}
	for _, a := range args {
		var next [][]types.Type
		for _, prefix := range out {
			for _, m := range types.Members(a.t) {
				combo := append(append([]types.Type(nil), prefix...), m)
				next = append(next, combo)
			}
		}
		out = next
	}
	return out
}

func describeCall(recv types.Type, args []types.Type) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", recv, strings.Join(parts, ", "))
}

func (f *frame) unresolved(site syntax.NodeID, recv types.Type, name string, failed []string) {
	d := diag.Diagnostic{
		Kind:    diag.UnresolvedOperation,
		Message: fmt.Sprintf("no method '%s' accepts %s", name, strings.Join(failed, " or ")),
		Line:    f.tree.Line(site),
		Node:    site,
		File:    f.tree.FileOf(site),
	}
	if hint := diag.ClosestName(name, f.knownNames(recv)); hint != "" {
		d.Secondary = fmt.Sprintf("did you mean '%s'?", hint)
	}
	f.e.sink.Report(d)
}

// knownNames lists what can be called on any member of recv.
func (f *frame) knownNames(recv types.Type) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(names []string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	for _, m := range types.Members(recv) {
		switch r := m.(type) {
		case types.Primitive:
			add(f.e.reg.MethodNames(r.RubyClass(), r.String()))
		case *types.ClassType:
			if _, ok := r.SingletonTarget(); ok {
				add(f.e.reg.MethodNames(r.Name, registry.ReceiverClass))
			} else {
				add(f.e.reg.MethodNames(r.Name, ""))
			}
		case *types.Tuple:
			add(tupleMethods)
			add(f.e.reg.MethodNames("Array", ""))
		}
	}
	return out
}

// resolve finds what name returns for one concrete receiver and operand list.
func (f *frame) resolve(site syntax.NodeID, recv types.Type, name string, args []types.Type, implicit bool) (types.Type, bool) {
	reg := f.e.reg
	switch r := recv.(type) {
	case *types.ClassType:
		if name == "class" && len(args) == 0 {
			if _, ok := r.SingletonTarget(); ok {
				return types.SingletonOf("Class"), true
			}
			return types.SingletonOf(r.Name), true
		}
		if target, ok := r.SingletonTarget(); ok {
			if m, ok := reg.Lookup(r.Name, name); ok {
				return f.invoke(m, r, args)
			}
			if name == "new" {
				return f.construct(target, args)
			}
			if implicit {
				if m, ok := reg.Lookup(registry.RootClass, name); ok {
					return f.invoke(m, r, args)
				}
			}
			return f.builtin(r, name, args, implicit)
		}
		if res, ok, found := f.instanceMethod(r, name, args); found {
			return res, ok
		}
		return f.builtin(r, name, args, implicit)

	case types.Primitive:
		if m, ok := reg.Lookup(r.RubyClass(), name); ok && m.Owner != registry.RootClass {
			return f.invoke(m, r, args)
		}
		return f.builtin(r, name, args, implicit)

	case *types.Tuple:
		if v, ok := f.tupleMethod(r, name, valuesOf(args)); ok {
			return v.t, true
		}
		if m, ok := reg.Lookup("Array", name); ok && m.Owner != registry.RootClass {
			return f.invoke(m, r, args)
		}
		return f.builtin(r, name, args, implicit)
	}
	return nil, false
}

// instanceMethod dispatches to a user method on an instance. A covariant
// receiver also dispatches to every subclass override. found is false when no
// candidate class defines name.
func (f *frame) instanceMethod(r *types.ClassType, name string, args []types.Type) (types.Type, bool, bool) {
	reg := f.e.reg
	owners := []string{r.Name}
	if r.Variance == types.Covariant {
		owners = append(owners, reg.Subclasses(r.Name)...)
	}
	var results []types.Type
	found, ok := false, true
	for _, owner := range owners {
		m, hit := reg.Lookup(owner, name)
		if !hit {
			continue
		}
		found = true
		res, accepted := f.invoke(m, types.Instance(owner), args)
		if !accepted {
			ok = false
			continue
		}
		results = append(results, res)
	}
	if !found {
		return nil, false, false
	}
	return types.Simplify(types.Join(results...)), ok, true
}

// invoke infers a user method after checking its arity.
func (f *frame) invoke(m *registry.Method, recv types.Type, args []types.Type) (types.Type, bool) {
	args = dropKeywords(m, args)
	if !m.Accepts(len(args)) {
		return nil, false
	}
	if m.Accessor == registry.NotAccessor {
		f.e.calls.AddCall(f.m.String(), m.String())
	}
	return types.Simplify(f.e.query(m, recv, args)), true
}

// dropKeywords removes the trailing keyword Mapping when m takes keywords.
func dropKeywords(m *registry.Method, args []types.Type) []types.Type {
	if len(args) == 0 || args[len(args)-1] != types.Mapping {
		return args
	}
	for _, p := range m.Params {
		if p.Kind == registry.ParamKeyword || p.Kind == registry.ParamKeywordRest {
			return args[:len(args)-1]
		}
	}
	return args
}

func (f *frame) builtin(recv types.Type, name string, args []types.Type, implicit bool) (types.Type, bool) {
	for _, ov := range f.e.reg.Builtins().Overloads(recv, name, implicit) {
		if ov.Accepts(args) {
			return ov.ResultFor(recv), true
		}
	}
	return nil, false
}

// construct types Class#new: an instance of exactly that class, after the
// resolved initialize has run for its field writes.
func (f *frame) construct(class string, args []types.Type) (types.Type, bool) {
	if t, ok := coreConstructors[class]; ok {
		return t, true
	}
	reg := f.e.reg
	c, known := reg.Class(class)
	if !known {
		return types.Instance(class), true
	}
	if c.IsModule {
		return nil, false
	}
	inst := types.Instance(class)
	if init, ok := reg.Lookup(class, "initialize"); ok {
		if _, accepted := f.invoke(init, inst, args); !accepted {
			return nil, false
		}
	}
	return inst, true
}

// super resolves statically from the superclass of the class that declares
// the method being analysed. A bare super forwards the entry argument types.
func (f *frame) super(site syntax.NodeID, args []value, bare bool) value {
	operands := f.args
	if !bare {
		operands = make([]types.Type, len(args))
		for i, a := range args {
			operands[i] = a.t
		}
	}
	for _, a := range operands {
		if types.IsEmpty(a) {
			return emptyValue
		}
	}

	if m, ok := f.e.reg.LookupSuper(f.m.Owner, f.m.Name); ok {
		if res, accepted := f.invoke(m, f.recv, operands); accepted {
			return typed(res)
		}
		f.unresolved(site, f.recv, "super", []string{describeCall(f.recv, operands)})
		return emptyValue
	}

	switch f.m.Name {
	case "initialize":
		return typed(types.NullType)
	case "method_missing", "respond_to_missing?", "inherited", "included":
		return emptyValue
	}
	for _, ov := range f.e.reg.Builtins().For(registry.ReceiverObject, f.m.Name) {
		if ov.Accepts(operands) {
			return typed(ov.ResultFor(f.recv))
		}
	}
	f.unresolved(site, f.recv, f.m.Name, []string{"super " + describeCall(f.recv, operands)})
	return emptyValue
}

func valuesOf(ts []types.Type) []value {
	out := make([]value, len(ts))
	for i, t := range ts {
		out[i] = typed(t)
	}
	return out
}

// foldLiteral evaluates integer arithmetic between literals, so that
// "args.size - 2" is a usable index.
func foldLiteral(recv value, name string, args []value) (value, bool) {
	if !recv.known || len(args) != 1 || !args[0].known {
		return value{}, false
	}
	a, b := big.NewInt(recv.lit), big.NewInt(args[0].lit)
	var r big.Int
	switch name {
	case "+":
		r.Add(a, b)
	case "-":
		r.Sub(a, b)
	case "*":
		r.Mul(a, b)
	default:
		return value{}, false
	}
	if !r.IsInt64() || r.Int64() > maxFixnum || r.Int64() < minFixnum {
		return typed(types.BigInt), true
	}
	return literal(r.Int64()), true
}
