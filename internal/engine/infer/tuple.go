// # internal/engine/infer/tuple.go
package infer

import (
	"rtinfer/internal/engine/types"
)

// tupleMethods are the Array methods answered from a tuple's shape.
var tupleMethods = []string{
	"[]", "slice", "at", "first", "last", "size", "length", "count", "empty?",
	"any?", "+", "*", "to_a", "to_ary", "entries", "reverse", "push", "<<",
	"append", "join", "include?", "member?", "min", "max", "sample", "pop",
	"shift", "each", "map", "collect", "select", "filter", "reject",
}

// tupleMethod types an Array method on a known tuple. ok is false when the
// operands do not fit, leaving the call to ordinary resolution.
func (f *frame) tupleMethod(tup *types.Tuple, name string, args []value) (value, bool) {
	n := tup.Len()
	switch name {
	case "[]", "slice", "at":
		return index(tup, name, args)

	case "first", "last":
		if len(args) == 0 {
			if name == "first" {
				return typed(tup.ElementAt(0)), true
			}
			return typed(tup.ElementAt(-1)), true
		}
		if len(args) != 1 || !args[0].known || args[0].lit < 0 {
			return value{}, false
		}
		k := int(args[0].lit)
		if k > n {
			k = n
		}
		if name == "first" {
			return typed(tup.Slice(0, k, true)), true
		}
		return typed(tup.Slice(n-k, n, true)), true

	case "size", "length", "count":
		if len(args) == 0 {
			return literal(int64(n)), true
		}
		if name == "count" {
			return typed(types.SmallInt), true
		}

	case "empty?":
		if len(args) == 0 {
			if n == 0 {
				return typed(types.True), true
			}
			return typed(types.False), true
		}

	case "any?", "include?", "member?":
		return typed(types.Boolean), true

	case "+":
		if len(args) == 1 {
			if other, ok := types.Simplify(args[0].t).(*types.Tuple); ok {
				return typed(tup.Concat(other)), true
			}
		}

	case "*":
		if len(args) != 1 {
			return value{}, false
		}
		if args[0].known {
			if rep, ok := tup.Replicate(args[0].lit, f.e.opts.MaxTupleLength); ok {
				return typed(rep), true
			}
			// too long to spell out; an array of unknown length
			return emptyValue, true
		}
		if types.Equivalent(args[0].t, types.Text) {
			return typed(types.Text), true
		}

	case "to_a", "to_ary", "entries":
		if len(args) == 0 {
			return typed(tup.ToSequence()), true
		}

	case "reverse":
		if len(args) == 0 {
			return typed(tup.Reverse()), true
		}

	case "push", "<<", "append":
		elems := make([]types.Type, len(args))
		for i, a := range args {
			elems[i] = a.t
		}
		return typed(tup.Concat(types.NewTuple(elems...))), true

	case "join":
		return typed(types.Text), true

	case "min", "max", "sample":
		if len(args) == 0 {
			return typed(orNil(tup)), true
		}

	case "pop":
		if len(args) == 0 {
			return typed(tup.ElementAt(-1)), true
		}

	case "shift":
		if len(args) == 0 {
			return typed(tup.ElementAt(0)), true
		}

	case "each":
		return typed(tup), true

	case "map", "collect", "select", "filter", "reject":
		return emptyValue, true
	}
	return value{}, false
}

// index types tuple[i], tuple[lo..hi] and tuple[start, len].
func index(tup *types.Tuple, name string, args []value) (value, bool) {
	n := tup.Len()
	switch len(args) {
	case 1:
		a := args[0]
		switch {
		case a.known:
			return typed(tup.ElementAt(int(a.lit))), true
		case a.rng != nil && name != "at":
			return typed(tup.Slice(int(a.rng.lo), int(a.rng.hi), a.rng.exclusive)), true
		case isInteger(a.t):
			return typed(orNil(tup)), true
		case types.Equivalent(a.t, types.Instance("Range")) && name != "at":
			return emptyValue, true
		}
	case 2:
		if name == "at" {
			return value{}, false
		}
		start, length := args[0], args[1]
		if start.known && length.known {
			lo := int(start.lit)
			if lo < 0 {
				lo += n
			}
			if lo < 0 || lo > n || length.lit < 0 {
				return typed(types.NullType), true
			}
			return typed(tup.Slice(lo, lo+int(length.lit), true)), true
		}
		if isInteger(start.t) && isInteger(length.t) {
			// a sub-tuple of unknown length
			return emptyValue, true
		}
	}
	return value{}, false
}

func isInteger(t types.Type) bool {
	return types.Join(types.SmallInt, types.BigInt).Contains(t)
}

// orNil is the element type at an index not known statically.
func orNil(tup *types.Tuple) types.Type {
	return types.Simplify(types.Join(tup.ElementUnion(), types.NullType))
}
