// # internal/engine/types/types.go
package types

import (
	"sort"
	"strings"
)

// Type is a value of the inference lattice.
type Type interface {
	String() string
	// key is a canonical identity used for deduplication and ordering.
	key() string
}

// Primitive is one of the built-in value kinds.
type Primitive uint8

const (
	SmallInt Primitive = iota + 1
	BigInt
	Float
	Text
	Symbolic
	NullType
	True
	False
	Mapping
	Callable
)

var primitiveNames = map[Primitive]string{
	SmallInt: "SmallInt",
	BigInt:   "BigInt",
	Float:    "Float",
	Text:     "Text",
	Symbolic: "Symbolic",
	NullType: "NullType",
	True:     "True",
	False:    "False",
	Mapping:  "Mapping",
	Callable: "Callable",
}

// rubyNames maps primitives to the core class a Ruby program sees.
var rubyNames = map[Primitive]string{
	SmallInt: "Fixnum",
	BigInt:   "Bignum",
	Float:    "Float",
	Text:     "String",
	Symbolic: "Symbol",
	NullType: "NilClass",
	True:     "TrueClass",
	False:    "FalseClass",
	Mapping:  "Hash",
	Callable: "Proc",
}

// Primitives lists every primitive in declaration order.
func Primitives() []Primitive {
	out := make([]Primitive, 0, len(primitiveNames))
	for p := SmallInt; p <= Callable; p++ {
		out = append(out, p)
	}
	return out
}

func (p Primitive) String() string {
	if name, ok := primitiveNames[p]; ok {
		return name
	}
	return "Primitive(?)"
}

// RubyClass returns the name of the core class modelled by p.
func (p Primitive) RubyClass() string {
	return rubyNames[p]
}

func (p Primitive) key() string { return "0" + p.String() }

// Variance qualifies how a ClassType relates to subclasses.
type Variance uint8

const (
	Invariant Variance = iota
	Covariant
	Contravariant
)

func (v Variance) String() string {
	switch v {
	case Covariant:
		return "covariant"
	case Contravariant:
		return "contravariant"
	default:
		return "invariant"
	}
}

// ClassType denotes an instance of a named class. An invariant ClassType is
// an instance of exactly that class.
type ClassType struct {
	Name     string
	Variance Variance
}

// Instance returns the invariant ClassType for name.
func Instance(name string) *ClassType {
	return &ClassType{Name: name, Variance: Invariant}
}

const singletonPrefix = "#<Class:"

// SingletonOf returns the type of the class object name itself, which is an
// instance of its singleton class.
func SingletonOf(name string) *ClassType {
	return Instance(singletonPrefix + name + ">")
}

// SingletonTarget reports whether c names a singleton class and, if so, the
// class it is attached to.
func (c *ClassType) SingletonTarget() (string, bool) {
	if strings.HasPrefix(c.Name, singletonPrefix) && strings.HasSuffix(c.Name, ">") {
		return c.Name[len(singletonPrefix) : len(c.Name)-1], true
	}
	return "", false
}

func (c *ClassType) String() string {
	if c.Variance == Invariant {
		return c.Name
	}
	return c.Name + "<" + c.Variance.String() + ">"
}

func (c *ClassType) key() string { return "1" + c.String() }

// Tuple is a fixed-length sequence of independently typed positions.
type Tuple struct {
	Elems []Type
}

// NewTuple builds a tuple over elems.
func NewTuple(elems ...Type) *Tuple {
	out := make([]Type, len(elems))
	copy(out, elems)
	return &Tuple{Elems: out}
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "Tuple<" + strings.Join(parts, ", ") + ">"
}

func (t *Tuple) key() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = Simplify(e).key()
	}
	return "2<" + strings.Join(parts, ",") + ">"
}

// Union is a flattened, deduplicated set of non-union types. The zero-member
// union is the bottom of the lattice.
type Union struct {
	members []Type
}

// Empty is the bottom type: no type could be derived.
var Empty = &Union{}

// Boolean is Union(True, False).
var Boolean = Join(True, False)

func (u *Union) String() string {
	if len(u.members) == 0 {
		return "Empty"
	}
	parts := make([]string, len(u.members))
	for i, m := range u.members {
		parts[i] = m.String()
	}
	return strings.Join(parts, " | ")
}

func (u *Union) key() string {
	parts := make([]string, len(u.members))
	for i, m := range u.members {
		parts[i] = m.key()
	}
	return "3{" + strings.Join(parts, ",") + "}"
}

// Members returns the union's members in canonical order.
func (u *Union) Members() []Type {
	out := make([]Type, len(u.members))
	copy(out, u.members)
	return out
}

// Len is the number of members.
func (u *Union) Len() int { return len(u.members) }

// Contains reports whether t (or every member of t, when t is a union) is a
// member of u.
func (u *Union) Contains(t Type) bool {
	for _, m := range Members(t) {
		found := false
		k := m.key()
		for _, own := range u.members {
			if own.key() == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Join unions the given types, flattening nested unions and dropping
// duplicates.
func Join(ts ...Type) *Union {
	seen := make(map[string]bool)
	var members []Type
	var add func(t Type)
	add = func(t Type) {
		if t == nil {
			return
		}
		if u, ok := t.(*Union); ok {
			for _, m := range u.members {
				add(m)
			}
			return
		}
		k := t.key()
		if seen[k] {
			return
		}
		seen[k] = true
		members = append(members, t)
	}
	for _, t := range ts {
		add(t)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].key() < members[j].key() })
	return &Union{members: members}
}

// AsUnion lifts t into a union.
func AsUnion(t Type) *Union {
	if u, ok := t.(*Union); ok {
		return u
	}
	return Join(t)
}

// IsEmpty reports whether t is the bottom type.
func IsEmpty(t Type) bool {
	if t == nil {
		return true
	}
	u, ok := t.(*Union)
	return ok && len(u.members) == 0
}

// Members expands t into its concrete members.
func Members(t Type) []Type {
	if t == nil {
		return nil
	}
	if u, ok := t.(*Union); ok {
		return u.members
	}
	return []Type{t}
}

// Equivalent compares by member set, so a bare type equals its singleton
// union.
func Equivalent(a, b Type) bool {
	return AsUnion(a).key() == AsUnion(b).key()
}

// Key exposes the canonical identity of t for use as a map key.
func Key(t Type) string {
	return AsUnion(t).key()
}

// Simplify returns the single member of a one-member union, and t otherwise.
func Simplify(t Type) Type {
	if u, ok := t.(*Union); ok && len(u.members) == 1 {
		return u.members[0]
	}
	return t
}
