// # internal/engine/registry/registry.go
package registry

import (
	"fmt"
	"sort"
	"strings"

	"rtinfer/internal/engine/syntax"
	"rtinfer/internal/engine/types"
)

// RootClass is the implicit superclass of every class and the owner of
// top-level methods.
const RootClass = "Object"

// ParamKind classifies a formal parameter.
type ParamKind int

const (
	ParamRequired ParamKind = iota
	ParamOptional
	ParamRest
	ParamKeyword
	ParamKeywordRest
	ParamBlock
)

// Param is one formal parameter of a method.
type Param struct {
	Name    string
	Kind    ParamKind
	Default syntax.NodeID
	Node    syntax.NodeID
}

// AccessorKind marks methods synthesised from attr_* declarations.
type AccessorKind int

const (
	NotAccessor AccessorKind = iota
	Reader
	Writer
)

// Method is a user-defined method.
type Method struct {
	ID        int
	Name      string
	Owner     string
	Namespace []string
	Node      syntax.NodeID
	Params    []Param
	Body      []syntax.NodeID
	File      string
	Line      int

	Accessor AccessorKind
	Field    string
}

// Singleton reports whether m is defined on a class object.
func (m *Method) Singleton() bool {
	return strings.HasPrefix(m.Owner, "#<Class:")
}

// String renders m as Owner#name or Owner.name.
func (m *Method) String() string {
	if target, ok := types.Instance(m.Owner).SingletonTarget(); ok {
		return target + "." + m.Name
	}
	return m.Owner + "#" + m.Name
}

// Arity returns the required and optional positional counts and whether a
// rest parameter accepts any surplus.
func (m *Method) Arity() (required, optional int, rest bool) {
	for _, p := range m.Params {
		switch p.Kind {
		case ParamRequired:
			required++
		case ParamOptional:
			optional++
		case ParamRest:
			rest = true
		}
	}
	return required, optional, rest
}

// Accepts reports whether n positional arguments fit m's parameter list.
func (m *Method) Accepts(n int) bool {
	req, opt, rest := m.Arity()
	if n < req {
		return false
	}
	return rest || n <= req+opt
}

// Class is a class, module or singleton class known to the registry.
type Class struct {
	Name      string
	IsModule  bool
	Node      syntax.NodeID
	Namespace []string

	superRef string
	methods  map[string]*Method
}

// MethodNames lists the names declared directly on c, sorted.
func (c *Class) MethodNames() []string {
	out := make([]string, 0, len(c.methods))
	for name := range c.methods {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Method returns the method declared directly on c.
func (c *Class) Method(name string) (*Method, bool) {
	m, ok := c.methods[name]
	return m, ok
}

// Registry records definitions discovered in syntax trees and the built-in
// overload table.
type Registry struct {
	classes  map[string]*Class
	order    []string
	methods  []*Method
	builtins *Builtins
}

// New returns a registry with the embedded core library loaded.
func New() (*Registry, error) {
	b, err := LoadBuiltins(corelibTOML)
	if err != nil {
		return nil, err
	}
	return NewWithBuiltins(b), nil
}

// NewWithBuiltins returns a registry over a caller-provided overload table.
func NewWithBuiltins(b *Builtins) *Registry {
	r := &Registry{
		classes:  make(map[string]*Class),
		builtins: b,
	}
	r.ensureClass(RootClass, false, syntax.NoNode, nil)
	return r
}

// Builtins exposes the overload table.
func (r *Registry) Builtins() *Builtins {
	return r.builtins
}

// Class returns the class or module called name.
func (r *Registry) Class(name string) (*Class, bool) {
	c, ok := r.classes[name]
	return c, ok
}

// Classes lists class and module names in definition order, leaving out
// singleton classes.
func (r *Registry) Classes() []string {
	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if strings.HasPrefix(name, "#<Class:") {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Methods lists every user method in definition order.
func (r *Registry) Methods() []*Method {
	out := make([]*Method, len(r.methods))
	copy(out, r.methods)
	return out
}

// Superclass returns the resolved superclass of name, if it has one.
func (r *Registry) Superclass(name string) (string, bool) {
	if target, ok := types.Instance(name).SingletonTarget(); ok {
		sup, ok := r.Superclass(target)
		if !ok {
			return "", false
		}
		return singletonName(sup), true
	}
	c, ok := r.classes[name]
	if !ok {
		if name == RootClass {
			return "", false
		}
		return RootClass, true
	}
	if c.IsModule || name == RootClass {
		return "", false
	}
	if c.superRef == "" {
		return RootClass, true
	}
	if resolved, ok := r.ResolveConstant(c.Namespace, c.superRef); ok {
		return resolved, true
	}
	return c.superRef, true
}

// Ancestors returns name followed by its superclass chain.
func (r *Registry) Ancestors(name string) []string {
	out := []string{name}
	seen := map[string]bool{name: true}
	for cur := name; ; {
		sup, ok := r.Superclass(cur)
		if !ok || seen[sup] {
			return out
		}
		seen[sup] = true
		out = append(out, sup)
		cur = sup
	}
}

// Lookup finds the method name visible on owner, walking ancestors.
func (r *Registry) Lookup(owner, name string) (*Method, bool) {
	for _, cls := range r.Ancestors(owner) {
		if c, ok := r.classes[cls]; ok {
			if m, ok := c.methods[name]; ok {
				return m, true
			}
		}
	}
	return nil, false
}

// LookupSuper finds name starting at the superclass of owner. owner is the
// class that lexically declares the calling method.
func (r *Registry) LookupSuper(owner, name string) (*Method, bool) {
	sup, ok := r.Superclass(owner)
	if !ok {
		return nil, false
	}
	return r.Lookup(sup, name)
}

// Subclasses returns every class whose ancestor chain includes name,
// excluding name itself, sorted.
func (r *Registry) Subclasses(name string) []string {
	var out []string
	for _, cls := range r.order {
		if cls == name {
			continue
		}
		for _, anc := range r.Ancestors(cls)[1:] {
			if anc == name {
				out = append(out, cls)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// MethodNames lists every method name callable on owner: user methods along
// the ancestor chain plus built-ins for the matching receiver.
func (r *Registry) MethodNames(owner string, builtinReceiver string) []string {
	seen := make(map[string]bool)
	for _, cls := range r.Ancestors(owner) {
		if c, ok := r.classes[cls]; ok {
			for name := range c.methods {
				seen[name] = true
			}
		}
	}
	for _, recv := range []string{builtinReceiver, ReceiverObject} {
		if recv == "" {
			continue
		}
		for _, name := range r.builtins.Names(recv) {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ResolveConstant resolves name lexically from namespace outward, returning
// the qualified name of a known class or module.
func (r *Registry) ResolveConstant(namespace []string, name string) (string, bool) {
	name = strings.TrimPrefix(name, "::")
	for i := len(namespace); i >= 0; i-- {
		candidate := name
		if i > 0 {
			candidate = strings.Join(namespace[:i], "::") + "::" + name
		}
		if _, ok := r.classes[candidate]; ok {
			return candidate, true
		}
	}
	return "", false
}

// InstanceMethod returns the method declared directly on class.
func (r *Registry) InstanceMethod(class, name string) (*Method, error) {
	c, ok := r.classes[class]
	if !ok {
		return nil, fmt.Errorf("unknown class %q", class)
	}
	m, ok := c.methods[name]
	if !ok {
		return nil, fmt.Errorf("%s has no instance method %q", class, name)
	}
	return m, nil
}

// SingletonMethod returns the method declared directly on class's singleton.
func (r *Registry) SingletonMethod(class, name string) (*Method, error) {
	return r.InstanceMethod(singletonName(class), name)
}

func singletonName(class string) string {
	return types.SingletonOf(class).Name
}

func (r *Registry) ensureClass(name string, module bool, node syntax.NodeID, ns []string) *Class {
	if c, ok := r.classes[name]; ok {
		if !c.Node.Valid() {
			c.Node = node
		}
		return c
	}
	c := &Class{
		Name:      name,
		IsModule:  module,
		Node:      node,
		Namespace: ns,
		methods:   make(map[string]*Method),
	}
	r.classes[name] = c
	r.order = append(r.order, name)
	return c
}

func (r *Registry) addMethod(owner string, m *Method) {
	c := r.ensureClass(owner, false, syntax.NoNode, nil)
	m.ID = len(r.methods)
	m.Owner = owner
	c.methods[m.Name] = m
	r.methods = append(r.methods, m)
}
