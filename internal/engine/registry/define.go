package registry

import (
	"strings"

	"rtinfer/internal/engine/syntax"
)

type scope struct {
	namespace []string
	owner     string
	singleton bool
}

func (s scope) methodOwner() string {
	if s.singleton {
		return singletonName(s.owner)
	}
	return s.owner
}

type definer struct {
	r    *Registry
	tree *syntax.Tree
}

// Define records the classes, modules and methods found under root.
// Reopened classes merge; a redefined method replaces the earlier one.
func (r *Registry) Define(tree *syntax.Tree, root syntax.NodeID) {
	d := &definer{r: r, tree: tree}
	d.walk(root, scope{owner: RootClass})
}

func (d *definer) walk(id syntax.NodeID, sc scope) {
	t := d.tree
	switch t.Kind(id) {
	case "class", "module":
		d.defineClass(id, sc)
		return
	case "singleton_class":
		inner := sc
		inner.singleton = true
		for _, c := range t.Children(id) {
			if c == t.Field(id, "value") {
				continue
			}
			d.walk(c, inner)
		}
		return
	case "method":
		d.defineMethod(id, sc, sc.methodOwner())
		return
	case "singleton_method":
		owner := singletonName(sc.owner)
		if obj := t.Field(id, "object"); obj.Valid() && t.Kind(obj) != "self" {
			if resolved, ok := d.r.ResolveConstant(sc.namespace, t.Node(obj).Text); ok {
				owner = singletonName(resolved)
			} else {
				owner = singletonName(t.Node(obj).Text)
			}
		}
		d.defineMethod(id, sc, owner)
		return
	case "call":
		if d.defineAccessors(id, sc) {
			return
		}
	}
	for _, c := range t.Children(id) {
		d.walk(c, sc)
	}
}

func (d *definer) defineClass(id syntax.NodeID, sc scope) {
	t := d.tree
	nameNode := t.Field(id, "name")
	if !nameNode.Valid() {
		return
	}
	local := nodeText(t, nameNode)
	qualified := local
	if len(sc.namespace) > 0 && !strings.HasPrefix(local, "::") {
		qualified = strings.Join(sc.namespace, "::") + "::" + local
	}
	qualified = strings.TrimPrefix(qualified, "::")

	module := t.Kind(id) == "module"
	c := d.r.ensureClass(qualified, module, id, sc.namespace)
	c.IsModule = module
	if sup := t.Field(id, "superclass"); sup.Valid() {
		c.superRef = superclassName(t, sup)
	}

	inner := scope{namespace: strings.Split(qualified, "::"), owner: qualified}
	for _, child := range t.Children(id) {
		if child == nameNode || child == t.Field(id, "superclass") {
			continue
		}
		d.walk(child, inner)
	}
}

func superclassName(t *syntax.Tree, sup syntax.NodeID) string {
	if t.Kind(sup) == "superclass" {
		for _, c := range t.Children(sup) {
			return nodeText(t, c)
		}
	}
	return nodeText(t, sup)
}

func (d *definer) defineMethod(id syntax.NodeID, sc scope, owner string) {
	t := d.tree
	nameNode := t.Field(id, "name")
	if !nameNode.Valid() {
		return
	}
	m := &Method{
		Name:      nodeText(t, nameNode),
		Namespace: sc.namespace,
		Node:      id,
		File:      t.FileOf(id),
		Line:      t.Line(id),
	}
	params := t.Field(id, "parameters")
	if params.Valid() {
		m.Params = collectParams(t, params)
	}
	m.Body = methodBody(t, id, nameNode, params)
	d.r.addMethod(owner, m)
}

// methodBody returns the statements of a def, whether the grammar wraps them
// in a body_statement or lists them inline.
func methodBody(t *syntax.Tree, def, name, params syntax.NodeID) []syntax.NodeID {
	if body := t.Field(def, "body"); body.Valid() {
		if t.Kind(body) == "body_statement" {
			return t.Children(body)
		}
		return []syntax.NodeID{body}
	}
	var out []syntax.NodeID
	for _, c := range t.Children(def) {
		if c == name || c == params || c == t.Field(def, "object") {
			continue
		}
		if t.Kind(c) == "body_statement" {
			out = append(out, t.Children(c)...)
			continue
		}
		out = append(out, c)
	}
	return out
}

func collectParams(t *syntax.Tree, list syntax.NodeID) []Param {
	var out []Param
	for _, p := range t.Children(list) {
		param := Param{Node: p, Default: syntax.NoNode}
		switch t.Kind(p) {
		case "identifier":
			param.Name = t.Node(p).Text
			param.Kind = ParamRequired
		case "optional_parameter":
			param.Name = nodeText(t, t.Field(p, "name"))
			param.Kind = ParamOptional
			param.Default = t.Field(p, "value")
		case "splat_parameter", "forward_parameter":
			param.Name = nodeText(t, t.Field(p, "name"))
			param.Kind = ParamRest
		case "keyword_parameter":
			param.Name = nodeText(t, t.Field(p, "name"))
			param.Kind = ParamKeyword
			param.Default = t.Field(p, "value")
		case "hash_splat_parameter", "hash_splat_nil":
			param.Name = nodeText(t, t.Field(p, "name"))
			param.Kind = ParamKeywordRest
		case "block_parameter":
			param.Name = nodeText(t, t.Field(p, "name"))
			param.Kind = ParamBlock
		case "destructured_parameter":
			param.Kind = ParamRequired
		default:
			continue
		}
		out = append(out, param)
	}
	return out
}

// defineAccessors synthesises reader and writer methods for
// attr_reader / attr_writer / attr_accessor calls in a class body.
func (d *definer) defineAccessors(id syntax.NodeID, sc scope) bool {
	t := d.tree
	if t.Field(id, "receiver").Valid() {
		return false
	}
	name := nodeText(t, t.Field(id, "method"))
	args := t.Field(id, "arguments")
	var reader, writer bool
	switch name {
	case "attr_reader":
		reader = true
	case "attr_writer":
		writer = true
	case "attr_accessor":
		reader, writer = true, true
	default:
		return false
	}
	owner := sc.methodOwner()
	for _, a := range t.Children(args) {
		kind := t.Kind(a)
		if kind != "simple_symbol" && kind != "string" {
			continue
		}
		attr := strings.Trim(nodeText(t, a), ":\"'")
		if kind == "string" {
			attr = stringContent(t, a)
		}
		if attr == "" {
			continue
		}
		base := &Method{Namespace: sc.namespace, Node: id, File: t.FileOf(id), Line: t.Line(id), Field: "@" + attr}
		if reader {
			m := *base
			m.Name = attr
			m.Accessor = Reader
			d.r.addMethod(owner, &m)
		}
		if writer {
			m := *base
			m.Name = attr + "="
			m.Accessor = Writer
			m.Params = []Param{{Name: "value", Kind: ParamRequired, Default: syntax.NoNode, Node: syntax.NoNode}}
			d.r.addMethod(owner, &m)
		}
	}
	return true
}

func stringContent(t *syntax.Tree, id syntax.NodeID) string {
	var sb strings.Builder
	for _, c := range t.Children(id) {
		if t.Kind(c) == "string_content" {
			sb.WriteString(t.Node(c).Text)
		}
	}
	return sb.String()
}

// nodeText returns the source text of a leaf, or the "::"-joined text of a
// scope resolution.
func nodeText(t *syntax.Tree, id syntax.NodeID) string {
	if !id.Valid() {
		return ""
	}
	n := t.Node(id)
	if n.Kind == "scope_resolution" {
		scopePart := nodeText(t, t.Field(id, "scope"))
		name := nodeText(t, t.Field(id, "name"))
		if scopePart == "" {
			return "::" + name
		}
		return scopePart + "::" + name
	}
	if n.Text != "" {
		return n.Text
	}
	if len(n.Children) == 1 {
		return nodeText(t, n.Children[0])
	}
	return ""
}
