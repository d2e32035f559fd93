// # internal/engine/syntax/tree.go
package syntax

// NodeID indexes a node in a Tree's arena.
type NodeID int32

// NoNode marks an absent node.
const NoNode NodeID = -1

// Valid reports whether id refers to a node.
func (id NodeID) Valid() bool { return id >= 0 }

// Node is one tagged syntax node. Only named grammar nodes are kept; the text
// of an operator token is stored in Op.
type Node struct {
	ID       NodeID
	Kind     string
	Text     string
	Op       string
	Line     int
	Column   int
	File     int
	Parent   NodeID
	Children []NodeID
	Fields   map[string]NodeID
}

// Tree is an arena of nodes for one or more parsed files. Nodes are never
// mutated after construction.
type Tree struct {
	Nodes []Node
	Roots []NodeID
	Files []string
}

// NewTree returns an empty arena.
func NewTree() *Tree {
	return &Tree{}
}

// AddFile registers a source file and returns its index.
func (t *Tree) AddFile(path string) int {
	t.Files = append(t.Files, path)
	return len(t.Files) - 1
}

// NewNode appends a node and returns its id. Parent links are set by
// AddChild.
func (t *Tree) NewNode(kind string, line, column, file int) NodeID {
	id := NodeID(len(t.Nodes))
	t.Nodes = append(t.Nodes, Node{
		ID:     id,
		Kind:   kind,
		Line:   line,
		Column: column,
		File:   file,
		Parent: NoNode,
	})
	return id
}

// AddChild appends child under parent, optionally under a field name.
func (t *Tree) AddChild(parent, child NodeID, field string) {
	p := &t.Nodes[parent]
	p.Children = append(p.Children, child)
	if field != "" {
		if p.Fields == nil {
			p.Fields = make(map[string]NodeID)
		}
		if _, taken := p.Fields[field]; !taken {
			p.Fields[field] = child
		}
	}
	t.Nodes[child].Parent = parent
}

// Node returns the node for id. It panics on NoNode.
func (t *Tree) Node(id NodeID) *Node {
	return &t.Nodes[id]
}

// Kind returns the kind of id, or "" for NoNode.
func (t *Tree) Kind(id NodeID) string {
	if !id.Valid() || int(id) >= len(t.Nodes) {
		return ""
	}
	return t.Nodes[id].Kind
}

// Field returns the child stored under name, or NoNode.
func (t *Tree) Field(id NodeID, name string) NodeID {
	if !id.Valid() {
		return NoNode
	}
	if c, ok := t.Nodes[id].Fields[name]; ok {
		return c
	}
	return NoNode
}

// Children returns the direct children of id.
func (t *Tree) Children(id NodeID) []NodeID {
	if !id.Valid() {
		return nil
	}
	return t.Nodes[id].Children
}

// ChildrenOfKind filters the direct children of id by kind.
func (t *Tree) ChildrenOfKind(id NodeID, kind string) []NodeID {
	var out []NodeID
	for _, c := range t.Children(id) {
		if t.Nodes[c].Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Line returns the 1-based source line of id.
func (t *Tree) Line(id NodeID) int {
	if !id.Valid() {
		return 0
	}
	return t.Nodes[id].Line
}

// FileOf returns the path of the file id was parsed from.
func (t *Tree) FileOf(id NodeID) string {
	if !id.Valid() {
		return ""
	}
	f := t.Nodes[id].File
	if f < 0 || f >= len(t.Files) {
		return ""
	}
	return t.Files[f]
}

// Walk visits id and its descendants in pre-order. Returning false from fn
// skips the node's children.
func (t *Tree) Walk(id NodeID, fn func(NodeID) bool) {
	if !id.Valid() {
		return
	}
	stack := []NodeID{id}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(n) {
			continue
		}
		kids := t.Nodes[n].Children
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
}
