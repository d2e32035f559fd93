package syntax

// Find returns every node of the given kind at or below root, in pre-order.
// The result is empty, not nil-checked, when nothing matches.
func (t *Tree) Find(root NodeID, kind string) []NodeID {
	out := []NodeID{}
	t.Walk(root, func(id NodeID) bool {
		if t.Nodes[id].Kind == kind {
			out = append(out, id)
		}
		return true
	})
	return out
}

// FindAll runs Find over every parsed file.
func (t *Tree) FindAll(kind string) []NodeID {
	out := []NodeID{}
	for _, root := range t.Roots {
		out = append(out, t.Find(root, kind)...)
	}
	return out
}

// Enclosing returns the nearest ancestor of id whose kind is one of kinds.
func (t *Tree) Enclosing(id NodeID, kinds ...string) NodeID {
	if !id.Valid() {
		return NoNode
	}
	for p := t.Nodes[id].Parent; p.Valid(); p = t.Nodes[p].Parent {
		for _, k := range kinds {
			if t.Nodes[p].Kind == k {
				return p
			}
		}
	}
	return NoNode
}
