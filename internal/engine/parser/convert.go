package parser

import (
	"rtinfer/internal/engine/syntax"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// trackedFields are the grammar field names the engine reads back from the
// arena. Other fields are reachable through Children.
var trackedFields = []string{
	"name", "superclass", "body", "parameters", "object",
	"left", "right", "operator", "operand",
	"receiver", "method", "arguments", "block",
	"condition", "consequence", "alternative",
	"begin", "end", "value", "pattern", "key", "scope",
}

// textKinds keep their source text even though they may have named children.
var textKinds = map[string]bool{
	"setter":   true,
	"operator": true,
}

// skipKinds are dropped from the arena entirely.
var skipKinds = map[string]bool{
	"comment": true,
}

// punctuation is never recorded as a node operator.
var punctuation = map[string]bool{
	"(": true, ")": true, "[": true, "]": true, "{": true, "}": true,
	",": true, ";": true, "\n": true, "|": true, "=>": true,
	"do": true, "end": true, "then": true, "def": true, "class": true,
	"module": true, "if": true, "unless": true, "elsif": true, "else": true,
	"while": true, "until": true, "case": true, "when": true, "return": true,
	"begin": true, "yield": true, "super": true, "in": true, "for": true,
	"::": true, ":": true, "?": true, "=": true, "*": true, "**": true, "&": true,
}

// opKinds record the first operator token when no operator field exists.
var opKinds = map[string]bool{
	"binary":              true,
	"unary":               true,
	"range":               true,
	"operator_assignment": true,
	"call":                true,
}

type fieldKey struct {
	start, end uint
	kind       string
}

type converter struct {
	tree   *syntax.Tree
	source []byte
	file   int
}

func (c *converter) text(n *sitter.Node) string {
	return string(c.source[n.StartByte():n.EndByte()])
}

func (c *converter) convert(n *sitter.Node) syntax.NodeID {
	pos := n.StartPosition()
	id := c.tree.NewNode(n.Kind(), int(pos.Row)+1, int(pos.Column)+1, c.file)

	fields := make(map[fieldKey]string)
	for _, name := range trackedFields {
		if f := n.ChildByFieldName(name); f != nil {
			fields[fieldKey{f.StartByte(), f.EndByte(), f.Kind()}] = name
		}
	}

	named := 0
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		field := fields[fieldKey{child.StartByte(), child.EndByte(), child.Kind()}]
		if !child.IsNamed() {
			c.recordOperator(id, n.Kind(), child, field)
			continue
		}
		if skipKinds[child.Kind()] {
			continue
		}
		named++
		kid := c.convert(child)
		c.tree.AddChild(id, kid, field)
	}

	if named == 0 || textKinds[n.Kind()] {
		c.tree.Node(id).Text = c.text(n)
	}
	return id
}

func (c *converter) recordOperator(id syntax.NodeID, kind string, tok *sitter.Node, field string) {
	node := c.tree.Node(id)
	text := c.text(tok)
	if field == "operator" {
		node.Op = text
		return
	}
	if node.Op != "" || !opKinds[kind] {
		return
	}
	if kind == "call" {
		// Only safe navigation matters for calls.
		if text == "&." {
			node.Op = text
		}
		return
	}
	if !punctuation[text] || kind == "binary" || kind == "unary" {
		node.Op = text
	}
}
