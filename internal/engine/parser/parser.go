// # internal/engine/parser/parser.go
package parser

import (
	"fmt"
	"sync"
	"time"

	"rtinfer/internal/core/errors"
	"rtinfer/internal/engine/syntax"
	"rtinfer/internal/shared/observability"
)

// Parser turns Ruby source into nodes of a shared syntax arena.
type Parser struct {
	mu   sync.Mutex
	tree *syntax.Tree
}

// NewParser returns a parser appending into tree. A nil tree allocates one.
func NewParser(tree *syntax.Tree) *Parser {
	if tree == nil {
		tree = syntax.NewTree()
	}
	return &Parser{tree: tree}
}

// Tree returns the arena the parser writes into.
func (p *Parser) Tree() *syntax.Tree {
	return p.tree
}

// ParseSource parses one file and returns its root node. A source with syntax
// errors is still converted; the returned error carries CodeSyntax and the
// root is valid.
func (p *Parser) ParseSource(path string, content []byte) (syntax.NodeID, error) {
	start := time.Now()
	defer func() {
		observability.ParseDuration.Observe(time.Since(start).Seconds())
	}()

	tree := rubyParsers.parse(content)
	if tree == nil {
		return syntax.NoNode, errors.AddContext(
			errors.New(errors.CodeInternal, "tree-sitter returned no tree"), errors.CtxPath, path)
	}
	defer tree.Close()
	root := tree.RootNode()

	p.mu.Lock()
	defer p.mu.Unlock()

	c := &converter{tree: p.tree, source: content, file: p.tree.AddFile(path)}
	id := c.convert(root)
	p.tree.Roots = append(p.tree.Roots, id)

	if root.HasError() {
		line := firstErrorLine(p.tree, id)
		err := errors.New(errors.CodeSyntax, fmt.Sprintf("syntax error near line %d", line))
		return id, errors.AddContext(err, errors.CtxPath, path)
	}
	return id, nil
}

// Parse is a convenience for tests and one-off sources: a fresh arena holding
// a single file.
func Parse(path string, content []byte) (*syntax.Tree, syntax.NodeID, error) {
	p := NewParser(nil)
	root, err := p.ParseSource(path, content)
	return p.Tree(), root, err
}

func firstErrorLine(t *syntax.Tree, root syntax.NodeID) int {
	line := t.Line(root)
	found := false
	t.Walk(root, func(id syntax.NodeID) bool {
		if found {
			return false
		}
		if t.Kind(id) == "ERROR" {
			line = t.Line(id)
			found = true
			return false
		}
		return true
	})
	return line
}
