// # internal/engine/parser/pool.go
package parser

import (
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// rubyParsers is shared by every Parser, so a watch-mode reload reuses the
// parsers of the previous load.
var rubyParsers = &parserPool{}

// parserPool recycles tree-sitter parsers set to the Ruby grammar. Safe for
// concurrent use.
type parserPool struct {
	pool sync.Pool
}

// parse runs tree-sitter over src on a pooled parser. The caller closes the
// returned tree; it is nil only if tree-sitter gave up.
func (p *parserPool) parse(src []byte) *sitter.Tree {
	sp, _ := p.pool.Get().(*sitter.Parser)
	if sp == nil {
		sp = sitter.NewParser()
		_ = sp.SetLanguage(RubyLanguage())
	}
	defer func() {
		sp.Reset()
		p.pool.Put(sp)
	}()
	return sp.Parse(src, nil)
}
