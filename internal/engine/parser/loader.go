// # internal/engine/parser/loader.go
package parser

import (
	"strings"
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_ruby "github.com/tree-sitter/tree-sitter-ruby/bindings/go"
)

var (
	rubyOnce sync.Once
	rubyLang *sitter.Language
)

// RubyLanguage returns the process-wide Ruby grammar.
func RubyLanguage() *sitter.Language {
	rubyOnce.Do(func() {
		rubyLang = sitter.NewLanguage(tree_sitter_ruby.Language())
	})
	return rubyLang
}

// Extensions lists the file suffixes treated as Ruby sources.
var Extensions = []string{".rb", ".rake", ".gemspec"}

// IsRubyFile reports whether path looks like a Ruby source file.
func IsRubyFile(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range Extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return strings.HasSuffix(lower, "rakefile") || strings.HasSuffix(lower, "gemfile")
}
