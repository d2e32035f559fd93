// # internal/engine/parser/parser_test.go
package parser

import (
	"testing"

	"rtinfer/internal/core/errors"
)

func TestParse_FindBinary(t *testing.T) {
	tree, root, err := Parse("inline.rb", []byte("a + b"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	bins := tree.Find(root, "binary")
	if len(bins) == 0 {
		t.Fatal("expected a binary node for 'a + b'")
	}
	if op := tree.Node(bins[0]).Op; op != "+" {
		t.Fatalf("expected operator '+', got %q", op)
	}
	if len(tree.Find(root, "rescue")) != 0 {
		t.Fatal("no rescue clause in 'a + b'")
	}
}

func TestParse_MethodShape(t *testing.T) {
	src := "module RTI2\n  def self.multiply(x, *rest)\n    x * rest\n  end\nend\n"
	tree, root, err := Parse("rti2.rb", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	defs := tree.Find(root, "singleton_method")
	if len(defs) != 1 {
		t.Fatalf("expected one singleton method, got %d", len(defs))
	}
	def := defs[0]
	if tree.Line(def) != 2 {
		t.Fatalf("expected def on line 2, got %d", tree.Line(def))
	}
	if name := tree.Field(def, "name"); tree.Node(name).Text != "multiply" {
		t.Fatalf("method name %q", tree.Node(name).Text)
	}
	if len(tree.Find(def, "splat_parameter")) != 1 {
		t.Fatal("rest parameter not converted")
	}
	if mod := tree.Find(root, "module"); len(mod) != 1 {
		t.Fatal("module not converted")
	}
	if tree.FileOf(def) != "rti2.rb" {
		t.Fatalf("file %q", tree.FileOf(def))
	}
}

func TestParse_CommentsDropped(t *testing.T) {
	tree, root, err := Parse("c.rb", []byte("# header\nx = 1 # trailing\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tree.Find(root, "comment")) != 0 {
		t.Fatal("comments should not reach the arena")
	}
	if len(tree.Find(root, "assignment")) != 1 {
		t.Fatal("assignment missing")
	}
}

func TestParse_SyntaxErrorStillConverts(t *testing.T) {
	tree, root, err := Parse("broken.rb", []byte("def foo(\n  1 +\nend\n"))
	if err == nil {
		t.Fatal("expected a syntax error")
	}
	if !errors.IsCode(err, errors.CodeSyntax) {
		t.Fatalf("expected CodeSyntax, got %v", err)
	}
	if !root.Valid() || tree.Kind(root) != "program" {
		t.Fatalf("root should still be a program node, got %q", tree.Kind(root))
	}
}

func TestParser_SharedArena(t *testing.T) {
	p := NewParser(nil)
	a, err := p.ParseSource("a.rb", []byte("x = 1"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.ParseSource("b.rb", []byte("y = 2"))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("roots must be distinct")
	}
	if len(p.Tree().Roots) != 2 || len(p.Tree().FindAll("assignment")) != 2 {
		t.Fatal("both files should live in one arena")
	}
}

func TestIsRubyFile(t *testing.T) {
	for path, want := range map[string]bool{
		"lib/foo.rb":   true,
		"Rakefile":     true,
		"a.gemspec":    true,
		"main.go":      false,
		"README.md":    false,
		"tasks/x.rake": true,
	} {
		if got := IsRubyFile(path); got != want {
			t.Errorf("IsRubyFile(%q) = %v", path, got)
		}
	}
}
