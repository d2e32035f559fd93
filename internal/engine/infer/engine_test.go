package infer

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"rtinfer/internal/engine/diag"
	"rtinfer/internal/engine/fields"
	"rtinfer/internal/engine/parser"
	"rtinfer/internal/engine/registry"
	"rtinfer/internal/engine/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type scenario struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Steps  []step `yaml:"steps"`
}

type step struct {
	Target   string            `yaml:"target"`
	Receiver string            `yaml:"receiver"`
	Args     []string          `yaml:"args"`
	Want     string            `yaml:"want"`
	Errors   []wantDiagnostic  `yaml:"errors"`
	Fields   map[string]string `yaml:"fields"`
}

type wantDiagnostic struct {
	Kind    string `yaml:"kind"`
	Line    int    `yaml:"line"`
	Message string `yaml:"message"`
}

type session struct {
	reg    *registry.Registry
	engine *Engine
}

func load(t *testing.T, src string, opts Options) *session {
	t.Helper()
	tree, root, err := parser.Parse("fixture.rb", []byte(src))
	require.NoError(t, err)
	reg, err := registry.New()
	require.NoError(t, err)
	reg.Define(tree, root)

	store := fields.NewStore()
	store.Seed(fields.Global("$$"), types.SmallInt)
	store.Seed(fields.Global("$0"), types.Text)
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return &session{reg: reg, engine: New(tree, reg, store, opts)}
}

// method resolves "Class#name" or "Class.name" and the receiver that target
// is naturally called on.
func (s *session) method(t *testing.T, target string) (*registry.Method, types.Type) {
	t.Helper()
	i := strings.LastIndexAny(target, "#.")
	require.Positive(t, i, "target %q", target)
	class, name := target[:i], target[i+1:]
	if target[i] == '.' {
		m, err := s.reg.SingletonMethod(class, name)
		require.NoError(t, err)
		return m, types.SingletonOf(class)
	}
	m, err := s.reg.InstanceMethod(class, name)
	require.NoError(t, err)
	return m, types.Instance(class)
}

func (s *session) query(t *testing.T, target string, args ...string) *types.Union {
	t.Helper()
	m, recv := s.method(t, target)
	return s.engine.ReturnTypeForTypes(m, recv, parseAll(t, args)...)
}

func parseAll(t *testing.T, exprs []string) []types.Type {
	t.Helper()
	out := make([]types.Type, len(exprs))
	for i, e := range exprs {
		ty, err := types.Parse(e)
		require.NoError(t, err, "type %q", e)
		out[i] = ty
	}
	return out
}

func fieldKey(raw string) fields.Key {
	if class, name, ok := strings.Cut(raw, "#"); ok {
		return fields.Instance(class, name)
	}
	return fields.Global(raw)
}

func TestReturnTypeScenarios(t *testing.T) {
	data, err := os.ReadFile("testdata/return_types.yaml")
	require.NoError(t, err)
	var scenarios []scenario
	require.NoError(t, yaml.Unmarshal(data, &scenarios))
	require.NotEmpty(t, scenarios)

	for _, sc := range scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			s := load(t, sc.Source, Options{})
			for _, st := range sc.Steps {
				m, recv := s.method(t, st.Target)
				if st.Receiver != "" {
					recv = types.MustParse(st.Receiver)
				}
				got := s.engine.ReturnTypeForTypes(m, recv, parseAll(t, st.Args)...)
				want := types.MustParse(st.Want)
				assert.True(t, types.Equivalent(want, got), "%s(%s): want %s, got %s",
					st.Target, strings.Join(st.Args, ", "), want, got)

				for _, wd := range st.Errors {
					found := false
					for _, d := range s.engine.Sink().OfKind(diag.Kind(wd.Kind)) {
						if d.Line == wd.Line && strings.Contains(d.Message, wd.Message) {
							found = true
						}
					}
					assert.True(t, found, "%s: no %s at line %d mentioning %q in %v",
						st.Target, wd.Kind, wd.Line, wd.Message, s.engine.Diagnostics())
				}
				if len(st.Errors) == 0 {
					assert.Empty(t, s.engine.Diagnostics(), st.Target)
				}

				for key, expr := range st.Fields {
					got, ok := s.engine.Fields().Lookup(fieldKey(key))
					require.True(t, ok, "field %s", key)
					assert.True(t, types.Equivalent(types.MustParse(expr), got), "field %s: got %s", key, got)
				}
			}
		})
	}
}

func TestQueriesAreIdempotent(t *testing.T) {
	s := load(t, `class Calc
  def twice(x)
    x * 2
  end
end
`, Options{})
	first := s.query(t, "Calc#twice", "Float")
	second := s.query(t, "Calc#twice", "Float")
	assert.Same(t, first, second)
	assert.Equal(t, "Float", second.String())
}

func TestUnresolvedReportedOncePerSite(t *testing.T) {
	s := load(t, `class Bad
  def go(x)
    x * 'a'
  end
end
`, Options{})
	for range 3 {
		s.query(t, "Bad#go", "Float")
	}
	require.Equal(t, 1, s.engine.Sink().Len())
	d := s.engine.Diagnostics()[0]
	assert.Equal(t, diag.UnresolvedOperation, d.Kind)
	assert.Equal(t, 3, d.Line)
	assert.Equal(t, "fixture.rb", d.File)
	assert.NotEmpty(t, s.engine.DiagnosticsFor(d.Node))
}

func TestPartialMatchKeepsMatchedResults(t *testing.T) {
	s := load(t, `class Mixed
  def go(x)
    x * 2
  end
end
`, Options{})
	got := s.query(t, "Mixed#go", "Float | Symbol")
	assert.Equal(t, "Float", got.String())
	require.Len(t, s.engine.Diagnostics(), 1)
	assert.Contains(t, s.engine.Diagnostics()[0].Message, "Symbol")
}

func TestDidYouMean(t *testing.T) {
	s := load(t, `class Greeter
  def greeting
    'hi'
  end
  def go
    greting
  end
end
`, Options{})
	assert.True(t, types.IsEmpty(s.query(t, "Greeter#go")))
	require.Len(t, s.engine.Diagnostics(), 1)
	assert.Equal(t, "did you mean 'greeting'?", s.engine.Diagnostics()[0].Secondary)
}

func TestSelfRecursion(t *testing.T) {
	s := load(t, `class Fact
  def fact(n)
    if n < 2
      1
    else
      n * fact(n - 1)
    end
  end
end
`, Options{})
	got := s.query(t, "Fact#fact", "Fixnum")
	assert.True(t, types.Equivalent(types.MustParse("Fixnum | Bignum"), got), "got %s", got)
	assert.Empty(t, s.engine.Diagnostics())
	assert.Equal(t, [][]string{{"Fact#fact"}}, s.engine.RecursiveGroups())
	assert.Equal(t, [][]string{{"Fact#fact", "Fact#fact"}}, s.engine.CallCycles())
}

func TestMutualRecursion(t *testing.T) {
	s := load(t, `class Parity
  def even(n)
    if n == 0
      true
    else
      odd(n - 1)
    end
  end
  def odd(n)
    if n == 0
      false
    else
      even(n - 1)
    end
  end
end
`, Options{})
	got := s.query(t, "Parity#even", "Fixnum")
	assert.True(t, types.Equivalent(types.MustParse("TrueClass | FalseClass"), got), "got %s", got)

	groups := s.engine.RecursiveGroups()
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []string{"Parity#even", "Parity#odd"}, groups[0])
	assert.Equal(t, [][]string{{"Parity#even", "Parity#odd", "Parity#even"}}, s.engine.CallCycles())
}

func TestDepthLimit(t *testing.T) {
	s := load(t, `class Chain
  def a; b; end
  def b; c; end
  def c; 'end'; end
end
`, Options{MaxDepth: 2})
	assert.True(t, types.IsEmpty(s.query(t, "Chain#a")))
	// the cut-off result is not memoised, so a shallow query still succeeds
	assert.Equal(t, "Text", s.query(t, "Chain#c").String())
}

func TestTupleLengthLimit(t *testing.T) {
	src := `class Grid
  def row(x)
    [x, :a, 'b'] * 4
  end
end
`
	s := load(t, src, Options{})
	got := s.query(t, "Grid#row", "Fixnum")
	require.IsType(t, &types.Tuple{}, types.Simplify(got))
	assert.Equal(t, 12, types.Simplify(got).(*types.Tuple).Len())

	capped := load(t, src, Options{MaxTupleLength: 10})
	assert.True(t, types.IsEmpty(capped.query(t, "Grid#row", "Fixnum")))
	assert.Empty(t, capped.engine.Diagnostics())
}

func TestCustomContracts(t *testing.T) {
	src := `class Money
  def to_s
    12
  end
  def to_json
    :nope
  end
end
`
	s := load(t, src, Options{})
	s.query(t, "Money#to_s")
	require.Len(t, s.engine.Sink().OfKind(diag.ContractViolation), 1)
	s.query(t, "Money#to_json")
	assert.Len(t, s.engine.Sink().OfKind(diag.ContractViolation), 1)

	s = load(t, src, Options{Contracts: map[string]types.Type{"to_json": types.Text}})
	s.query(t, "Money#to_s")
	assert.Empty(t, s.engine.Diagnostics())
	s.query(t, "Money#to_json")
	violations := s.engine.Sink().OfKind(diag.ContractViolation)
	require.Len(t, violations, 1)
	assert.Equal(t, 5, violations[0].Line)
	assert.Contains(t, violations[0].Message, "Money#to_json")
}

func TestCovariantReceiver(t *testing.T) {
	s := load(t, `class Shape
  def area; 0; end
end
class Circle < Shape
  def area; 3.14; end
end
class Square < Shape
end
class Canvas
  def measure(s)
    s.area
  end
end
`, Options{})
	m, recv := s.method(t, "Canvas#measure")
	exact := s.engine.ReturnTypeForTypes(m, recv, types.Instance("Shape"))
	assert.Equal(t, "SmallInt", exact.String())

	wide := s.engine.ReturnTypeForTypes(m, recv, &types.ClassType{Name: "Shape", Variance: types.Covariant})
	assert.True(t, types.Equivalent(types.MustParse("Fixnum | Float"), wide), "got %s", wide)
}

func TestFieldAssignmentModes(t *testing.T) {
	src := `class Box
  def put(x)
    @v = x
  end
end
`
	written := load(t, src, Options{})
	written.query(t, "Box#put", "String")
	assert.Equal(t, "SmallInt", written.query(t, "Box#put", "Fixnum").String())

	acc := load(t, src, Options{FieldAssignment: AssignAccumulated})
	acc.query(t, "Box#put", "String")
	got := acc.query(t, "Box#put", "Fixnum")
	assert.True(t, types.Equivalent(types.MustParse("String | Fixnum"), got), "got %s", got)
}

func TestFormCacheEviction(t *testing.T) {
	s := load(t, `class Many
  def a; 1; end
  def b; 2; end
  def c; 3; end
end
`, Options{CacheSize: 2})
	for _, name := range []string{"a", "b", "c"} {
		s.query(t, "Many#"+name)
	}
	forms := s.engine.forms
	assert.Equal(t, 2, forms.len())
	a, _ := s.method(t, "Many#a")
	c, _ := s.method(t, "Many#c")
	assert.False(t, forms.peek(a))
	assert.True(t, forms.peek(c))

	forms.clear()
	assert.Zero(t, forms.len())
}

func TestInfer(t *testing.T) {
	s := load(t, `module RTI2
  def self.multiply(x, y)
    x * y
  end
end
`, Options{})
	m, recv := s.method(t, "RTI2.multiply")
	got, err := s.engine.Infer(context.Background(), m, recv, []types.Type{types.SmallInt, types.Float})
	require.NoError(t, err)
	assert.Equal(t, "Float", got.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.engine.Infer(ctx, m, recv, nil)
	require.ErrorIs(t, err, context.Canceled)

	_, err = s.engine.Infer(context.Background(), nil, nil, nil)
	require.Error(t, err)
}

func TestNilMethodIsEmpty(t *testing.T) {
	s := load(t, "", Options{})
	assert.True(t, types.IsEmpty(s.engine.ReturnTypeForTypes(nil, nil)))
}
