package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"rtinfer/internal/core/config"
	domainerrors "rtinfer/internal/core/errors"
	"rtinfer/internal/data/history"
	"rtinfer/internal/engine/diag"
	"rtinfer/internal/ui/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newTestApp(t *testing.T, dir string, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	paths := config.ResolvedPaths{ProjectRoot: dir, Roots: []string{dir}}
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	a, err := New(cfg, paths, opts...)
	require.NoError(t, err)
	return a
}

const rti2Source = `module RTI2
  def self.multiply(x, y)
    x * y
  end
end
`

func TestLoadAndQuery(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"lib/rti2.rb": rti2Source,
		"lib/bad.rb": `class Bad
  def go
    1 * 'a'
  end
end
`,
	})
	a := newTestApp(t, dir, nil)
	s, err := a.Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, s.Files, 2)
	assert.Empty(t, s.Errors)

	res, err := a.Query(context.Background(), QuerySpec{Target: "RTI2.multiply", Args: []string{"Fixnum", "Float"}})
	require.NoError(t, err)
	assert.Equal(t, "RTI2.multiply", res.Target)
	assert.Equal(t, "Float", res.Type.String())
	assert.Empty(t, res.Diagnostics)

	res, err = a.Query(context.Background(), QuerySpec{Target: "Bad#go"})
	require.NoError(t, err)
	assert.Equal(t, "Empty", res.Type.String())
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, diag.UnresolvedOperation, d.Kind)
	assert.Equal(t, "lib/bad.rb", d.File)
	assert.Equal(t, 3, d.Line)

	// already reported: the repeat query carries no new diagnostics
	res, err = a.Query(context.Background(), QuerySpec{Target: "Bad#go"})
	require.NoError(t, err)
	assert.Empty(t, res.Diagnostics)
}

func TestQueryErrors(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"rti2.rb": rti2Source})
	a := newTestApp(t, dir, nil)

	_, err := a.Query(context.Background(), QuerySpec{Target: "RTI2.multiply"})
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeValidationError), "query before load: %v", err)

	_, err = a.Load(context.Background(), nil)
	require.NoError(t, err)

	cases := []struct {
		name string
		spec QuerySpec
		code domainerrors.ErrorCode
	}{
		{"malformed target", QuerySpec{Target: "multiply"}, domainerrors.CodeValidationError},
		{"unknown class", QuerySpec{Target: "Nope.multiply"}, domainerrors.CodeNotFound},
		{"unknown method", QuerySpec{Target: "RTI2.divide"}, domainerrors.CodeNotFound},
		{"instance instead of singleton", QuerySpec{Target: "RTI2#multiply"}, domainerrors.CodeNotFound},
		{"bad argument type", QuerySpec{Target: "RTI2.multiply", Args: []string{"Tuple<", "Float"}}, domainerrors.CodeValidationError},
		{"bad receiver type", QuerySpec{Target: "RTI2.multiply", Receiver: "|"}, domainerrors.CodeValidationError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.Query(context.Background(), tc.spec)
			require.Error(t, err)
			assert.True(t, domainerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
}

func TestLoadKeepsFilesWithSyntaxErrors(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"good.rb":   rti2Source,
		"broken.rb": "class Broken\n  def oops(\nend\n",
	})
	a := newTestApp(t, dir, nil)
	s, err := a.Load(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, s.Errors, 1)
	assert.True(t, domainerrors.IsCode(s.Errors[0], domainerrors.CodeSyntax), "got %v", s.Errors[0])

	res, err := a.Query(context.Background(), QuerySpec{Target: "RTI2.multiply", Args: []string{"Float", "Float"}})
	require.NoError(t, err)
	assert.Equal(t, "Float", res.Type.String())
}

func TestInferAll(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"counter.rb": `class Counter
  attr_writer :label
  def count
    $count
  end
  def name
    'counter'
  end
  def add(x)
    x + 1
  end
end
`,
	})
	cfg := config.Default()
	cfg.Globals = map[string]string{"$count": "Fixnum"}
	a := newTestApp(t, dir, cfg)
	_, err := a.Load(context.Background(), nil)
	require.NoError(t, err)

	results, err := a.InferAll(context.Background())
	require.NoError(t, err)
	got := make(map[string]string, len(results))
	for _, r := range results {
		got[r.Target] = r.Type.String()
	}
	assert.Equal(t, map[string]string{
		"Counter#count": "SmallInt",
		"Counter#name":  "Text",
	}, got)
}

func TestGlobalsAndFields(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"box.rb": `class Box
  def put(x)
    @v = x
    $last = x
  end
end
`,
	})
	cfg := config.Default()
	cfg.Globals = map[string]string{"$count": "Fixnum"}
	a := newTestApp(t, dir, cfg)
	assert.Nil(t, a.Globals())

	_, err := a.Load(context.Background(), nil)
	require.NoError(t, err)
	_, err = a.Query(context.Background(), QuerySpec{Target: "Box#put", Args: []string{"String"}})
	require.NoError(t, err)

	var globals []string
	for _, e := range a.Globals() {
		globals = append(globals, e.Key.String()+"="+e.Type.String())
	}
	assert.Equal(t, []string{
		"$$=SmallInt",
		"$0=Text",
		"$PROGRAM_NAME=Text",
		"$count=SmallInt",
		"$last=Text",
	}, globals)

	fields := a.Fields()
	require.Len(t, fields, 1)
	assert.Equal(t, "Box#@v", fields[0].Key.String())
	assert.Equal(t, "Text", fields[0].Type.String())
}

func TestConfiguredContracts(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"money.rb": `class Money
  def to_json
    :nope
  end
end
`,
	})
	cfg := config.Default()
	cfg.Contracts = map[string]string{"to_json": "String"}
	a := newTestApp(t, dir, cfg)
	_, err := a.Load(context.Background(), nil)
	require.NoError(t, err)

	res, err := a.Query(context.Background(), QuerySpec{Target: "Money#to_json"})
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, diag.ContractViolation, res.Diagnostics[0].Kind)
}

func TestNewRejectsBadTypeExpressions(t *testing.T) {
	cfg := config.Default()
	cfg.Contracts = map[string]string{"to_s": "Tuple<"}
	_, err := New(cfg, config.ResolvedPaths{})
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeValidationError), "got %v", err)

	cfg = config.Default()
	cfg.Globals = map[string]string{"$bad": "||"}
	_, err = New(cfg, config.ResolvedPaths{})
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeValidationError), "got %v", err)
}

type fakeHistory struct {
	runs []history.Run
}

func (f *fakeHistory) SaveRun(_ context.Context, run history.Run) (string, error) {
	f.runs = append(f.runs, run)
	return "run-1", nil
}

func (f *fakeHistory) Runs(context.Context, int) ([]history.RunSummary, error) {
	return nil, nil
}

func (f *fakeHistory) RunDiagnostics(context.Context, string) ([]history.DiagnosticRecord, error) {
	return nil, nil
}

func TestRunSavesHistory(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"lib/rti2.rb": rti2Source})
	h := &fakeHistory{}
	a := newTestApp(t, dir, nil, WithHistory(h))
	_, err := a.Load(context.Background(), nil)
	require.NoError(t, err)

	r, err := a.Run(context.Background(), RunRequest{Queries: []QuerySpec{
		{Target: "RTI2.multiply", Args: []string{"Fixnum", "Fixnum"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, 1, r.Files)
	assert.Equal(t, 1, r.Methods)
	require.Len(t, r.Queries, 1)
	assert.Equal(t, []string{"SmallInt", "SmallInt"}, r.Queries[0].Args)
	assert.Equal(t, "BigInt | SmallInt", r.Queries[0].Type)

	require.Len(t, h.runs, 1)
	assert.Equal(t, "RTI2.multiply", h.runs[0].Queries[0].Target)
	assert.Equal(t, "BigInt | SmallInt", h.runs[0].Queries[0].Result)
}

func TestRunReportsRecursionCycles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"parity.rb": `class Parity
  def even(n)
    n == 0 ? true : odd(n - 1)
  end
  def odd(n)
    n == 0 ? false : even(n - 1)
  end
end
`})
	a := newTestApp(t, dir, nil)
	_, err := a.Load(context.Background(), nil)
	require.NoError(t, err)

	r, err := a.Run(context.Background(), RunRequest{Queries: []QuerySpec{
		{Target: "Parity#even", Args: []string{"Fixnum"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Parity#even", "Parity#odd", "Parity#even"}}, r.RecursiveGroups)
}

func TestRunFailsOnUnknownTarget(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"rti2.rb": rti2Source})
	h := &fakeHistory{}
	a := newTestApp(t, dir, nil, WithHistory(h))
	_, err := a.Load(context.Background(), nil)
	require.NoError(t, err)

	_, err = a.Run(context.Background(), RunRequest{Queries: []QuerySpec{{Target: "RTI2.nope"}}})
	require.Error(t, err)
	assert.Empty(t, h.runs)
}

type fakeSource struct {
	ch      chan []string
	started []string
	stopped bool
}

func (f *fakeSource) Start(_ context.Context, paths []string) error {
	f.started = paths
	return nil
}

func (f *fakeSource) Changes() <-chan []string { return f.ch }

func (f *fakeSource) Stop() { f.stopped = true }

func TestWatchRerunsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "answer.rb")
	writeFiles(t, dir, map[string]string{"answer.rb": "class Answer\n  def value\n    42\n  end\nend\n"})
	a := newTestApp(t, dir, nil)

	src := &fakeSource{ch: make(chan []string, 1)}
	src.ch <- []string{path}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var types []string
	emit := func(r *report.Report) error {
		types = append(types, r.Queries[0].Type)
		if len(types) == 1 {
			require.NoError(t, os.WriteFile(path, []byte("class Answer\n  def value\n    'forty-two'\n  end\nend\n"), 0o644))
		} else {
			cancel()
		}
		return nil
	}
	err := a.Watch(ctx, src, RunRequest{Queries: []QuerySpec{{Target: "Answer#value"}}}, emit)
	require.NoError(t, err)
	assert.Equal(t, []string{"SmallInt", "Text"}, types)
	assert.Equal(t, []string{dir}, src.started)
	assert.True(t, src.stopped)
}

func TestScanDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"lib/a.rb":             "",
		"lib/a_spec.rb":        "",
		"lib/tasks/build.rake": "",
		"lib/README.md":        "",
		"lib/gen/out.rb":       "",
		"vendor/gem.rb":        "",
	})
	files, err := ScanDirectories([]string{dir, filepath.Join(dir, "lib")}, []string{"vendor"}, []string{"*_spec.rb", "lib/gen/*.rb"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "lib", "a.rb"),
		filepath.Join(dir, "lib", "tasks", "build.rake"),
	}, files)

	_, err = ScanDirectories([]string{dir}, []string{"[unclosed"}, nil)
	assert.Error(t, err)
}

func TestParseQuery(t *testing.T) {
	cases := []struct {
		raw  string
		want QuerySpec
	}{
		{"RTI2.multiply(SmallInt,Float)", QuerySpec{Target: "RTI2.multiply", Args: []string{"SmallInt", "Float"}}},
		{"RTI4.bar", QuerySpec{Target: "RTI4.bar"}},
		{"RTI4.bar()", QuerySpec{Target: "RTI4.bar"}},
		{"A#b(Tuple<SmallInt, Text>, Float | NullType)", QuerySpec{Target: "A#b", Args: []string{"Tuple<SmallInt, Text>", "Float | NullType"}}},
	}
	for _, tc := range cases {
		got, err := ParseQuery(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}

	_, err := ParseQuery("A.b(SmallInt")
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeValidationError))
}

func TestConfigQueries(t *testing.T) {
	got := ConfigQueries([]config.Query{{Target: "A.b", Receiver: "A", Args: []string{"Float"}}})
	assert.Equal(t, []QuerySpec{{Target: "A.b", Receiver: "A", Args: []string{"Float"}}}, got)
}
