package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	coreapp "rtinfer/internal/core/app"
	"rtinfer/internal/core/config"
	"rtinfer/internal/ui/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rti2Source = `module RTI2
  def self.multiply(x, y)
    x * y
  end
end
`

const badSource = `class Bad
  def go
    1 * 'a'
  end
end
`

// setupProject writes files and an rtinfer.toml rooted at a temp dir and
// returns the config path.
func setupProject(t *testing.T, files map[string]string, extra string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	cfg := "version = 1\n\n[paths]\nproject_root = " + tomlString(dir) + "\n" + extra
	cfgPath := filepath.Join(dir, "rtinfer.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath
}

func tomlString(s string) string {
	return "'" + s + "'"
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func decodeReport(t *testing.T, raw string) report.Report {
	t.Helper()
	var r report.Report
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	return r
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{
		"-query", "RTI2.multiply(SmallInt, Float)",
		"-query", "Bad#go",
		"-format", "json",
		"-all",
		"lib",
	}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, defaultConfigPath, opts.configPath)
	assert.Equal(t, stringList{"RTI2.multiply(SmallInt, Float)", "Bad#go"}, opts.queries)
	assert.Equal(t, "json", opts.format)
	assert.True(t, opts.all)
	assert.Equal(t, []string{"lib"}, opts.args)
}

func TestValidateOptions(t *testing.T) {
	tests := []struct {
		name string
		opts cliOptions
		want string
	}{
		{"receiver without query", cliOptions{receiver: "Fixnum"}, "exactly one --query"},
		{"receiver with two queries", cliOptions{receiver: "Fixnum", queries: stringList{"A#a", "B#b"}}, "exactly one --query"},
		{"runs without history", cliOptions{runs: 3}, "require --history"},
		{"run diagnostics without history", cliOptions{runDiagnostics: "abc"}, "require --history"},
		{"negative runs", cliOptions{runs: -1, history: true}, "must be positive"},
		{"watch with history listing", cliOptions{watch: true, history: true, runs: 2}, "cannot be combined"},
		{"valid", cliOptions{receiver: "Fixnum", queries: stringList{"A#a"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplyModeOptions(t *testing.T) {
	cfg := config.Default()
	opts := cliOptions{args: []string{"app", "lib"}, format: "sarif", out: "out.sarif", history: true}
	require.NoError(t, applyModeOptions(opts, cfg))
	assert.Equal(t, []string{"app", "lib"}, cfg.Paths.Roots)
	assert.Equal(t, "sarif", cfg.Output.Format)
	assert.Equal(t, "out.sarif", cfg.Output.Path)
	assert.True(t, cfg.DB.Enabled)

	err := applyModeOptions(cliOptions{format: "html"}, config.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--format must be one of")
}

func TestBuildRunRequest(t *testing.T) {
	cfg := config.Default()
	cfg.Queries = []config.Query{{Target: "RTI2.multiply", Args: []string{"Float", "Float"}}}

	req, err := buildRunRequest(cliOptions{queries: stringList{"Box#get"}, receiver: "Box"}, cfg)
	require.NoError(t, err)
	require.Len(t, req.Queries, 1)
	assert.Equal(t, coreapp.QuerySpec{Target: "Box#get", Receiver: "Box"}, req.Queries[0])
	assert.False(t, req.All)

	req, err = buildRunRequest(cliOptions{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, coreapp.ConfigQueries(cfg.Queries), req.Queries)
	assert.False(t, req.All)

	req, err = buildRunRequest(cliOptions{}, config.Default())
	require.NoError(t, err)
	assert.Empty(t, req.Queries)
	assert.True(t, req.All)

	_, err = buildRunRequest(cliOptions{queries: stringList{"RTI2.multiply(Fixnum"}}, cfg)
	assert.Error(t, err)
}

func TestRunVersion(t *testing.T) {
	code, stdout, _ := runCLI(t, "-version")
	assert.Equal(t, exitOK, code)
	assert.True(t, strings.HasPrefix(stdout, "rtinfer "))
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	code, _, stderr := runCLI(t, "-nope")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "flag provided but not defined")
}

func TestRunAnswersQuery(t *testing.T) {
	cfgPath := setupProject(t, map[string]string{"lib/rti2.rb": rti2Source}, "")

	code, stdout, stderr := runCLI(t, "-config", cfgPath, "-format", "json", "-query", "RTI2.multiply(Fixnum, Float)")
	require.Equal(t, exitOK, code, stderr)

	r := decodeReport(t, stdout)
	require.Len(t, r.Queries, 1)
	assert.Equal(t, "RTI2.multiply", r.Queries[0].Target)
	assert.Equal(t, []string{"SmallInt", "Float"}, r.Queries[0].Args)
	assert.Equal(t, "Float", r.Queries[0].Type)
	assert.Equal(t, 1, r.Files)
}

func TestRunDiagnosticsExitCode(t *testing.T) {
	cfgPath := setupProject(t, map[string]string{"bad.rb": badSource}, "")

	code, stdout, stderr := runCLI(t, "-config", cfgPath, "-format", "json", "-query", "Bad#go")
	require.Equal(t, exitOK, code, stderr)
	require.Len(t, decodeReport(t, stdout).Diagnostics, 1)

	code, _, _ = runCLI(t, "-config", cfgPath, "-format", "json", "-query", "Bad#go", "-fail-on-diagnostics")
	assert.Equal(t, exitDiagnostics, code)
}

func TestRunFailsOnUnknownMethod(t *testing.T) {
	cfgPath := setupProject(t, map[string]string{"lib/rti2.rb": rti2Source}, "")

	code, stdout, stderr := runCLI(t, "-config", cfgPath, "-query", "RTI2.divide")
	assert.Equal(t, exitError, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "unknown method")
	assert.Contains(t, stderr, "code=NOT_FOUND")
}

func TestRunFailsOnSyntaxErrors(t *testing.T) {
	cfgPath := setupProject(t, map[string]string{
		"lib/rti2.rb":   rti2Source,
		"lib/broken.rb": "class Broken\n  def oops(\nend\n",
	}, "")

	code, stdout, _ := runCLI(t, "-config", cfgPath, "-format", "json", "-query", "RTI2.multiply(Fixnum, Fixnum)")
	assert.Equal(t, exitError, code)
	r := decodeReport(t, stdout)
	assert.NotEmpty(t, r.LoadErrors)
	require.Len(t, r.Queries, 1)
	assert.Equal(t, "BigInt | SmallInt", r.Queries[0].Type)
}

func TestRunUsesConfiguredQueriesAndOutput(t *testing.T) {
	cfgPath := setupProject(t, map[string]string{"lib/rti2.rb": rti2Source}, `
[[queries]]
target = "RTI2.multiply"
args = ["Float", "Fixnum"]

[output]
format = "yaml"
path = "out/report.yaml"
`)

	code, stdout, stderr := runCLI(t, "-config", cfgPath)
	require.Equal(t, exitOK, code, stderr)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(filepath.Join(filepath.Dir(cfgPath), "out", "report.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "target: RTI2.multiply")
	assert.Contains(t, string(data), "type: Float")
}

func TestRunHistory(t *testing.T) {
	cfgPath := setupProject(t, map[string]string{"bad.rb": badSource}, "")

	code, _, stderr := runCLI(t, "-config", cfgPath, "-history", "-format", "json", "-query", "Bad#go")
	require.Equal(t, exitOK, code, stderr)

	code, stdout, stderr := runCLI(t, "-config", cfgPath, "-history", "-runs", "5")
	require.Equal(t, exitOK, code, stderr)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "1 queries")
	assert.Contains(t, lines[0], "1 diagnostics")

	id := strings.Fields(lines[0])[0]
	code, stdout, stderr = runCLI(t, "-config", cfgPath, "-history", "-run-diagnostics", id)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "bad.rb:3: UnresolvedOperationError")
	assert.True(t, strings.HasPrefix(stdout, "Bad#go() on Bad => "), stdout)
}

type nilSessions struct{}

func (nilSessions) Session() *coreapp.Session { return nil }

func TestObservabilityHealth(t *testing.T) {
	srv := httptest.NewServer(NewObservabilityServer("", nilSessions{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rti2.rb"), []byte(rti2Source), 0o644))
	a, err := coreapp.New(config.Default(), config.ResolvedPaths{ProjectRoot: dir, Roots: []string{dir}},
		coreapp.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	_, err = a.Load(context.Background(), nil)
	require.NoError(t, err)

	loaded := httptest.NewServer(NewObservabilityServer("", a).Handler())
	defer loaded.Close()

	resp, err = http.Get(loaded.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var status HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "up", status.Status)
	assert.Equal(t, 1, status.Files)
	assert.Equal(t, 1, status.Methods)

	metrics, err := http.Get(loaded.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	body, err := io.ReadAll(metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "rtinfer_field_writes_total")
}
