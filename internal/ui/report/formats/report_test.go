// # internal/ui/report/formats/report_test.go
package formats

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleReport() *Report {
	unresolved := Diagnostic{
		Kind:      "UnresolvedOperationError",
		File:      "lib/rti3.rb",
		Line:      8,
		Message:   "no method '*' accepts SmallInt(Text) or SmallInt(Symbolic)",
		Secondary: "did you mean '**'?",
	}
	return &Report{
		RunID:     "run-1",
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:  1500 * time.Microsecond,
		Roots:     []string{"/project/lib"},
		Files:     2,
		Methods:   5,
		Queries: []Query{
			{Target: "RTI2.multiply", Receiver: "#<Class:RTI2>", Args: []string{"SmallInt", "Float"}, Type: "Float"},
			{Target: "RTI3.sim3", Receiver: "#<Class:RTI3>", Args: []string{}, Type: "Empty", Diagnostics: []Diagnostic{unresolved}},
		},
		Diagnostics: []Diagnostic{
			unresolved,
			{
				Kind:    "OverloadContractViolation",
				File:    "/project/lib/rti8.rb",
				Line:    2,
				Message: "RTI8#to_s may return NullType | Text, outside its contract Text",
			},
		},
		Globals:         []Field{{Name: "$$", Type: "SmallInt"}, {Name: "$sim9", Type: "NullType | Text"}},
		Fields:          []Field{{Name: "TI1#@foo", Type: "NullType | Text"}},
		RecursiveGroups: [][]string{{"Parity#even", "Parity#odd"}},
	}
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestGenerateText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, GenerateText(&buf, sampleReport()))
	golden(t).Assert(t, "report_text", buf.Bytes())
}

func TestGenerateText_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, GenerateText(&buf, &Report{}))
	assert.Equal(t, "rtinfer\n0 files, 0 methods, 0 queries, 0 diagnostics\n", buf.String())
}

func TestGenerateJSON(t *testing.T) {
	data, err := GenerateJSON(sampleReport())
	require.NoError(t, err)
	golden(t).Assert(t, "report_json", data)
}

func TestGenerateYAML(t *testing.T) {
	data, err := GenerateYAML(sampleReport())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, "run-1", doc["run_id"])
	assert.Equal(t, "1.5ms", doc["duration"])
	queries, ok := doc["queries"].([]any)
	require.True(t, ok)
	require.Len(t, queries, 2)
	assert.Equal(t, "Float", queries[0].(map[string]any)["type"])
	assert.Contains(t, string(data), "\n  - target: RTI2.multiply\n")
}

func TestGenerateSARIF(t *testing.T) {
	data, err := GenerateSARIF("/project", sampleReport().Diagnostics)
	require.NoError(t, err)
	golden(t).Assert(t, "report_sarif", data)
}

func TestGenerateSARIF_EmptyResults(t *testing.T) {
	data, err := GenerateSARIF("", nil)
	require.NoError(t, err)

	var report sarifReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, sarifSchema, report.Schema)
	assert.Equal(t, sarifVersion, report.Version)
	require.Len(t, report.Runs, 1)
	assert.Empty(t, report.Runs[0].Results)
	assert.Empty(t, report.Runs[0].Tool.Driver.Rules)
}

func TestGenerateSARIF_UnknownKindUsesUnresolvedRule(t *testing.T) {
	data, err := GenerateSARIF("", []Diagnostic{{Kind: "Other", File: "a.rb"}})
	require.NoError(t, err)

	var report sarifReport
	require.NoError(t, json.Unmarshal(data, &report))
	require.Len(t, report.Runs[0].Results, 1)
	r := report.Runs[0].Results[0]
	assert.Equal(t, ruleIDUnresolved, r.RuleID)
	assert.Nil(t, r.Locations[0].PhysicalLocation.Region)
	require.Len(t, report.Runs[0].Tool.Driver.Rules, 1)
	assert.Equal(t, ruleIDUnresolved, report.Runs[0].Tool.Driver.Rules[0].ID)
}

func TestRelativeURI(t *testing.T) {
	cases := []struct {
		root, path, want string
	}{
		{"/project", "/project/lib/a.rb", "lib/a.rb"},
		{"/project", "lib/a.rb", "lib/a.rb"},
		{"", "/abs/a.rb", "/abs/a.rb"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, relativeURI(tc.root, tc.path))
	}
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "1 query", plural(1, "query"))
	assert.Equal(t, "3 queries", plural(3, "query"))
	assert.Equal(t, "0 files", plural(0, "file"))
}
