package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Report {
	return &Report{
		Roots:   []string{"lib"},
		Files:   1,
		Methods: 1,
		Queries: []Query{{Target: "RTI2.multiply", Receiver: "#<Class:RTI2>", Args: []string{"SmallInt", "Float"}, Type: "Float"}},
	}
}

func TestRenderRejectsUnknownFormat(t *testing.T) {
	_, err := Render("html", sample(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown report format "html"`)
}

func TestWriteToStdout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "json", sample(), "", "-"))
	assert.Contains(t, buf.String(), `"target": "RTI2.multiply"`)

	buf.Reset()
	require.NoError(t, Write(&buf, "text", sample(), "", ""))
	assert.Contains(t, buf.String(), "RTI2.multiply")
}

func TestWriteToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "out", "report.yaml")
	require.NoError(t, Write(&buf, "yaml", sample(), "", path))
	assert.Empty(t, buf.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "type: Float")
}
