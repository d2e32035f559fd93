package report

import (
	"bytes"
	"fmt"
	"io"

	"rtinfer/internal/shared/util"
	"rtinfer/internal/ui/report/formats"
)

type Report = formats.Report
type Query = formats.Query
type Diagnostic = formats.Diagnostic
type Field = formats.Field

// Render encodes r in format: text, json, yaml or sarif. projectRoot anchors
// the relative file URIs in SARIF output.
func Render(format string, r *Report, projectRoot string) ([]byte, error) {
	switch format {
	case "", "text":
		var buf bytes.Buffer
		if err := formats.GenerateText(&buf, r); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "json":
		return formats.GenerateJSON(r)
	case "yaml":
		return formats.GenerateYAML(r)
	case "sarif":
		return formats.GenerateSARIF(projectRoot, r.Diagnostics)
	}
	return nil, fmt.Errorf("unknown report format %q", format)
}

// Write renders r to path, or to stdout when path is empty or "-". Text
// written to a terminal keeps its styling.
func Write(stdout io.Writer, format string, r *Report, projectRoot, path string) error {
	if path == "" || path == "-" {
		if format == "" || format == "text" {
			return formats.GenerateText(stdout, r)
		}
		return writeTo(stdout, format, r, projectRoot)
	}
	data, err := Render(format, r, projectRoot)
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(path, data, 0o644)
}

func writeTo(w io.Writer, format string, r *Report, projectRoot string) error {
	data, err := Render(format, r, projectRoot)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
