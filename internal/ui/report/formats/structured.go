// # internal/ui/report/formats/structured.go
package formats

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// GenerateJSON renders r as indented JSON.
func GenerateJSON(r *Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// GenerateYAML renders r as YAML with two-space indentation.
func GenerateYAML(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
