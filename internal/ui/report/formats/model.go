// # internal/ui/report/formats/model.go
package formats

import "time"

// Report is the rendered outcome of one analysis run.
type Report struct {
	RunID           string        `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	StartedAt       time.Time     `json:"started_at" yaml:"started_at"`
	Duration        time.Duration `json:"duration_ns" yaml:"duration"`
	Roots           []string      `json:"roots" yaml:"roots"`
	Files           int           `json:"files" yaml:"files"`
	Methods         int           `json:"methods" yaml:"methods"`
	Queries         []Query       `json:"queries" yaml:"queries"`
	Diagnostics     []Diagnostic  `json:"diagnostics" yaml:"diagnostics"`
	Globals         []Field       `json:"globals,omitempty" yaml:"globals,omitempty"`
	Fields          []Field       `json:"fields,omitempty" yaml:"fields,omitempty"`
	RecursiveGroups [][]string    `json:"recursive_groups,omitempty" yaml:"recursive_groups,omitempty"`
	LoadErrors      []string      `json:"load_errors,omitempty" yaml:"load_errors,omitempty"`
}

// Query is one answered return-type query.
type Query struct {
	Target      string       `json:"target" yaml:"target"`
	Receiver    string       `json:"receiver" yaml:"receiver"`
	Args        []string     `json:"args" yaml:"args"`
	Type        string       `json:"type" yaml:"type"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// Diagnostic is a finding reported while answering queries.
type Diagnostic struct {
	Kind      string `json:"kind" yaml:"kind"`
	File      string `json:"file" yaml:"file"`
	Line      int    `json:"line" yaml:"line"`
	Message   string `json:"message" yaml:"message"`
	Secondary string `json:"secondary,omitempty" yaml:"secondary,omitempty"`
}

// Field is the accumulated type of a global or an instance field.
type Field struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}
