// # internal/ui/report/formats/sarif.go
package formats

import (
	"encoding/json"
	"path/filepath"

	"rtinfer/internal/shared/version"
)

// SARIF v2.1.0 schema – see https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json

const (
	sarifSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
	sarifVersion = "2.1.0"

	ruleIDUnresolved = "RTI001"
	ruleIDContract   = "RTI002"
)

// sarifReport is the top-level SARIF document.
type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	ShortDescription sarifMessage           `json:"shortDescription"`
	DefaultConfig    sarifRuleDefaultConfig `json:"defaultConfiguration"`
}

type sarifRuleDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId"`
}

type sarifRegion struct {
	StartLine int `json:"startLine,omitempty"`
}

type ruleSpec struct {
	id    string
	name  string
	text  string
	level string
}

// rulesByKind maps diagnostic kinds to SARIF rules. Unknown kinds fall back
// to the unresolved-operation rule.
var rulesByKind = map[string]ruleSpec{
	"UnresolvedOperationError": {
		id:    ruleIDUnresolved,
		name:  "UnresolvedOperation",
		text:  "No method or overload accepts the operand types at a call site.",
		level: "error",
	},
	"OverloadContractViolation": {
		id:    ruleIDContract,
		name:  "OverloadContractViolation",
		text:  "A conversion method may return a type outside its contract.",
		level: "warning",
	},
}

// GenerateSARIF builds a SARIF v2.1.0 document from diagnostics.
// File URIs are made relative to projectRoot so that reports are safe to
// share.
func GenerateSARIF(projectRoot string, diags []Diagnostic) ([]byte, error) {
	results := make([]sarifResult, 0, len(diags))
	used := make(map[string]bool)
	for _, d := range diags {
		kind := d.Kind
		if _, ok := rulesByKind[kind]; !ok {
			kind = "UnresolvedOperationError"
		}
		spec := rulesByKind[kind]
		used[kind] = true

		msg := d.Message
		if d.Secondary != "" {
			msg += " (" + d.Secondary + ")"
		}
		result := sarifResult{
			RuleID:  spec.id,
			Level:   spec.level,
			Message: sarifMessage{Text: msg},
		}
		if d.File != "" {
			loc := sarifLocation{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{
						URI:       relativeURI(projectRoot, d.File),
						URIBaseID: "%SRCROOT%",
					},
				},
			}
			if d.Line > 0 {
				loc.PhysicalLocation.Region = &sarifRegion{StartLine: d.Line}
			}
			result.Locations = []sarifLocation{loc}
		}
		results = append(results, result)
	}

	report := sarifReport{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:    "rtinfer",
						Version: version.Version,
						Rules:   buildSARIFRules(used),
					},
				},
				Results: results,
			},
		},
	}

	return json.MarshalIndent(report, "", "  ")
}

// buildSARIFRules returns only the rules that are relevant for the given findings.
func buildSARIFRules(used map[string]bool) []sarifRule {
	rules := make([]sarifRule, 0, len(rulesByKind))
	for _, kind := range []string{"UnresolvedOperationError", "OverloadContractViolation"} {
		if !used[kind] {
			continue
		}
		spec := rulesByKind[kind]
		rules = append(rules, sarifRule{
			ID:               spec.id,
			Name:             spec.name,
			ShortDescription: sarifMessage{Text: spec.text},
			DefaultConfig:    sarifRuleDefaultConfig{Level: spec.level},
		})
	}
	return rules
}

// relativeURI converts an absolute file path to a forward-slash relative URI
// anchored at projectRoot. If the path is already relative or projectRoot is
// empty, the original path (with forward slashes) is returned.
func relativeURI(projectRoot, filePath string) string {
	if projectRoot != "" && filepath.IsAbs(filePath) {
		rel, err := filepath.Rel(projectRoot, filePath)
		if err == nil {
			filePath = rel
		}
	}
	return filepath.ToSlash(filePath)
}
