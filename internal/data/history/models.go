package history

import "time"

// SchemaVersion is the newest migration this package applies.
const SchemaVersion = 1

// Run is one analysis session: the queries it answered and the diagnostics
// the engine reported while answering them.
type Run struct {
	ID          string
	StartedAt   time.Time
	Duration    time.Duration
	Roots       []string
	Files       int
	Methods     int
	Queries     []QueryRecord
	Diagnostics []DiagnosticRecord
}

// QueryRecord is one answered return-type query.
type QueryRecord struct {
	Target   string
	Receiver string
	Args     []string
	Result   string
}

// DiagnosticRecord is one reported diagnostic.
type DiagnosticRecord struct {
	Kind      string
	File      string
	Line      int
	Message   string
	Secondary string
}

// RunSummary is a stored run without its detail rows.
type RunSummary struct {
	ID              string
	StartedAt       time.Time
	Duration        time.Duration
	Roots           []string
	Files           int
	Methods         int
	QueryCount      int
	DiagnosticCount int
}
