package app

import (
	"context"
	"time"

	"rtinfer/internal/data/history"
	"rtinfer/internal/engine/diag"
	"rtinfer/internal/engine/fields"
	"rtinfer/internal/engine/types"
	"rtinfer/internal/ui/report"
)

// RunRequest selects the queries of one run.
type RunRequest struct {
	Queries []QuerySpec
	// All also answers every method callable without arguments.
	All bool
}

// Run answers req against the current session and summarises the session in
// a report. A query that cannot be posed (unknown method, bad type
// expression) fails the run. When a history store is attached the run is
// persisted and the report carries its ID.
func (a *App) Run(ctx context.Context, req RunRequest) (*report.Report, error) {
	start := time.Now()
	var results []QueryResult
	for _, spec := range req.Queries {
		res, err := a.Query(ctx, spec)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	if req.All {
		all, err := a.InferAll(ctx)
		if err != nil {
			return nil, err
		}
		results = append(results, all...)
	}

	r := a.buildReport(results, start)
	if a.history != nil {
		id, err := a.history.SaveRun(ctx, toHistoryRun(r))
		if err != nil {
			a.log.Warn("failed to save run history", "error", err)
		} else {
			r.RunID = id
		}
	}
	return r, nil
}

func (a *App) buildReport(results []QueryResult, start time.Time) *report.Report {
	s := a.Session()
	r := &report.Report{
		StartedAt: start.UTC(),
		Duration:  time.Since(start),
		Queries:   make([]report.Query, 0, len(results)),
	}
	for _, res := range results {
		r.Queries = append(r.Queries, report.Query{
			Target:      res.Target,
			Receiver:    res.Receiver.String(),
			Args:        typeStrings(res.Args),
			Type:        res.Type.String(),
			Diagnostics: reportDiagnostics(res.Diagnostics),
		})
	}
	if s == nil {
		return r
	}

	r.Roots = append([]string(nil), s.Roots...)
	r.Files = len(s.Files)
	r.Methods = len(s.Registry.Methods())
	r.Diagnostics = reportDiagnostics(s.Engine.Diagnostics())
	r.Globals = reportFields(a.Globals())
	r.Fields = reportFields(a.Fields())
	r.RecursiveGroups = a.RecursiveGroups()
	for _, err := range s.Errors {
		r.LoadErrors = append(r.LoadErrors, err.Error())
	}
	return r
}

func typeStrings(ts []types.Type) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}

func reportDiagnostics(ds []diag.Diagnostic) []report.Diagnostic {
	out := make([]report.Diagnostic, len(ds))
	for i, d := range ds {
		out[i] = report.Diagnostic{
			Kind:      string(d.Kind),
			File:      d.File,
			Line:      d.Line,
			Message:   d.Message,
			Secondary: d.Secondary,
		}
	}
	return out
}

func reportFields(es []fields.Entry) []report.Field {
	out := make([]report.Field, len(es))
	for i, e := range es {
		out[i] = report.Field{Name: e.Key.String(), Type: e.Type.String()}
	}
	return out
}

func toHistoryRun(r *report.Report) history.Run {
	run := history.Run{
		StartedAt: r.StartedAt,
		Duration:  r.Duration,
		Roots:     r.Roots,
		Files:     r.Files,
		Methods:   r.Methods,
	}
	for _, q := range r.Queries {
		run.Queries = append(run.Queries, history.QueryRecord{
			Target:   q.Target,
			Receiver: q.Receiver,
			Args:     q.Args,
			Result:   q.Type,
		})
	}
	for _, d := range r.Diagnostics {
		run.Diagnostics = append(run.Diagnostics, history.DiagnosticRecord{
			Kind:      d.Kind,
			File:      d.File,
			Line:      d.Line,
			Message:   d.Message,
			Secondary: d.Secondary,
		})
	}
	return run
}
