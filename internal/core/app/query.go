package app

import (
	"context"
	"fmt"
	"strings"

	"rtinfer/internal/core/config"
	domainerrors "rtinfer/internal/core/errors"
	"rtinfer/internal/engine/diag"
	"rtinfer/internal/engine/registry"
	"rtinfer/internal/engine/types"
	"rtinfer/internal/shared/observability"
)

// QuerySpec asks for the return type of Target ("Class#method" or
// "Class.method") called on Receiver with Args. Every field but Target is a
// type expression; an empty Receiver means the target's own class.
type QuerySpec struct {
	Target   string
	Receiver string
	Args     []string
}

// QueryResult is an answered query. Diagnostics are those first reported
// while answering it.
type QueryResult struct {
	Target      string
	Receiver    types.Type
	Args        []types.Type
	Type        *types.Union
	Diagnostics []diag.Diagnostic
}

// ParseQuery reads the command-line form "Class.method(T1, T2)". The
// parenthesised list is optional; commas nested in Tuple<...> stay with their
// argument.
func ParseQuery(raw string) (QuerySpec, error) {
	raw = strings.TrimSpace(raw)
	open := strings.IndexByte(raw, '(')
	if open < 0 {
		return QuerySpec{Target: raw}, nil
	}
	if !strings.HasSuffix(raw, ")") {
		err := domainerrors.New(domainerrors.CodeValidationError, "unbalanced argument list")
		return QuerySpec{}, domainerrors.AddContext(err, domainerrors.CtxTarget, raw)
	}
	spec := QuerySpec{Target: strings.TrimSpace(raw[:open])}
	inner := raw[open+1 : len(raw)-1]
	depth, last := 0, 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '<', '(':
			depth++
		case '>', ')':
			depth--
		case ',':
			if depth == 0 {
				spec.Args = append(spec.Args, strings.TrimSpace(inner[last:i]))
				last = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(inner[last:]); tail != "" || len(spec.Args) > 0 {
		spec.Args = append(spec.Args, tail)
	}
	return spec, nil
}

// ConfigQueries converts the configured [[queries]].
func ConfigQueries(qs []config.Query) []QuerySpec {
	out := make([]QuerySpec, len(qs))
	for i, q := range qs {
		out[i] = QuerySpec{Target: q.Target, Receiver: q.Receiver, Args: q.Args}
	}
	return out
}

// Query answers spec against the current session.
func (a *App) Query(ctx context.Context, spec QuerySpec) (QueryResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return QueryResult{}, domainerrors.New(domainerrors.CodeValidationError, "no analysis loaded")
	}

	class, name, singleton, err := config.SplitTarget(spec.Target)
	if err != nil {
		err = domainerrors.Wrap(err, domainerrors.CodeValidationError, "invalid query target")
		return QueryResult{}, domainerrors.AddContext(err, domainerrors.CtxTarget, spec.Target)
	}
	reg := a.session.Registry
	lookup := reg.InstanceMethod
	if singleton {
		lookup = reg.SingletonMethod
	}
	m, err := lookup(class, name)
	if err != nil {
		err = domainerrors.Wrap(err, domainerrors.CodeNotFound, "unknown method")
		return QueryResult{}, domainerrors.AddContext(err, domainerrors.CtxTarget, spec.Target)
	}

	var recv types.Type
	if spec.Receiver != "" {
		if recv, err = parseType(spec.Receiver); err != nil {
			return QueryResult{}, err
		}
	}
	args := make([]types.Type, len(spec.Args))
	for i, expr := range spec.Args {
		if args[i], err = parseType(expr); err != nil {
			return QueryResult{}, err
		}
	}
	return a.query(ctx, m, recv, args)
}

// InferAll answers every method that can be called without arguments, in
// definition order. Attribute writers are skipped.
func (a *App) InferAll(ctx context.Context) ([]QueryResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil, domainerrors.New(domainerrors.CodeValidationError, "no analysis loaded")
	}
	var out []QueryResult
	for _, m := range a.session.Registry.Methods() {
		if m.Accessor == registry.Writer || !m.Accepts(0) {
			continue
		}
		res, err := a.query(ctx, m, nil, nil)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// query runs one inference; a.mu must be held.
func (a *App) query(ctx context.Context, m *registry.Method, recv types.Type, args []types.Type) (QueryResult, error) {
	s := a.session
	if recv == nil {
		recv = types.Instance(m.Owner)
	}
	before := len(s.reported)
	t, err := s.Engine.Infer(ctx, m, recv, args)
	if err != nil {
		observability.QueriesTotal.WithLabelValues("error").Inc()
		return QueryResult{}, domainerrors.AddContext(err, domainerrors.CtxTarget, m.String())
	}
	res := QueryResult{
		Target:   m.String(),
		Receiver: recv,
		Args:     args,
		Type:     t,
	}
	if len(s.reported) > before {
		res.Diagnostics = append([]diag.Diagnostic(nil), s.reported[before:]...)
	}
	a.log.Debug("query answered", "target", res.Target, "args", describeTypes(args), "type", t.String())
	return res, nil
}

func parseType(expr string) (types.Type, error) {
	t, err := types.Parse(expr)
	if err != nil {
		err = domainerrors.Wrap(err, domainerrors.CodeValidationError, "invalid type expression")
		return nil, domainerrors.AddContext(err, domainerrors.CtxType, expr)
	}
	return t, nil
}

func describeTypes(ts []types.Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, ", "))
}
