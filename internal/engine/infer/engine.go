// # internal/engine/infer/engine.go
package infer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"rtinfer/internal/engine/callgraph"
	"rtinfer/internal/engine/diag"
	"rtinfer/internal/engine/fields"
	"rtinfer/internal/engine/registry"
	"rtinfer/internal/engine/syntax"
	"rtinfer/internal/engine/types"
	"rtinfer/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
)

// FieldAssignment selects the value of a field assignment expression.
type FieldAssignment string

const (
	// AssignWritten: the assignment evaluates to the right-hand side.
	AssignWritten FieldAssignment = "written"
	// AssignAccumulated: the assignment evaluates to the field's accumulated
	// type after the write.
	AssignAccumulated FieldAssignment = "accumulated"
)

// Options tunes an Engine.
type Options struct {
	// MaxDepth bounds nested method inference; deeper calls yield Empty.
	MaxDepth int
	// RecursionPasses bounds re-runs of a query that re-entered itself.
	RecursionPasses int
	// MaxCombinations caps the receiver x argument member combinations tried
	// at one call site before arguments are matched as whole unions.
	MaxCombinations int
	// MaxTupleLength caps the elements a tuple literal operation may produce;
	// longer results lose their shape.
	MaxTupleLength int
	// CacheSize is the number of method forms kept.
	CacheSize       int
	FieldAssignment FieldAssignment
	// Contracts maps conversion method names to the type they must return.
	Contracts map[string]types.Type
	Logger    *slog.Logger
}

// DefaultContracts is the conversion contract table used when none is
// configured.
func DefaultContracts() map[string]types.Type {
	integer := types.Join(types.SmallInt, types.BigInt)
	return map[string]types.Type{
		"to_s":    types.Text,
		"to_str":  types.Text,
		"inspect": types.Text,
		"to_sym":  types.Symbolic,
		"to_i":    integer,
		"to_int":  integer,
		"to_f":    types.Float,
		"to_h":    types.Mapping,
		"to_hash": types.Mapping,
		"to_proc": types.Callable,
	}
}

func DefaultOptions() Options {
	return Options{
		MaxDepth:        64,
		RecursionPasses: 3,
		MaxCombinations: 64,
		MaxTupleLength:  1024,
		CacheSize:       512,
		// `self.foo = x` evaluates to x, so a setter like TI1#set_foo answers
		// the String it writes rather than the field's accumulated type.
		// AssignAccumulated is opt-in.
		FieldAssignment: AssignWritten,
		Contracts:       DefaultContracts(),
		Logger:          slog.Default(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.RecursionPasses <= 0 {
		o.RecursionPasses = d.RecursionPasses
	}
	if o.MaxCombinations <= 0 {
		o.MaxCombinations = d.MaxCombinations
	}
	if o.MaxTupleLength <= 0 {
		o.MaxTupleLength = d.MaxTupleLength
	}
	if o.CacheSize <= 0 {
		o.CacheSize = d.CacheSize
	}
	if o.FieldAssignment == "" {
		o.FieldAssignment = d.FieldAssignment
	}
	if o.Contracts == nil {
		o.Contracts = d.Contracts
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	return o
}

type memoEntry struct {
	result     *types.Union
	generation uint64
}

// flight is a query currently on the inference stack.
type flight struct {
	key       string
	seed      *types.Union
	reentered bool
	tainted   bool
}

// Engine answers return-type queries over one analysis session: a syntax
// arena, the registry defined from it, and a field store. It is not safe for
// concurrent use.
type Engine struct {
	tree  *syntax.Tree
	reg   *registry.Registry
	store *fields.Store
	sink  *diag.Sink
	calls *callgraph.Graph
	forms *formCache
	opts  Options
	log   *slog.Logger

	memo    map[string]memoEntry
	flights map[string]*flight
	stack   []*flight
}

// New returns an engine over tree and reg. A nil store starts empty.
func New(tree *syntax.Tree, reg *registry.Registry, store *fields.Store, opts Options) *Engine {
	opts = opts.withDefaults()
	if store == nil {
		store = fields.NewStore()
	}
	e := &Engine{
		tree:    tree,
		reg:     reg,
		store:   store,
		sink:    diag.NewSink(),
		calls:   callgraph.New(),
		forms:   newFormCache(opts.CacheSize),
		opts:    opts,
		log:     opts.Logger,
		memo:    make(map[string]memoEntry),
		flights: make(map[string]*flight),
	}
	e.forms.onEvict = func(m *registry.Method) {
		e.log.Debug("form evicted", "method", m.String())
	}
	return e
}

// Fields exposes the accumulated global and instance field types.
func (e *Engine) Fields() *fields.Store { return e.store }

// Sink exposes the diagnostics sink, for hooks.
func (e *Engine) Sink() *diag.Sink { return e.sink }

// Diagnostics returns every diagnostic reported so far.
func (e *Engine) Diagnostics() []diag.Diagnostic { return e.sink.All() }

// DiagnosticsFor returns the diagnostics attached to node.
func (e *Engine) DiagnosticsFor(node syntax.NodeID) []diag.Diagnostic {
	return e.sink.ForNode(node)
}

// RecursiveGroups lists the groups of methods observed calling each other.
func (e *Engine) RecursiveGroups() [][]string { return e.calls.DetectCycles() }

// CallCycles closes every recursive group into the call path leading from its
// first method back to it, e.g. [Parity#even Parity#odd Parity#even].
func (e *Engine) CallCycles() [][]string {
	groups := e.calls.DetectCycles()
	out := make([][]string, 0, len(groups))
	for _, g := range groups {
		if path, ok := e.calls.CyclePath(g[0]); ok {
			out = append(out, path)
		}
	}
	return out
}

// ReturnTypeForTypes infers what m can return when called on recv with args.
// It never fails: unresolvable code contributes Empty and is reported as a
// diagnostic.
func (e *Engine) ReturnTypeForTypes(m *registry.Method, recv types.Type, args ...types.Type) *types.Union {
	if m == nil {
		return types.Empty
	}
	if recv == nil {
		recv = receiverFor(m)
	}
	return e.query(m, recv, args)
}

// Infer is ReturnTypeForTypes wrapped in a trace span and query metrics.
func (e *Engine) Infer(ctx context.Context, m *registry.Method, recv types.Type, args []types.Type) (*types.Union, error) {
	if m == nil {
		return nil, fmt.Errorf("infer: nil method")
	}
	ctx, span := observability.Tracer.Start(ctx, "infer.ReturnTypeForTypes")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	before := e.sink.Len()
	result := e.ReturnTypeForTypes(m, recv, args...)
	observability.InferenceDuration.Observe(time.Since(start).Seconds())

	outcome := "typed"
	if types.IsEmpty(result) {
		outcome = "empty"
	}
	observability.QueriesTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(
		attribute.String("method", m.String()),
		attribute.String("result", result.String()),
		attribute.Int("diagnostics", e.sink.Len()-before),
	)
	return result, nil
}

// receiverFor is the receiver type m is naturally called on.
func receiverFor(m *registry.Method) types.Type {
	return types.Instance(m.Owner)
}

func signature(m *registry.Method, recv types.Type, args []types.Type) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(m.ID))
	sb.WriteByte('|')
	sb.WriteString(types.Key(recv))
	for _, a := range args {
		sb.WriteByte('|')
		sb.WriteString(types.Key(a))
	}
	return sb.String()
}

// query is the memoised entry for every user method inference. A signature
// re-entered while in flight yields its current seed (Empty at first); the
// outer query is then re-run with its previous result as the seed.
func (e *Engine) query(m *registry.Method, recv types.Type, args []types.Type) *types.Union {
	key := signature(m, recv, args)
	if entry, ok := e.memo[key]; ok && entry.generation == e.store.Generation() {
		return entry.result
	}
	if f, ok := e.flights[key]; ok {
		f.reentered = true
		e.taintAbove(f)
		return f.seed
	}
	if len(e.stack) >= e.opts.MaxDepth {
		e.log.Debug("inference depth limit reached", "method", m.String(), "depth", len(e.stack))
		e.taintAbove(nil)
		return types.Empty
	}

	f := &flight{key: key, seed: types.Empty}
	e.flights[key] = f
	e.stack = append(e.stack, f)
	generation := e.store.Generation()

	var result *types.Union
	for pass := 1; ; pass++ {
		f.reentered = false
		result = e.run(m, recv, args)
		if !f.reentered || pass >= e.opts.RecursionPasses || types.Equivalent(result, f.seed) {
			break
		}
		e.log.Debug("re-running recursive query", "method", m.String(), "pass", pass+1)
		f.seed = result
	}

	e.stack = e.stack[:len(e.stack)-1]
	delete(e.flights, key)
	if !f.tainted {
		e.memo[key] = memoEntry{result: result, generation: generation}
	}
	e.checkContract(m, result)
	return result
}

// taintAbove marks every flight deeper than f as depending on an unfinished
// seed. A nil f taints the whole stack.
func (e *Engine) taintAbove(f *flight) {
	start := 0
	if f != nil {
		for i, g := range e.stack {
			if g == f {
				start = i + 1
				break
			}
		}
	}
	for _, g := range e.stack[start:] {
		g.tainted = true
	}
}

func (e *Engine) run(m *registry.Method, recv types.Type, args []types.Type) *types.Union {
	switch m.Accessor {
	case registry.Reader:
		return e.store.Read(fields.Instance(m.Owner, m.Field))
	case registry.Writer:
		if len(args) == 0 {
			return types.Empty
		}
		return types.AsUnion(e.writeField(fields.Instance(m.Owner, m.Field), args[0]))
	}

	form, err := e.forms.get(e.tree, m)
	observability.FormCacheEntries.Set(float64(e.forms.len()))
	if err != nil {
		e.log.Debug("no control-flow graph", "method", m.String(), "error", err)
		return types.Empty
	}
	return newFrame(e, m, form, recv, args).run()
}

func (e *Engine) writeField(k fields.Key, t types.Type) types.Type {
	acc := e.store.Write(k, t)
	if e.opts.FieldAssignment == AssignAccumulated {
		return acc
	}
	return t
}

// checkContract reports a conversion method whose inferred result leaves the
// type its name promises.
func (e *Engine) checkContract(m *registry.Method, result *types.Union) {
	want, ok := e.opts.Contracts[m.Name]
	if !ok || types.IsEmpty(result) {
		return
	}
	expected := types.AsUnion(want)
	if expected.Contains(result) {
		return
	}
	e.sink.Report(diag.Diagnostic{
		Kind:    diag.ContractViolation,
		Message: fmt.Sprintf("%s may return %s; %s must return %s", m.String(), result, m.Name, expected),
		Line:    m.Line,
		Node:    m.Node,
		File:    m.File,
	})
}
