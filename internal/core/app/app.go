package app

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"rtinfer/internal/core/config"
	domainerrors "rtinfer/internal/core/errors"
	"rtinfer/internal/core/ports"
	"rtinfer/internal/engine/diag"
	"rtinfer/internal/engine/fields"
	"rtinfer/internal/engine/infer"
	"rtinfer/internal/engine/parser"
	"rtinfer/internal/engine/registry"
	"rtinfer/internal/engine/syntax"
	"rtinfer/internal/engine/types"
	"rtinfer/internal/shared/observability"
	"rtinfer/internal/shared/util"

	"go.opentelemetry.io/otel/attribute"
)

// App owns the configuration and the current analysis session. Sessions are
// replaced wholesale on reload; queries against one session are serialised.
type App struct {
	Config *config.Config
	Paths  config.ResolvedPaths

	history ports.HistoryStore
	log     *slog.Logger

	contracts map[string]types.Type
	globals   map[string]types.Type

	mu      sync.Mutex
	session *Session
}

// Session is one analysis: the parsed sources, the registry defined from them
// and the engine answering queries over both.
type Session struct {
	Roots    []string
	Files    []string
	Tree     *syntax.Tree
	Registry *registry.Registry
	Engine   *infer.Engine
	// Errors holds per-file read and syntax failures. A file with syntax
	// errors is still defined from whatever parsed.
	Errors   []error
	LoadedAt time.Time

	reported []diag.Diagnostic
}

type Option func(*App)

// WithHistory persists every run to h.
func WithHistory(h ports.HistoryStore) Option {
	return func(a *App) { a.history = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// New validates the type expressions in cfg and returns an app with no
// session loaded.
func New(cfg *config.Config, paths config.ResolvedPaths, opts ...Option) (*App, error) {
	a := &App{
		Config: cfg,
		Paths:  paths,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.contracts = infer.DefaultContracts()
	for _, name := range slices.Sorted(maps.Keys(cfg.Contracts)) {
		t, err := types.Parse(cfg.Contracts[name])
		if err != nil {
			err = domainerrors.Wrap(err, domainerrors.CodeValidationError, "invalid contract type")
			return nil, domainerrors.AddContext(err, domainerrors.CtxType, cfg.Contracts[name])
		}
		a.contracts[name] = t
	}

	globals := config.DefaultGlobals()
	for name, expr := range cfg.Globals {
		globals[name] = expr
	}
	a.globals = make(map[string]types.Type, len(globals))
	for _, name := range slices.Sorted(maps.Keys(globals)) {
		t, err := types.Parse(globals[name])
		if err != nil {
			err = domainerrors.Wrap(err, domainerrors.CodeValidationError, "invalid global type")
			return nil, domainerrors.AddContext(err, domainerrors.CtxType, globals[name])
		}
		a.globals[name] = t
	}
	return a, nil
}

func (a *App) engineOptions() infer.Options {
	e := a.Config.Engine
	return infer.Options{
		MaxDepth:        e.MaxDepth,
		RecursionPasses: e.RecursionPasses,
		MaxCombinations: e.MaxCombinations,
		MaxTupleLength:  e.MaxTupleLength,
		CacheSize:       e.CacheSize,
		FieldAssignment: infer.FieldAssignment(e.FieldAssignmentValue),
		Contracts:       a.contracts,
		Logger:          a.log,
	}
}

// Load scans roots (the configured roots when empty), parses every Ruby file
// into one syntax arena and starts a fresh session over it. The previous
// session, including its accumulated field types, is discarded.
func (a *App) Load(ctx context.Context, roots []string) (*Session, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.Load")
	defer span.End()

	if len(roots) == 0 {
		roots = a.Paths.Roots
	}
	start := time.Now()
	files, err := ScanDirectories(roots, a.Config.Exclude.Dirs, a.Config.Exclude.Files)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeValidationError, "scan sources")
	}

	s := &Session{Roots: roots, Files: files, LoadedAt: start}
	p := parser.NewParser(nil)
	var parsed []syntax.NodeID
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			code := domainerrors.CodeInternal
			if errors.Is(err, fs.ErrNotExist) {
				code = domainerrors.CodeNotFound
			}
			err = domainerrors.AddContext(domainerrors.Wrap(err, code, "read source"), domainerrors.CtxPath, path)
			a.log.Warn("failed to read source", "path", path, "error", err)
			s.Errors = append(s.Errors, err)
			continue
		}
		root, err := p.ParseSource(a.displayPath(path), content)
		if err != nil {
			a.log.Warn("source has syntax errors", "path", path, "error", err)
			s.Errors = append(s.Errors, err)
			if root == syntax.NoNode {
				continue
			}
		}
		parsed = append(parsed, root)
	}

	reg, err := registry.New()
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "load core overloads")
	}
	s.Tree = p.Tree()
	for _, root := range parsed {
		reg.Define(s.Tree, root)
	}
	s.Registry = reg

	store := fields.NewStore()
	for _, name := range slices.Sorted(maps.Keys(a.globals)) {
		store.Seed(fields.Global(name), a.globals[name])
	}
	store.OnWrite(func(fields.Key) {
		observability.FieldWritesTotal.Inc()
	})
	s.Engine = infer.New(s.Tree, reg, store, a.engineOptions())
	s.Engine.Sink().OnReport(func(d diag.Diagnostic) {
		observability.DiagnosticsTotal.WithLabelValues(string(d.Kind)).Inc()
		s.reported = append(s.reported, d)
	})

	span.SetAttributes(
		attribute.Int("files", len(files)),
		attribute.Int("methods", len(reg.Methods())),
		attribute.Int("errors", len(s.Errors)),
	)
	a.log.Info("analysis loaded",
		"files", len(files),
		"classes", len(reg.Classes()),
		"methods", len(reg.Methods()),
		"errors", len(s.Errors),
		"duration", time.Since(start))

	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
	return s, nil
}

// Session returns the current session, or nil before the first Load.
func (a *App) Session() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// displayPath is the name a file is reported under: relative to the project
// root when inside it.
func (a *App) displayPath(path string) string {
	root := a.Paths.ProjectRoot
	if root == "" {
		return path
	}
	if rel, ok := util.RelTo(root, path); ok {
		return rel
	}
	return path
}

// Globals returns the accumulated global variable types, sorted by name.
func (a *App) Globals() []fields.Entry {
	return a.fieldEntries(true)
}

// Fields returns the accumulated instance field types, sorted by class and
// name.
func (a *App) Fields() []fields.Entry {
	return a.fieldEntries(false)
}

func (a *App) fieldEntries(global bool) []fields.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil
	}
	var out []fields.Entry
	for _, e := range a.session.Engine.Fields().Snapshot() {
		if e.Key.IsGlobal() == global {
			out = append(out, e)
		}
	}
	return out
}

// RecursiveGroups lists the method groups observed calling each other, each
// as the call path that closes the cycle.
func (a *App) RecursiveGroups() [][]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil
	}
	return a.session.Engine.CallCycles()
}
