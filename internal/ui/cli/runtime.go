package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	coreapp "rtinfer/internal/core/app"
	"rtinfer/internal/core/config"
	domainerrors "rtinfer/internal/core/errors"
	"rtinfer/internal/core/watcher"
	"rtinfer/internal/data/history"
	"rtinfer/internal/shared/observability"
	"rtinfer/internal/shared/version"
	"rtinfer/internal/ui/report"
)

// Exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitDiagnostics = 2
)

func Run(args []string) int {
	return run(context.Background(), args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitError
	}
	if opts.version {
		fmt.Fprintf(stdout, "rtinfer %s\n", version.Version)
		return exitOK
	}
	if err := opts.validate(); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return exitError
	}

	logger := configureLogging(stderr, opts.verbose)

	cwd, err := os.Getwd()
	if err != nil {
		logger.Error("failed to detect working directory", "error", err)
		return exitError
	}
	cfg, paths, err := loadRuntimeConfig(opts, cwd)
	if err != nil {
		logger.Error("failed to load config", "path", opts.configPath, "error", err)
		return exitError
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Observability.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to start tracing", "error", err)
		return exitError
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	store, err := openHistoryStoreIfEnabled(cfg, paths)
	if err != nil {
		logger.Error("history setup failed", "path", paths.DBPath, "error", err)
		return exitError
	}
	if store != nil {
		defer store.Close()
	}

	if opts.historyMode() {
		if err := printHistory(ctx, stdout, history.NewAdapter(store, 0), opts); err != nil {
			logger.Error("history query failed", "error", err)
			return exitError
		}
		return exitOK
	}

	req, err := buildRunRequest(opts, cfg)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return exitError
	}

	a, err := newApp(cfg, paths, store, logger)
	if err != nil {
		logger.Error("failed to initialize app", "error", err)
		return exitError
	}

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		srv := NewObservabilityServer(addr, a)
		if err := srv.Start(ctx); err != nil {
			logger.Error("failed to start observability server", "addr", addr, "error", err)
			return exitError
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	if opts.watch {
		return runWatch(ctx, a, store, opts, req, stdout, logger)
	}
	return runOnce(ctx, a, opts, req, stdout, logger)
}

func configureLogging(stderr io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadRuntimeConfig loads the config file, applies the command-line overrides
// and resolves every path against the project root.
func loadRuntimeConfig(opts cliOptions, cwd string) (*config.Config, config.ResolvedPaths, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, config.ResolvedPaths{}, err
	}
	if err := applyModeOptions(opts, cfg); err != nil {
		return nil, config.ResolvedPaths{}, err
	}
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return nil, config.ResolvedPaths{}, err
	}
	return cfg, paths, nil
}

func applyModeOptions(opts cliOptions, cfg *config.Config) error {
	if len(opts.args) > 0 {
		cfg.Paths.Roots = append([]string(nil), opts.args...)
	}
	if opts.format != "" {
		if !slices.Contains(config.Formats, opts.format) {
			return fmt.Errorf("--format must be one of: %s", strings.Join(config.Formats, ", "))
		}
		cfg.Output.Format = opts.format
	}
	if opts.out != "" {
		cfg.Output.Path = opts.out
	}
	if opts.history {
		cfg.DB.Enabled = true
	}
	return nil
}

func openHistoryStoreIfEnabled(cfg *config.Config, paths config.ResolvedPaths) (*history.Store, error) {
	if !cfg.DB.Enabled {
		return nil, nil
	}
	return history.Open(paths.DBPath, cfg.DB.BusyTimeout)
}

func newApp(cfg *config.Config, paths config.ResolvedPaths, store *history.Store, logger *slog.Logger) (*coreapp.App, error) {
	appOpts := []coreapp.Option{coreapp.WithLogger(logger)}
	if store != nil {
		appOpts = append(appOpts, coreapp.WithHistory(history.NewAdapter(store, cfg.DB.Retention)))
	}
	return coreapp.New(cfg, paths, appOpts...)
}

// buildRunRequest collects the command-line queries, falling back to the
// configured ones. With neither, every method callable without arguments is
// inferred.
func buildRunRequest(opts cliOptions, cfg *config.Config) (coreapp.RunRequest, error) {
	req := coreapp.RunRequest{All: opts.all}
	for _, raw := range opts.queries {
		spec, err := coreapp.ParseQuery(raw)
		if err != nil {
			return coreapp.RunRequest{}, err
		}
		if opts.receiver != "" {
			spec.Receiver = opts.receiver
		}
		req.Queries = append(req.Queries, spec)
	}
	if len(req.Queries) == 0 {
		req.Queries = coreapp.ConfigQueries(cfg.Queries)
	}
	if len(req.Queries) == 0 {
		req.All = true
	}
	return req, nil
}

func runOnce(ctx context.Context, a *coreapp.App, opts cliOptions, req coreapp.RunRequest, stdout io.Writer, logger *slog.Logger) int {
	if _, err := a.Load(ctx, nil); err != nil {
		logger.Error("analysis failed", errorAttrs(err)...)
		return exitError
	}
	r, err := a.Run(ctx, req)
	if err != nil {
		logger.Error("query failed", errorAttrs(err)...)
		return exitError
	}
	if err := writeReport(a, r, stdout); err != nil {
		logger.Error("failed to write report", "error", err)
		return exitError
	}
	return exitCode(opts, r)
}

// errorAttrs logs err along with its domain code when it carries one.
func errorAttrs(err error) []any {
	attrs := []any{"error", err}
	if code, ok := domainerrors.CodeOf(err); ok {
		attrs = append(attrs, "code", string(code))
	}
	return attrs
}

func exitCode(opts cliOptions, r *report.Report) int {
	if len(r.LoadErrors) > 0 {
		return exitError
	}
	if opts.failOnDiagnostics && len(r.Diagnostics) > 0 {
		return exitDiagnostics
	}
	return exitOK
}

func writeReport(a *coreapp.App, r *report.Report, stdout io.Writer) error {
	return report.Write(stdout, a.Config.Output.Format, r, a.Paths.ProjectRoot, a.Paths.OutputPath)
}

// runWatch re-runs req whenever sources change. An edit to the config file
// restarts the loop with a fresh app built from the new config.
func runWatch(ctx context.Context, a *coreapp.App, store *history.Store, opts cliOptions, req coreapp.RunRequest, stdout io.Writer, logger *slog.Logger) int {
	for {
		reloaded := make(chan *config.Config, 1)
		watchCtx, cancel := context.WithCancel(ctx)
		cfgWatcher := config.NewWatcher(opts.configPath, func(next *config.Config) {
			select {
			case reloaded <- next:
			default:
			}
			cancel()
		})
		if err := cfgWatcher.Start(watchCtx); err != nil {
			logger.Warn("config file is not watched", "path", opts.configPath, "error", err)
		}

		err := watchSources(watchCtx, a, req, stdout, logger)
		cfgWatcher.Stop()
		cancel()

		if ctx.Err() != nil {
			return exitOK
		}
		select {
		case next := <-reloaded:
			rebuilt, rerr := rebuildApp(next, opts, store, logger)
			if rerr != nil {
				logger.Error("reloaded config rejected, keeping previous", "error", rerr)
				continue
			}
			a = rebuilt
		default:
			if err != nil {
				logger.Error("watch failed", "error", err)
				return exitError
			}
			return exitOK
		}
	}
}

func watchSources(ctx context.Context, a *coreapp.App, req coreapp.RunRequest, stdout io.Writer, logger *slog.Logger) error {
	w := a.Config.Watch
	src, err := watcher.NewWatcher(watcher.Options{
		Debounce:     w.Debounce,
		ExcludeDirs:  a.Config.Exclude.Dirs,
		ExcludeFiles: a.Config.Exclude.Files,
		Extensions:   w.Extensions,
		RateLimit:    w.RateLimit,
		RateBurst:    w.RateBurst,
	})
	if err != nil {
		return err
	}
	return a.Watch(ctx, src, req, func(r *report.Report) error {
		logger.Info("analysis updated", "queries", len(r.Queries), "diagnostics", len(r.Diagnostics))
		return writeReport(a, r, stdout)
	})
}

func rebuildApp(cfg *config.Config, opts cliOptions, store *history.Store, logger *slog.Logger) (*coreapp.App, error) {
	if err := applyModeOptions(opts, cfg); err != nil {
		return nil, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return nil, err
	}
	// the history store stays the one opened at startup
	cfg.DB.Enabled = store != nil
	return newApp(cfg, paths, store, logger)
}

func printHistory(ctx context.Context, stdout io.Writer, h *history.Adapter, opts cliOptions) error {
	if opts.runDiagnostics != "" {
		queries, err := h.RunQueries(ctx, opts.runDiagnostics)
		if err != nil {
			return err
		}
		for _, q := range queries {
			fmt.Fprintf(stdout, "%s(%s)", q.Target, strings.Join(q.Args, ", "))
			if q.Receiver != "" {
				fmt.Fprintf(stdout, " on %s", q.Receiver)
			}
			fmt.Fprintf(stdout, " => %s\n", q.Result)
		}
		diags, err := h.RunDiagnostics(ctx, opts.runDiagnostics)
		if err != nil {
			return err
		}
		if len(diags) == 0 {
			fmt.Fprintf(stdout, "run %s has no diagnostics\n", opts.runDiagnostics)
			return nil
		}
		for _, d := range diags {
			fmt.Fprintf(stdout, "%s:%d: %s: %s\n", d.File, d.Line, d.Kind, d.Message)
			if d.Secondary != "" {
				fmt.Fprintf(stdout, "    %s\n", d.Secondary)
			}
		}
		return nil
	}

	runs, err := h.Runs(ctx, opts.runs)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "no stored runs")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(stdout, "%s  %s  %d files  %d methods  %d queries  %d diagnostics\n",
			r.ID,
			r.StartedAt.Format(time.RFC3339),
			r.Files,
			r.Methods,
			r.QueryCount,
			r.DiagnosticCount)
	}
	return nil
}
