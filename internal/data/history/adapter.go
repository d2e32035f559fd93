package history

import (
	"context"
	"log/slog"

	"rtinfer/internal/shared/observability"
)

// Adapter bridges Store to the core HistoryStore port. It counts writes and
// keeps the newest retention runs.
type Adapter struct {
	store     *Store
	retention int
}

func NewAdapter(store *Store, retention int) *Adapter {
	return &Adapter{store: store, retention: retention}
}

func (a *Adapter) SaveRun(ctx context.Context, run Run) (string, error) {
	id, err := a.store.SaveRun(ctx, run)
	if err != nil {
		observability.HistoryWritesTotal.WithLabelValues("error").Inc()
		return "", err
	}
	observability.HistoryWritesTotal.WithLabelValues("ok").Inc()
	if a.retention > 0 {
		if n, err := a.store.Prune(ctx, a.retention); err != nil {
			slog.Warn("history prune failed", "error", err)
		} else if n > 0 {
			slog.Debug("history pruned", "runs", n)
		}
	}
	return id, nil
}

func (a *Adapter) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	return a.store.Runs(ctx, limit)
}

func (a *Adapter) RunQueries(ctx context.Context, id string) ([]QueryRecord, error) {
	return a.store.RunQueries(ctx, id)
}

func (a *Adapter) RunDiagnostics(ctx context.Context, id string) ([]DiagnosticRecord, error) {
	return a.store.RunDiagnostics(ctx, id)
}
