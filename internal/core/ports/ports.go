package ports

import (
	"context"

	"rtinfer/internal/data/history"
)

// HistoryStore abstracts run persistence for the app service.
type HistoryStore interface {
	SaveRun(ctx context.Context, run history.Run) (string, error)
	Runs(ctx context.Context, limit int) ([]history.RunSummary, error)
	RunDiagnostics(ctx context.Context, id string) ([]history.DiagnosticRecord, error)
}

// ChangeSource delivers batches of changed source paths, for watch mode.
type ChangeSource interface {
	Start(ctx context.Context, paths []string) error
	Changes() <-chan []string
	Stop()
}
