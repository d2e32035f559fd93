package app

import (
	"context"

	"rtinfer/internal/core/ports"
	"rtinfer/internal/ui/report"
)

// Watch runs req once, then again in a fresh session every time source
// reports changed sources, handing each report to emit. It returns when ctx
// is done or source closes its channel. Reload failures are logged and the
// previous session stays in place.
func (a *App) Watch(ctx context.Context, source ports.ChangeSource, req RunRequest, emit func(*report.Report) error) error {
	if err := a.reloadAndRun(ctx, req, emit); err != nil {
		return err
	}

	if err := source.Start(ctx, a.Paths.Roots); err != nil {
		return err
	}
	defer source.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case changed, ok := <-source.Changes():
			if !ok {
				return nil
			}
			a.log.Info("sources changed, re-analysing", "files", len(changed))
			if err := a.reloadAndRun(ctx, req, emit); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.log.Error("re-analysis failed", "error", err)
			}
		}
	}
}

func (a *App) reloadAndRun(ctx context.Context, req RunRequest, emit func(*report.Report) error) error {
	if _, err := a.Load(ctx, nil); err != nil {
		return err
	}
	r, err := a.Run(ctx, req)
	if err != nil {
		return err
	}
	return emit(r)
}
