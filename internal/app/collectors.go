package app

import (
	"context"
	"time"

	"github.com/yungbote/roomforge-backend/internal/platform/dbctx"
)

func (a *App) collectProjectsByStep(ctx context.Context, every time.Duration) {
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		counts, err := a.Repos.ProjectRecords.CountByStep(dbctx.Context{Ctx: ctx})
		if err != nil {
			a.Log.Warn("Failed to count projects by step", "error", err)
		} else {
			a.Metrics.SetProjectsByStep(counts)
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}
