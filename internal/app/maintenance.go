package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// queryLogRetention is how long logged queries are kept.
const queryLogRetention = 90 * 24 * time.Hour

// Maintenance runs periodic cleanup of the history cache and query log.
type Maintenance struct {
	cron *cron.Cron
	app  *App
	ctx  context.Context
}

// NewMaintenance registers the prune job on cfg.Storage.PruneSchedule.
// Standard five-field specs and descriptors such as "@every 1h" are
// accepted.
func (a *App) NewMaintenance(ctx context.Context) (*Maintenance, error) {
	m := &Maintenance{cron: cron.New(), app: a, ctx: ctx}
	if _, err := m.cron.AddFunc(a.cfg.Storage.PruneSchedule, m.Prune); err != nil {
		return nil, fmt.Errorf("register prune task %q: %w", a.cfg.Storage.PruneSchedule, err)
	}
	return m, nil
}

// Start starts the scheduler.
func (m *Maintenance) Start() {
	m.cron.Start()
	m.app.log.Info("maintenance scheduler started", "schedule", m.app.cfg.Storage.PruneSchedule)
}

// Stop stops the scheduler and waits for a running job to finish.
func (m *Maintenance) Stop() {
	<-m.cron.Stop().Done()
	m.app.log.Info("maintenance scheduler stopped")
}

// Prune drops stale cache files and old query log rows.
func (m *Maintenance) Prune() {
	a := m.app
	if a.Cache != nil {
		n, err := a.Cache.Prune(m.ctx, a.cfg.Storage.CacheTTL)
		if err != nil {
			a.log.Error("pruning history cache", "error", err)
		} else if n > 0 {
			a.log.Info("pruned history cache", "files", n)
		}
	}
	if a.QueryLog != nil {
		n, err := a.QueryLog.DeleteBefore(m.ctx, time.Now().Add(-queryLogRetention))
		if err != nil {
			a.log.Error("pruning query log", "error", err)
		} else if n > 0 {
			a.log.Info("pruned query log", "rows", n)
		}
	}
}
