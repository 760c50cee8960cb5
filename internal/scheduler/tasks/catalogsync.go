package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slipstream/catalogsync/internal/catalogsync"
	"github.com/slipstream/catalogsync/internal/config"
	"github.com/slipstream/catalogsync/internal/scheduler"
)

const CatalogSyncTaskID = "catalog-sync"

const defaultSweepInterval = 12 * time.Hour

// Sweeper is the part of the catalog sync service the task runs.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

func sweepInterval(cfg *config.SyncConfig) time.Duration {
	if cfg.Interval <= 0 {
		return defaultSweepInterval
	}
	return cfg.Interval
}

func sweepFunc(service Sweeper) scheduler.TaskFunc {
	return func(ctx context.Context) error {
		err := service.Sweep(ctx)
		if errors.Is(err, catalogsync.ErrSweepRunning) {
			return nil
		}
		return err
	}
}

// RegisterCatalogSyncTask registers the periodic catalog sweep with the scheduler.
func RegisterCatalogSyncTask(sched *scheduler.Scheduler, service Sweeper, cfg *config.SyncConfig) error {
	if !cfg.Enabled {
		return nil
	}

	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          CatalogSyncTaskID,
		Name:        "Catalog Sync",
		Description: "Re-sync every catalog-backed collection and import newly listed items",
		Interval:    sweepInterval(cfg),
		RunOnStart:  cfg.RunOnStart,
		Func:        sweepFunc(service),
	})
}

// UpdateCatalogSyncTask re-registers the catalog sweep after a settings change.
func UpdateCatalogSyncTask(sched *scheduler.Scheduler, service *catalogsync.Service, cfg *config.SyncConfig) error {
	if err := sched.UnregisterTask(CatalogSyncTaskID); err != nil {
		return fmt.Errorf("failed to unregister catalog-sync task: %w", err)
	}

	if !cfg.Enabled {
		return nil
	}

	return RegisterCatalogSyncTask(sched, service, cfg)
}
