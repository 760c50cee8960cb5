package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipstream/catalogsync/internal/catalogsync"
	"github.com/slipstream/catalogsync/internal/config"
	"github.com/slipstream/catalogsync/internal/scheduler"
)

type fakeSweeper struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSweeper) Sweep(ctx context.Context) error {
	f.calls.Add(1)
	return f.err
}

func newScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	sched, err := scheduler.New(zerolog.Nop(), nil)
	require.NoError(t, err)
	return sched
}

func TestRegisterCatalogSyncTask(t *testing.T) {
	sched := newScheduler(t)
	defer sched.Stop()

	cfg := &config.SyncConfig{Enabled: true, Interval: 6 * time.Hour}
	require.NoError(t, RegisterCatalogSyncTask(sched, &fakeSweeper{}, cfg))

	info, err := sched.GetTask(CatalogSyncTaskID)
	require.NoError(t, err)
	assert.Equal(t, "6h0m0s", info.Interval)
	assert.Empty(t, info.Cron)
}

func TestRegisterCatalogSyncTask_Disabled(t *testing.T) {
	sched := newScheduler(t)
	defer sched.Stop()

	require.NoError(t, RegisterCatalogSyncTask(sched, &fakeSweeper{}, &config.SyncConfig{Enabled: false}))
	_, err := sched.GetTask(CatalogSyncTaskID)
	assert.ErrorIs(t, err, scheduler.ErrTaskNotFound)
}

func TestRegisterCatalogSyncTask_RunOnStart(t *testing.T) {
	sched := newScheduler(t)
	defer sched.Stop()

	sweeper := &fakeSweeper{err: catalogsync.ErrSweepRunning}
	cfg := &config.SyncConfig{Enabled: true, Interval: time.Hour, RunOnStart: true}
	require.NoError(t, RegisterCatalogSyncTask(sched, sweeper, cfg))
	require.NoError(t, sched.Start())

	require.Eventually(t, func() bool { return sweeper.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		info, err := sched.GetTask(CatalogSyncTaskID)
		return err == nil && info.LastRun != nil
	}, 2*time.Second, 10*time.Millisecond)

	info, err := sched.GetTask(CatalogSyncTaskID)
	require.NoError(t, err)
	assert.Empty(t, info.LastError, "an overlapping sweep is not reported as a failure")
}

func TestSweepInterval(t *testing.T) {
	assert.Equal(t, 12*time.Hour, sweepInterval(&config.SyncConfig{}))
	assert.Equal(t, 2*time.Hour, sweepInterval(&config.SyncConfig{Interval: 2 * time.Hour}))
}
