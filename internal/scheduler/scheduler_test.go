package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"tpia/config"
	cronrunner "tpia/internal/cron"
	"tpia/internal/domain"
	"tpia/internal/econ"
	"tpia/internal/ledger"
	"tpia/internal/metrics"
	"tpia/internal/service"
	"tpia/internal/testutil"
	"tpia/internal/txn"
)

type countingRefresher struct{ calls atomic.Int32 }

func (r *countingRefresher) Refresh(context.Context) (econ.Snapshot, error) {
	r.calls.Add(1)
	return econ.Defaults(), nil
}

type fixedDegradable bool

func (d fixedDegradable) Degraded() bool { return bool(d) }

func newScheduler(t *testing.T, refresher Refresher) *Scheduler {
	t.Helper()
	db := testutil.NewDB(t)
	runner := txn.NewAtomic(db)
	deps := service.Deps{
		DB:     db,
		Runner: runner,
		Ledger: ledger.New(db, runner),
		Econ:   econ.Static(econ.Defaults()),
	}
	clusters := service.NewClusterService(deps, domain.DefaultClusterCapacity)
	return New(Options{
		Processor: service.NewCycleProcessor(deps, clusters),
		Clusters:  clusters,
		Units:     service.NewUnitService(deps, clusters),
		Refresher: refresher,
		Tx:        fixedDegradable(false),
		Metrics:   metrics.GetCollector(),
	})
}

func TestRunSkipsOverlappingJob(t *testing.T) {
	s := newScheduler(t, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background(), JobSweep, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := s.Run(context.Background(), JobSweep, func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrJobRunning)

	ran := false
	require.NoError(t, s.Run(context.Background(), JobAutoApprove, func(context.Context) error {
		ran = true
		return nil
	}))
	require.True(t, ran)

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, s.Run(context.Background(), JobSweep, func(context.Context) error { return nil }))
}

func TestRunReturnsJobError(t *testing.T) {
	s := newScheduler(t, nil)
	boom := errors.New("boom")
	err := s.Run(context.Background(), JobClusterStart, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestRegisterSkipsEmptySpecs(t *testing.T) {
	s := newScheduler(t, nil)
	r := cronrunner.New(nil, context.Background())
	err := s.Register(r, config.SchedulerConfig{
		Sweep:         "0 */5 * * * *",
		ClusterStart:  "30 */5 * * * *",
		ConfigRefresh: "@every 1m",
	})
	require.NoError(t, err)
	require.Equal(t, 4, r.Entries())
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	s := newScheduler(t, nil)
	r := cronrunner.New(nil, context.Background())
	err := s.Register(r, config.SchedulerConfig{Sweep: "every now and then"})
	require.Error(t, err)
	require.Contains(t, err.Error(), JobSweep)
}

func TestJobsRunAgainstEmptyStore(t *testing.T) {
	refresher := &countingRefresher{}
	s := newScheduler(t, refresher)
	ctx := context.Background()

	require.NoError(t, s.Sweep(ctx))
	require.NoError(t, s.StartClusters(ctx))
	require.NoError(t, s.AutoApprove(ctx))
	require.NoError(t, s.UpdateGauges(ctx))
	require.NoError(t, s.RefreshConfig(ctx))
	require.EqualValues(t, 1, refresher.calls.Load())
}

func TestRefreshConfigWithoutRefresher(t *testing.T) {
	s := newScheduler(t, nil)
	require.NoError(t, s.RefreshConfig(context.Background()))
}
