package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tpia/config"
	cronrunner "tpia/internal/cron"
	"tpia/internal/domain"
	"tpia/internal/econ"
	"tpia/internal/metrics"
	"tpia/internal/service"
)

const (
	JobSweep         = "sweep"
	JobClusterStart  = "cluster_start"
	JobAutoApprove   = "auto_approve"
	JobConfigRefresh = "config_refresh"
	JobGauges        = "gauges"
)

// Refresher reloads the economic snapshot.
type Refresher interface {
	Refresh(ctx context.Context) (econ.Snapshot, error)
}

// Degradable reports whether writes fell back to best-effort mode.
type Degradable interface {
	Degraded() bool
}

// Scheduler owns the periodic engine jobs. Each job runs at most once at a
// time per process even if triggered by cron and the CLI together.
type Scheduler struct {
	processor *service.CycleProcessor
	clusters  *service.ClusterService
	units     *service.UnitService
	refresher Refresher
	tx        Degradable
	metrics   *metrics.Collector
	log       *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Options struct {
	Processor *service.CycleProcessor
	Clusters  *service.ClusterService
	Units     *service.UnitService
	Refresher Refresher
	Tx        Degradable
	Metrics   *metrics.Collector
	Log       *zap.Logger
}

func New(o Options) *Scheduler {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	return &Scheduler{
		processor: o.Processor,
		clusters:  o.Clusters,
		units:     o.Units,
		refresher: o.Refresher,
		tx:        o.Tx,
		metrics:   o.Metrics,
		log:       o.Log,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Register adds every job with a non-empty spec to r.
func (s *Scheduler) Register(r *cronrunner.Runner, cfg config.SchedulerConfig) error {
	jobs := []struct {
		name string
		spec string
		fn   func(context.Context) error
	}{
		{JobSweep, cfg.Sweep, s.Sweep},
		{JobClusterStart, cfg.ClusterStart, s.StartClusters},
		{JobAutoApprove, cfg.AutoApprove, s.AutoApprove},
		{JobConfigRefresh, cfg.ConfigRefresh, s.RefreshConfig},
		{JobGauges, "@every 30s", s.UpdateGauges},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		name, fn := j.name, j.fn
		if _, err := r.Add(j.spec, func(ctx context.Context) {
			if err := s.Run(ctx, name, fn); err != nil && !errors.Is(err, ErrJobRunning) {
				s.log.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", name, j.spec, err)
		}
	}
	return nil
}

var ErrJobRunning = errors.New("job already running")

// Run executes fn unless another run of the same job is in progress.
func (s *Scheduler) Run(ctx context.Context, job string, fn func(context.Context) error) error {
	l := s.lockFor(job)
	if !l.TryLock() {
		s.log.Debug("job still running, skipping", zap.String("job", job))
		return ErrJobRunning
	}
	defer l.Unlock()

	started := time.Now()
	err := fn(ctx)
	if s.metrics != nil {
		s.metrics.ObserveJob(job, started)
		if err != nil {
			s.metrics.RecordJobFailure(job, "error")
		}
	}
	return err
}

func (s *Scheduler) lockFor(job string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[job]
	if !ok {
		l = &sync.Mutex{}
		s.locks[job] = l
	}
	return l
}

func (s *Scheduler) Sweep(ctx context.Context) error {
	report, err := s.processor.SweepAll(ctx)
	if err != nil {
		return err
	}
	if report.Processed > 0 || report.Failed > 0 {
		s.log.Info("cycle sweep finished",
			zap.Int("clusters", report.Clusters), zap.Int("processed", report.Processed),
			zap.Int("matured", report.Matured), zap.Int("exited", report.Exited), zap.Int("failed", report.Failed))
	}
	return nil
}

func (s *Scheduler) StartClusters(ctx context.Context) error {
	n, err := s.clusters.StartFilledClusters(ctx)
	if n > 0 {
		s.log.Info("clusters started", zap.Int("count", n))
	}
	return err
}

func (s *Scheduler) AutoApprove(ctx context.Context) error {
	n, err := s.units.AutoApprove(ctx)
	if n > 0 {
		s.log.Info("units auto-approved", zap.Int("count", n))
	}
	return err
}

func (s *Scheduler) RefreshConfig(ctx context.Context) error {
	if s.refresher == nil {
		return nil
	}
	snap, err := s.refresher.Refresh(ctx)
	if err != nil {
		return err
	}
	s.log.Debug("econ snapshot refreshed", zap.Int64("version", snap.Version))
	return nil
}

func (s *Scheduler) UpdateGauges(ctx context.Context) error {
	if s.metrics == nil {
		return nil
	}
	if s.tx != nil {
		s.metrics.SetTxDegraded(s.tx.Degraded())
	}
	counts, err := s.clusters.StatusCounts(ctx)
	if err != nil {
		return err
	}
	for _, status := range []domain.ClusterStatus{domain.ClusterFilling, domain.ClusterFull, domain.ClusterActive, domain.ClusterCompleted} {
		s.metrics.SetClusterCount(string(status), counts[status])
	}
	return nil
}
