package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tpia/internal/domain"
	"tpia/internal/models"
	"tpia/internal/repository"
)

// ClusterService pools units into fixed-capacity clusters per commodity and
// gates cluster-mode cycle starts.
type ClusterService struct {
	d        Deps
	capacity int
	clusters *repository.ClusterRepository
	units    *repository.UnitRepository
	cycles   *repository.CycleRepository
}

func NewClusterService(d Deps, capacity int) *ClusterService {
	d = d.withDefaults()
	if capacity <= 0 {
		capacity = domain.DefaultClusterCapacity
	}
	return &ClusterService{
		d:        d,
		capacity: capacity,
		clusters: repository.NewClusterRepository(d.DB),
		units:    repository.NewUnitRepository(d.DB),
		cycles:   repository.NewCycleRepository(d.DB),
	}
}

func (s *ClusterService) Capacity() int { return s.capacity }

// ResolveOrCreate reserves a seat for a new unit in the lowest-numbered
// cluster of the commodity that still has room, creating a cluster numbered
// lastClusterNumber+capacity when none has. Room is re-checked against the
// authoritative count of non-rejected units, not the cached fill.
func (s *ClusterService) ResolveOrCreate(ctx context.Context, tx *gorm.DB, commodityID uint) (*models.Cluster, error) {
	clusters := s.clusters.WithTx(tx)
	units := s.units.WithTx(tx)

	open, err := clusters.ListOpen(ctx, commodityID)
	if err != nil {
		return nil, err
	}
	for _, candidate := range open {
		c, err := clusters.GetByIDForUpdate(ctx, candidate.ID)
		if err != nil {
			return nil, err
		}
		n, err := units.CountOccupying(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if int(n) != c.CurrentFill {
			s.d.Log.Warn("cluster fill drifted, reconciling",
				zap.Uint("cluster_id", c.ID), zap.Int("cached", c.CurrentFill), zap.Int64("actual", n))
			c.CurrentFill = int(n)
		}
		if c.CurrentFill >= c.Capacity {
			if err := s.markFilled(ctx, clusters, c); err != nil {
				return nil, err
			}
			continue
		}
		c.CurrentFill++
		if c.CurrentFill >= c.Capacity {
			if err := s.markFilled(ctx, clusters, c); err != nil {
				return nil, err
			}
			return c, nil
		}
		if err := clusters.Save(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	}

	last, err := clusters.LastNumber(ctx, commodityID)
	if err != nil {
		return nil, err
	}
	c := &models.Cluster{
		CommodityID:   commodityID,
		ClusterNumber: last + s.capacity,
		Capacity:      s.capacity,
		CurrentFill:   1,
		Status:        domain.ClusterFilling,
		CreatedAt:     s.d.Now(),
	}
	if c.CurrentFill >= c.Capacity {
		c.Status = domain.ClusterFull
	}
	if err := clusters.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create cluster %d: %w", c.ClusterNumber, err)
	}
	s.d.Log.Info("cluster opened", zap.Uint("cluster_id", c.ID), zap.Int("cluster_number", c.ClusterNumber), zap.Uint("commodity_id", commodityID))
	return c, nil
}

func (s *ClusterService) markFilled(ctx context.Context, clusters *repository.ClusterRepository, c *models.Cluster) error {
	next, err := domain.NextClusterStatus(c.Status, domain.ClusterEventFilled)
	if err != nil {
		return err
	}
	c.Status = next
	return clusters.Save(ctx, c)
}

// ReleaseSeat recounts the cluster after a unit left it before approval.
// A full cluster reopens for purchases.
func (s *ClusterService) ReleaseSeat(ctx context.Context, tx *gorm.DB, clusterID uint) error {
	clusters := s.clusters.WithTx(tx)
	c, err := clusters.GetByIDForUpdate(ctx, clusterID)
	if err != nil {
		return err
	}
	n, err := s.units.WithTx(tx).CountOccupying(ctx, clusterID)
	if err != nil {
		return err
	}
	c.CurrentFill = int(n)
	if c.CurrentFill < c.Capacity {
		next, err := domain.NextClusterStatus(c.Status, domain.ClusterEventReleased)
		if err != nil {
			return err
		}
		c.Status = next
	}
	return clusters.Save(ctx, c)
}

// AddMember appends an approved unit to the cluster's ordered member list.
func (s *ClusterService) AddMember(ctx context.Context, tx *gorm.DB, u *models.Unit, at time.Time) error {
	clusters := s.clusters.WithTx(tx)
	c, err := clusters.GetByIDForUpdate(ctx, u.ClusterID)
	if err != nil {
		return err
	}
	n, err := clusters.CountMembers(ctx, c.ID)
	if err != nil {
		return err
	}
	if int(n) >= c.Capacity {
		return domain.ErrClusterFull
	}
	_, err = clusters.AddMember(ctx, c.ID, u.ID, at)
	return err
}

// activate marks the cluster active on the first cycle start of any member.
func (s *ClusterService) activate(ctx context.Context, tx *gorm.DB, clusterID uint, at time.Time) error {
	clusters := s.clusters.WithTx(tx)
	c, err := clusters.GetByIDForUpdate(ctx, clusterID)
	if err != nil {
		return err
	}
	if c.Status == domain.ClusterActive {
		return nil
	}
	next, err := domain.NextClusterStatus(c.Status, domain.ClusterEventActivated)
	if err != nil {
		return err
	}
	c.Status = next
	c.ActivationDate = &at
	return clusters.Save(ctx, c)
}

// StartCluster starts cycle 1 for every approved cluster-mode member still
// waiting. The cluster must be filled to capacity. actorID is nil for
// scheduled runs.
func (s *ClusterService) StartCluster(ctx context.Context, clusterID uint, actorID *uint) (int, error) {
	snap, err := s.d.Econ.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	now := s.d.Now()
	var started []models.Unit

	err = s.d.Runner.Run(ctx, func(tx *gorm.DB) error {
		started = started[:0]
		c, err := s.clusters.WithTx(tx).GetByIDForUpdate(ctx, clusterID)
		if err != nil {
			return err
		}
		if c.CurrentFill < c.Capacity {
			return domain.ErrClusterNotFull
		}
		waiting, err := s.units.WithTx(tx).ListAwaitingClusterStart(ctx, clusterID)
		if err != nil {
			return err
		}
		units := s.units.WithTx(tx)
		cycles := s.cycles.WithTx(tx)
		for i := range waiting {
			u, err := units.GetByIDForUpdate(ctx, waiting[i].ID)
			if err != nil {
				return err
			}
			if u.CurrentCycle != 0 || u.Status != domain.UnitActive {
				continue
			}
			if _, err := openCycle(ctx, cycles, u, 1, now, snap); err != nil {
				return err
			}
			if err := units.Save(ctx, u); err != nil {
				return err
			}
			started = append(started, *u)
		}
		if len(started) == 0 {
			return nil
		}
		return s.activate(ctx, tx, clusterID, now)
	})
	if err != nil {
		return 0, err
	}

	if len(started) > 0 {
		s.d.Log.Info("cluster cycles started", zap.Uint("cluster_id", clusterID), zap.Int("units", len(started)))
	}
	if actorID != nil {
		s.d.Audit.Record(ctx, actorID, "cluster.start", "cluster", strconv.FormatUint(uint64(clusterID), 10),
			map[string]any{"units_started": len(started)})
	}
	for _, u := range started {
		s.d.Notifier.Notify(ctx, u.UserID, domain.NotifyCycleStarted, "Cycle started",
			fmt.Sprintf("Cycle 1 of %s has started.", u.Code()),
			map[string]any{"unit_id": u.ID, "cycle": 1, "maturity_date": u.MaturityDate})
	}
	return len(started), nil
}

// StartFilledClusters runs StartCluster over every filled cluster.
func (s *ClusterService) StartFilledClusters(ctx context.Context) (int, error) {
	list, err := s.clusters.ListFilled(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, c := range list {
		n, err := s.StartCluster(ctx, c.ID, nil)
		if err != nil {
			s.d.Log.Error("cluster start failed", zap.Uint("cluster_id", c.ID), zap.Error(err))
			continue
		}
		total += n
	}
	return total, nil
}

// Maintain recomputes the cluster's next cycle date from its earliest
// maturing active member and completes the cluster once every member is done.
func (s *ClusterService) Maintain(ctx context.Context, clusterID uint) error {
	return s.d.Runner.Run(ctx, func(tx *gorm.DB) error {
		return s.maintain(ctx, tx, clusterID)
	})
}

func (s *ClusterService) maintain(ctx context.Context, tx *gorm.DB, clusterID uint) error {
	clusters := s.clusters.WithTx(tx)
	c, err := clusters.GetByIDForUpdate(ctx, clusterID)
	if err != nil {
		return err
	}
	members, err := s.units.WithTx(tx).ListByCluster(ctx, clusterID)
	if err != nil {
		return err
	}

	var earliest *models.Unit
	completed, open := 0, 0
	for i := range members {
		u := &members[i]
		switch u.Status {
		case domain.UnitCompleted:
			completed++
		case domain.UnitPendingApproval:
			open++
		case domain.UnitActive:
			open++
			if u.CurrentCycle > 0 && u.MaturityDate != nil &&
				(earliest == nil || u.MaturityDate.Before(*earliest.MaturityDate)) {
				earliest = u
			}
		}
	}

	if earliest != nil {
		c.NextCycleDate = earliest.MaturityDate
		c.CurrentCycle = earliest.CurrentCycle
		c.TotalCycles = earliest.TotalCycles
	} else {
		c.NextCycleDate = nil
	}

	if open == 0 && completed > 0 && c.Status == domain.ClusterActive {
		next, err := domain.NextClusterStatus(c.Status, domain.ClusterEventDrained)
		if err != nil {
			return err
		}
		now := s.d.Now()
		c.Status = next
		c.CompletionDate = &now
		s.d.Log.Info("cluster completed", zap.Uint("cluster_id", c.ID), zap.Int("cluster_number", c.ClusterNumber))
	}
	return clusters.Save(ctx, c)
}

func (s *ClusterService) Get(ctx context.Context, id uint) (*models.Cluster, error) {
	return s.clusters.GetDetail(ctx, id)
}

func (s *ClusterService) List(ctx context.Context, commodityID uint, limit, offset int) ([]models.Cluster, error) {
	return s.clusters.List(ctx, commodityID, limit, offset)
}

// StatusCounts reports how many clusters are in each status.
func (s *ClusterService) StatusCounts(ctx context.Context) (map[domain.ClusterStatus]int, error) {
	return s.clusters.CountByStatus(ctx)
}
