package service

import (
	"context"
	"time"

	"tpia/internal/domain"
	"tpia/internal/econ"
	"tpia/internal/models"
	"tpia/internal/repository"
)

// openCycle starts cycle number for u at start and moves the unit's
// maturity date to the end of that cycle. The caller saves u.
func openCycle(ctx context.Context, cycles *repository.CycleRepository, u *models.Unit, number int, start time.Time, snap econ.Snapshot) (*models.Cycle, error) {
	end := start.Add(snap.CycleDuration())
	c := &models.Cycle{
		ClusterID:   u.ClusterID,
		UnitID:      u.ID,
		CycleNumber: number,
		StartAt:     start,
		EndAt:       end,
		Status:      domain.CycleRunning,
		CreatedAt:   start,
	}
	if err := cycles.Create(ctx, c); err != nil {
		return nil, err
	}
	u.CurrentCycle = number
	u.MaturityDate = &end
	return c, nil
}
