package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tpia/internal/domain"
	"tpia/internal/models"
)

type CycleRepository struct {
	db *gorm.DB
}

func NewCycleRepository(db *gorm.DB) *CycleRepository {
	return &CycleRepository{db: db}
}

func (r *CycleRepository) WithTx(tx *gorm.DB) *CycleRepository {
	return &CycleRepository{db: tx}
}

func (r *CycleRepository) Create(ctx context.Context, c *models.Cycle) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// GetRunning returns the open record for (unit, number). Absence, including
// an already closed record, is ErrMissingCycleRecord.
func (r *CycleRepository) GetRunning(ctx context.Context, unitID uint, number int) (*models.Cycle, error) {
	var c models.Cycle
	err := r.db.WithContext(ctx).
		Where("unit_id = ? AND cycle_number = ? AND status = ?", unitID, number, domain.CycleRunning).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMissingCycleRecord
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Close marks a running record completed. Zero rows means someone closed it first.
func (r *CycleRepository) Close(ctx context.Context, c *models.Cycle) error {
	res := r.db.WithContext(ctx).Model(&models.Cycle{}).
		Where("id = ? AND status = ?", c.ID, domain.CycleRunning).
		Updates(map[string]any{
			"status":                   domain.CycleCompleted,
			"profit_rate":              c.ProfitRate,
			"total_profit_distributed": c.TotalProfitDistributed,
			"completed_at":             c.CompletedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrStaleCycle
	}
	c.Status = domain.CycleCompleted
	return nil
}

func (r *CycleRepository) ListByUnit(ctx context.Context, unitID uint) ([]models.Cycle, error) {
	var list []models.Cycle
	err := r.db.WithContext(ctx).Where("unit_id = ?", unitID).Order("cycle_number ASC").Find(&list).Error
	return list, err
}
