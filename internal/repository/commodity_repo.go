package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tpia/internal/domain"
	"tpia/internal/models"
)

type CommodityRepository struct {
	db *gorm.DB
}

func NewCommodityRepository(db *gorm.DB) *CommodityRepository {
	return &CommodityRepository{db: db}
}

func (r *CommodityRepository) WithTx(tx *gorm.DB) *CommodityRepository {
	return &CommodityRepository{db: tx}
}

func (r *CommodityRepository) Create(ctx context.Context, c *models.Commodity) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// GetActiveByCode returns the commodity only while it is open for purchase.
func (r *CommodityRepository) GetActiveByCode(ctx context.Context, code string) (*models.Commodity, error) {
	var c models.Commodity
	err := r.db.WithContext(ctx).Where("code = ? AND active = ?", code, true).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCommodityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CommodityRepository) List(ctx context.Context) ([]models.Commodity, error) {
	var list []models.Commodity
	err := r.db.WithContext(ctx).Order("code ASC").Find(&list).Error
	return list, err
}

func (r *CommodityRepository) SetActive(ctx context.Context, code string, active bool) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Commodity{}).Where("code = ?", code).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrCommodityNotFound
	}
	return r.db.WithContext(ctx).Model(&models.Commodity{}).Where("code = ?", code).Update("active", active).Error
}
