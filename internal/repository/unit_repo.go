package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tpia/internal/domain"
	"tpia/internal/models"
)

type UnitRepository struct {
	db *gorm.DB
}

func NewUnitRepository(db *gorm.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

func (r *UnitRepository) WithTx(tx *gorm.DB) *UnitRepository {
	return &UnitRepository{db: tx}
}

func (r *UnitRepository) Create(ctx context.Context, u *models.Unit) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(u).Error
}

func (r *UnitRepository) Save(ctx context.Context, u *models.Unit) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(u).Error
}

func (r *UnitRepository) GetByID(ctx context.Context, id uint) (*models.Unit, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *UnitRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Unit, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// GetWithHistory loads the unit with its profit history, oldest first.
func (r *UnitRepository) GetWithHistory(ctx context.Context, id uint) (*models.Unit, error) {
	return r.get(r.db.WithContext(ctx).Preload("ProfitHistory", func(db *gorm.DB) *gorm.DB {
		return db.Order("cycle_number ASC")
	}), id)
}

func (r *UnitRepository) get(q *gorm.DB, id uint) (*models.Unit, error) {
	var u models.Unit
	err := q.First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUnitNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UnitRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Unit, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Unit{}).Where("user_id = ?", userID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Unit
	err := q.Preload("ProfitHistory", func(db *gorm.DB) *gorm.DB {
		return db.Order("cycle_number ASC")
	}).Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}

func (r *UnitRepository) ListByStatus(ctx context.Context, status domain.UnitStatus, limit, offset int) ([]models.Unit, error) {
	var list []models.Unit
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("id ASC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

// ListPendingCreatedBefore returns units still awaiting approval that were
// submitted before cutoff.
func (r *UnitRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Unit, error) {
	var list []models.Unit
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", domain.UnitPendingApproval, cutoff).
		Order("id ASC").Limit(limit).Find(&list).Error
	return list, err
}

// ListDueInCluster returns active, cycling members whose running cycle ended at or before now.
func (r *UnitRepository) ListDueInCluster(ctx context.Context, clusterID uint, now time.Time) ([]models.Unit, error) {
	var list []models.Unit
	err := r.db.WithContext(ctx).
		Where("cluster_id = ? AND status = ? AND current_cycle > 0 AND maturity_date <= ?", clusterID, domain.UnitActive, now).
		Order("maturity_date ASC, id ASC").Find(&list).Error
	return list, err
}

// ListAwaitingClusterStart returns approved cluster-mode members that have not started cycling.
func (r *UnitRepository) ListAwaitingClusterStart(ctx context.Context, clusterID uint) ([]models.Unit, error) {
	var list []models.Unit
	err := r.db.WithContext(ctx).
		Where("cluster_id = ? AND status = ? AND cycle_start_mode = ? AND current_cycle = 0",
			clusterID, domain.UnitActive, domain.StartWithCluster).
		Order("id ASC").Find(&list).Error
	return list, err
}

func (r *UnitRepository) ListByCluster(ctx context.Context, clusterID uint) ([]models.Unit, error) {
	var list []models.Unit
	err := r.db.WithContext(ctx).Where("cluster_id = ?", clusterID).Order("id ASC").Find(&list).Error
	return list, err
}

// CountOccupying counts units holding a seat in the cluster: everything except rejected.
func (r *UnitRepository) CountOccupying(ctx context.Context, clusterID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Unit{}).
		Where("cluster_id = ? AND status <> ?", clusterID, domain.UnitRejected).
		Count(&n).Error
	return n, err
}

func (r *UnitRepository) AddProfitRecord(ctx context.Context, rec *models.ProfitRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}
