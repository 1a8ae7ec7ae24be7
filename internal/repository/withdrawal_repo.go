package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tpia/internal/domain"
	"tpia/internal/models"
)

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) WithTx(tx *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: tx}
}

func (r *WithdrawalRepository) Create(ctx context.Context, w *models.Withdrawal) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id uint) (*models.Withdrawal, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *WithdrawalRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Withdrawal, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *WithdrawalRepository) get(q *gorm.DB, id uint) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := q.First(&w, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Decide moves a pending withdrawal to a final status. Zero rows means it was
// already decided.
func (r *WithdrawalRepository) Decide(ctx context.Context, w *models.Withdrawal) error {
	res := r.db.WithContext(ctx).Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", w.ID, domain.WithdrawalPending).
		Updates(map[string]any{
			"status":        w.Status,
			"decided_by":    w.DecidedBy,
			"decision_note": w.DecisionNote,
			"completed_at":  w.CompletedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrInvalidStateTransition
	}
	return nil
}

func (r *WithdrawalRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Withdrawal, error) {
	var list []models.Withdrawal
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

func (r *WithdrawalRepository) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Withdrawal, error) {
	var list []models.Withdrawal
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("id ASC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}
