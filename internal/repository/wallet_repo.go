package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tpia/internal/domain"
	"tpia/internal/models"
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// WithTx binds the repository to tx.
func (r *WalletRepository) WithTx(tx *gorm.DB) *WalletRepository {
	return &WalletRepository{db: tx}
}

func (r *WalletRepository) Create(ctx context.Context, w *models.Wallet) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error) {
	return r.get(r.db.WithContext(ctx), userID)
}

// GetByUserIDForUpdate row-locks the wallet where the dialect supports it.
func (r *WalletRepository) GetByUserIDForUpdate(ctx context.Context, userID uint) (*models.Wallet, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), userID)
}

func (r *WalletRepository) get(q *gorm.DB, userID uint) (*models.Wallet, error) {
	var w models.Wallet
	err := q.Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// UpdateBalances writes w's balances if the stored version still equals
// w.Version, then bumps the version. A lost race returns ErrConcurrentUpdate.
func (r *WalletRepository) UpdateBalances(ctx context.Context, w *models.Wallet) error {
	res := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ? AND version = ?", w.ID, w.Version).
		Updates(map[string]any{
			"balance":                    w.Balance,
			"earnings_balance":           w.EarningsBalance,
			"locked_balance":             w.LockedBalance,
			"pending_withdrawal_balance": w.PendingWithdrawalBalance,
			"version":                    gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}
	w.Version++
	return nil
}

func (r *WalletRepository) CreateEntry(ctx context.Context, e *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *WalletRepository) ListEntries(ctx context.Context, userID uint, limit, offset int) ([]models.WalletTransaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("user_id = ?", userID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.WalletTransaction
	err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}

func (r *WalletRepository) ListEntriesByUnit(ctx context.Context, unitID uint) ([]models.WalletTransaction, error) {
	var list []models.WalletTransaction
	err := r.db.WithContext(ctx).Where("unit_id = ?", unitID).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *WalletRepository) GetEntryByReference(ctx context.Context, ref string) (*models.WalletTransaction, error) {
	var e models.WalletTransaction
	if err := r.db.WithContext(ctx).Where("reference = ?", ref).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}
