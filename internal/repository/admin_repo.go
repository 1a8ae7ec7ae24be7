package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tpia/internal/domain"
	"tpia/internal/models"
)

type DashboardStats struct {
	TotalUsers         int64           `json:"total_users"`
	KYCVerifiedUsers   int64           `json:"kyc_verified_users"`
	PendingUnits       int64           `json:"pending_units"`
	ActiveUnits        int64           `json:"active_units"`
	CompletedUnits     int64           `json:"completed_units"`
	RejectedUnits      int64           `json:"rejected_units"`
	CapitalDeployed    decimal.Decimal `json:"capital_deployed"`
	ProfitDistributed  decimal.Decimal `json:"profit_distributed"`
	PenaltiesCollected decimal.Decimal `json:"penalties_collected"`
	DepositsConfirmed  decimal.Decimal `json:"deposits_confirmed"`
	PendingWithdrawals int64           `json:"pending_withdrawals"`
	PendingPayouts     decimal.Decimal `json:"pending_payouts"`
}

type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type AmountPoint struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// AdminRepository serves the read-only back-office views.
type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) sum(q *gorm.DB, column string) (decimal.Decimal, error) {
	var out struct{ Total decimal.Decimal }
	err := q.Select("COALESCE(SUM(" + column + "), 0) as total").Scan(&out).Error
	return out.Total, err
}

func (r *AdminRepository) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	db := r.db.WithContext(ctx)
	var s DashboardStats
	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&s.TotalUsers, db.Model(&models.User{})},
		{&s.KYCVerifiedUsers, db.Model(&models.User{}).Where("kyc = ?", true)},
		{&s.PendingUnits, db.Model(&models.Unit{}).Where("status = ?", domain.UnitPendingApproval)},
		{&s.ActiveUnits, db.Model(&models.Unit{}).Where("status = ?", domain.UnitActive)},
		{&s.CompletedUnits, db.Model(&models.Unit{}).Where("status = ?", domain.UnitCompleted)},
		{&s.RejectedUnits, db.Model(&models.Unit{}).Where("status = ?", domain.UnitRejected)},
		{&s.PendingWithdrawals, db.Model(&models.Withdrawal{}).Where("status = ?", domain.WithdrawalPending)},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return nil, err
		}
	}

	var err error
	if s.CapitalDeployed, err = r.sum(db.Model(&models.Unit{}).Where("status = ?", domain.UnitActive), "amount"); err != nil {
		return nil, err
	}
	if s.ProfitDistributed, err = r.sum(db.Model(&models.ProfitRecord{}), "amount"); err != nil {
		return nil, err
	}
	if s.PenaltiesCollected, err = r.sum(db.Model(&models.Unit{}).Where("exit_penalty_applied = ?", true), "penalty_amount"); err != nil {
		return nil, err
	}
	if s.DepositsConfirmed, err = r.sum(db.Model(&models.Payment{}).Where("status = ?", domain.PaymentCompleted), "amount"); err != nil {
		return nil, err
	}
	if s.PendingPayouts, err = r.sum(db.Model(&models.Withdrawal{}).Where("status = ?", domain.WithdrawalPending), "amount"); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListUsers returns users with search, KYC filter and pagination.
func (r *AdminRepository) ListUsers(ctx context.Context, search string, kyc *bool, limit, offset int) ([]models.User, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.User{})
	if search != "" {
		q = q.Where("username LIKE ? OR email LIKE ?", "%"+search+"%", "%"+search+"%")
	}
	if kyc != nil {
		q = q.Where("kyc = ?", *kyc)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []models.User
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&users).Error
	return users, total, err
}

// ListTransactions returns ledger entries across all wallets, optionally by type.
func (r *AdminRepository) ListTransactions(ctx context.Context, txType string, limit, offset int) ([]models.WalletTransaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.WalletTransaction{})
	if txType != "" {
		q = q.Where("type = ?", txType)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.WalletTransaction
	err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}

func (r *AdminRepository) ListPayments(ctx context.Context, status string, limit, offset int) ([]models.Payment, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Payment{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Payment
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}

// PurchasesByDay returns daily unit purchase counts since the given time.
func (r *AdminRepository) PurchasesByDay(ctx context.Context, since time.Time) ([]TimeSeriesPoint, error) {
	var points []TimeSeriesPoint
	err := r.db.WithContext(ctx).Model(&models.Unit{}).
		Select("DATE(created_at) as date, COUNT(*) as count").
		Where("created_at >= ?", since).
		Group("DATE(created_at)").
		Order("date ASC").
		Scan(&points).Error
	return points, err
}

// ProfitByDay returns daily distributed profit since the given time.
func (r *AdminRepository) ProfitByDay(ctx context.Context, since time.Time) ([]AmountPoint, error) {
	var points []AmountPoint
	err := r.db.WithContext(ctx).Model(&models.ProfitRecord{}).
		Select("DATE(created_at) as date, COALESCE(SUM(amount), 0) as amount").
		Where("created_at >= ?", since).
		Group("DATE(created_at)").
		Order("date ASC").
		Scan(&points).Error
	return points, err
}
