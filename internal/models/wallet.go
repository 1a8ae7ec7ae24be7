package models

import (
	"time"

	"github.com/shopspring/decimal"

	"tpia/internal/domain"
)

type Wallet struct {
	ID                       uint            `gorm:"primaryKey" json:"id"`
	UserID                   uint            `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance                  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`
	EarningsBalance          decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"earnings_balance"`
	LockedBalance            decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"locked_balance"`
	PendingWithdrawalBalance decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"pending_withdrawal_balance"`
	Version                  uint64          `gorm:"not null;default:0" json:"-"` // bumped on every balance write
	Currency                 string          `gorm:"size:3;default:'NGN'" json:"currency"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}

func (w *Wallet) Balances() domain.Balances {
	return domain.Balances{
		Balance:           w.Balance,
		Earnings:          w.EarningsBalance,
		Locked:            w.LockedBalance,
		PendingWithdrawal: w.PendingWithdrawalBalance,
	}
}

func (w *Wallet) SetBalances(b domain.Balances) {
	w.Balance = b.Balance
	w.EarningsBalance = b.Earnings
	w.LockedBalance = b.Locked
	w.PendingWithdrawalBalance = b.PendingWithdrawal
}
