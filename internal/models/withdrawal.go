package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Withdrawal is an admin-gated payout request backed by a pending-withdrawal reservation.
type Withdrawal struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UserID       uint            `gorm:"not null;index" json:"user_id"`
	OrderID      string          `gorm:"size:64;uniqueIndex;not null" json:"order_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Destination  string          `gorm:"size:128;not null" json:"destination"`
	Status       string          `gorm:"size:20;not null;index" json:"status"` // PENDING, APPROVED, REJECTED
	DecidedBy    *uint           `json:"decided_by,omitempty"`
	DecisionNote string          `gorm:"size:255" json:"decision_note,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
}

func (Withdrawal) TableName() string {
	return "withdrawals"
}
