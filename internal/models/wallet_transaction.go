package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// WalletTransaction is one append-only ledger movement. Rows are never updated or deleted.
type WalletTransaction struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	WalletID         uint            `gorm:"not null;index" json:"wallet_id"`
	UserID           uint            `gorm:"not null;index" json:"user_id"`
	Type             string          `gorm:"size:30;not null;index" json:"type"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`            // positive = credit, negative = debit
	ResultingBalance decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"resulting_balance"` // available balance after the movement
	Reference        string          `gorm:"size:64;uniqueIndex;not null" json:"reference"`
	Status           string          `gorm:"size:20;not null;index" json:"status"`
	Description      string          `gorm:"size:255" json:"description"`
	UnitID           *uint           `gorm:"index" json:"unit_id,omitempty"`
	Metadata         datatypes.JSON  `json:"metadata,omitempty"`
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
