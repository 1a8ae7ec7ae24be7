package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Payment records a verified gateway deposit. ProviderRef is credited at most once.
type Payment struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"not null;index" json:"user_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency        string          `gorm:"size:3;default:'NGN'" json:"currency"`
	Provider        string          `gorm:"size:50;not null" json:"provider"`
	ProviderRef     string          `gorm:"size:255;uniqueIndex;not null" json:"provider_ref"`
	Status          string          `gorm:"size:20;not null;index" json:"status"` // PENDING, COMPLETED, FAILED
	LedgerReference string          `gorm:"size:64" json:"ledger_reference"`
	Metadata        datatypes.JSON  `json:"metadata,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}
