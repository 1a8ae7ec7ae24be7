package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Commodity is the underlying asset a unit is backed by.
type Commodity struct {
	ID             uint                `gorm:"primaryKey" json:"id"`
	Code           string              `gorm:"uniqueIndex;size:32;not null" json:"code"`
	Name           string              `gorm:"size:100;not null" json:"name"`
	ProfitPerCycle decimal.NullDecimal `gorm:"type:decimal(20,2)" json:"profit_per_cycle"` // overrides the configured profit when set
	Active         bool                `gorm:"not null;default:true" json:"active"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func (Commodity) TableName() string {
	return "commodities"
}
