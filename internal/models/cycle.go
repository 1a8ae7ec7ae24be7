package models

import (
	"time"

	"github.com/shopspring/decimal"

	"tpia/internal/domain"
)

// Cycle is one earning period of a unit. Closed records are never touched again.
type Cycle struct {
	ID                     uint               `gorm:"primaryKey" json:"id"`
	ClusterID              uint               `gorm:"not null;index" json:"cluster_id"`
	UnitID                 uint               `gorm:"not null;uniqueIndex:idx_unit_cycle_number" json:"unit_id"`
	CycleNumber            int                `gorm:"not null;uniqueIndex:idx_unit_cycle_number" json:"cycle_number"`
	StartAt                time.Time          `gorm:"not null" json:"start_at"`
	EndAt                  time.Time          `gorm:"not null;index" json:"end_at"`
	Status                 domain.CycleStatus `gorm:"size:16;not null;index" json:"status"`
	ProfitRate             decimal.Decimal    `gorm:"type:decimal(10,6);not null;default:0" json:"profit_rate"`
	TotalProfitDistributed decimal.Decimal    `gorm:"type:decimal(20,2);not null;default:0" json:"total_profit_distributed"`
	CompletedAt            *time.Time         `json:"completed_at"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

func (Cycle) TableName() string {
	return "cycles"
}
