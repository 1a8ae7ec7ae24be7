package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tpia/internal/domain"
)

// Unit is one purchased TPIA block. The primary key doubles as the sequential unit number.
type Unit struct {
	ID             uint                  `gorm:"primaryKey" json:"id"`
	UserID         uint                  `gorm:"not null;index" json:"user_id"`
	CommodityID    uint                  `gorm:"not null;index" json:"commodity_id"`
	ClusterID      uint                  `gorm:"not null;index" json:"cluster_id"`
	ClusterNumber  int                   `gorm:"not null" json:"cluster_number"`
	Amount         decimal.Decimal       `gorm:"type:decimal(20,2);not null" json:"amount"`
	ProfitAmount   decimal.Decimal       `gorm:"type:decimal(20,2);not null" json:"profit_amount"`
	CurrentValue   decimal.Decimal       `gorm:"type:decimal(20,2);not null" json:"current_value"`
	Status         domain.UnitStatus     `gorm:"size:24;not null;index" json:"status"`
	CycleStartMode domain.CycleStartMode `gorm:"size:16;not null" json:"cycle_start_mode"`
	ProfitMode     domain.ProfitMode     `gorm:"size:16;not null" json:"profit_mode"`
	CurrentCycle   int                   `gorm:"not null;default:0" json:"current_cycle"`
	CoreCycles     int                   `gorm:"not null" json:"core_cycles"`
	TotalCycles    int                   `gorm:"not null" json:"total_cycles"`
	Phase          domain.Phase          `gorm:"column:investment_phase;size:16;not null" json:"investment_phase"`
	MaturityDate   *time.Time            `gorm:"index" json:"maturity_date"`

	NextExitWindowStart   *time.Time `json:"next_exit_window_start"`
	NextExitWindowEnd     *time.Time `json:"next_exit_window_end"`
	WithdrawalRequested   bool       `gorm:"not null;default:false" json:"withdrawal_requested"`
	WithdrawalRequestedAt *time.Time `json:"withdrawal_requested_at"`

	ExitPenaltyApplied bool            `gorm:"not null;default:false" json:"exit_penalty_applied"`
	PenaltyRate        decimal.Decimal `gorm:"type:decimal(6,4);not null;default:0" json:"penalty_rate"`
	PenaltyAmount      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"penalty_amount"`
	ReturnedPrincipal  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"returned_principal"`

	RejectionReason string     `gorm:"size:255" json:"rejection_reason,omitempty"`
	ApprovedBy      *uint      `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at"`
	RejectedAt      *time.Time `json:"rejected_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	ProfitHistory []ProfitRecord `gorm:"foreignKey:UnitID" json:"profit_history,omitempty"`
}

func (Unit) TableName() string {
	return "units"
}

func (u *Unit) Code() string {
	return fmt.Sprintf("TPIA-%06d", u.ID)
}

// ProfitRecord is an append-only entry of the unit's profit history.
type ProfitRecord struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	UnitID      uint              `gorm:"not null;index" json:"unit_id"`
	CycleID     uint              `gorm:"not null;uniqueIndex" json:"cycle_id"`
	CycleNumber int               `gorm:"not null" json:"cycle_number"`
	Amount      decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"amount"`
	Mode        domain.ProfitMode `gorm:"size:16;not null" json:"mode"`
	CreatedAt   time.Time         `json:"date"`
}

func (ProfitRecord) TableName() string {
	return "unit_profit_records"
}
