package models

import (
	"time"

	"tpia/internal/domain"
)

// Cluster pools a fixed number of units for one commodity.
type Cluster struct {
	ID             uint                 `gorm:"primaryKey" json:"id"`
	CommodityID    uint                 `gorm:"not null;uniqueIndex:idx_cluster_commodity_number" json:"commodity_id"`
	ClusterNumber  int                  `gorm:"not null;uniqueIndex:idx_cluster_commodity_number" json:"cluster_number"`
	Capacity       int                  `gorm:"not null" json:"capacity"`
	CurrentFill    int                  `gorm:"not null;default:0" json:"current_fill"`
	Status         domain.ClusterStatus `gorm:"size:16;not null;index" json:"status"`
	CurrentCycle   int                  `gorm:"not null;default:0" json:"current_cycle"`
	TotalCycles    int                  `gorm:"not null;default:0" json:"total_cycles"`
	NextCycleDate  *time.Time           `json:"next_cycle_date"`
	ActivationDate *time.Time           `json:"activation_date"`
	CompletionDate *time.Time           `json:"completion_date"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`

	Members []ClusterMember `gorm:"foreignKey:ClusterID" json:"members,omitempty"`
	Cycles  []Cycle         `gorm:"foreignKey:ClusterID" json:"cycles,omitempty"`
}

func (Cluster) TableName() string {
	return "clusters"
}

// ClusterMember is one ordered slot of a cluster, taken when a unit is approved.
type ClusterMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ClusterID uint      `gorm:"not null;uniqueIndex:idx_cluster_member_position" json:"cluster_id"`
	Position  int       `gorm:"not null;uniqueIndex:idx_cluster_member_position" json:"position"`
	UnitID    uint      `gorm:"not null;uniqueIndex" json:"unit_id"`
	JoinedAt  time.Time `json:"joined_at"`
}

func (ClusterMember) TableName() string {
	return "cluster_members"
}
