package models

import (
	"time"

	"tpia/internal/domain"
)

// User is owned by the identity service; the engine only reads role and KYC state.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Role      string    `gorm:"size:20;not null;index" json:"role"` // INVESTOR | ADMIN
	KYC       bool      `gorm:"default:false" json:"kyc"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) IsAdmin() bool { return u.Role == domain.RoleAdmin }

func (User) TableName() string {
	return "users"
}
