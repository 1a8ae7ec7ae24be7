// Package testutil provides an in-memory database for package tests.
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tpia/internal/database"
	"tpia/internal/models"
)

// NewDB opens a migrated in-memory SQLite database on a single connection,
// so concurrent transactions serialize. Code running inside a transaction
// must only use the transaction handle.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedUser creates a user, optionally KYC verified.
func SeedUser(t testing.TB, db *gorm.DB, username string, kyc bool) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com", Role: "INVESTOR", KYC: kyc}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// SeedCommodity creates an active commodity.
func SeedCommodity(t testing.TB, db *gorm.DB, code string) *models.Commodity {
	t.Helper()
	c := &models.Commodity{Code: code, Name: code, Active: true}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed commodity: %v", err)
	}
	return c
}
