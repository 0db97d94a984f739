// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"DealRoom/internal/database"
	"DealRoom/internal/models"
)

var dbSeq atomic.Int64

// NewDB returns a migrated in-memory SQLite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
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
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateProfile inserts a profile with the given role.
func CreateProfile(t *testing.T, db *gorm.DB, name, role string) models.Profile {
	t.Helper()
	p := models.Profile{
		FullName: name,
		Email:    strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		Password: "x",
		Role:     role,
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("create profile %s: %v", name, err)
	}
	return p
}

// CreateDeal inserts a deal owned by operatorID.
func CreateDeal(t *testing.T, db *gorm.DB, operatorID uint, status models.DealStatus) models.Deal {
	t.Helper()
	d := models.Deal{
		Title:            "Series A",
		Category:         "fintech",
		Status:           status,
		OperatorID:       operatorID,
		MinimumCheckSize: "$25K",
	}
	if err := db.Create(&d).Error; err != nil {
		t.Fatalf("create deal: %v", err)
	}
	return d
}

// FixedClock returns a now func pinned to t0.
func FixedClock(t0 time.Time) func() time.Time {
	return func() time.Time { return t0 }
}
