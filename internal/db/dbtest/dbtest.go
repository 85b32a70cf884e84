// Package dbtest opens throwaway in-memory SQLite databases with the full
// dispatch schema migrated.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Leganyst/dispatch-core/internal/db"
	"github.com/Leganyst/dispatch-core/internal/model"
)

// Open returns a migrated database private to t.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	// Named shared-cache memory DB so every pooled connection sees the same data.
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	cfg := db.GormConfig(nil)
	cfg.Logger = gormlogger.Discard

	gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := model.AutoMigrate(gdb); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return gdb
}
