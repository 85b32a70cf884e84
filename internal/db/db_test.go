package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Leganyst/dispatch-core/internal/config"
	"github.com/Leganyst/dispatch-core/internal/model"
)

func TestNewGormDB_SQLiteFile(t *testing.T) {
	cfg := &config.DBConfig{
		Driver:       config.DriverSQLite,
		SQLitePath:   filepath.Join(t.TempDir(), "dispatch.db"),
		MaxOpenConns: 1,
	}

	gdb, err := NewGormDB(cfg, nil)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	require.NoError(t, model.AutoMigrate(gdb))
	require.True(t, gdb.Migrator().HasTable(&model.DelegateSheetOrder{}))
	require.True(t, gdb.Migrator().HasIndex(&model.DelegateSheetOrder{}, "idx_sheet_order"))
	require.True(t, gdb.Migrator().HasIndex(&model.DelegateSheetOrder{}, "idx_sheet_orders_order"))
}
