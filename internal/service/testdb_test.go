package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/habitledger/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 为每个测试打开独立命名的内存库。
// 连胜与账本服务会做全表扫描，测试之间不能共享库。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(
		&db.HabitDefinition{},
		&db.ProgressEntry{},
		&db.LegacyHabitRecord{},
		&db.XPTransaction{},
		&db.UserProgressState{},
		&db.GlobalStreakState{},
		&db.OutboxEntry{},
		&db.SystemSetting{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, err := gdb.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return gdb
}

func mustCreateHabit(t *testing.T, gdb *gorm.DB, input HabitInput) *db.HabitDefinition {
	t.Helper()
	habit, err := NewHabitService(gdb).Create(input)
	if err != nil {
		t.Fatalf("failed to create habit %q: %v", input.Name, err)
	}
	return habit
}

// backdateHabit 把习惯起算日往回挪，让调度覆盖历史日期。
func backdateHabit(t *testing.T, gdb *gorm.DB, habit *db.HabitDefinition, days int) {
	t.Helper()
	created := time.Now().AddDate(0, 0, -days)
	if err := gdb.Model(habit).Update("created_at", created).Error; err != nil {
		t.Fatalf("failed to backdate habit: %v", err)
	}
	habit.CreatedAt = created
}
