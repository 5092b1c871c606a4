package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func closeStore(t *testing.T) {
	t.Helper()
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err == nil {
		sqlDB.Close()
	}
	DB = nil
}

func TestInitCreatesStoreAndParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "habitledger.db")

	if err := Init(path); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	defer closeStore(t)

	if DB == nil {
		t.Fatal("expected global DB to be set")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected store file to exist: %v", err)
	}
	// 打开成功后写出第一代备份
	if _, err := os.Stat(path + ".bak1"); err != nil {
		t.Fatalf("expected first backup generation: %v", err)
	}

	if err := DB.Create(&HabitDefinition{
		Name: "晨跑", Category: CategoryFormation,
		ScheduleKind: ScheduleDaily, GoalAmount: 5, Status: HabitStatusActive,
	}).Error; err != nil {
		t.Fatalf("failed to insert habit: %v", err)
	}
}

func TestInitRestoresFromBackupAfterCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "habitledger.db")

	if err := Init(path); err != nil {
		t.Fatalf("first Init returned error: %v", err)
	}
	if err := DB.Create(&HabitDefinition{
		Name: "冥想", Category: CategoryFormation,
		ScheduleKind: ScheduleDaily, GoalAmount: 1, Status: HabitStatusActive,
	}).Error; err != nil {
		t.Fatalf("failed to insert habit: %v", err)
	}
	closeStore(t)

	// 第二次加载把包含数据的主库轮转进备份
	if err := Init(path); err != nil {
		t.Fatalf("second Init returned error: %v", err)
	}
	closeStore(t)

	// 破坏主库文件
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 512)), 0o644); err != nil {
		t.Fatalf("failed to corrupt store: %v", err)
	}

	if err := Init(path); err != nil {
		t.Fatalf("Init after corruption returned error: %v", err)
	}
	defer closeStore(t)

	var count int64
	if err := DB.Model(&HabitDefinition{}).Where("name = ?", "冥想").Count(&count).Error; err != nil {
		t.Fatalf("failed to count habits: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected habit restored from backup, got %d", count)
	}
}

func TestInitFailsWithoutUsableBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "habitledger.db")

	if err := os.WriteFile(path, []byte(strings.Repeat("x", 512)), 0o644); err != nil {
		t.Fatalf("failed to write corrupt store: %v", err)
	}

	if err := Init(path); err == nil {
		closeStore(t)
		t.Fatal("expected Init to fail for corrupt store without backups")
	}
}
