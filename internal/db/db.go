package db

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 是一个全局的数据库连接实例
var DB *gorm.DB

// Init 初始化本地存储并执行自动迁移。
// databasePath 为空时回退到默认值 habitledger.db。
// 打开前会对主库做完整性探测，失败时自动从最近一代备份恢复；
// 打开成功后轮转保留两代备份，保证损坏的主库可以在下次加载时自愈。
func Init(databasePath string) error {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		path = "habitledger.db"
	}

	if err := ensureParentDir(path); err != nil {
		return err
	}

	if _, statErr := os.Stat(path); statErr == nil {
		if err := probe(path); err != nil {
			log.Printf("warning: primary store failed integrity probe: %v", err)
			if restoreErr := restoreLatestBackup(path); restoreErr != nil {
				return fmt.Errorf("primary store corrupted and no usable backup: %w", err)
			}
			log.Printf("restored store from last known-good backup")
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return err
	}

	// 自动迁移模式，为核心模型创建表
	if err = DB.AutoMigrate(
		&HabitDefinition{},
		&ProgressEntry{},
		&XPTransaction{},
		&UserProgressState{},
		&GlobalStreakState{},
		&OutboxEntry{},
		&LegacyHabitRecord{},
		&SystemSetting{},
	); err != nil {
		return err
	}

	rotateBackups(path)

	return nil
}

// probe 打开数据库并执行 quick_check，用于判断主库或备份是否可用。
func probe(path string) error {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, dbErr := gdb.DB(); dbErr == nil {
			sqlDB.Close()
		}
	}()

	var result string
	if err := gdb.Raw("PRAGMA quick_check").Scan(&result).Error; err != nil {
		return err
	}
	if !strings.EqualFold(strings.TrimSpace(result), "ok") {
		return fmt.Errorf("quick_check reported: %s", result)
	}
	return nil
}

func backupPaths(path string) (string, string) {
	return path + ".bak1", path + ".bak2"
}

// rotateBackups 把当前主库复制为第一代备份，旧的第一代顺延为第二代。
// 备份失败不阻塞启动，仅记录日志。
func rotateBackups(path string) {
	bak1, bak2 := backupPaths(path)

	if _, err := os.Stat(bak1); err == nil {
		if err := copyFileAtomic(bak1, bak2); err != nil {
			log.Printf("warning: rotate backup generation: %v", err)
		}
	}
	if err := copyFileAtomic(path, bak1); err != nil {
		log.Printf("warning: write backup: %v", err)
	}
}

// restoreLatestBackup 依次尝试第一、第二代备份，要求备份本身通过探测。
func restoreLatestBackup(path string) error {
	bak1, bak2 := backupPaths(path)

	for _, candidate := range []string{bak1, bak2} {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if err := probe(candidate); err != nil {
			log.Printf("warning: backup %s failed probe: %v", candidate, err)
			continue
		}
		if err := copyFileAtomic(candidate, path); err != nil {
			return err
		}
		return nil
	}

	return errors.New("no usable backup generation")
}

// copyFileAtomic 采用写临时文件、落盘、原子重命名的方式替换目标文件。
func copyFileAtomic(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	tmp := dst + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, dst)
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
