package db

import "gorm.io/gorm"

// SystemSetting 存储系统级键值对，用于承载路由开关与迁移标记。
type SystemSetting struct {
	gorm.Model
	Key   string `gorm:"size:100;uniqueIndex;not null"`
	Value string `gorm:"type:text"`
}

// TableName 自定义表名以保持命名一致。
func (SystemSetting) TableName() string {
	return "system_settings"
}

const (
	// SettingKeyRoutingMode 表示双写路由模式（legacy/new/dual）。
	SettingKeyRoutingMode = "sync_routing_mode"
	// SettingKeyMigrationState 表示迁移状态机的当前状态。
	SettingKeyMigrationState = "migration_state"
	// SettingKeyMigrationSummary 缓存最近一次迁移的结果摘要 JSON。
	SettingKeyMigrationSummary = "migration_summary"
)
