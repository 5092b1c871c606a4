package db

import "gorm.io/gorm"

// 经验值流水的记账原因
const (
	XPReasonDailyComplete = "daily_complete"
	XPReasonDailyReversal = "daily_complete_reversal"
	XPReasonLegacyImport  = "legacy_import"
)

// XPTransaction 是只追加的经验值流水。
// 记录一旦写入不再修改或删除，冲正通过新的负向流水完成；
// TxID 唯一索引兼作远端镜像的幂等键。
type XPTransaction struct {
	gorm.Model
	TxID    string `gorm:"size:36;uniqueIndex;not null"`
	UserID  string `gorm:"size:64;index:idx_xp_user_date"`
	DateKey string `gorm:"size:10;index:idx_xp_user_date"`
	Delta   int
	Reason  string `gorm:"size:40;index"`
}

// TableName 自定义表名以保持命名一致。
func (XPTransaction) TableName() string {
	return "xp_transactions"
}

// UserProgressState 缓存经验值总和与等级。
// TotalXP 恒等于流水求和，加载与巡检时比对，偏差自动按流水修复。
type UserProgressState struct {
	gorm.Model
	UserID  string `gorm:"size:64;uniqueIndex;not null"`
	TotalXP int
	Level   int
}

// TableName 自定义表名以保持命名一致。
func (UserProgressState) TableName() string {
	return "user_progress_states"
}
