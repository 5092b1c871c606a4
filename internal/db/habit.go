package db

import "gorm.io/gorm"

// 习惯类别。Formation 靠累积计数达标，Limiting 靠把计数压在目标之下。
const (
	CategoryFormation = "formation"
	CategoryLimiting  = "limiting"
)

// 习惯状态。归档保留历史数据，只有显式清除才会级联删除进度。
const (
	HabitStatusActive   = "active"
	HabitStatusArchived = "archived"
)

// 调度类型。per_week/per_month 不钉死具体日期，不参与全局连胜的当日集合。
const (
	ScheduleDaily    = "daily"
	ScheduleWeekdays = "weekdays"
	ScheduleEveryN   = "every_n_days"
	SchedulePerWeek  = "per_week"
	SchedulePerMonth = "per_month"
)

// HabitDefinition 定义了习惯模型。
// 类别相关字段的合法组合由 service 层校验把关后才会落库：
// Limiting 必须满足 BaselineAmount > GoalAmount > 0，Formation 不携带 Baseline。
// LegacyRecordID 标记由迁移创建的记录，回滚时据此定位。
type HabitDefinition struct {
	gorm.Model
	Name             string `gorm:"size:100;not null"`
	Description      string
	Category         string `gorm:"size:20;index;not null"`
	ScheduleKind     string `gorm:"size:20;not null"`
	ScheduleWeekdays string `gorm:"size:30"`
	ScheduleInterval int
	ScheduleTarget   int
	GoalAmount       int
	GoalUnit         string `gorm:"size:30"`
	BaselineAmount   int
	Status           string `gorm:"size:20;index"`
	LegacyRecordID   *uint  `gorm:"index"`
}

// TableName 自定义表名以保持命名一致。
func (HabitDefinition) TableName() string {
	return "habit_definitions"
}
