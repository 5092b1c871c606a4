package db

import (
	"encoding/json"

	"gorm.io/gorm"
)

// LegacyHabitRecord 保存旧版扁平习惯记录，仅作迁移输入，迁移过程从不修改。
// Kind 为旧版自由文本类别（build/quit 等）；ScheduleText/GoalText 为自由文本，
// 统一交给 legacy_parser 解析。ProgressJSON 与 UsageJSON 是两张独立的
// 日期→整数映射（达成计数 / Limiting 习惯的使用计数），CompletionJSON 是旧版
// 手工维护的日期→布尔完成表，可能与计数互相矛盾，迁移时只用于校验告警。
type LegacyHabitRecord struct {
	gorm.Model
	Name           string `gorm:"size:100"`
	Kind           string `gorm:"size:30"`
	ScheduleText   string
	GoalText       string
	BaselineAmount int
	ProgressJSON   string `gorm:"type:text"`
	UsageJSON      string `gorm:"type:text"`
	CompletionJSON string `gorm:"type:text"`
	XPTotal        int
}

// TableName 自定义表名以保持命名一致。
func (LegacyHabitRecord) TableName() string {
	return "legacy_habit_records"
}

// ProgressMap 反序列化达成计数映射，损坏数据按空映射处理。
func (r *LegacyHabitRecord) ProgressMap() map[string]int {
	return decodeCountMap(r.ProgressJSON)
}

// UsageMap 反序列化使用计数映射。
func (r *LegacyHabitRecord) UsageMap() map[string]int {
	return decodeCountMap(r.UsageJSON)
}

// CompletionMap 反序列化旧版完成表。
func (r *LegacyHabitRecord) CompletionMap() map[string]bool {
	if r.CompletionJSON == "" {
		return nil
	}
	var m map[string]bool
	if err := json.Unmarshal([]byte(r.CompletionJSON), &m); err != nil {
		return nil
	}
	return m
}

func decodeCountMap(raw string) map[string]int {
	if raw == "" {
		return nil
	}
	var m map[string]int
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}
