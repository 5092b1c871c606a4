package db

import "gorm.io/gorm"

// GlobalStreakState 保存单用户的跨习惯连胜状态。
// 只允许全量重算后整体覆盖，禁止任何就地 ±1 维护，
// 这样回头修改历史日期也不会造成状态漂移。
type GlobalStreakState struct {
	gorm.Model
	UserID            string `gorm:"size:64;uniqueIndex;not null"`
	CurrentStreak     int
	LongestStreak     int
	TotalCompleteDays int
	LastEvaluatedDate string `gorm:"size:10"`
}

// TableName 自定义表名以保持命名一致。
func (GlobalStreakState) TableName() string {
	return "global_streak_states"
}
