package db

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// 进度记录来源
const (
	ProgressOriginManual    = "manual"
	ProgressOriginMigration = "migration"
	ProgressOriginSync      = "sync"
)

// ProgressEntry 记录单个习惯单日的累计进度。
// HabitID + DateKey 采用唯一索引保证幂等；Count 为当日累计值，
// 完成与否永远由 CompletionEvaluator 从 (定义, 条目) 推导，不在此落库。
// IncrementsJSON 保存每次递增的时间戳序列，供审计与回看。
type ProgressEntry struct {
	gorm.Model
	HabitID          uint            `gorm:"index;index:idx_progress_unique,unique"`
	Habit            HabitDefinition `gorm:"constraint:OnDelete:CASCADE"`
	DateKey          string          `gorm:"size:10;index:idx_progress_unique,unique;not null"`
	Count            int
	IncrementsJSON   string `gorm:"type:text"`
	DifficultyRating *int
	Note             string
	Origin           string `gorm:"size:20"`
}

// TableName 自定义表名以保持命名一致。
func (ProgressEntry) TableName() string {
	return "progress_entries"
}

// Increments 反序列化递增时间戳，损坏的历史数据按空序列处理。
func (e *ProgressEntry) Increments() []time.Time {
	if e.IncrementsJSON == "" {
		return nil
	}
	var ts []time.Time
	if err := json.Unmarshal([]byte(e.IncrementsJSON), &ts); err != nil {
		return nil
	}
	return ts
}

// SetIncrements 序列化并覆盖递增时间戳。
func (e *ProgressEntry) SetIncrements(ts []time.Time) {
	if len(ts) == 0 {
		e.IncrementsJSON = ""
		return
	}
	data, err := json.Marshal(ts)
	if err != nil {
		return
	}
	e.IncrementsJSON = string(data)
}

// AppendIncrement 追加一次递增时间戳。
func (e *ProgressEntry) AppendIncrement(t time.Time) {
	e.SetIncrements(append(e.Increments(), t))
}
