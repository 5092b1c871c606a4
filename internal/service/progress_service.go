package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habitledger/internal/db"
	"gorm.io/gorm"
)

// ProgressService 维护按 (habit, dateKey) 唯一的每日进度账本。
// 条目在当日首次交互时惰性创建，之后就地累计；
// 完成状态永远不在这里判定，统一走 Evaluate。

type ProgressService struct {
	db *gorm.DB
}

// ProgressInput 定义一次进度变更。
// Set 非空时直接覆盖计数，否则按 Delta 累计；计数下限钳制为 0。
type ProgressInput struct {
	HabitID    uint
	DateKey    string
	Delta      int
	Set        *int
	Difficulty *int
	Note       string
	At         time.Time
}

// NewProgressService 构造 ProgressService
func NewProgressService(gdb *gorm.DB) *ProgressService {
	return &ProgressService{db: gdb}
}

// Upsert 应用一次进度变更，不存在则惰性创建当日条目。
func (s *ProgressService) Upsert(input ProgressInput) (*db.ProgressEntry, error) {
	dateKey := strings.TrimSpace(input.DateKey)
	if _, err := ParseDateKey(dateKey); err != nil {
		return nil, fmt.Errorf("%w: invalid date key %q", ErrValidation, input.DateKey)
	}

	var habit db.HabitDefinition
	if err := s.db.First(&habit, input.HabitID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("find habit: %w", err)
	}

	at := input.At
	if at.IsZero() {
		at = time.Now()
	}

	var entry db.ProgressEntry
	err := s.db.Where("habit_id = ? AND date_key = ?", input.HabitID, dateKey).First(&entry).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		entry = db.ProgressEntry{
			HabitID: input.HabitID,
			DateKey: dateKey,
			Origin:  db.ProgressOriginManual,
		}
	case err != nil:
		return nil, fmt.Errorf("find progress entry: %w", err)
	}

	if input.Set != nil {
		entry.Count = *input.Set
	} else {
		entry.Count += input.Delta
	}
	if entry.Count < 0 {
		entry.Count = 0
	}
	if input.Delta > 0 && input.Set == nil {
		entry.AppendIncrement(at)
	}
	if input.Difficulty != nil {
		entry.DifficultyRating = input.Difficulty
	}
	if note := strings.TrimSpace(input.Note); note != "" {
		entry.Note = note
	}

	if err := s.db.Save(&entry).Error; err != nil {
		return nil, fmt.Errorf("save progress entry: %w", err)
	}

	return &entry, nil
}

// Get 返回指定习惯指定日期的条目，不存在时返回 ErrProgressNotFound。
func (s *ProgressService) Get(habitID uint, dateKey string) (*db.ProgressEntry, error) {
	var entry db.ProgressEntry
	if err := s.db.Where("habit_id = ? AND date_key = ?", habitID, dateKey).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProgressNotFound
		}
		return nil, fmt.Errorf("get progress entry: %w", err)
	}
	return &entry, nil
}

// ListBetween 返回指定习惯在闭区间内的条目，按日期升序。
func (s *ProgressService) ListBetween(habitID uint, startKey, endKey string) ([]db.ProgressEntry, error) {
	if habitID == 0 {
		return nil, fmt.Errorf("%w: habit id is required", ErrValidation)
	}

	var entries []db.ProgressEntry
	if err := s.db.Where("habit_id = ?", habitID).
		Where("date_key BETWEEN ? AND ?", startKey, endKey).
		Order("date_key ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list progress entries: %w", err)
	}

	return entries, nil
}

// EntriesOn 返回某一天所有习惯的条目，按 habitID 建索引。
func (s *ProgressService) EntriesOn(dateKey string) (map[uint]*db.ProgressEntry, error) {
	var entries []db.ProgressEntry
	if err := s.db.Where("date_key = ?", dateKey).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list entries on date: %w", err)
	}

	indexed := make(map[uint]*db.ProgressEntry, len(entries))
	for i := range entries {
		indexed[entries[i].HabitID] = &entries[i]
	}
	return indexed, nil
}

// AllEntries 返回全部条目，连胜全量重算使用。
func (s *ProgressService) AllEntries() ([]db.ProgressEntry, error) {
	var entries []db.ProgressEntry
	if err := s.db.Order("date_key ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list all progress entries: %w", err)
	}
	return entries, nil
}

// Reset 显式清除某习惯某日的条目。
func (s *ProgressService) Reset(habitID uint, dateKey string) error {
	if err := s.db.Where("habit_id = ? AND date_key = ?", habitID, dateKey).
		Unscoped().Delete(&db.ProgressEntry{}).Error; err != nil {
		return fmt.Errorf("reset progress entry: %w", err)
	}
	return nil
}
