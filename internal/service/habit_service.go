package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habitledger/internal/db"
	"gorm.io/gorm"
)

// HabitService 负责习惯定义的增删改查。
// 类别不变量在入库前强制校验且永不放宽：
// Limiting 必须 baseline > goal > 0，Formation 必须 goal > 0 且不携带 baseline。

type HabitService struct {
	db *gorm.DB
}

// HabitFilter 描述列表过滤条件
type HabitFilter struct {
	Status   string
	Category string
	Search   string
}

// HabitInput 定义创建/更新习惯时可配置字段
type HabitInput struct {
	Name           string
	Description    string
	Category       string
	Schedule       Schedule
	GoalAmount     int
	GoalUnit       string
	BaselineAmount int
	Status         string
}

// QuotaStatus 汇报频率型调度在当前周期内的进度。
type QuotaStatus struct {
	PeriodStart   string
	PeriodEnd     string
	CompletedDays int
	TargetDays    int
}

// NewHabitService 构造 HabitService
func NewHabitService(gdb *gorm.DB) *HabitService {
	return &HabitService{db: gdb}
}

// List 返回习惯集合，支持基本筛选
func (s *HabitService) List(filter HabitFilter) ([]db.HabitDefinition, error) {
	var habits []db.HabitDefinition

	query := s.db.Model(&db.HabitDefinition{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Search != "" {
		like := fmt.Sprintf("%%%s%%", strings.TrimSpace(filter.Search))
		query = query.Where("name LIKE ? OR description LIKE ?", like, like)
	}

	if err := query.Order("created_at DESC").Find(&habits).Error; err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}

	return habits, nil
}

// ListActive 返回所有活跃习惯，连胜重算与调度判定使用。
func (s *HabitService) ListActive() ([]db.HabitDefinition, error) {
	return s.List(HabitFilter{Status: db.HabitStatusActive})
}

// Get 根据 ID 获取习惯
func (s *HabitService) Get(id uint) (*db.HabitDefinition, error) {
	var habit db.HabitDefinition
	if err := s.db.First(&habit, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return &habit, nil
}

// Create 新建习惯
func (s *HabitService) Create(input HabitInput) (*db.HabitDefinition, error) {
	if err := validateHabitInput(input); err != nil {
		return nil, err
	}

	habit := habitFromInput(input)
	if err := s.db.Create(&habit).Error; err != nil {
		return nil, fmt.Errorf("create habit: %w", err)
	}
	return &habit, nil
}

// Update 更新习惯
func (s *HabitService) Update(id uint, input HabitInput) (*db.HabitDefinition, error) {
	if err := validateHabitInput(input); err != nil {
		return nil, err
	}

	var existing db.HabitDefinition
	if err := s.db.First(&existing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("find habit: %w", err)
	}

	updated := habitFromInput(input)
	existing.Name = updated.Name
	existing.Description = updated.Description
	existing.Category = updated.Category
	existing.ScheduleKind = updated.ScheduleKind
	existing.ScheduleWeekdays = updated.ScheduleWeekdays
	existing.ScheduleInterval = updated.ScheduleInterval
	existing.ScheduleTarget = updated.ScheduleTarget
	existing.GoalAmount = updated.GoalAmount
	existing.GoalUnit = updated.GoalUnit
	existing.BaselineAmount = updated.BaselineAmount
	existing.Status = updated.Status

	if err := s.db.Save(&existing).Error; err != nil {
		return nil, fmt.Errorf("update habit: %w", err)
	}
	return &existing, nil
}

// Archive 归档习惯，保留全部进度历史。
func (s *HabitService) Archive(id uint) (*db.HabitDefinition, error) {
	habit, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	habit.Status = db.HabitStatusArchived
	if err := s.db.Save(habit).Error; err != nil {
		return nil, fmt.Errorf("archive habit: %w", err)
	}
	return habit, nil
}

// Delete 删除习惯。purge 为 false 时等价于归档；
// 为 true 时硬删除并级联清除全部进度记录。
func (s *HabitService) Delete(id uint, purge bool) error {
	if !purge {
		_, err := s.Archive(id)
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("habit_id = ?", id).Unscoped().Delete(&db.ProgressEntry{}).Error; err != nil {
			return fmt.Errorf("purge progress entries: %w", err)
		}
		if err := tx.Unscoped().Delete(&db.HabitDefinition{}, id).Error; err != nil {
			return fmt.Errorf("purge habit: %w", err)
		}
		return nil
	})
}

// Quota 统计频率型习惯当前周期（自然周/自然月）内的完成天数。
// 非频率型调度返回 nil。
func (s *HabitService) Quota(habit db.HabitDefinition, now time.Time) (*QuotaStatus, error) {
	schedule := ScheduleFromHabit(habit)

	var periodStart, periodEnd time.Time
	switch schedule.Kind {
	case db.SchedulePerWeek:
		day := truncateToDay(now)
		// 周一作为周期起点
		offset := (int(day.Weekday()) + 6) % 7
		periodStart = day.AddDate(0, 0, -offset)
		periodEnd = periodStart.AddDate(0, 0, 6)
	case db.SchedulePerMonth:
		periodStart = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		periodEnd = periodStart.AddDate(0, 1, -1)
	default:
		return nil, nil
	}

	var entries []db.ProgressEntry
	if err := s.db.Where("habit_id = ?", habit.ID).
		Where("date_key BETWEEN ? AND ?", DateKeyOf(periodStart), DateKeyOf(periodEnd)).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list quota entries: %w", err)
	}

	completed := 0
	for i := range entries {
		if Evaluate(habit, &entries[i]) {
			completed++
		}
	}

	return &QuotaStatus{
		PeriodStart:   DateKeyOf(periodStart),
		PeriodEnd:     DateKeyOf(periodEnd),
		CompletedDays: completed,
		TargetDays:    schedule.Target,
	}, nil
}

func habitFromInput(input HabitInput) db.HabitDefinition {
	habit := db.HabitDefinition{
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		Category:    normalizeCategory(input.Category),
		GoalAmount:  input.GoalAmount,
		GoalUnit:    strings.TrimSpace(input.GoalUnit),
		Status:      normalizeHabitStatus(input.Status),
	}
	if habit.Category == db.CategoryLimiting {
		habit.BaselineAmount = input.BaselineAmount
	}
	input.Schedule.ApplyTo(&habit)
	return habit
}

func validateHabitInput(input HabitInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: habit name is required", ErrValidation)
	}

	category := normalizeCategory(input.Category)
	switch category {
	case db.CategoryFormation:
		if input.GoalAmount <= 0 {
			return fmt.Errorf("%w: formation goal must be positive", ErrValidation)
		}
		if input.BaselineAmount != 0 {
			return fmt.Errorf("%w: formation habit carries no baseline", ErrValidation)
		}
	case db.CategoryLimiting:
		if input.GoalAmount <= 0 {
			return fmt.Errorf("%w: limiting goal must be positive", ErrValidation)
		}
		if input.BaselineAmount <= input.GoalAmount {
			return fmt.Errorf("%w: limiting baseline must exceed goal", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unsupported category %q", ErrValidation, input.Category)
	}

	return input.Schedule.Validate()
}

func normalizeCategory(category string) string {
	return strings.TrimSpace(strings.ToLower(category))
}

func normalizeHabitStatus(status string) string {
	status = strings.TrimSpace(strings.ToLower(status))
	if status != db.HabitStatusArchived {
		return db.HabitStatusActive
	}
	return db.HabitStatusArchived
}
