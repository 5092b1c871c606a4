package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/habitledger/internal/db"
	"gorm.io/gorm"
)

// StreakService 维护单用户的跨习惯全局连胜。
// 任何进度变更后都做全量重算：从历史起点把每一天分类为
// 完成/未完成/休假，重算是幂等的，对回头修改历史日期免疫。
// 计算过程无副作用，仅在最后一步整体覆盖状态。

type StreakService struct {
	db     *gorm.DB
	habits *HabitService
	userID string
}

type dayClass int

const (
	dayVacation dayClass = iota
	dayComplete
	dayIncomplete
)

// NewStreakService 构造 StreakService
func NewStreakService(gdb *gorm.DB, userID string) *StreakService {
	return &StreakService{db: gdb, habits: NewHabitService(gdb), userID: userID}
}

// State 返回当前连胜状态，不存在时返回零值状态。
func (s *StreakService) State() (*db.GlobalStreakState, error) {
	var state db.GlobalStreakState
	err := s.db.Where("user_id = ?", s.userID).First(&state).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &db.GlobalStreakState{UserID: s.userID}, nil
	case err != nil:
		return nil, fmt.Errorf("load streak state: %w", err)
	}
	return &state, nil
}

// DayComplete 判断某一天是否完成：当日集合内每个习惯都判定通过。
// 休假日（当日集合为空）返回 false，由调用方按转变语义处理。
func (s *StreakService) DayComplete(dateKey string) (bool, error) {
	date, err := ParseDateKey(dateKey)
	if err != nil {
		return false, fmt.Errorf("%w: invalid date key %q", ErrValidation, dateKey)
	}

	habits, err := s.habits.ListActive()
	if err != nil {
		return false, err
	}

	var entries []db.ProgressEntry
	if err := s.db.Where("date_key = ?", dateKey).Find(&entries).Error; err != nil {
		return false, fmt.Errorf("list entries on date: %w", err)
	}
	indexed := make(map[uint]*db.ProgressEntry, len(entries))
	for i := range entries {
		indexed[entries[i].HabitID] = &entries[i]
	}

	return classifyDay(habits, date, indexed) == dayComplete, nil
}

// Recompute 全量重算连胜并原子覆盖状态。
func (s *StreakService) Recompute(now time.Time) (*db.GlobalStreakState, error) {
	habits, err := s.habits.ListActive()
	if err != nil {
		return nil, err
	}

	var entries []db.ProgressEntry
	if err := s.db.Order("date_key ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list all progress entries: %w", err)
	}

	byDate := make(map[string]map[uint]*db.ProgressEntry)
	for i := range entries {
		day := byDate[entries[i].DateKey]
		if day == nil {
			day = make(map[uint]*db.ProgressEntry)
			byDate[entries[i].DateKey] = day
		}
		day[entries[i].HabitID] = &entries[i]
	}

	today := truncateToDay(now)
	start := historyStart(habits, entries, today)

	var classes []dayClass
	longest, totalComplete, run := 0, 0, 0
	for day := start; !day.After(today); day = day.AddDate(0, 0, 1) {
		class := classifyDay(habits, day, byDate[DateKeyOf(day)])
		classes = append(classes, class)

		switch class {
		case dayComplete:
			totalComplete++
			run++
			if run > longest {
				longest = run
			}
		case dayIncomplete:
			run = 0
		case dayVacation:
			// 休假日既不中断也不延长连续段
		}
	}

	// 当前连胜从今天往回数；未结束的今天若尚未完成按待定处理，不清零
	current := 0
	idx := len(classes) - 1
	if idx >= 0 && classes[idx] == dayIncomplete {
		idx--
	}
walk:
	for ; idx >= 0; idx-- {
		switch classes[idx] {
		case dayComplete:
			current++
		case dayVacation:
			// 跳过
		case dayIncomplete:
			break walk
		}
	}

	state, err := s.State()
	if err != nil {
		return nil, err
	}
	state.UserID = s.userID
	state.CurrentStreak = current
	state.LongestStreak = longest
	state.TotalCompleteDays = totalComplete
	state.LastEvaluatedDate = DateKeyOf(today)

	if err := s.db.Save(state).Error; err != nil {
		return nil, fmt.Errorf("save streak state: %w", err)
	}
	return state, nil
}

// classifyDay 把一天归类：当日集合为空是休假日，
// 集合内全部习惯判定通过才算完成。
func classifyDay(habits []db.HabitDefinition, date time.Time, entries map[uint]*db.ProgressEntry) dayClass {
	scheduled := 0
	for i := range habits {
		schedule := ScheduleFromHabit(habits[i])
		if !schedule.GatesDay() {
			continue
		}
		if !schedule.IsScheduledOn(date, habits[i].CreatedAt) {
			continue
		}
		scheduled++
		if !Evaluate(habits[i], entries[habits[i].ID]) {
			return dayIncomplete
		}
	}
	if scheduled == 0 {
		return dayVacation
	}
	return dayComplete
}

// historyStart 取最早进度日期与最早习惯创建日中的较早者作为走查起点。
func historyStart(habits []db.HabitDefinition, entries []db.ProgressEntry, today time.Time) time.Time {
	start := today
	if len(entries) > 0 {
		if first, err := ParseDateKey(entries[0].DateKey); err == nil && first.Before(start) {
			start = first
		}
	}
	for i := range habits {
		created := truncateToDay(habits[i].CreatedAt)
		if created.Before(start) {
			start = created
		}
	}
	return start
}
