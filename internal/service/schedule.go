package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/habitledger/internal/db"
)

// dateFormat 为本地时区日历日键的统一格式。
const dateFormat = "2006-01-02"

// DateKeyOf 把时间归一化为本地日历日键。
func DateKeyOf(t time.Time) string {
	return t.Format(dateFormat)
}

// ParseDateKey 解析日历日键，返回当日零点（本地时区）。
func ParseDateKey(key string) (time.Time, error) {
	return time.ParseInLocation(dateFormat, strings.TrimSpace(key), time.Local)
}

// Schedule 是结构化的调度配置，替代旧版的自由文本描述。
// Weekdays 仅在 weekdays 类型下有意义，Interval 仅在 every_n_days 下有意义，
// Target 仅在 per_week/per_month 下有意义。
type Schedule struct {
	Kind     string
	Weekdays []time.Weekday
	Interval int
	Target   int
}

// Validate 校验调度配置的合法组合。
func (s Schedule) Validate() error {
	switch s.Kind {
	case db.ScheduleDaily:
		return nil
	case db.ScheduleWeekdays:
		if len(s.Weekdays) == 0 {
			return fmt.Errorf("%w: weekday schedule requires at least one weekday", ErrValidation)
		}
		for _, wd := range s.Weekdays {
			if wd < time.Sunday || wd > time.Saturday {
				return fmt.Errorf("%w: invalid weekday %d", ErrValidation, wd)
			}
		}
		return nil
	case db.ScheduleEveryN:
		if s.Interval < 2 {
			return fmt.Errorf("%w: every-n schedule requires interval >= 2", ErrValidation)
		}
		return nil
	case db.SchedulePerWeek:
		if s.Target < 1 || s.Target > 7 {
			return fmt.Errorf("%w: per-week target must be within 1..7", ErrValidation)
		}
		return nil
	case db.SchedulePerMonth:
		if s.Target < 1 || s.Target > 31 {
			return fmt.Errorf("%w: per-month target must be within 1..31", ErrValidation)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported schedule kind %q", ErrValidation, s.Kind)
	}
}

// GatesDay 返回该调度是否会把具体日期纳入全局连胜的当日集合。
// 频率型调度不钉死日期，按休假语义处理，不阻塞连胜。
func (s Schedule) GatesDay() bool {
	switch s.Kind {
	case db.ScheduleDaily, db.ScheduleWeekdays, db.ScheduleEveryN:
		return true
	default:
		return false
	}
}

// IsScheduledOn 判断调度在给定日期是否选中该习惯。
// anchor 为习惯的起算日（创建日），every_n_days 以其为周期锚点；
// 早于起算日的日期一律不选中。
func (s Schedule) IsScheduledOn(date, anchor time.Time) bool {
	day := truncateToDay(date)
	start := truncateToDay(anchor)
	if day.Before(start) {
		return false
	}

	switch s.Kind {
	case db.ScheduleDaily:
		return true
	case db.ScheduleWeekdays:
		for _, wd := range s.Weekdays {
			if day.Weekday() == wd {
				return true
			}
		}
		return false
	case db.ScheduleEveryN:
		if s.Interval < 1 {
			return false
		}
		return daysBetween(start, day)%s.Interval == 0
	default:
		return false
	}
}

// ScheduleFromHabit 从持久化模型还原调度配置。
func ScheduleFromHabit(h db.HabitDefinition) Schedule {
	return Schedule{
		Kind:     h.ScheduleKind,
		Weekdays: decodeWeekdays(h.ScheduleWeekdays),
		Interval: h.ScheduleInterval,
		Target:   h.ScheduleTarget,
	}
}

// ApplyTo 把调度配置写回持久化模型的对应列。
func (s Schedule) ApplyTo(h *db.HabitDefinition) {
	h.ScheduleKind = s.Kind
	h.ScheduleWeekdays = encodeWeekdays(s.Weekdays)
	h.ScheduleInterval = s.Interval
	h.ScheduleTarget = s.Target
}

func encodeWeekdays(weekdays []time.Weekday) string {
	if len(weekdays) == 0 {
		return ""
	}
	seen := make(map[time.Weekday]struct{}, len(weekdays))
	unique := make([]int, 0, len(weekdays))
	for _, wd := range weekdays {
		if _, ok := seen[wd]; ok {
			continue
		}
		seen[wd] = struct{}{}
		unique = append(unique, int(wd))
	}
	sort.Ints(unique)

	parts := make([]string, 0, len(unique))
	for _, wd := range unique {
		parts = append(parts, strconv.Itoa(wd))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(raw string) []time.Weekday {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var weekdays []time.Weekday
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		weekdays = append(weekdays, time.Weekday(n))
	}
	return weekdays
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysBetween 按日历日计数。换算到 UTC 零点再作差，
// 夏令时造成的 23/25 小时天不会影响间隔。
func daysBetween(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours() / 24)
}
