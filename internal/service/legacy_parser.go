package service

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/habitledger/internal/db"
)

// 旧版调度/目标均为自由文本（"3 times per week"、"every 3 days"、
// "Mon/Wed/Fri"、"30 minutes" 等），解析集中在本文件这一个边界：
// 消费方不得自行重解析。无法识别的输入回退为单次每日，由调用方记告警，
// 绝不因单条坏记录中断整批迁移。

// ParsedSchedule 是调度文本的解析结果。
type ParsedSchedule struct {
	Schedule Schedule
	Fallback bool
}

// ParsedGoal 是目标文本的解析结果。
type ParsedGoal struct {
	Amount   int
	Unit     string
	Fallback bool
}

var (
	everyNDaysRe = regexp.MustCompile(`(?i)^every\s+(\S+)\s+days?$`)
	perWeekRe    = regexp.MustCompile(`(?i)^(\S+)\s+(?:times?|days?)\s+(?:per|a|each)\s+week$`)
	perMonthRe   = regexp.MustCompile(`(?i)^(\S+)\s+(?:times?|days?)\s+(?:per|a|each)\s+month$`)
	goalRe       = regexp.MustCompile(`^(\d+)\s*(.*)$`)
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"other": 2,
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseScheduleText 解析旧版调度文本。
func ParseScheduleText(text string) ParsedSchedule {
	normalized := strings.ToLower(strings.TrimSpace(text))

	switch normalized {
	case "", "daily", "every day", "everyday", "each day":
		return ParsedSchedule{Schedule: Schedule{Kind: db.ScheduleDaily}, Fallback: normalized == ""}
	case "weekly", "once a week", "once per week":
		return ParsedSchedule{Schedule: Schedule{Kind: db.SchedulePerWeek, Target: 1}}
	case "monthly", "once a month", "once per month":
		return ParsedSchedule{Schedule: Schedule{Kind: db.SchedulePerMonth, Target: 1}}
	case "every other day":
		return ParsedSchedule{Schedule: Schedule{Kind: db.ScheduleEveryN, Interval: 2}}
	case "weekdays":
		return ParsedSchedule{Schedule: Schedule{
			Kind:     db.ScheduleWeekdays,
			Weekdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		}}
	case "weekends":
		return ParsedSchedule{Schedule: Schedule{
			Kind:     db.ScheduleWeekdays,
			Weekdays: []time.Weekday{time.Saturday, time.Sunday},
		}}
	}

	if m := everyNDaysRe.FindStringSubmatch(normalized); m != nil {
		if n, ok := parseCount(m[1]); ok && n >= 2 {
			return ParsedSchedule{Schedule: Schedule{Kind: db.ScheduleEveryN, Interval: n}}
		}
	}

	if m := perWeekRe.FindStringSubmatch(normalized); m != nil {
		if n, ok := parseCount(m[1]); ok && n >= 1 && n <= 7 {
			return ParsedSchedule{Schedule: Schedule{Kind: db.SchedulePerWeek, Target: n}}
		}
	}

	if m := perMonthRe.FindStringSubmatch(normalized); m != nil {
		if n, ok := parseCount(m[1]); ok && n >= 1 && n <= 31 {
			return ParsedSchedule{Schedule: Schedule{Kind: db.SchedulePerMonth, Target: n}}
		}
	}

	if weekdays, ok := parseWeekdayList(normalized); ok {
		return ParsedSchedule{Schedule: Schedule{Kind: db.ScheduleWeekdays, Weekdays: weekdays}}
	}

	// 文档化回退：无法识别的调度按每日一次处理
	return ParsedSchedule{Schedule: Schedule{Kind: db.ScheduleDaily}, Fallback: true}
}

// ParseGoalText 解析旧版目标文本，形如 "30 minutes"、"5 km"、"3"。
func ParseGoalText(text string) ParsedGoal {
	normalized := strings.TrimSpace(text)

	switch strings.ToLower(normalized) {
	case "once":
		return ParsedGoal{Amount: 1, Unit: "time"}
	case "twice":
		return ParsedGoal{Amount: 2, Unit: "times"}
	}

	if m := goalRe.FindStringSubmatch(normalized); m != nil {
		amount, err := strconv.Atoi(m[1])
		if err == nil && amount > 0 {
			unit := strings.TrimSpace(m[2])
			if unit == "" {
				unit = "times"
			}
			return ParsedGoal{Amount: amount, Unit: unit}
		}
	}

	// 文档化回退：无法识别的目标按单次处理
	return ParsedGoal{Amount: 1, Unit: "time", Fallback: true}
}

func parseCount(token string) (int, bool) {
	if n, err := strconv.Atoi(token); err == nil {
		return n, true
	}
	if n, ok := numberWords[token]; ok {
		return n, true
	}
	return 0, false
}

// parseWeekdayList 识别 "mon/wed/fri"、"mon, wed"、"monday and friday" 形式。
func parseWeekdayList(text string) ([]time.Weekday, bool) {
	cleaned := strings.NewReplacer("/", " ", ",", " ", "+", " ", " and ", " ").Replace(text)
	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return nil, false
	}

	seen := make(map[time.Weekday]struct{})
	var weekdays []time.Weekday
	for _, field := range fields {
		if field == "and" {
			continue
		}
		wd, ok := weekdayNames[field]
		if !ok {
			return nil, false
		}
		if _, dup := seen[wd]; dup {
			continue
		}
		seen[wd] = struct{}{}
		weekdays = append(weekdays, wd)
	}
	if len(weekdays) == 0 {
		return nil, false
	}
	return weekdays, true
}
