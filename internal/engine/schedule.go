package engine

import (
	"strings"
	"time"
)

// ════════════════════════════════════════════════════════════
// ScheduleCalculator — 规则下次执行时间
// ════════════════════════════════════════════════════════════

// ScheduleKind 计划类型
type ScheduleKind string

const (
	ScheduleManual    ScheduleKind = "manual"    // 仅手动触发
	ScheduleRecurring ScheduleKind = "recurring" // 按频率自动执行
)

// Frequency 重复频率
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Schedule 规则执行计划。
// DayOfWeek 当且仅当 Weekly 时出现；DayOfMonth 当且仅当 Monthly 时出现；
// Recurring 必须给出 Anchor（HH:MM）。
type Schedule struct {
	Kind       ScheduleKind  `json:"kind"`
	Frequency  Frequency     `json:"frequency,omitempty"`
	Anchor     string        `json:"anchor,omitempty"`
	DayOfWeek  *time.Weekday `json:"day_of_week,omitempty"`
	DayOfMonth *int          `json:"day_of_month,omitempty"`
	ValidFrom  *time.Time    `json:"valid_from,omitempty"`
	ValidUntil *time.Time    `json:"valid_until,omitempty"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday 将 monday…sunday（大小写不敏感）映射为 time.Weekday
func ParseWeekday(s string) (time.Weekday, bool) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	return d, ok
}

// WeekdayName 返回小写英文星期名，与 ParseWeekday 互逆
func WeekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// ParseAnchor 解析 HH:MM 时刻
func ParseAnchor(s string) (hour, minute int, ok bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, false
	}
	return t.Hour(), t.Minute(), true
}

// Validate 校验计划组合是否合法
func (s Schedule) Validate() error {
	switch s.Kind {
	case ScheduleManual:
		if s.DayOfWeek != nil || s.DayOfMonth != nil {
			return scheduleError("手动计划不能设置 day_of_week/day_of_month")
		}
		return nil
	case ScheduleRecurring:
	default:
		return scheduleError("未知计划类型 %q", s.Kind)
	}

	if _, _, ok := ParseAnchor(s.Anchor); !ok {
		return scheduleError("anchor 必须为 HH:MM，实际 %q", s.Anchor)
	}

	switch s.Frequency {
	case FrequencyDaily:
		if s.DayOfWeek != nil || s.DayOfMonth != nil {
			return scheduleError("daily 计划不能设置 day_of_week/day_of_month")
		}
	case FrequencyWeekly:
		if s.DayOfWeek == nil {
			return scheduleError("weekly 计划必须设置 day_of_week")
		}
		if *s.DayOfWeek < time.Sunday || *s.DayOfWeek > time.Saturday {
			return scheduleError("day_of_week 超出范围")
		}
		if s.DayOfMonth != nil {
			return scheduleError("weekly 计划不能设置 day_of_month")
		}
	case FrequencyMonthly:
		if s.DayOfMonth == nil {
			return scheduleError("monthly 计划必须设置 day_of_month")
		}
		if *s.DayOfMonth < 1 || *s.DayOfMonth > 31 {
			return scheduleError("day_of_month 必须在 1-31 之间")
		}
		if s.DayOfWeek != nil {
			return scheduleError("monthly 计划不能设置 day_of_week")
		}
	default:
		return scheduleError("未知频率 %q", s.Frequency)
	}

	if s.ValidFrom != nil && s.ValidUntil != nil && s.ValidUntil.Before(*s.ValidFrom) {
		return scheduleError("valid_until 早于 valid_from")
	}
	return nil
}

// NextRun 计算 now 之后（含 now）的下一次执行时刻。
// 返回 false 表示手动计划、已过期或配置无效。结果使用 now 的时区。
func NextRun(s Schedule, now time.Time) (time.Time, bool) {
	if s.Kind != ScheduleRecurring || s.Validate() != nil {
		return time.Time{}, false
	}

	from := now
	if s.ValidFrom != nil {
		// valid_from 按日期处理：从其当日零点起找第一个符合频率的时刻
		vf := s.ValidFrom.In(now.Location())
		startOfDay := time.Date(vf.Year(), vf.Month(), vf.Day(), 0, 0, 0, 0, now.Location())
		if startOfDay.After(from) {
			from = startOfDay
		}
	}

	next := nextOccurrence(s, from)
	if s.ValidUntil != nil && next.After(*s.ValidUntil) {
		return time.Time{}, false
	}
	return next, true
}

func nextOccurrence(s Schedule, from time.Time) time.Time {
	hour, minute, _ := ParseAnchor(s.Anchor)
	loc := from.Location()
	at := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, hour, minute, 0, 0, loc)
	}

	switch s.Frequency {
	case FrequencyWeekly:
		offset := (int(*s.DayOfWeek) - int(from.Weekday()) + 7) % 7
		next := at(from.Year(), from.Month(), from.Day()+offset)
		if next.Before(from) {
			next = at(from.Year(), from.Month(), from.Day()+offset+7)
		}
		return next

	case FrequencyMonthly:
		next := at(from.Year(), from.Month(), clampDay(from.Year(), from.Month(), *s.DayOfMonth))
		if next.Before(from) {
			y, m := from.Year(), from.Month()+1
			if m > time.December {
				y, m = y+1, time.January
			}
			next = at(y, m, clampDay(y, m, *s.DayOfMonth))
		}
		return next

	default: // daily
		next := at(from.Year(), from.Month(), from.Day())
		if next.Before(from) {
			next = at(from.Year(), from.Month(), from.Day()+1)
		}
		return next
	}
}

// clampDay 超过当月天数时取当月最后一天
func clampDay(year int, month time.Month, day int) int {
	last := daysIn(year, month)
	if day > last {
		return last
	}
	return day
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
