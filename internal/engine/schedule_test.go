package engine

import (
	"errors"
	"testing"
	"time"
)

// 2025-01-01 为星期三
var wed = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func weekly(d time.Weekday, anchor string) Schedule {
	return Schedule{Kind: ScheduleRecurring, Frequency: FrequencyWeekly, Anchor: anchor, DayOfWeek: &d}
}

func monthly(day int, anchor string) Schedule {
	return Schedule{Kind: ScheduleRecurring, Frequency: FrequencyMonthly, Anchor: anchor, DayOfMonth: &day}
}

func at(base time.Time, days, hour, minute int) time.Time {
	return time.Date(base.Year(), base.Month(), base.Day()+days, hour, minute, 0, 0, base.Location())
}

// ── NextRun 测试 ──

func TestNextRun_Manual(t *testing.T) {
	if _, ok := NextRun(Schedule{Kind: ScheduleManual}, wed); ok {
		t.Error("手动计划不应有下次执行时间")
	}
}

func TestNextRun_WeeklySameDayBeforeAnchor(t *testing.T) {
	s := weekly(time.Wednesday, "18:00")

	got, ok := NextRun(s, at(wed, 0, 17, 0))
	if !ok {
		t.Fatal("应返回下次执行时间")
	}
	if want := at(wed, 0, 18, 0); !got.Equal(want) {
		t.Errorf("期望 %v，实际 %v", want, got)
	}
}

func TestNextRun_WeeklySameDayAfterAnchor(t *testing.T) {
	s := weekly(time.Wednesday, "18:00")

	got, ok := NextRun(s, at(wed, 0, 19, 0))
	if !ok {
		t.Fatal("应返回下次执行时间")
	}
	if want := at(wed, 7, 18, 0); !got.Equal(want) {
		t.Errorf("期望下周三 %v，实际 %v", want, got)
	}
}

func TestNextRun_WeeklyOtherDay(t *testing.T) {
	s := weekly(time.Monday, "09:30")

	got, _ := NextRun(s, at(wed, 0, 8, 0))
	if want := at(wed, 5, 9, 30); !got.Equal(want) {
		t.Errorf("期望周一 %v，实际 %v", want, got)
	}
}

func TestNextRun_DailyRollsOver(t *testing.T) {
	s := Schedule{Kind: ScheduleRecurring, Frequency: FrequencyDaily, Anchor: "06:00"}

	got, _ := NextRun(s, at(wed, 0, 5, 59))
	if want := at(wed, 0, 6, 0); !got.Equal(want) {
		t.Errorf("期望今天 06:00，实际 %v", got)
	}
	got, _ = NextRun(s, at(wed, 0, 6, 1))
	if want := at(wed, 1, 6, 0); !got.Equal(want) {
		t.Errorf("期望明天 06:00，实际 %v", got)
	}
}

func TestNextRun_AnchorExactlyNow(t *testing.T) {
	s := Schedule{Kind: ScheduleRecurring, Frequency: FrequencyDaily, Anchor: "06:00"}

	now := at(wed, 0, 6, 0)
	got, _ := NextRun(s, now)
	if !got.Equal(now) {
		t.Errorf("恰好等于 anchor 时应返回当前时刻，实际 %v", got)
	}
}

func TestNextRun_Monthly(t *testing.T) {
	s := monthly(15, "12:00")

	got, _ := NextRun(s, wed)
	if want := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("期望 %v，实际 %v", want, got)
	}
	got, _ = NextRun(s, time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC))
	if want := time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("期望下月 %v，实际 %v", want, got)
	}
}

func TestNextRun_MonthlyClampsToLastDay(t *testing.T) {
	s := monthly(31, "08:00")

	got, _ := NextRun(s, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	if want := time.Date(2025, 2, 28, 8, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("2 月应取最后一天，实际 %v", got)
	}
	got, _ = NextRun(s, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	if want := time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("闰年 2 月应取 29 日，实际 %v", got)
	}
}

func TestNextRun_MonthlyDecemberRollsYear(t *testing.T) {
	s := monthly(1, "00:00")

	got, _ := NextRun(s, time.Date(2025, 12, 2, 0, 0, 0, 0, time.UTC))
	if want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("期望跨年 %v，实际 %v", want, got)
	}
}

func TestNextRun_ValidUntilPast(t *testing.T) {
	s := weekly(time.Wednesday, "18:00")
	until := wed.AddDate(0, 0, -1)
	s.ValidUntil = &until

	for _, now := range []time.Time{wed, at(wed, 3, 0, 0), at(wed, 30, 12, 0)} {
		if _, ok := NextRun(s, now); ok {
			t.Errorf("已过期计划不应有下次执行时间 (now=%v)", now)
		}
	}
}

func TestNextRun_ValidUntilBeforeNextOccurrence(t *testing.T) {
	s := weekly(time.Wednesday, "18:00")
	until := at(wed, 6, 0, 0)
	s.ValidUntil = &until

	if _, ok := NextRun(s, at(wed, 0, 19, 0)); ok {
		t.Error("下一次执行晚于 valid_until，应视为过期")
	}
}

func TestNextRun_ValidFromInFuture(t *testing.T) {
	s := weekly(time.Wednesday, "18:00")
	from := at(wed, 9, 15, 0) // 下下周五
	s.ValidFrom = &from

	got, ok := NextRun(s, wed)
	if !ok {
		t.Fatal("应返回下次执行时间")
	}
	if want := at(wed, 14, 18, 0); !got.Equal(want) {
		t.Errorf("期望 valid_from 之后的第一个周三 %v，实际 %v", want, got)
	}
}

func TestNextRun_ValidFromSameDayResetsToAnchor(t *testing.T) {
	s := Schedule{Kind: ScheduleRecurring, Frequency: FrequencyDaily, Anchor: "07:00"}
	from := at(wed, 2, 15, 0)
	s.ValidFrom = &from

	got, _ := NextRun(s, wed)
	if want := at(wed, 2, 7, 0); !got.Equal(want) {
		t.Errorf("期望 valid_from 当日 anchor %v，实际 %v", want, got)
	}
}

func TestNextRun_InvalidSchedule(t *testing.T) {
	s := Schedule{Kind: ScheduleRecurring, Frequency: FrequencyWeekly, Anchor: "18:00"}
	if _, ok := NextRun(s, wed); ok {
		t.Error("缺少 day_of_week 的 weekly 计划不应返回时间")
	}
}

// ── Validate 测试 ──

func TestSchedule_Validate(t *testing.T) {
	d := time.Friday
	day := 10
	bad := 32
	from := wed
	until := wed.AddDate(0, 0, -1)

	tests := []struct {
		name    string
		s       Schedule
		wantErr bool
	}{
		{"manual", Schedule{Kind: ScheduleManual}, false},
		{"manual 带星期", Schedule{Kind: ScheduleManual, DayOfWeek: &d}, true},
		{"未知类型", Schedule{Kind: "hourly"}, true},
		{"缺少 anchor", Schedule{Kind: ScheduleRecurring, Frequency: FrequencyDaily}, true},
		{"anchor 格式错误", Schedule{Kind: ScheduleRecurring, Frequency: FrequencyDaily, Anchor: "25:00"}, true},
		{"daily", Schedule{Kind: ScheduleRecurring, Frequency: FrequencyDaily, Anchor: "06:00"}, false},
		{"daily 带日期", Schedule{Kind: ScheduleRecurring, Frequency: FrequencyDaily, Anchor: "06:00", DayOfMonth: &day}, true},
		{"weekly", weekly(d, "06:00"), false},
		{"weekly 带日期", Schedule{Kind: ScheduleRecurring, Frequency: FrequencyWeekly, Anchor: "06:00", DayOfWeek: &d, DayOfMonth: &day}, true},
		{"monthly", monthly(day, "06:00"), false},
		{"monthly 日期越界", monthly(bad, "06:00"), true},
		{"monthly 缺日期", Schedule{Kind: ScheduleRecurring, Frequency: FrequencyMonthly, Anchor: "06:00"}, true},
		{"未知频率", Schedule{Kind: ScheduleRecurring, Frequency: "yearly", Anchor: "06:00"}, true},
		{"until 早于 from", Schedule{Kind: ScheduleRecurring, Frequency: FrequencyDaily, Anchor: "06:00", ValidFrom: &from, ValidUntil: &until}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSchedule) {
					t.Errorf("期望 ErrInvalidSchedule，实际: %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("期望合法，实际: %v", err)
			}
		})
	}
}

func TestParseWeekday(t *testing.T) {
	d, ok := ParseWeekday(" Wednesday ")
	if !ok || d != time.Wednesday {
		t.Errorf("期望 Wednesday，实际 %v %v", d, ok)
	}
	if WeekdayName(time.Sunday) != "sunday" {
		t.Errorf("期望 sunday，实际 %s", WeekdayName(time.Sunday))
	}
	if _, ok := ParseWeekday("funday"); ok {
		t.Error("未知星期应返回 false")
	}
}
