package engine

import (
	"math"
	"testing"
	"time"
)

var testLevels = NewLevelRanking([]string{"Rookie", "Junior", "Senior"})

func ptr[T any](v T) *T { return &v }

// ── LevelRanking 测试 ──

func TestLevelRanking(t *testing.T) {
	if testLevels.Rank("rookie") != 1 || testLevels.Rank("SENIOR") != 3 {
		t.Errorf("等级排名应大小写不敏感且从 1 开始")
	}
	if testLevels.Rank("master") != 0 {
		t.Error("未知等级排名应为 0")
	}
	if testLevels.Max() != 3 {
		t.Errorf("期望 Max=3，实际=%d", testLevels.Max())
	}
	if !testLevels.Known(" Junior ") || testLevels.Known("") {
		t.Error("Known 判断错误")
	}
}

// ── IsEligible 测试 ──

func TestAvailabilityFilter_IsEligible(t *testing.T) {
	f := AvailabilityFilter{Levels: testLevels}
	junior := Referee{ID: "r1", Available: true, Level: "Junior"}

	tests := []struct {
		name     string
		ref      Referee
		distance *float64
		criteria Criteria
		want     bool
	}{
		{"无限制", junior, nil, Criteria{}, true},
		{"不可用", Referee{ID: "r2", Available: false, Level: "Senior"}, ptr(1.0), Criteria{}, false},
		{"距离内", junior, ptr(10.0), Criteria{MaxDistanceKm: 10}, true},
		{"距离超限", junior, ptr(10.5), Criteria{MaxDistanceKm: 10}, false},
		{"距离未知且有上限", junior, nil, Criteria{MaxDistanceKm: 10}, false},
		{"等级相同", junior, nil, Criteria{MinRefereeLevel: "junior"}, true},
		{"等级不足", junior, nil, Criteria{MinRefereeLevel: "Senior"}, false},
		{"未知等级裁判", Referee{ID: "r3", Available: true, Level: "??"}, nil, Criteria{MinRefereeLevel: "Rookie"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.IsEligible(tt.ref, tt.distance, tt.criteria); got != tt.want {
				t.Errorf("期望 %v，实际 %v", tt.want, got)
			}
		})
	}
}

func TestAvailabilityFilter_Reason(t *testing.T) {
	f := AvailabilityFilter{Levels: testLevels}
	c := Criteria{MaxDistanceKm: 5, MinRefereeLevel: "Senior"}

	if r := f.reason(Referee{Available: false}, nil, c); r != "unavailable" {
		t.Errorf("期望 unavailable，实际 %s", r)
	}
	if r := f.reason(Referee{Available: true, Level: "Senior"}, ptr(8.0), c); r != "distance" {
		t.Errorf("期望 distance，实际 %s", r)
	}
	if r := f.reason(Referee{Available: true, Level: "Rookie"}, ptr(1.0), c); r != "level" {
		t.Errorf("期望 level，实际 %s", r)
	}
}

func TestResolveDistance(t *testing.T) {
	g := Game{ID: "g1", StartsAt: time.Now()}
	r := Referee{ID: "r1"}

	if d := resolveDistance(nil, r, g); d != nil {
		t.Error("无距离函数时应为未知")
	}
	if d := resolveDistance(func(Referee, Game) (float64, bool) { return math.NaN(), true }, r, g); d != nil {
		t.Error("NaN 应视为未知")
	}
	if d := resolveDistance(func(Referee, Game) (float64, bool) { return -1, true }, r, g); d != nil {
		t.Error("负距离应视为未知")
	}
	if d := resolveDistance(func(Referee, Game) (float64, bool) { return 3, false }, r, g); d != nil {
		t.Error("ok=false 应视为未知")
	}
	if d := resolveDistance(func(Referee, Game) (float64, bool) { return 3.5, true }, r, g); d == nil || *d != 3.5 {
		t.Errorf("期望 3.5，实际 %v", d)
	}
}
