package engine

import (
	"math"
	"strings"
)

// ════════════════════════════════════════════════════════════
// AvailabilityFilter — 裁判资格筛选
// ════════════════════════════════════════════════════════════

// DistanceFunc 由外部地理服务提供：裁判到比赛场地的距离（公里）。
// 第二个返回值为 false 表示距离未知。
type DistanceFunc func(ref Referee, game Game) (float64, bool)

// LevelRanking 等级序数表，排名从 1 开始，未知等级为 0。
// 具体排名来自配置，引擎本身不内置任何等级名称。
type LevelRanking struct {
	ranks map[string]int
	max   int
}

// NewLevelRanking 按从低到高的顺序构造等级表
func NewLevelRanking(levels []string) LevelRanking {
	r := LevelRanking{ranks: make(map[string]int, len(levels))}
	for i, l := range levels {
		r.ranks[normalizeLevel(l)] = i + 1
	}
	r.max = len(levels)
	return r
}

// Rank 返回等级序数
func (r LevelRanking) Rank(level string) int {
	return r.ranks[normalizeLevel(level)]
}

// Max 最高等级序数
func (r LevelRanking) Max() int { return r.max }

// Known 等级是否在表中
func (r LevelRanking) Known(level string) bool {
	_, ok := r.ranks[normalizeLevel(level)]
	return ok
}

func normalizeLevel(l string) string {
	return strings.ToLower(strings.TrimSpace(l))
}

// AvailabilityFilter 无副作用的资格判断
type AvailabilityFilter struct {
	Levels LevelRanking
}

// IsEligible 全部满足才合格：可用标记为真、距离不超过上限、等级不低于要求。
// distance 为 nil 表示距离未知，只在不限距离时放行。
func (f AvailabilityFilter) IsEligible(ref Referee, distance *float64, c Criteria) bool {
	if !ref.Available {
		return false
	}
	if c.MaxDistanceKm > 0 {
		if distance == nil || *distance > c.MaxDistanceKm {
			return false
		}
	}
	if c.MinRefereeLevel != "" {
		if f.Levels.Rank(ref.Level) < f.Levels.Rank(c.MinRefereeLevel) {
			return false
		}
	}
	return true
}

// reason 返回不合格的首要原因，用于缺口说明
func (f AvailabilityFilter) reason(ref Referee, distance *float64, c Criteria) string {
	switch {
	case !ref.Available:
		return "unavailable"
	case c.MaxDistanceKm > 0 && (distance == nil || *distance > c.MaxDistanceKm):
		return "distance"
	default:
		return "level"
	}
}

// resolveDistance 调用外部距离函数，屏蔽 NaN/负值
func resolveDistance(fn DistanceFunc, ref Referee, game Game) *float64 {
	if fn == nil {
		return nil
	}
	d, ok := fn(ref, game)
	if !ok || math.IsNaN(d) || d < 0 {
		return nil
	}
	return &d
}
