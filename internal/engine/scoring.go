package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// ════════════════════════════════════════════════════════════
// ScoringStrategy — 评分策略（加权算法 | 外部模型）
// ════════════════════════════════════════════════════════════

// Candidate 一个已通过资格与冲突检测的候选
type Candidate struct {
	Referee    Referee
	Game       Game
	DistanceKm *float64
	Criteria   Criteria
	CoAssigned []string // 本场比赛已确定的其他裁判（含已持久化的）
}

// Scorer 单次规划内的评分器
type Scorer interface {
	// Score 返回 [0,1] 分数与理由；ok=false 表示该策略不推荐此候选
	Score(c Candidate) (score float64, rationale string, ok bool)
	// Summary 策略相关的汇总信息（写入方案快照）
	Summary() map[string]any
}

// Strategy 评分策略。Begin 在规划开始时调用一次，可执行阻塞的外部调用。
type Strategy interface {
	Kind() StrategyKind
	Begin(ctx context.Context, in PlanInput) (Scorer, error)
}

// ScoringConfig 加权策略的归一化常量
type ScoringConfig struct {
	Levels              LevelRanking
	ExperienceNormYears float64 // 经验满分年限
	DefaultDistanceKm   float64 // 规则不限距离时的距离归一化基数
	PartnerDelta        float64 // 每个同场偏好/回避搭档的加减分
	RationaleThreshold  float64 // 单项得分达到该值才写入理由
}

// ── 加权算法策略 ──

// WeightedStrategy 确定性的四因子加权和
type WeightedStrategy struct {
	cfg ScoringConfig
}

// NewWeightedStrategy 创建加权策略
func NewWeightedStrategy(cfg ScoringConfig) *WeightedStrategy {
	return &WeightedStrategy{cfg: cfg}
}

func (s *WeightedStrategy) Kind() StrategyKind { return StrategyAlgorithmic }

func (s *WeightedStrategy) Begin(_ context.Context, in PlanInput) (Scorer, error) {
	return &weightedScorer{
		cfg:      s.cfg,
		weights:  in.Rule.Weights.Normalized(),
		raw:      in.Rule.Weights,
		partners: indexPartners(in.Rule.Partners),
	}, nil
}

type weightedScorer struct {
	cfg      ScoringConfig
	weights  Weights
	raw      Weights
	partners map[string][]PartnerPreference
}

func (w *weightedScorer) Score(c Candidate) (float64, string, bool) {
	dist := w.distanceScore(c)
	skill := w.skillScore(c)
	exp := w.experienceScore(c)
	partner, preferred, avoided := w.partnerScore(c)

	total := w.weights.Distance*dist +
		w.weights.Skill*skill +
		w.weights.Experience*exp +
		w.weights.Partner*partner

	var reasons []string
	th := w.cfg.RationaleThreshold
	if w.weights.Distance > 0 && dist >= th && c.DistanceKm != nil {
		reasons = append(reasons, fmt.Sprintf("距离近(%.1fkm)", *c.DistanceKm))
	}
	if w.weights.Skill > 0 && skill >= th {
		reasons = append(reasons, fmt.Sprintf("等级匹配(%s)", c.Referee.Level))
	}
	if w.weights.Experience > 0 && exp >= th {
		reasons = append(reasons, fmt.Sprintf("经验丰富(%.0f年)", c.Referee.YearsExperience))
	}
	if w.weights.Partner > 0 && preferred > 0 {
		reasons = append(reasons, fmt.Sprintf("偏好搭档同场(%d)", preferred))
	}
	if w.weights.Partner > 0 && avoided > 0 {
		reasons = append(reasons, fmt.Sprintf("回避搭档同场(%d)", avoided))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "综合评分")
	}

	return clamp01(total), strings.Join(reasons, "；"), true
}

func (w *weightedScorer) Summary() map[string]any {
	return map[string]any{
		"weights":    w.weights,
		"weight_sum": w.raw.Sum(),
	}
}

// distanceScore max(0, 1 − d/max)；距离未知得 0
func (w *weightedScorer) distanceScore(c Candidate) float64 {
	if c.DistanceKm == nil {
		return 0
	}
	limit := c.Criteria.MaxDistanceKm
	if limit <= 0 {
		limit = w.cfg.DefaultDistanceKm
	}
	if limit <= 0 {
		return 1
	}
	return math.Max(0, 1-*c.DistanceKm/limit)
}

// skillScore min(1, rank(ref)/rank(min))；未设最低等级时与最高等级比较
func (w *weightedScorer) skillScore(c Candidate) float64 {
	levels := w.cfg.Levels
	required := levels.Max()
	if c.Criteria.MinRefereeLevel != "" {
		required = levels.Rank(c.Criteria.MinRefereeLevel)
	}
	if required <= 0 {
		return 1
	}
	return math.Min(1, float64(levels.Rank(c.Referee.Level))/float64(required))
}

// experienceScore min(1, years/norm)
func (w *weightedScorer) experienceScore(c Candidate) float64 {
	if w.cfg.ExperienceNormYears <= 0 {
		return 0
	}
	return math.Min(1, math.Max(0, c.Referee.YearsExperience)/w.cfg.ExperienceNormYears)
}

// partnerScore 中性 0.5；每个已同场的偏好搭档 +δ，回避搭档 −δ，截断到 [0,1]
func (w *weightedScorer) partnerScore(c Candidate) (score float64, preferred, avoided int) {
	if len(c.CoAssigned) == 0 {
		return 0.5, 0, 0
	}
	present := make(map[string]bool, len(c.CoAssigned))
	for _, id := range c.CoAssigned {
		present[id] = true
	}
	for _, p := range w.partners[c.Referee.ID] {
		other, _ := p.Partner(c.Referee.ID)
		if !present[other] {
			continue
		}
		switch p.Polarity {
		case PolarityPreferred:
			preferred++
		case PolarityAvoid:
			avoided++
		}
	}
	score = 0.5 + w.cfg.PartnerDelta*float64(preferred) - w.cfg.PartnerDelta*float64(avoided)
	return clamp01(score), preferred, avoided
}

// indexPartners 按裁判 ID 索引偏好，两端各一份
func indexPartners(prefs []PartnerPreference) map[string][]PartnerPreference {
	idx := make(map[string][]PartnerPreference)
	for _, p := range prefs {
		if p.RefereeA == p.RefereeB {
			continue
		}
		idx[p.RefereeA] = append(idx[p.RefereeA], p)
		idx[p.RefereeB] = append(idx[p.RefereeB], p)
	}
	return idx
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
