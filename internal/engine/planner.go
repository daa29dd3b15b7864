package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// ════════════════════════════════════════════════════════════
// AssignmentPlanner — 逐场贪心分配
// ════════════════════════════════════════════════════════════
//
// 按输入顺序逐场处理，不跨场回溯，因此结果是贪心解而非全局最优。
// 每个岗位重新评分一次剩余候选，使搭档偏好能看到本场已选出的裁判；
// 搭档权重为 0 时等价于"一次评分、排序、取前 N"。

// ReasonInsufficientReferees 缺口原因前缀
const ReasonInsufficientReferees = "合格裁判不足"

// Config 规划器配置
type Config struct {
	Scoring           ScoringConfig
	DefaultRefsNeeded int
	DefaultGameLength time.Duration
	BackToBackGap     time.Duration
	ModelTimeout      time.Duration
}

// PlanInput 一次规划的输入
type PlanInput struct {
	Games        []Game
	Referees     []Referee
	Rule         Rule
	ContextNotes string
	Bookings     []Booking // 已持久化的安排，用于冲突检测
}

// Planner 编排资格筛选、冲突检测与评分
type Planner struct {
	cfg         Config
	filter      AvailabilityFilter
	distance    DistanceFunc
	recommender Recommender
	now         func() time.Time
}

// NewPlanner 创建规划器；recommender 可为 nil（此时外部模型策略不可用）
func NewPlanner(cfg Config, distance DistanceFunc, recommender Recommender) *Planner {
	if cfg.DefaultRefsNeeded <= 0 {
		cfg.DefaultRefsNeeded = 2
	}
	if cfg.DefaultGameLength <= 0 {
		cfg.DefaultGameLength = 90 * time.Minute
	}
	return &Planner{
		cfg:         cfg,
		filter:      AvailabilityFilter{Levels: cfg.Scoring.Levels},
		distance:    distance,
		recommender: recommender,
		now:         time.Now,
	}
}

// StrategyFor 按规则选择评分策略
func (p *Planner) StrategyFor(rule Rule) (Strategy, error) {
	switch rule.Strategy {
	case StrategyAlgorithmic:
		return NewWeightedStrategy(p.cfg.Scoring), nil
	case StrategyExternalModel:
		if p.recommender == nil {
			return nil, ErrNoRecommender
		}
		return NewModelStrategy(p.recommender, p.cfg.ModelTimeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, rule.Strategy)
	}
}

// ValidateRule 校验规则配置，任何错误都应在规划开始前返回给调用方
func (p *Planner) ValidateRule(rule Rule) error {
	if err := rule.Schedule.Validate(); err != nil {
		return err
	}
	switch rule.Strategy {
	case StrategyAlgorithmic:
		w := rule.Weights
		for name, v := range map[string]float64{
			"distance": w.Distance, "skill": w.Skill, "experience": w.Experience, "partner": w.Partner,
		} {
			if v < 0 || v > 100 {
				return ruleError("权重 %s 必须在 0-100 之间", name)
			}
		}
		if w.Sum() == 0 {
			return ruleError("加权策略的权重不能全部为 0")
		}
	case StrategyExternalModel:
		if t := rule.Model.Temperature; t != nil && (*t < 0 || *t > 2) {
			return ruleError("temperature 必须在 0-2 之间")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, rule.Strategy)
	}

	c := rule.Criteria
	if c.MinRefereeLevel != "" && !p.cfg.Scoring.Levels.Known(c.MinRefereeLevel) {
		return ruleError("未知的最低裁判等级 %q", c.MinRefereeLevel)
	}
	if c.MaxDistanceKm < 0 {
		return ruleError("max_distance_km 不能为负数")
	}
	if c.MaxDaysAhead < 0 {
		return ruleError("max_days_ahead 不能为负数")
	}
	for _, pp := range rule.Partners {
		if pp.RefereeA == "" || pp.RefereeB == "" || pp.RefereeA == pp.RefereeB {
			return ruleError("搭档偏好必须是两名不同的裁判")
		}
		if pp.Polarity != PolarityPreferred && pp.Polarity != PolarityAvoid {
			return ruleError("未知的搭档偏好极性 %q", pp.Polarity)
		}
	}
	return nil
}

// Plan 使用规则选定的策略规划
func (p *Planner) Plan(ctx context.Context, in PlanInput) (*Proposal, error) {
	if err := p.ValidateRule(in.Rule); err != nil {
		return nil, err
	}
	strategy, err := p.StrategyFor(in.Rule)
	if err != nil {
		return nil, err
	}
	return p.PlanWith(ctx, in, strategy)
}

type scored struct {
	ref       Referee
	distance  *float64
	score     float64
	rationale string
}

// PlanWith 使用指定策略规划（用于外部模型失败后的回退）
func (p *Planner) PlanWith(ctx context.Context, in PlanInput, strategy Strategy) (*Proposal, error) {
	if err := p.ValidateRule(in.Rule); err != nil {
		return nil, err
	}
	started := p.now()

	games := make([]Game, len(in.Games))
	for i, g := range in.Games {
		games[i] = p.normalizeGame(g)
	}
	in.Games = games

	scorer, err := strategy.Begin(ctx, in)
	if err != nil {
		return nil, err
	}

	detector := NewConflictDetector(p.cfg.BackToBackGap)
	detector.Seed(in.Bookings)
	existing := make(map[string][]string)
	for _, b := range in.Bookings {
		existing[b.GameID] = append(existing[b.GameID], b.RefereeID)
	}
	taken := occupiedPositions(in.Bookings)

	proposal := &Proposal{
		RuleID:      in.Rule.ID,
		Strategy:    strategy.Kind(),
		Games:       make([]GameProposal, 0, len(games)),
		GeneratedAt: started,
	}
	var scoreSum float64

	for _, game := range games {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		gp := GameProposal{
			GameID:      game.ID,
			StartsAt:    game.StartsAt,
			EndsAt:      game.EndsAt,
			RefsNeeded:  game.RefsNeeded,
			Assignments: make([]ProposedAssignment, 0, game.RefsNeeded),
		}

		// 1. 资格筛选 + 冲突检测
		rejected := make(map[string]int)
		pool := make([]scored, 0, len(in.Referees))
		for _, ref := range in.Referees {
			if detector.AssignedTo(ref.ID, game.ID) {
				continue
			}
			dist := resolveDistance(p.distance, ref, game)
			if !p.filter.IsEligible(ref, dist, in.Rule.Criteria) {
				rejected[p.filter.reason(ref, dist, in.Rule.Criteria)]++
				continue
			}
			if detector.HasConflict(ref.ID, game, in.Rule.Criteria) {
				rejected["conflict"]++
				continue
			}
			pool = append(pool, scored{ref: ref, distance: dist})
		}

		// 2-4. 逐岗位评分、排序、取最优
		coAssigned := append([]string(nil), existing[game.ID]...)
		notRecommended := make(map[string]bool)
		for pos := 0; pos < game.RefsNeeded && len(pool) > 0; pos++ {
			ranked := make([]scored, 0, len(pool))
			for _, cand := range pool {
				s, why, ok := scorer.Score(Candidate{
					Referee:    cand.ref,
					Game:       game,
					DistanceKm: cand.distance,
					Criteria:   in.Rule.Criteria,
					CoAssigned: coAssigned,
				})
				if !ok {
					notRecommended[cand.ref.ID] = true
					continue
				}
				cand.score = round4(clamp01(s))
				cand.rationale = why
				ranked = append(ranked, cand)
			}
			if len(ranked) == 0 {
				break
			}
			p.rank(ranked, in.Rule.Criteria)

			best := ranked[0]
			gp.Assignments = append(gp.Assignments, ProposedAssignment{
				GameID:      game.ID,
				RefereeID:   best.ref.ID,
				RefereeName: best.ref.Name,
				Position:    taken.claim(game.ID),
				Score:       best.score,
				Rationale:   best.rationale,
				DistanceKm:  best.distance,
			})
			scoreSum += best.score
			detector.Record(best.ref.ID, game)
			coAssigned = append(coAssigned, best.ref.ID)
			pool = removeReferee(pool, best.ref.ID)
		}

		// 5. 缺口
		if len(gp.Assignments) < game.RefsNeeded {
			gp.Conflicts = append(gp.Conflicts, Conflict{
				GameID:   game.ID,
				Reason:   shortfallReason(game.RefsNeeded, len(gp.Assignments), rejected, len(notRecommended)),
				Needed:   game.RefsNeeded,
				Assigned: len(gp.Assignments),
			})
		}

		proposal.TotalAssignments += len(gp.Assignments)
		proposal.TotalConflicts += len(gp.Conflicts)
		proposal.Games = append(proposal.Games, gp)
	}

	proposal.GamesProcessed = len(proposal.Games)
	if proposal.TotalAssignments > 0 {
		proposal.AverageScore = round4(scoreSum / float64(proposal.TotalAssignments))
	}
	proposal.Summary = scorer.Summary()
	if proposal.Summary == nil {
		proposal.Summary = make(map[string]any)
	}
	proposal.Summary["average_confidence"] = proposal.AverageScore
	proposal.DurationMs = p.now().Sub(started).Milliseconds()
	return proposal, nil
}

// rank 分数降序；同分时按经验（若规则优先经验）再按裁判 ID，保证可复现
func (p *Planner) rank(c []scored, criteria Criteria) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].score != c[j].score {
			return c[i].score > c[j].score
		}
		if criteria.PrioritizeExperience && c[i].ref.YearsExperience != c[j].ref.YearsExperience {
			return c[i].ref.YearsExperience > c[j].ref.YearsExperience
		}
		return c[i].ref.ID < c[j].ref.ID
	})
}

func (p *Planner) normalizeGame(g Game) Game {
	if g.RefsNeeded <= 0 {
		g.RefsNeeded = p.cfg.DefaultRefsNeeded
	}
	if !g.EndsAt.After(g.StartsAt) {
		g.EndsAt = g.StartsAt.Add(p.cfg.DefaultGameLength)
	}
	return g
}

// positionName 岗位按排名顺序命名：Referee 1, Referee 2, …
func positionName(n int) string {
	return fmt.Sprintf("Referee %d", n)
}

// positionSet 每场比赛已占用的岗位名
type positionSet map[string]map[string]bool

// occupiedPositions 先登记有名岗位，再为无名预订占用最小空闲编号
func occupiedPositions(bookings []Booking) positionSet {
	set := make(positionSet)
	for _, b := range bookings {
		if b.Position != "" {
			set.mark(b.GameID, b.Position)
		}
	}
	for _, b := range bookings {
		if b.Position == "" {
			set.claim(b.GameID)
		}
	}
	return set
}

func (s positionSet) mark(gameID, name string) {
	if s[gameID] == nil {
		s[gameID] = make(map[string]bool)
	}
	s[gameID][name] = true
}

// claim 返回并占用该场比赛编号最小的空闲岗位
func (s positionSet) claim(gameID string) string {
	for n := 1; ; n++ {
		name := positionName(n)
		if !s[gameID][name] {
			s.mark(gameID, name)
			return name
		}
	}
}

func removeReferee(pool []scored, id string) []scored {
	out := pool[:0]
	for _, c := range pool {
		if c.ref.ID != id {
			out = append(out, c)
		}
	}
	return out
}

func shortfallReason(needed, assigned int, rejected map[string]int, notRecommended int) string {
	var parts []string
	labels := []struct{ key, label string }{
		{"unavailable", "不可用"},
		{"distance", "距离超限"},
		{"level", "等级不足"},
		{"conflict", "时段冲突"},
	}
	for _, l := range labels {
		if n := rejected[l.key]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", l.label, n))
		}
	}
	if notRecommended > 0 {
		parts = append(parts, fmt.Sprintf("模型未推荐 %d", notRecommended))
	}
	reason := fmt.Sprintf("%s：需要 %d 名，仅分配 %d 名", ReasonInsufficientReferees, needed, assigned)
	if len(parts) > 0 {
		reason += "（" + strings.Join(parts, "，") + "）"
	}
	return reason
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
