package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

var testScoring = ScoringConfig{
	Levels:              testLevels,
	ExperienceNormYears: 10,
	DefaultDistanceKm:   50,
	PartnerDelta:        0.25,
	RationaleThreshold:  0.5,
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func beginWeighted(t *testing.T, rule Rule) Scorer {
	t.Helper()
	sc, err := NewWeightedStrategy(testScoring).Begin(context.Background(), PlanInput{Rule: rule})
	if err != nil {
		t.Fatalf("Begin 应成功: %v", err)
	}
	return sc
}

// ── 加权策略测试 ──

func TestWeightedScorer_Score(t *testing.T) {
	sc := beginWeighted(t, Rule{Weights: Weights{Distance: 40, Skill: 30, Experience: 20, Partner: 10}})

	score, why, ok := sc.Score(Candidate{
		Referee:    Referee{ID: "r1", Level: "Senior", YearsExperience: 5},
		Game:       Game{ID: "g1"},
		DistanceKm: ptr(10.0),
		Criteria:   Criteria{MaxDistanceKm: 20, MinRefereeLevel: "Junior"},
	})
	if !ok {
		t.Fatal("加权策略应总是给出评分")
	}
	// 0.4*0.5 + 0.3*1 + 0.2*0.5 + 0.1*0.5
	if !approx(score, 0.65) {
		t.Errorf("期望 0.65，实际 %v", score)
	}
	for _, part := range []string{"距离近(10.0km)", "等级匹配(Senior)", "经验丰富(5年)"} {
		if !strings.Contains(why, part) {
			t.Errorf("理由应包含 %q，实际 %q", part, why)
		}
	}
}

func TestWeightedScorer_UnknownDistanceScoresZero(t *testing.T) {
	sc := beginWeighted(t, Rule{Weights: Weights{Distance: 100}})

	score, why, _ := sc.Score(Candidate{Referee: Referee{ID: "r1"}, Game: Game{ID: "g1"}})
	if score != 0 {
		t.Errorf("距离未知时距离分应为 0，实际 %v", score)
	}
	if why != "综合评分" {
		t.Errorf("无显著因子时理由应为 综合评分，实际 %q", why)
	}
}

func TestWeightedScorer_DefaultDistanceWhenUnlimited(t *testing.T) {
	sc := beginWeighted(t, Rule{Weights: Weights{Distance: 100}})

	score, _, _ := sc.Score(Candidate{Referee: Referee{ID: "r1"}, Game: Game{ID: "g1"}, DistanceKm: ptr(25.0)})
	if !approx(score, 0.5) {
		t.Errorf("不限距离时按 50km 归一，期望 0.5，实际 %v", score)
	}
}

func TestWeightedScorer_SkillWithoutMinimum(t *testing.T) {
	sc := beginWeighted(t, Rule{Weights: Weights{Skill: 100}})

	score, _, _ := sc.Score(Candidate{Referee: Referee{ID: "r1", Level: "Rookie"}, Game: Game{ID: "g1"}})
	if !approx(score, 1.0/3) {
		t.Errorf("未设最低等级时与最高等级比较，期望 1/3，实际 %v", score)
	}
}

func TestWeightedScorer_PartnerPreference(t *testing.T) {
	rule := Rule{
		Weights: Weights{Partner: 100},
		Partners: []PartnerPreference{
			{RefereeA: "r2", RefereeB: "r1", Polarity: PolarityPreferred},
			{RefereeA: "r1", RefereeB: "r3", Polarity: PolarityAvoid},
		},
	}
	sc := beginWeighted(t, rule)
	cand := func(co ...string) Candidate {
		return Candidate{Referee: Referee{ID: "r1"}, Game: Game{ID: "g1"}, CoAssigned: co}
	}

	tests := []struct {
		name string
		c    Candidate
		want float64
	}{
		{"无同场裁判", cand(), 0.5},
		{"同场无偏好", cand("r9"), 0.5},
		{"偏好搭档同场", cand("r2"), 0.75},
		{"回避搭档同场", cand("r3"), 0.25},
		{"两者抵消", cand("r2", "r3"), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, _ := sc.Score(tt.c)
			if !approx(got, tt.want) {
				t.Errorf("期望 %v，实际 %v", tt.want, got)
			}
		})
	}
}

func TestWeightedScorer_Bounded(t *testing.T) {
	sc := beginWeighted(t, Rule{Weights: Weights{Distance: 100, Skill: 100, Experience: 100, Partner: 100}})

	score, _, _ := sc.Score(Candidate{
		Referee:    Referee{ID: "r1", Level: "Senior", YearsExperience: 30},
		Game:       Game{ID: "g1"},
		DistanceKm: ptr(0.0),
	})
	if score < 0 || score > 1 {
		t.Errorf("分数应在 [0,1] 内，实际 %v", score)
	}
	if score != 1 {
		t.Errorf("权重和超过 100 时应截断为 1，实际 %v", score)
	}
}

func TestWeightedScorer_Deterministic(t *testing.T) {
	rule := Rule{Weights: Weights{Distance: 40, Skill: 30, Experience: 20, Partner: 10}}
	c := Candidate{
		Referee:    Referee{ID: "r1", Level: "Junior", YearsExperience: 3},
		Game:       Game{ID: "g1"},
		DistanceKm: ptr(7.0),
		Criteria:   Criteria{MaxDistanceKm: 30},
	}

	first, why1, _ := beginWeighted(t, rule).Score(c)
	for i := 0; i < 20; i++ {
		got, why, _ := beginWeighted(t, rule).Score(c)
		if got != first || why != why1 {
			t.Fatalf("相同输入应得到相同结果: %v/%q vs %v/%q", first, why1, got, why)
		}
	}
}

// ── 外部模型策略测试 ──

type fakeRecommender struct {
	result *RecommendResult
	err    error
	delay  time.Duration
	calls  int
	last   RecommendRequest
}

func (f *fakeRecommender) Recommend(ctx context.Context, req RecommendRequest) (*RecommendResult, error) {
	f.calls++
	f.last = req
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

func TestModelStrategy_Score(t *testing.T) {
	rec := &fakeRecommender{result: &RecommendResult{
		Model: "ref-ranker-v2",
		Recommendations: []Recommendation{
			{GameID: "g1", RefereeID: "r1", Confidence: 0.6, Reasoning: "常驻该场地"},
			{GameID: "g1", RefereeID: "r1", Confidence: 0.9},
			{GameID: "g1", RefereeID: "r2", Confidence: 1.7},
			{GameID: "g9", RefereeID: "r1", Confidence: 0.8},
			{GameID: "g1", RefereeID: "ghost", Confidence: 0.8},
		},
	}}
	temp := 0.2
	in := PlanInput{
		Games:        []Game{{ID: "g1"}},
		Referees:     []Referee{{ID: "r1"}, {ID: "r2"}, {ID: "r3"}},
		Rule:         Rule{Strategy: StrategyExternalModel, Model: ModelSettings{Temperature: &temp}},
		ContextNotes: "决赛周",
	}

	sc, err := NewModelStrategy(rec, time.Second).Begin(context.Background(), in)
	if err != nil {
		t.Fatalf("Begin 应成功: %v", err)
	}
	if rec.last.ContextNotes != "决赛周" || rec.last.Settings.Temperature == nil || *rec.last.Settings.Temperature != 0.2 {
		t.Errorf("请求应透传上下文与模型配置: %+v", rec.last)
	}

	score, why, ok := sc.Score(Candidate{Referee: Referee{ID: "r1"}, Game: Game{ID: "g1"}})
	if !ok || score != 0.9 {
		t.Errorf("重复推荐应保留最高置信度，实际 %v %v", score, ok)
	}
	if why != "模型推荐(ref-ranker-v2)" {
		t.Errorf("无理由时使用模型名，实际 %q", why)
	}
	if score, _, _ := sc.Score(Candidate{Referee: Referee{ID: "r2"}, Game: Game{ID: "g1"}}); score != 1 {
		t.Errorf("置信度应截断到 1，实际 %v", score)
	}
	if _, _, ok := sc.Score(Candidate{Referee: Referee{ID: "r3"}, Game: Game{ID: "g1"}}); ok {
		t.Error("未推荐的裁判应返回 ok=false")
	}

	summary := sc.Summary()
	if summary["model"] != "ref-ranker-v2" || summary["unknown_recommendations"] != 2 {
		t.Errorf("汇总信息错误: %v", summary)
	}
}

func TestModelStrategy_Timeout(t *testing.T) {
	rec := &fakeRecommender{delay: time.Second, result: &RecommendResult{}}

	_, err := NewModelStrategy(rec, 20*time.Millisecond).Begin(context.Background(), PlanInput{})
	var me *ModelError
	if !errors.As(err, &me) {
		t.Fatalf("期望 *ModelError，实际: %v", err)
	}
	if !me.Timeout {
		t.Error("超时应标记 Timeout=true")
	}
}

func TestModelStrategy_Failure(t *testing.T) {
	cause := errors.New("503 service unavailable")
	rec := &fakeRecommender{err: cause}

	_, err := NewModelStrategy(rec, time.Second).Begin(context.Background(), PlanInput{})
	var me *ModelError
	if !errors.As(err, &me) || me.Timeout {
		t.Fatalf("期望非超时 *ModelError，实际: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("应能解包出原始错误")
	}
}

func TestModelStrategy_NilResult(t *testing.T) {
	_, err := NewModelStrategy(&fakeRecommender{}, 0).Begin(context.Background(), PlanInput{})
	var me *ModelError
	if !errors.As(err, &me) {
		t.Fatalf("空结果应作为 *ModelError 返回，实际: %v", err)
	}
}
