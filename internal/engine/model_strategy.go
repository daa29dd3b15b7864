package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ── 外部模型策略 ──

// Recommendation 外部模型给出的一条推荐
type Recommendation struct {
	GameID     string  `json:"game_id"`
	RefereeID  string  `json:"referee_id"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// RecommendRequest 推荐请求
type RecommendRequest struct {
	Games        []Game        `json:"games"`
	Referees     []Referee     `json:"referees"`
	Criteria     Criteria      `json:"criteria"`
	ContextNotes string        `json:"context_notes,omitempty"`
	Settings     ModelSettings `json:"settings"`
}

// RecommendResult 推荐结果
type RecommendResult struct {
	Model           string           `json:"model"`
	Recommendations []Recommendation `json:"assignments"`
}

// Recommender 进程外的推荐服务（托管语言模型或评分服务）。
// 可能很慢且结果不确定，其输出仍需经过资格筛选与冲突检测。
type Recommender interface {
	Recommend(ctx context.Context, req RecommendRequest) (*RecommendResult, error)
}

// ModelStrategy 将评分委托给外部推荐服务
type ModelStrategy struct {
	recommender Recommender
	timeout     time.Duration
}

// NewModelStrategy 创建外部模型策略；timeout<=0 时不额外限时
func NewModelStrategy(r Recommender, timeout time.Duration) *ModelStrategy {
	return &ModelStrategy{recommender: r, timeout: timeout}
}

func (s *ModelStrategy) Kind() StrategyKind { return StrategyExternalModel }

// Begin 阻塞调用推荐服务。失败或超时一律返回 *ModelError，不会退化为空推荐。
func (s *ModelStrategy) Begin(ctx context.Context, in PlanInput) (Scorer, error) {
	if s.recommender == nil {
		return nil, ErrNoRecommender
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.recommender.Recommend(callCtx, RecommendRequest{
		Games:        in.Games,
		Referees:     in.Referees,
		Criteria:     in.Rule.Criteria,
		ContextNotes: in.ContextNotes,
		Settings:     in.Rule.Model,
	})
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		return nil, &ModelError{
			Timeout: errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded),
			Err:     err,
		}
	}
	if res == nil {
		return nil, &ModelError{Err: errors.New("推荐服务返回空结果")}
	}

	known := make(map[string]bool, len(in.Games)+len(in.Referees))
	for _, g := range in.Games {
		known["g:"+g.ID] = true
	}
	for _, r := range in.Referees {
		known["r:"+r.ID] = true
	}

	sc := &modelScorer{
		model:       res.Model,
		temperature: in.Rule.Model.Temperature,
		recs:        make(map[string]Recommendation, len(res.Recommendations)),
	}
	if sc.model == "" {
		sc.model = in.Rule.Model.Model
	}
	for _, r := range res.Recommendations {
		if !known["g:"+r.GameID] || !known["r:"+r.RefereeID] {
			sc.unknown++
			continue
		}
		key := r.GameID + "|" + r.RefereeID
		if prev, ok := sc.recs[key]; ok && prev.Confidence >= r.Confidence {
			continue
		}
		sc.recs[key] = r
	}
	return sc, nil
}

type modelScorer struct {
	model       string
	temperature *float64
	recs        map[string]Recommendation
	unknown     int
}

func (m *modelScorer) Score(c Candidate) (float64, string, bool) {
	r, ok := m.recs[c.Game.ID+"|"+c.Referee.ID]
	if !ok {
		return 0, "", false
	}
	why := r.Reasoning
	if why == "" {
		why = fmt.Sprintf("模型推荐(%s)", m.model)
	}
	return clamp01(r.Confidence), why, true
}

func (m *modelScorer) Summary() map[string]any {
	out := map[string]any{
		"model":                   m.model,
		"recommendations":         len(m.recs),
		"unknown_recommendations": m.unknown,
	}
	if m.temperature != nil {
		out["temperature"] = *m.temperature
	}
	return out
}
