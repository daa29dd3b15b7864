// Package recommender 是外部模型策略的 HTTP 协作者：
// 将候选比赛与裁判发送给托管的评分 / 语言模型服务，取回推荐分配。
package recommender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"sports-manager/backend/config"
	"sports-manager/backend/internal/engine"
)

// ErrUpstream 推荐服务返回非 2xx
var ErrUpstream = errors.New("推荐服务响应异常")

const maxResponseBytes = 4 << 20

// Client 推荐服务客户端，实现 engine.Recommender
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	http        *http.Client
	logger      *zap.Logger
}

// NewClient 创建客户端；超时由调用方 context 控制，http.Client 只设置兜底超时
func NewClient(cfg *config.ModelConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		http:        &http.Client{Timeout: 2 * timeout},
		logger:      logger,
	}
}

// ── 协议 ──

type wireGame struct {
	ID         string    `json:"id"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	Venue      string    `json:"venue,omitempty"`
	RefsNeeded int       `json:"refs_needed"`
	GameType   string    `json:"game_type,omitempty"`
	Level      string    `json:"level,omitempty"`
	AgeGroup   string    `json:"age_group,omitempty"`
	HomeTeam   string    `json:"home_team,omitempty"`
	AwayTeam   string    `json:"away_team,omitempty"`
}

type wireReferee struct {
	ID              string  `json:"id"`
	Level           string  `json:"level"`
	YearsExperience float64 `json:"years_experience"`
	Available       bool    `json:"available"`
	CurrentLoad     int     `json:"current_load"`
}

type requestBody struct {
	Model        string          `json:"model"`
	Temperature  float64         `json:"temperature"`
	Games        []wireGame      `json:"games"`
	Referees     []wireReferee   `json:"referees"`
	Criteria     engine.Criteria `json:"criteria"`
	ContextNotes string          `json:"context_notes,omitempty"`
	Options      map[string]any  `json:"options,omitempty"`
}

type responseBody struct {
	Model       string                  `json:"model"`
	Assignments []engine.Recommendation `json:"assignments"`
}

// Recommend 发送一次推荐请求。规则里的 model/temperature 优先于全局配置。
func (c *Client) Recommend(ctx context.Context, req engine.RecommendRequest) (*engine.RecommendResult, error) {
	body := requestBody{
		Model:        c.model,
		Temperature:  c.temperature,
		Games:        make([]wireGame, 0, len(req.Games)),
		Referees:     make([]wireReferee, 0, len(req.Referees)),
		Criteria:     req.Criteria,
		ContextNotes: req.ContextNotes,
		Options:      req.Settings.Options,
	}
	if req.Settings.Model != "" {
		body.Model = req.Settings.Model
	}
	if req.Settings.Temperature != nil {
		body.Temperature = *req.Settings.Temperature
	}
	for _, g := range req.Games {
		body.Games = append(body.Games, wireGame{
			ID: g.ID, StartsAt: g.StartsAt, EndsAt: g.EndsAt, Venue: g.Venue, RefsNeeded: g.RefsNeeded,
			GameType: g.GameType, Level: g.Level, AgeGroup: g.AgeGroup, HomeTeam: g.HomeTeam, AwayTeam: g.AwayTeam,
		})
	}
	for _, r := range req.Referees {
		body.Referees = append(body.Referees, wireReferee{
			ID: r.ID, Level: r.Level, YearsExperience: r.YearsExperience, Available: r.Available, CurrentLoad: r.CurrentLoad,
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("编码推荐请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构造推荐请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("调用推荐服务失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("读取推荐响应失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("推荐服务返回异常状态",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(raw, 512)))
		return nil, fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
	}

	var out responseBody
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("解析推荐响应失败: %w", err)
	}
	if out.Model == "" {
		out.Model = body.Model
	}

	c.logger.Info("推荐服务调用完成",
		zap.String("model", out.Model),
		zap.Int("games", len(body.Games)),
		zap.Int("referees", len(body.Referees)),
		zap.Int("recommendations", len(out.Assignments)),
		zap.Duration("latency", time.Since(started)))

	return &engine.RecommendResult{Model: out.Model, Recommendations: out.Assignments}, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
