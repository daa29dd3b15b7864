package engine

import "time"

// ── 规则 ──

// StrategyKind 评分策略类型
type StrategyKind string

const (
	StrategyAlgorithmic   StrategyKind = "algorithmic"    // 加权算法
	StrategyExternalModel StrategyKind = "external_model" // 外部模型推荐
)

// Weights 加权策略的四项权重（百分比 0-100，使用前除以 100）
type Weights struct {
	Distance   float64 `json:"distance"`
	Skill      float64 `json:"skill"`
	Experience float64 `json:"experience"`
	Partner    float64 `json:"partner"`
}

// DefaultWeights 规则未配置权重时（例如外部模型回退）使用
var DefaultWeights = Weights{Distance: 40, Skill: 30, Experience: 20, Partner: 10}

// Normalized 返回归一化后的权重（0-1）
func (w Weights) Normalized() Weights {
	return Weights{
		Distance:   w.Distance / 100,
		Skill:      w.Skill / 100,
		Experience: w.Experience / 100,
		Partner:    w.Partner / 100,
	}
}

// Sum 百分比权重之和，合理配置应接近 100
func (w Weights) Sum() float64 {
	return w.Distance + w.Skill + w.Experience + w.Partner
}

// ModelSettings 外部模型策略配置（对引擎不透明，原样透传给推荐服务）
type ModelSettings struct {
	Model                 string         `json:"model,omitempty"`
	Temperature           *float64       `json:"temperature,omitempty"` // nil 时使用推荐服务的全局配置
	FallbackToAlgorithmic bool           `json:"fallback_to_algorithmic"`
	Options               map[string]any `json:"options,omitempty"`
}

// Criteria 规则筛选条件
type Criteria struct {
	GameTypes            []string `json:"game_types,omitempty"`
	AgeGroups            []string `json:"age_groups,omitempty"`
	MaxDaysAhead         int      `json:"max_days_ahead"`
	MinRefereeLevel      string   `json:"min_referee_level,omitempty"`
	MaxDistanceKm        float64  `json:"max_distance_km"` // <=0 表示不限
	PrioritizeExperience bool     `json:"prioritize_experience"`
	AvoidBackToBack      bool     `json:"avoid_back_to_back"`
}

// Polarity 搭档偏好极性
type Polarity string

const (
	PolarityPreferred Polarity = "preferred"
	PolarityAvoid     Polarity = "avoid"
)

// PartnerPreference 规则内的一对裁判偏好（两人顺序无语义）
type PartnerPreference struct {
	RefereeA string   `json:"referee_a_id"`
	RefereeB string   `json:"referee_b_id"`
	Polarity Polarity `json:"polarity"`
}

// Partner 若偏好涉及 refereeID，返回另一方
func (p PartnerPreference) Partner(refereeID string) (string, bool) {
	switch refereeID {
	case p.RefereeA:
		return p.RefereeB, true
	case p.RefereeB:
		return p.RefereeA, true
	}
	return "", false
}

// Rule 一条分配规则在单次运行中的不可变视图
type Rule struct {
	ID       string
	Name     string
	Enabled  bool
	Schedule Schedule
	Criteria Criteria
	Strategy StrategyKind
	Weights  Weights
	Model    ModelSettings
	Partners []PartnerPreference
}

// ── 候选数据（外部实体，只读） ──

// GeoPoint 经纬度
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Game 待分配比赛
type Game struct {
	ID         string    `json:"id"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	Venue      string    `json:"venue,omitempty"`
	Location   *GeoPoint `json:"location,omitempty"`
	RefsNeeded int       `json:"refs_needed"`
	GameType   string    `json:"game_type,omitempty"`
	Level      string    `json:"level,omitempty"`
	AgeGroup   string    `json:"age_group,omitempty"`
	HomeTeam   string    `json:"home_team,omitempty"`
	AwayTeam   string    `json:"away_team,omitempty"`
}

// Referee 候选裁判
type Referee struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Available       bool      `json:"available"`
	Level           string    `json:"level"`
	YearsExperience float64   `json:"years_experience"`
	Location        *GeoPoint `json:"location,omitempty"`
	CurrentLoad     int       `json:"current_load"`
}

// Booking 裁判已有的（已持久化的）执裁安排
type Booking struct {
	RefereeID string
	GameID    string
	Position  string // 已占用的岗位名；为空时按最小空闲编号占位
	StartsAt  time.Time
	EndsAt    time.Time
}

// ── 方案 ──

// ProposedAssignment 单个裁判-比赛-岗位候选
type ProposedAssignment struct {
	GameID      string   `json:"game_id"`
	RefereeID   string   `json:"referee_id"`
	RefereeName string   `json:"referee_name,omitempty"`
	Position    string   `json:"position"`
	Score       float64  `json:"score"`
	Rationale   string   `json:"rationale"`
	DistanceKm  *float64 `json:"distance_km,omitempty"`
}

// Conflict 比赛未满足的执裁需求（非合并冲突）
type Conflict struct {
	GameID   string `json:"game_id"`
	Reason   string `json:"reason"`
	Needed   int    `json:"needed"`
	Assigned int    `json:"assigned"`
}

// GameProposal 单场比赛的分配结果
type GameProposal struct {
	GameID      string               `json:"game_id"`
	StartsAt    time.Time            `json:"starts_at"`
	EndsAt      time.Time            `json:"ends_at"`
	RefsNeeded  int                  `json:"refs_needed"`
	Assignments []ProposedAssignment `json:"assignments"`
	Conflicts   []Conflict           `json:"conflicts,omitempty"`
}

// Proposal 一次规划的完整输出，提交前仅存在于内存
type Proposal struct {
	RuleID           string         `json:"rule_id"`
	Strategy         StrategyKind   `json:"strategy"`
	Games            []GameProposal `json:"games"`
	GamesProcessed   int            `json:"games_processed"`
	TotalAssignments int            `json:"total_assignments"`
	TotalConflicts   int            `json:"total_conflicts"`
	AverageScore     float64        `json:"average_score"`
	DurationMs       int64          `json:"duration_ms"`
	Summary          map[string]any `json:"summary,omitempty"`
	GeneratedAt      time.Time      `json:"generated_at"`
}

// Assignments 展开所有比赛的分配
func (p *Proposal) Assignments() []ProposedAssignment {
	out := make([]ProposedAssignment, 0, p.TotalAssignments)
	for _, g := range p.Games {
		out = append(out, g.Assignments...)
	}
	return out
}

// Conflicts 展开所有比赛的缺口
func (p *Proposal) Conflicts() []Conflict {
	out := make([]Conflict, 0, p.TotalConflicts)
	for _, g := range p.Games {
		out = append(out, g.Conflicts...)
	}
	return out
}

// ── 运行记录 ──

// RunStatus 运行状态
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success" // 无缺口
	RunStatusPartial RunStatus = "partial" // 有缺口
	RunStatusFailed  RunStatus = "failed"  // 提交失败，未写入任何分配
)

// RunRecord 不可变的运行审计记录
type RunRecord struct {
	ID                 string    `json:"id"`
	RuleID             string    `json:"rule_id"`
	RunAt              time.Time `json:"run_at"`
	Status             RunStatus `json:"status"`
	DryRun             bool      `json:"dry_run"`
	Trigger            string    `json:"trigger,omitempty"`
	TriggeredBy        string    `json:"triggered_by,omitempty"`
	GamesProcessed     int       `json:"games_processed"`
	AssignmentsCreated int       `json:"assignments_created"`
	ConflictsFound     int       `json:"conflicts_found"`
	DurationMs         int64     `json:"duration_ms"`
	Proposal           *Proposal `json:"proposal"`
	Error              string    `json:"error,omitempty"`
}
