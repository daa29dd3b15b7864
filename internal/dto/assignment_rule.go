package dto

import (
	"time"

	"sports-manager/backend/internal/engine"
)

// ── 分配规则模块 DTO ──

// ScheduleRequest 执行计划
type ScheduleRequest struct {
	Kind       string     `json:"kind"         binding:"required,oneof=manual recurring"`
	Frequency  string     `json:"frequency"    binding:"omitempty,oneof=daily weekly monthly"`
	Anchor     string     `json:"anchor"       binding:"omitempty,hhmm"`
	DayOfWeek  *string    `json:"day_of_week"  binding:"omitempty,weekday"`
	DayOfMonth *int       `json:"day_of_month" binding:"omitempty,min=1,max=31"`
	ValidFrom  *time.Time `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until"`
}

// CriteriaRequest 候选筛选条件
type CriteriaRequest struct {
	GameTypes            []string `json:"game_types"            binding:"omitempty,dive,min=1,max=50"`
	AgeGroups            []string `json:"age_groups"            binding:"omitempty,dive,min=1,max=20"`
	MaxDaysAhead         int      `json:"max_days_ahead"        binding:"min=0,max=365"`
	MinRefereeLevel      string   `json:"min_referee_level"     binding:"omitempty,max=50"`
	MaxDistanceKm        float64  `json:"max_distance_km"       binding:"min=0"`
	PrioritizeExperience bool     `json:"prioritize_experience"`
	AvoidBackToBack      bool     `json:"avoid_back_to_back"`
}

// WeightsRequest 加权策略权重（0-100，按比例归一化）
type WeightsRequest struct {
	Distance   float64 `json:"distance"   binding:"min=0,max=100"`
	Skill      float64 `json:"skill"      binding:"min=0,max=100"`
	Experience float64 `json:"experience" binding:"min=0,max=100"`
	Partner    float64 `json:"partner"    binding:"min=0,max=100"`
}

// ModelSettingsRequest 外部模型配置
type ModelSettingsRequest struct {
	Model                 string         `json:"model"       binding:"omitempty,max=100"`
	Temperature           *float64       `json:"temperature" binding:"omitempty,min=0,max=2"` // 省略时沿用全局配置
	FallbackToAlgorithmic bool           `json:"fallback_to_algorithmic"`
	Options               map[string]any `json:"options"`
}

// CreateAssignmentRuleRequest 创建分配规则请求
type CreateAssignmentRuleRequest struct {
	Name          string                `json:"name"        binding:"required,min=1,max=100"`
	Description   string                `json:"description" binding:"omitempty,max=500"`
	Enabled       *bool                 `json:"enabled"`
	Schedule      ScheduleRequest       `json:"schedule"    binding:"required"`
	Criteria      CriteriaRequest       `json:"criteria"`
	Strategy      string                `json:"strategy"    binding:"required,oneof=algorithmic external_model"`
	Weights       *WeightsRequest       `json:"weights"`
	ModelSettings *ModelSettingsRequest `json:"model_settings"`
}

// UpdateAssignmentRuleRequest 更新分配规则请求（未提供的字段保持不变）
type UpdateAssignmentRuleRequest struct {
	Name          *string               `json:"name"        binding:"omitempty,min=1,max=100"`
	Description   *string               `json:"description" binding:"omitempty,max=500"`
	Enabled       *bool                 `json:"enabled"`
	Schedule      *ScheduleRequest      `json:"schedule"`
	Criteria      *CriteriaRequest      `json:"criteria"`
	Strategy      *string               `json:"strategy"    binding:"omitempty,oneof=algorithmic external_model"`
	Weights       *WeightsRequest       `json:"weights"`
	ModelSettings *ModelSettingsRequest `json:"model_settings"`
	Version       int                   `json:"version"     binding:"required,min=1"`
}

// AssignmentRuleListRequest 规则列表查询参数
type AssignmentRuleListRequest struct {
	Enabled *bool `form:"enabled"`
	PaginationRequest
}

// NextRunRequest 预览下次执行时间
type NextRunRequest struct {
	From *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
}

// CreatePartnerPreferenceRequest 创建搭档偏好请求
type CreatePartnerPreferenceRequest struct {
	RefereeAID string `json:"referee_a_id" binding:"required,max=36"`
	RefereeBID string `json:"referee_b_id" binding:"required,max=36,nefield=RefereeAID"`
	Polarity   string `json:"polarity"     binding:"required,oneof=preferred avoid"`
	Note       string `json:"note"         binding:"omitempty,max=200"`
}

// ── 响应 ──

// ScheduleResponse 执行计划
type ScheduleResponse struct {
	Kind       string  `json:"kind"`
	Frequency  string  `json:"frequency,omitempty"`
	Anchor     string  `json:"anchor,omitempty"`
	DayOfWeek  *string `json:"day_of_week,omitempty"`
	DayOfMonth *int    `json:"day_of_month,omitempty"`
	ValidFrom  *string `json:"valid_from,omitempty"`
	ValidUntil *string `json:"valid_until,omitempty"`
}

// AssignmentRuleResponse 分配规则响应
type AssignmentRuleResponse struct {
	ID                 string                      `json:"id"`
	Name               string                      `json:"name"`
	Description        string                      `json:"description,omitempty"`
	Enabled            bool                        `json:"enabled"`
	Schedule           ScheduleResponse            `json:"schedule"`
	Criteria           engine.Criteria             `json:"criteria"`
	Strategy           string                      `json:"strategy"`
	Weights            *engine.Weights             `json:"weights,omitempty"`
	ModelSettings      *engine.ModelSettings       `json:"model_settings,omitempty"`
	TotalRuns          int64                       `json:"total_runs"`
	AssignmentsCreated int64                       `json:"assignments_created"`
	ConflictsFound     int64                       `json:"conflicts_found"`
	LastRunAt          *string                     `json:"last_run_at,omitempty"`
	LastRunStatus      *string                     `json:"last_run_status,omitempty"`
	NextRunAt          *string                     `json:"next_run_at,omitempty"`
	PartnerPreferences []PartnerPreferenceResponse `json:"partner_preferences,omitempty"`
	Version            int                         `json:"version"`
	CreatedAt          string                      `json:"created_at"`
	UpdatedAt          string                      `json:"updated_at"`
}

// PartnerPreferenceResponse 搭档偏好响应
type PartnerPreferenceResponse struct {
	ID         string `json:"id"`
	RuleID     string `json:"rule_id"`
	RefereeAID string `json:"referee_a_id"`
	RefereeBID string `json:"referee_b_id"`
	Polarity   string `json:"polarity"`
	Note       string `json:"note,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// NextRunResponse 下次执行时间预览
type NextRunResponse struct {
	RuleID  string  `json:"rule_id"`
	From    string  `json:"from"`
	NextRun *string `json:"next_run"` // null 表示手动计划或已过期
	Expired bool    `json:"expired"`
}

// FormatTime 统一的时间输出格式
func FormatTime(t time.Time) string {
	return t.Format(timeLayout)
}

// FormatTimePtr nil 安全的时间格式化
func FormatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatTime(*t)
	return &s
}
