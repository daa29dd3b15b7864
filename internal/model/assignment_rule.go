package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"sports-manager/backend/internal/engine"
)

// AssignmentRule 裁判分配规则 — 对应 assignment_rules
type AssignmentRule struct {
	RuleID      string `gorm:"type:varchar(36);primaryKey" json:"rule_id"`
	Name        string `gorm:"type:varchar(100);not null"  json:"name"`
	Description string `gorm:"type:varchar(500)"           json:"description,omitempty"`
	Enabled     bool   `gorm:"not null"                    json:"enabled"` // 列默认值只在迁移中声明，零值 false 需原样写入

	// 执行计划（和类型，组合合法性由 engine.Schedule.Validate 保证）
	ScheduleKind string     `gorm:"type:varchar(20);not null;default:'manual'" json:"schedule_kind"`
	Frequency    *string    `gorm:"type:varchar(20)"                           json:"frequency,omitempty"`
	Anchor       *string    `gorm:"type:varchar(5)"                            json:"anchor,omitempty"`
	DayOfWeek    *int       `gorm:"type:smallint"                              json:"day_of_week,omitempty"`
	DayOfMonth   *int       `gorm:"type:smallint"                              json:"day_of_month,omitempty"`
	ValidFrom    *time.Time `json:"valid_from,omitempty"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`

	// 策略
	Strategy      string                                   `gorm:"type:varchar(20);not null" json:"strategy"`
	Criteria      datatypes.JSONType[engine.Criteria]      `json:"criteria"`
	Weights       datatypes.JSONType[engine.Weights]       `json:"weights"`
	ModelSettings datatypes.JSONType[engine.ModelSettings] `json:"model_settings"`

	// 累计统计（仅通过原子递增修改）
	TotalRuns          int64      `gorm:"not null;default:0" json:"total_runs"`
	AssignmentsCreated int64      `gorm:"not null;default:0" json:"assignments_created"`
	ConflictsFound     int64      `gorm:"not null;default:0" json:"conflicts_found"`
	LastRunAt          *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus      *string    `gorm:"type:varchar(20)" json:"last_run_status,omitempty"`
	NextRunAt          *time.Time `gorm:"index" json:"next_run_at,omitempty"`

	VersionedModel

	PartnerPreferences []RulePartnerPreference `gorm:"foreignKey:RuleID;references:RuleID" json:"partner_preferences,omitempty"`
}

// TableName 指定表名
func (AssignmentRule) TableName() string { return "assignment_rules" }

// BeforeCreate 生成主键
func (r *AssignmentRule) BeforeCreate(_ *gorm.DB) error {
	ensureID(&r.RuleID)
	return nil
}

// ScheduleSpec 还原引擎的计划视图
func (r *AssignmentRule) ScheduleSpec() engine.Schedule {
	s := engine.Schedule{
		Kind:       engine.ScheduleKind(r.ScheduleKind),
		ValidFrom:  r.ValidFrom,
		ValidUntil: r.ValidUntil,
	}
	if r.Frequency != nil {
		s.Frequency = engine.Frequency(*r.Frequency)
	}
	if r.Anchor != nil {
		s.Anchor = *r.Anchor
	}
	if r.DayOfWeek != nil {
		d := time.Weekday(*r.DayOfWeek)
		s.DayOfWeek = &d
	}
	if r.DayOfMonth != nil {
		d := *r.DayOfMonth
		s.DayOfMonth = &d
	}
	return s
}

// SetSchedule 写入计划字段
func (r *AssignmentRule) SetSchedule(s engine.Schedule) {
	r.ScheduleKind = string(s.Kind)
	r.Frequency, r.Anchor, r.DayOfWeek, r.DayOfMonth = nil, nil, nil, nil
	if s.Frequency != "" {
		f := string(s.Frequency)
		r.Frequency = &f
	}
	if s.Anchor != "" {
		a := s.Anchor
		r.Anchor = &a
	}
	if s.DayOfWeek != nil {
		d := int(*s.DayOfWeek)
		r.DayOfWeek = &d
	}
	if s.DayOfMonth != nil {
		d := *s.DayOfMonth
		r.DayOfMonth = &d
	}
	r.ValidFrom = s.ValidFrom
	r.ValidUntil = s.ValidUntil
}

// EngineRule 转换为引擎使用的不可变规则视图
func (r *AssignmentRule) EngineRule() engine.Rule {
	rule := engine.Rule{
		ID:       r.RuleID,
		Name:     r.Name,
		Enabled:  r.Enabled,
		Schedule: r.ScheduleSpec(),
		Criteria: r.Criteria.Data(),
		Strategy: engine.StrategyKind(r.Strategy),
		Weights:  r.Weights.Data(),
		Model:    r.ModelSettings.Data(),
	}
	for _, p := range r.PartnerPreferences {
		rule.Partners = append(rule.Partners, p.Engine())
	}
	return rule
}
