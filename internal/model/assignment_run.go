package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AssignmentRun 规则运行审计记录 — 对应 assignment_runs（只插入，不更新）
type AssignmentRun struct {
	RunID              string         `gorm:"type:varchar(36);primaryKey"       json:"run_id"`
	RuleID             string         `gorm:"type:varchar(36);not null;index"   json:"rule_id"`
	RunAt              time.Time      `gorm:"not null;index"                    json:"run_at"`
	Status             string         `gorm:"type:varchar(20);not null"         json:"status"`
	DryRun             bool           `gorm:"not null;default:false"            json:"dry_run"`
	Trigger            string         `gorm:"type:varchar(20);not null"         json:"trigger"`
	TriggeredBy        *string        `gorm:"type:varchar(64)"                  json:"triggered_by,omitempty"`
	GamesProcessed     int            `gorm:"not null;default:0"                json:"games_processed"`
	AssignmentsCreated int            `gorm:"not null;default:0"                json:"assignments_created"`
	ConflictsFound     int            `gorm:"not null;default:0"                json:"conflicts_found"`
	DurationMs         int64          `gorm:"not null;default:0"                json:"duration_ms"`
	Proposal           datatypes.JSON `json:"proposal"`
	Error              *string        `gorm:"type:text"                         json:"error,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName 指定表名
func (AssignmentRun) TableName() string { return "assignment_runs" }

// BeforeCreate 生成主键
func (r *AssignmentRun) BeforeCreate(_ *gorm.DB) error {
	ensureID(&r.RunID)
	return nil
}
