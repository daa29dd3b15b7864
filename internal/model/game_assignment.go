package model

import (
	"time"

	"gorm.io/gorm"
)

// 分配状态
const (
	AssignmentStatusAssigned  = "assigned"
	AssignmentStatusDeclined  = "declined"
	AssignmentStatusCancelled = "cancelled"
)

// GameAssignment 比赛裁判分配 — 对应 game_assignments
// 同一比赛同一岗位的有效分配唯一（declined/cancelled 释放岗位）；
// 同一裁判的有效分配时段不得重叠（PostgreSQL 排他约束）
type GameAssignment struct {
	AssignmentID string    `gorm:"type:varchar(36);primaryKey"                               json:"assignment_id"`
	GameID       string    `gorm:"type:varchar(36);not null;uniqueIndex:uk_game_position,priority:1,where:status = 'assigned'" json:"game_id"`
	PositionID   string    `gorm:"type:varchar(36);not null;uniqueIndex:uk_game_position,priority:2,where:status = 'assigned'" json:"position_id"`
	RefereeID    string    `gorm:"type:varchar(36);not null;index"                           json:"referee_id"`
	RuleID       *string   `gorm:"type:varchar(36)"                                          json:"rule_id,omitempty"`
	RunID        *string   `gorm:"type:varchar(36);index"                                    json:"run_id,omitempty"`
	Score        float64   `gorm:"not null;default:0"                                        json:"score"`
	Rationale    string    `gorm:"type:varchar(500)"                                         json:"rationale,omitempty"`
	Status       string    `gorm:"type:varchar(20);not null;default:'assigned'"              json:"status"`
	StartsAt     time.Time `gorm:"not null"                                                  json:"starts_at"`
	EndsAt       time.Time `gorm:"not null"                                                  json:"ends_at"`
	BaseModel

	Position *RefereePosition `gorm:"foreignKey:PositionID;references:PositionID" json:"position,omitempty"`
}

// TableName 指定表名
func (GameAssignment) TableName() string { return "game_assignments" }

// BeforeCreate 生成主键
func (a *GameAssignment) BeforeCreate(_ *gorm.DB) error {
	ensureID(&a.AssignmentID)
	return nil
}
