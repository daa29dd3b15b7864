package model

import "gorm.io/gorm"

// Referee 裁判（人事模块维护，分配引擎只读）— 对应 referees
type Referee struct {
	RefereeID       string   `gorm:"type:varchar(36);primaryKey"   json:"referee_id"`
	Name            string   `gorm:"type:varchar(100);not null"    json:"name"`
	Email           string   `gorm:"type:varchar(200)"             json:"email,omitempty"`
	Level           string   `gorm:"type:varchar(50);not null"     json:"level"`
	YearsExperience float64  `gorm:"not null;default:0"            json:"years_experience"`
	Available       bool     `gorm:"not null"                      json:"available"`
	IsActive        bool     `gorm:"not null;index"                json:"is_active"`
	HomeLat         *float64 `json:"home_lat,omitempty"`
	HomeLng         *float64 `json:"home_lng,omitempty"`
	BaseModel
}

// TableName 指定表名
func (Referee) TableName() string { return "referees" }

// BeforeCreate 生成主键
func (r *Referee) BeforeCreate(_ *gorm.DB) error {
	ensureID(&r.RefereeID)
	return nil
}

// RefereePosition 执裁岗位（Referee 1、Referee 2 …）— 对应 referee_positions
type RefereePosition struct {
	PositionID string `gorm:"type:varchar(36);primaryKey"          json:"position_id"`
	Name       string `gorm:"type:varchar(50);not null;uniqueIndex" json:"name"`
	SortOrder  int    `gorm:"not null;default:0"                   json:"sort_order"`
}

// TableName 指定表名
func (RefereePosition) TableName() string { return "referee_positions" }

// BeforeCreate 生成主键
func (p *RefereePosition) BeforeCreate(_ *gorm.DB) error {
	ensureID(&p.PositionID)
	return nil
}
