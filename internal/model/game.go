package model

import (
	"time"

	"gorm.io/gorm"
)

// 比赛状态
const (
	GameStatusScheduled = "scheduled"
	GameStatusCancelled = "cancelled"
)

// Game 比赛（赛程模块维护，分配引擎只读）— 对应 games
type Game struct {
	GameID     string    `gorm:"type:varchar(36);primaryKey"                json:"game_id"`
	StartsAt   time.Time `gorm:"not null;index"                             json:"starts_at"`
	EndsAt     time.Time `gorm:"not null"                                   json:"ends_at"`
	Venue      string    `gorm:"type:varchar(200)"                          json:"venue,omitempty"`
	VenueLat   *float64  `json:"venue_lat,omitempty"`
	VenueLng   *float64  `json:"venue_lng,omitempty"`
	RefsNeeded int       `gorm:"not null;default:2"                         json:"refs_needed"`
	GameType   string    `gorm:"type:varchar(50)"                           json:"game_type,omitempty"`
	Level      string    `gorm:"type:varchar(50)"                           json:"level,omitempty"`
	AgeGroup   string    `gorm:"type:varchar(20)"                           json:"age_group,omitempty"`
	HomeTeam   string    `gorm:"type:varchar(100)"                          json:"home_team,omitempty"`
	AwayTeam   string    `gorm:"type:varchar(100)"                          json:"away_team,omitempty"`
	Status     string    `gorm:"type:varchar(20);not null;default:'scheduled'" json:"status"`
	BaseModel
}

// TableName 指定表名
func (Game) TableName() string { return "games" }

// BeforeCreate 生成主键
func (g *Game) BeforeCreate(_ *gorm.DB) error {
	ensureID(&g.GameID)
	return nil
}
