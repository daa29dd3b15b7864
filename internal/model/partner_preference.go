package model

import (
	"gorm.io/gorm"

	"sports-manager/backend/internal/engine"
)

// RulePartnerPreference 规则内的裁判搭档偏好 — 对应 rule_partner_preferences
// RefereeAID < RefereeBID（规范化存储，保证同一对只有一条）
type RulePartnerPreference struct {
	PreferenceID string `gorm:"type:varchar(36);primaryKey"                                  json:"preference_id"`
	RuleID       string `gorm:"type:varchar(36);not null;uniqueIndex:uk_rule_partner_pair,priority:1" json:"rule_id"`
	RefereeAID   string `gorm:"column:referee_a_id;type:varchar(36);not null;uniqueIndex:uk_rule_partner_pair,priority:2" json:"referee_a_id"`
	RefereeBID   string `gorm:"column:referee_b_id;type:varchar(36);not null;uniqueIndex:uk_rule_partner_pair,priority:3" json:"referee_b_id"`
	Polarity     string `gorm:"type:varchar(20);not null"                                    json:"polarity"`
	Note         string `gorm:"type:varchar(200)"                                            json:"note,omitempty"`
	BaseModel
}

// TableName 指定表名
func (RulePartnerPreference) TableName() string { return "rule_partner_preferences" }

// BeforeCreate 生成主键并规范化裁判顺序
func (p *RulePartnerPreference) BeforeCreate(_ *gorm.DB) error {
	ensureID(&p.PreferenceID)
	p.Canonicalize()
	return nil
}

// Canonicalize 保证 A < B
func (p *RulePartnerPreference) Canonicalize() {
	if p.RefereeBID < p.RefereeAID {
		p.RefereeAID, p.RefereeBID = p.RefereeBID, p.RefereeAID
	}
}

// Engine 转换为引擎视图
func (p RulePartnerPreference) Engine() engine.PartnerPreference {
	return engine.PartnerPreference{
		RefereeA: p.RefereeAID,
		RefereeB: p.RefereeBID,
		Polarity: engine.Polarity(p.Polarity),
	}
}
