package repository

import (
	"context"

	"gorm.io/gorm"

	"sports-manager/backend/internal/model"
)

// PartnerPreferenceRepository 搭档偏好数据访问接口
type PartnerPreferenceRepository interface {
	ListByRule(ctx context.Context, ruleID string) ([]model.RulePartnerPreference, error)
	GetByID(ctx context.Context, id string) (*model.RulePartnerPreference, error)
	Create(ctx context.Context, pref *model.RulePartnerPreference) error
	Delete(ctx context.Context, ruleID, id string) error
}

type partnerPreferenceRepo struct {
	db *gorm.DB
}

func NewPartnerPreferenceRepo(db *gorm.DB) PartnerPreferenceRepository {
	return &partnerPreferenceRepo{db: db}
}

func (r *partnerPreferenceRepo) ListByRule(ctx context.Context, ruleID string) ([]model.RulePartnerPreference, error) {
	var prefs []model.RulePartnerPreference
	err := r.db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		Order("created_at ASC, preference_id ASC").
		Find(&prefs).Error
	return prefs, err
}

func (r *partnerPreferenceRepo) GetByID(ctx context.Context, id string) (*model.RulePartnerPreference, error) {
	var pref model.RulePartnerPreference
	if err := r.db.WithContext(ctx).Where("preference_id = ?", id).First(&pref).Error; err != nil {
		return nil, err
	}
	return &pref, nil
}

func (r *partnerPreferenceRepo) Create(ctx context.Context, pref *model.RulePartnerPreference) error {
	err := r.db.WithContext(ctx).Create(pref).Error
	if isDuplicate(err) {
		return ErrDuplicatePartner
	}
	return err
}

func (r *partnerPreferenceRepo) Delete(ctx context.Context, ruleID, id string) error {
	result := r.db.WithContext(ctx).
		Where("rule_id = ? AND preference_id = ?", ruleID, id).
		Delete(&model.RulePartnerPreference{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
