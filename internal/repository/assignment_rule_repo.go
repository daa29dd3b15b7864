package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"sports-manager/backend/internal/model"
	pkgerrors "sports-manager/backend/pkg/errors"
)

// RuleFilter 规则列表筛选
type RuleFilter struct {
	Enabled *bool
	Offset  int
	Limit   int
}

// AssignmentRuleRepository 分配规则数据访问接口
type AssignmentRuleRepository interface {
	Create(ctx context.Context, rule *model.AssignmentRule) error
	GetByID(ctx context.Context, id string) (*model.AssignmentRule, error)
	List(ctx context.Context, filter RuleFilter) ([]model.AssignmentRule, int64, error)
	Update(ctx context.Context, rule *model.AssignmentRule) error
	Delete(ctx context.Context, id, deletedBy string) error
	// ListDue 启用且 next_run_at <= now 的规则，按 next_run_at 升序
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.AssignmentRule, error)
	SetNextRunAt(ctx context.Context, id string, next *time.Time) error
	// MarkRunFailed 运行在提交前失败时记录 last_run
	MarkRunFailed(ctx context.Context, id string, at time.Time) error
}

type assignmentRuleRepo struct {
	db *gorm.DB
}

func NewAssignmentRuleRepo(db *gorm.DB) AssignmentRuleRepository {
	return &assignmentRuleRepo{db: db}
}

// Create 写入规则本身，搭档偏好另行维护
func (r *assignmentRuleRepo) Create(ctx context.Context, rule *model.AssignmentRule) error {
	return r.db.WithContext(ctx).Omit("PartnerPreferences").Create(rule).Error
}

func (r *assignmentRuleRepo) GetByID(ctx context.Context, id string) (*model.AssignmentRule, error) {
	var rule model.AssignmentRule
	err := r.db.WithContext(ctx).
		Preload("PartnerPreferences", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, preference_id ASC")
		}).
		Where("rule_id = ?", id).
		First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *assignmentRuleRepo) List(ctx context.Context, filter RuleFilter) ([]model.AssignmentRule, int64, error) {
	var rules []model.AssignmentRule
	var total int64

	query := r.db.WithContext(ctx).Model(&model.AssignmentRule{})
	if filter.Enabled != nil {
		query = query.Where("enabled = ?", *filter.Enabled)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.
		Order("created_at DESC, rule_id ASC").
		Offset(filter.Offset).Limit(filter.Limit).
		Find(&rules).Error
	return rules, total, err
}

func (r *assignmentRuleRepo) Update(ctx context.Context, rule *model.AssignmentRule) error {
	oldVersion := rule.Version
	result := r.db.WithContext(ctx).
		Model(rule).
		Where("rule_id = ? AND version = ?", rule.RuleID, oldVersion).
		Updates(map[string]interface{}{
			"name":           rule.Name,
			"description":    rule.Description,
			"enabled":        rule.Enabled,
			"schedule_kind":  rule.ScheduleKind,
			"frequency":      rule.Frequency,
			"anchor":         rule.Anchor,
			"day_of_week":    rule.DayOfWeek,
			"day_of_month":   rule.DayOfMonth,
			"valid_from":     rule.ValidFrom,
			"valid_until":    rule.ValidUntil,
			"strategy":       rule.Strategy,
			"criteria":       rule.Criteria,
			"weights":        rule.Weights,
			"model_settings": rule.ModelSettings,
			"next_run_at":    rule.NextRunAt,
			"updated_by":     rule.UpdatedBy,
			"version":        oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	rule.Version = oldVersion + 1
	return nil
}

func (r *assignmentRuleRepo) Delete(ctx context.Context, id, deletedBy string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.AssignmentRule{}).
			Where("rule_id = ?", id).
			Update("deleted_by", deletedBy).Error; err != nil {
			return err
		}
		result := tx.Where("rule_id = ?", id).Delete(&model.AssignmentRule{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *assignmentRuleRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]model.AssignmentRule, error) {
	var rules []model.AssignmentRule
	err := r.db.WithContext(ctx).
		Where("enabled = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, now).
		Order("next_run_at ASC, rule_id ASC").
		Limit(limit).
		Find(&rules).Error
	return rules, err
}

// SetNextRunAt 仅修改调度列，不递增版本号
func (r *assignmentRuleRepo) SetNextRunAt(ctx context.Context, id string, next *time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.AssignmentRule{}).
		Where("rule_id = ?", id).
		Update("next_run_at", next).Error
}

func (r *assignmentRuleRepo) MarkRunFailed(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.AssignmentRule{}).
		Where("rule_id = ?", id).
		Updates(map[string]interface{}{
			"total_runs":      gorm.Expr("total_runs + 1"),
			"last_run_at":     at,
			"last_run_status": "failed",
		}).Error
}
