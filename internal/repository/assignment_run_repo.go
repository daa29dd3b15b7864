package repository

import (
	"context"

	"gorm.io/gorm"

	"sports-manager/backend/internal/model"
)

// AssignmentRunRepository 运行记录数据访问接口（只读，写入走 EngineStore）
type AssignmentRunRepository interface {
	GetByID(ctx context.Context, id string) (*model.AssignmentRun, error)
	ListByRule(ctx context.Context, ruleID string, offset, limit int) ([]model.AssignmentRun, int64, error)
	ListAssignments(ctx context.Context, runID string) ([]model.GameAssignment, error)
}

type assignmentRunRepo struct {
	db *gorm.DB
}

func NewAssignmentRunRepo(db *gorm.DB) AssignmentRunRepository {
	return &assignmentRunRepo{db: db}
}

func (r *assignmentRunRepo) GetByID(ctx context.Context, id string) (*model.AssignmentRun, error) {
	var run model.AssignmentRun
	if err := r.db.WithContext(ctx).Where("run_id = ?", id).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListByRule 列表不带方案快照，详情再单独取
func (r *assignmentRunRepo) ListByRule(ctx context.Context, ruleID string, offset, limit int) ([]model.AssignmentRun, int64, error) {
	var runs []model.AssignmentRun
	var total int64

	query := r.db.WithContext(ctx).Model(&model.AssignmentRun{}).Where("rule_id = ?", ruleID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.
		Omit("proposal").
		Order("run_at DESC, run_id ASC").
		Offset(offset).Limit(limit).
		Find(&runs).Error
	return runs, total, err
}

func (r *assignmentRunRepo) ListAssignments(ctx context.Context, runID string) ([]model.GameAssignment, error) {
	var rows []model.GameAssignment
	err := r.db.WithContext(ctx).
		Preload("Position").
		Where("run_id = ?", runID).
		Order("starts_at ASC, game_id ASC, position_id ASC").
		Find(&rows).Error
	return rows, err
}
