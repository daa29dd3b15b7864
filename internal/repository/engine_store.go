package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sports-manager/backend/internal/engine"
	"sports-manager/backend/internal/model"
	pkgerrors "sports-manager/backend/pkg/errors"
)

const positionPrefix = "Referee "

// engineStore 基于 GORM 的 engine.Store 实现
type engineStore struct {
	db *gorm.DB
}

// NewEngineStore 创建执行器使用的持久化适配
func NewEngineStore(db *gorm.DB) engine.Store {
	return &engineStore{db: db}
}

func (s *engineStore) WithinTx(ctx context.Context, fn func(tx engine.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&engineStore{db: tx})
	})
}

// ResolvePositions 补建缺失的 "Referee N" 岗位后一次性查回
func (s *engineStore) ResolvePositions(ctx context.Context, names []string) (map[string]string, error) {
	wanted := make([]model.RefereePosition, 0, len(names))
	for _, name := range names {
		order, ok := positionOrder(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", engine.ErrPositionNotFound, name)
		}
		wanted = append(wanted, model.RefereePosition{Name: name, SortOrder: order})
	}
	if len(wanted) > 0 {
		err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
			Create(&wanted).Error
		if err != nil {
			return nil, err
		}
	}

	var positions []model.RefereePosition
	if err := s.db.WithContext(ctx).Where("name IN ?", names).Find(&positions).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(positions))
	for _, p := range positions {
		out[p.Name] = p.PositionID
	}
	for _, name := range names {
		if _, ok := out[name]; !ok {
			return nil, fmt.Errorf("%w: %s", engine.ErrPositionNotFound, name)
		}
	}
	return out, nil
}

func positionOrder(name string) (int, bool) {
	if !strings.HasPrefix(name, positionPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, positionPrefix))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (s *engineStore) InsertAssignments(ctx context.Context, rows []engine.AssignmentRow) error {
	if len(rows) == 0 {
		return nil
	}
	items := make([]model.GameAssignment, len(rows))
	for i, row := range rows {
		runID, ruleID := row.RunID, row.RuleID
		items[i] = model.GameAssignment{
			GameID:     row.GameID,
			PositionID: row.PositionID,
			RefereeID:  row.RefereeID,
			RuleID:     &ruleID,
			RunID:      &runID,
			Score:      row.Score,
			Rationale:  truncate(row.Rationale, 500),
			Status:     model.AssignmentStatusAssigned,
			StartsAt:   row.StartsAt,
			EndsAt:     row.EndsAt,
		}
	}

	err := s.db.WithContext(ctx).CreateInBatches(&items, 200).Error
	switch {
	case err == nil:
		return nil
	case pkgerrors.IsExclusionViolation(err):
		return fmt.Errorf("%w（约束 %s）", engine.ErrRefereeConflict, pkgerrors.PgConstraint(err))
	case isDuplicate(err):
		return ErrAssignmentExists
	default:
		return err
	}
}

func (s *engineStore) IncrementRuleCounters(ctx context.Context, ruleID string, assignmentsDelta, conflictsDelta int, status engine.RunStatus, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&model.AssignmentRule{}).
		Where("rule_id = ?", ruleID).
		Updates(map[string]interface{}{
			"total_runs":          gorm.Expr("total_runs + 1"),
			"assignments_created": gorm.Expr("assignments_created + ?", assignmentsDelta),
			"conflicts_found":     gorm.Expr("conflicts_found + ?", conflictsDelta),
			"last_run_at":         at,
			"last_run_status":     string(status),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *engineStore) InsertRunRecord(ctx context.Context, rec *engine.RunRecord) error {
	run, err := toRunModel(rec)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(run).Error
}

func toRunModel(rec *engine.RunRecord) (*model.AssignmentRun, error) {
	run := &model.AssignmentRun{
		RunID:              rec.ID,
		RuleID:             rec.RuleID,
		RunAt:              rec.RunAt,
		Status:             string(rec.Status),
		DryRun:             rec.DryRun,
		Trigger:            rec.Trigger,
		GamesProcessed:     rec.GamesProcessed,
		AssignmentsCreated: rec.AssignmentsCreated,
		ConflictsFound:     rec.ConflictsFound,
		DurationMs:         rec.DurationMs,
	}
	if run.Trigger == "" {
		run.Trigger = "manual"
	}
	if rec.TriggeredBy != "" {
		by := rec.TriggeredBy
		run.TriggeredBy = &by
	}
	if rec.Error != "" {
		msg := rec.Error
		run.Error = &msg
	}
	if rec.Proposal != nil {
		raw, err := json.Marshal(rec.Proposal)
		if err != nil {
			return nil, fmt.Errorf("序列化方案快照失败: %w", err)
		}
		run.Proposal = datatypes.JSON(raw)
	}
	return run, nil
}

// ProposalOf 还原运行记录中的方案快照
func ProposalOf(run *model.AssignmentRun) (*engine.Proposal, error) {
	if len(run.Proposal) == 0 {
		return nil, nil
	}
	var p engine.Proposal
	if err := json.Unmarshal(run.Proposal, &p); err != nil {
		return nil, fmt.Errorf("解析方案快照失败: %w", err)
	}
	return &p, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
