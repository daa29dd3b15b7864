package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ════════════════════════════════════════════════════════════
// RunExecutor — 应用或丢弃方案
// ════════════════════════════════════════════════════════════

// AssignmentRow 提交时写入的一条分配
type AssignmentRow struct {
	RunID      string
	RuleID     string
	GameID     string
	RefereeID  string
	PositionID string
	Score      float64
	Rationale  string
	StartsAt   time.Time
	EndsAt     time.Time
}

// Store 持久化协作者。WithinTx 内的 tx 与外层实现同一接口，
// 回调返回错误时整个事务回滚。
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Store) error) error
	// ResolvePositions 岗位名 → 岗位 ID；实现可补建缺失岗位，无法解析时返回 ErrPositionNotFound
	ResolvePositions(ctx context.Context, names []string) (map[string]string, error)
	InsertAssignments(ctx context.Context, rows []AssignmentRow) error
	// IncrementRuleCounters 原子递增规则计数并记录 last_run / last_run_status
	IncrementRuleCounters(ctx context.Context, ruleID string, assignmentsDelta, conflictsDelta int, status RunStatus, at time.Time) error
	InsertRunRecord(ctx context.Context, rec *RunRecord) error
}

// AuditSink 审计协作者，接收每一条运行记录
type AuditSink interface {
	RecordRun(ctx context.Context, rec *RunRecord)
}

// ExecOptions 单次执行选项
type ExecOptions struct {
	DryRun      bool
	Trigger     string // manual | schedule
	TriggeredBy string // 手动触发时的操作人
}

// Executor 提交方案：要么全部写入，要么一条都不写
type Executor struct {
	store  Store
	audit  AuditSink
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewExecutor 创建执行器；audit 可为 nil
func NewExecutor(store Store, audit AuditSink, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		store:  store,
		audit:  audit,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// StatusFor 无缺口为 success，否则 partial
func StatusFor(p *Proposal) RunStatus {
	if p.TotalConflicts == 0 {
		return RunStatusSuccess
	}
	return RunStatusPartial
}

// Execute 总会产生一条运行记录。
// 试运行只写审计记录，不触碰分配与规则计数；
// 正式运行在同一事务内批量写入分配、递增计数并写入记录。
// 提交失败时返回 *CommitError，记录以 failed 状态单独落库。
func (e *Executor) Execute(ctx context.Context, p *Proposal, rule Rule, opts ExecOptions) (*RunRecord, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: 方案为空", ErrInvalidRule)
	}

	rec := &RunRecord{
		ID:                 e.newID(),
		RuleID:             rule.ID,
		RunAt:              e.now(),
		Status:             StatusFor(p),
		DryRun:             opts.DryRun,
		Trigger:            opts.Trigger,
		TriggeredBy:        opts.TriggeredBy,
		GamesProcessed:     p.GamesProcessed,
		AssignmentsCreated: p.TotalAssignments,
		ConflictsFound:     p.TotalConflicts,
		DurationMs:         p.DurationMs,
		Proposal:           p,
	}

	if opts.DryRun {
		if err := e.store.InsertRunRecord(ctx, rec); err != nil {
			e.logger.Error("写入试运行记录失败", zap.String("rule_id", rule.ID), zap.Error(err))
			return rec, fmt.Errorf("写入运行记录失败: %w", err)
		}
		e.notify(ctx, rec)
		return rec, nil
	}

	err := e.store.WithinTx(ctx, func(tx Store) error {
		rows, err := e.buildRows(ctx, tx, p, rule, rec.ID)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.InsertAssignments(ctx, rows); err != nil {
				return err
			}
		}
		if err := tx.IncrementRuleCounters(ctx, rule.ID, p.TotalAssignments, p.TotalConflicts, rec.Status, rec.RunAt); err != nil {
			return err
		}
		return tx.InsertRunRecord(ctx, rec)
	})
	if err != nil {
		rec.Status = RunStatusFailed
		rec.AssignmentsCreated = 0
		rec.Error = err.Error()
		e.logger.Error("提交分配方案失败",
			zap.String("rule_id", rule.ID),
			zap.String("run_id", rec.ID),
			zap.Int("games", rec.GamesProcessed),
			zap.Int("conflicts", rec.ConflictsFound),
			zap.Error(err))
		if auditErr := e.store.InsertRunRecord(ctx, rec); auditErr != nil {
			e.logger.Error("写入失败运行记录失败", zap.String("run_id", rec.ID), zap.Error(auditErr))
		}
		e.notify(ctx, rec)
		return rec, &CommitError{Record: rec, Err: err}
	}

	e.notify(ctx, rec)
	return rec, nil
}

func (e *Executor) buildRows(ctx context.Context, tx Store, p *Proposal, rule Rule, runID string) ([]AssignmentRow, error) {
	var names []string
	seen := make(map[string]bool)
	for _, a := range p.Assignments() {
		if !seen[a.Position] {
			seen[a.Position] = true
			names = append(names, a.Position)
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	positions, err := tx.ResolvePositions(ctx, names)
	if err != nil {
		return nil, err
	}

	rows := make([]AssignmentRow, 0, p.TotalAssignments)
	for _, g := range p.Games {
		for _, a := range g.Assignments {
			posID, ok := positions[a.Position]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, a.Position)
			}
			rows = append(rows, AssignmentRow{
				RunID:      runID,
				RuleID:     rule.ID,
				GameID:     a.GameID,
				RefereeID:  a.RefereeID,
				PositionID: posID,
				Score:      a.Score,
				Rationale:  a.Rationale,
				StartsAt:   g.StartsAt,
				EndsAt:     g.EndsAt,
			})
		}
	}
	return rows, nil
}

func (e *Executor) notify(ctx context.Context, rec *RunRecord) {
	if e.audit != nil {
		e.audit.RecordRun(ctx, rec)
	}
}
