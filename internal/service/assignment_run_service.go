package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"sports-manager/backend/internal/dto"
	"sports-manager/backend/internal/engine"
	"sports-manager/backend/internal/model"
	"sports-manager/backend/internal/repository"
	pkgredis "sports-manager/backend/pkg/redis"
)

// RunOptions 单次运行参数
type RunOptions struct {
	DryRun       bool
	ContextNotes string
	Trigger      string // manual | schedule
	TriggeredBy  string
}

// AssignmentRunService 规则运行编排：加锁 → 加载 → 规划 → 执行 → 推进计划
type AssignmentRunService interface {
	// RunRule 提交失败时同时返回失败的运行记录与 *engine.CommitError
	RunRule(ctx context.Context, ruleID string, opts RunOptions) (*dto.RunResponse, error)
	ListRuns(ctx context.Context, ruleID string, req *dto.RunListRequest) ([]dto.RunResponse, int64, error)
	GetRun(ctx context.Context, runID string) (*dto.RunResponse, error)
	ExportRunCalendar(ctx context.Context, runID string) ([]byte, error)
}

type assignmentRunService struct {
	opts     Options
	repo     *repository.Repository
	planner  *engine.Planner
	executor *engine.Executor
	locker   *pkgredis.Client
	logger   *zap.Logger
	now      func() time.Time
}

// NewAssignmentRunService 创建 AssignmentRunService 实例
func NewAssignmentRunService(
	opts Options,
	repo *repository.Repository,
	planner *engine.Planner,
	executor *engine.Executor,
	locker *pkgredis.Client,
	logger *zap.Logger,
) AssignmentRunService {
	return &assignmentRunService{
		opts:     opts,
		repo:     repo,
		planner:  planner,
		executor: executor,
		locker:   locker,
		logger:   logger,
		now:      time.Now,
	}
}

// ────────────────────── RunRule ──────────────────────

func (s *assignmentRunService) RunRule(ctx context.Context, ruleID string, opts RunOptions) (resp *dto.RunResponse, err error) {
	if opts.Trigger == "" {
		opts.Trigger = TriggerManual
	}

	rule, err := s.repo.Rule.GetByID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		s.logger.Error("查询分配规则失败", zap.String("rule_id", ruleID), zap.Error(err))
		return nil, err
	}
	if !rule.Enabled && !(opts.DryRun && opts.Trigger == TriggerManual) {
		return nil, ErrRuleDisabled
	}

	release, err := s.lock(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	defer release()

	startedAt := s.now()
	if !opts.DryRun {
		// 无论成败都推进 next_run_at，坏规则不会让触发器原地打转
		defer func() {
			if err != nil {
				s.markFailed(ctx, ruleID, startedAt)
			}
			s.advanceSchedule(ctx, rule, startedAt)
		}()
	}

	engineRule := rule.EngineRule()
	if err := s.planner.ValidateRule(engineRule); err != nil {
		s.logger.Warn("分配规则配置无效", zap.String("rule_id", ruleID), zap.Error(err))
		return nil, err
	}

	in, err := s.loadCandidates(ctx, engineRule, startedAt)
	if err != nil {
		return nil, err
	}
	in.ContextNotes = opts.ContextNotes

	proposal, err := s.plan(ctx, in)
	if err != nil {
		return nil, err
	}

	rec, err := s.executor.Execute(ctx, proposal, engineRule, engine.ExecOptions{
		DryRun:      opts.DryRun,
		Trigger:     opts.Trigger,
		TriggeredBy: opts.TriggeredBy,
	})
	if rec == nil {
		return nil, err
	}
	return toRunResponseFromRecord(rec), err
}

// plan 外部模型失败且规则允许回退时改用加权策略重新规划
func (s *assignmentRunService) plan(ctx context.Context, in engine.PlanInput) (*engine.Proposal, error) {
	proposal, err := s.planner.Plan(ctx, in)
	if err == nil {
		return proposal, nil
	}

	var modelErr *engine.ModelError
	fallbackable := errors.As(err, &modelErr) || errors.Is(err, engine.ErrNoRecommender)
	if !fallbackable || !in.Rule.Model.FallbackToAlgorithmic {
		s.logger.Error("规划失败", zap.String("rule_id", in.Rule.ID), zap.Error(err))
		return nil, err
	}

	s.logger.Warn("外部模型不可用，回退到加权策略",
		zap.String("rule_id", in.Rule.ID),
		zap.Bool("timeout", modelErr != nil && modelErr.Timeout),
		zap.Error(err))

	fallback := in
	fallback.Rule.Strategy = engine.StrategyAlgorithmic
	if fallback.Rule.Weights.Sum() == 0 {
		fallback.Rule.Weights = engine.DefaultWeights
	}
	proposal, ferr := s.planner.Plan(ctx, fallback)
	if ferr != nil {
		s.logger.Error("回退规划失败", zap.String("rule_id", in.Rule.ID), zap.Error(ferr))
		return nil, ferr
	}
	proposal.Summary["fallback_reason"] = err.Error()
	proposal.Summary["requested_strategy"] = string(engine.StrategyExternalModel)
	return proposal, nil
}

func (s *assignmentRunService) loadCandidates(ctx context.Context, rule engine.Rule, now time.Time) (engine.PlanInput, error) {
	to := now.AddDate(0, 0, s.opts.daysAhead(rule.Criteria.MaxDaysAhead))

	games, err := s.repo.Candidate.ListGames(ctx, repository.GameFilter{
		From:      now,
		To:        to,
		GameTypes: rule.Criteria.GameTypes,
		AgeGroups: rule.Criteria.AgeGroups,
	})
	if err != nil {
		s.logger.Error("加载待分配比赛失败", zap.String("rule_id", rule.ID), zap.Error(err))
		return engine.PlanInput{}, err
	}

	referees, err := s.repo.Candidate.ListReferees(ctx, now)
	if err != nil {
		s.logger.Error("加载裁判失败", zap.String("rule_id", rule.ID), zap.Error(err))
		return engine.PlanInput{}, err
	}

	// 窗口两侧各放宽一天，覆盖跨窗口的重叠与背靠背间隔
	bookings, err := s.repo.Candidate.ListBookings(ctx, now.Add(-24*time.Hour), to.Add(24*time.Hour))
	if err != nil {
		s.logger.Error("加载已有安排失败", zap.String("rule_id", rule.ID), zap.Error(err))
		return engine.PlanInput{}, err
	}

	return engine.PlanInput{Games: games, Referees: referees, Rule: rule, Bookings: bookings}, nil
}

// lock 尽力而为：未配置 Redis 或 Redis 故障时不加锁继续执行
func (s *assignmentRunService) lock(ctx context.Context, ruleID string) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	l, err := s.locker.AcquireLock(ctx, "assignment_rule:"+ruleID, s.opts.RunLockTTL)
	if err != nil {
		if errors.Is(err, pkgredis.ErrLockHeld) {
			return nil, ErrRuleRunInProgress
		}
		s.logger.Warn("获取规则运行锁失败，继续无锁执行", zap.String("rule_id", ruleID), zap.Error(err))
		return noop, nil
	}
	return func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("释放规则运行锁失败", zap.String("rule_id", ruleID), zap.Error(err))
		}
	}, nil
}

func (s *assignmentRunService) markFailed(ctx context.Context, ruleID string, at time.Time) {
	if err := s.repo.Rule.MarkRunFailed(context.WithoutCancel(ctx), ruleID, at); err != nil {
		s.logger.Error("记录规则失败状态失败", zap.String("rule_id", ruleID), zap.Error(err))
	}
}

func (s *assignmentRunService) advanceSchedule(ctx context.Context, rule *model.AssignmentRule, ranAt time.Time) {
	var next *time.Time
	if rule.Enabled {
		next = nextRunAfter(rule.ScheduleSpec(), ranAt, s.opts.location(), true)
	}
	if err := s.repo.Rule.SetNextRunAt(context.WithoutCancel(ctx), rule.RuleID, next); err != nil {
		s.logger.Error("更新下次执行时间失败", zap.String("rule_id", rule.RuleID), zap.Error(err))
	}
}

// ────────────────────── 运行记录 ──────────────────────

func (s *assignmentRunService) ListRuns(ctx context.Context, ruleID string, req *dto.RunListRequest) ([]dto.RunResponse, int64, error) {
	runs, total, err := s.repo.Run.ListByRule(ctx, ruleID, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("列出运行记录失败", zap.String("rule_id", ruleID), zap.Error(err))
		return nil, 0, err
	}
	result := make([]dto.RunResponse, 0, len(runs))
	for i := range runs {
		result = append(result, toRunResponse(&runs[i], nil))
	}
	return result, total, nil
}

func (s *assignmentRunService) GetRun(ctx context.Context, runID string) (*dto.RunResponse, error) {
	run, proposal, err := s.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	resp := toRunResponse(run, proposal)
	return &resp, nil
}

func (s *assignmentRunService) loadRun(ctx context.Context, runID string) (*model.AssignmentRun, *engine.Proposal, error) {
	run, err := s.repo.Run.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrRunNotFound
		}
		s.logger.Error("查询运行记录失败", zap.String("run_id", runID), zap.Error(err))
		return nil, nil, err
	}
	proposal, err := repository.ProposalOf(run)
	if err != nil {
		s.logger.Error("解析方案快照失败", zap.String("run_id", runID), zap.Error(err))
		return nil, nil, err
	}
	return run, proposal, nil
}

// ── 内部辅助方法 ──

func toRunResponse(run *model.AssignmentRun, proposal *engine.Proposal) dto.RunResponse {
	return dto.RunResponse{
		ID:                 run.RunID,
		RuleID:             run.RuleID,
		RunAt:              dto.FormatTime(run.RunAt),
		Status:             run.Status,
		DryRun:             run.DryRun,
		Trigger:            run.Trigger,
		TriggeredBy:        run.TriggeredBy,
		GamesProcessed:     run.GamesProcessed,
		AssignmentsCreated: run.AssignmentsCreated,
		ConflictsFound:     run.ConflictsFound,
		DurationMs:         run.DurationMs,
		Error:              run.Error,
		Proposal:           proposal,
	}
}

func toRunResponseFromRecord(rec *engine.RunRecord) *dto.RunResponse {
	resp := &dto.RunResponse{
		ID:                 rec.ID,
		RuleID:             rec.RuleID,
		RunAt:              dto.FormatTime(rec.RunAt),
		Status:             string(rec.Status),
		DryRun:             rec.DryRun,
		Trigger:            rec.Trigger,
		GamesProcessed:     rec.GamesProcessed,
		AssignmentsCreated: rec.AssignmentsCreated,
		ConflictsFound:     rec.ConflictsFound,
		DurationMs:         rec.DurationMs,
		Proposal:           rec.Proposal,
	}
	if rec.TriggeredBy != "" {
		by := rec.TriggeredBy
		resp.TriggeredBy = &by
	}
	if rec.Error != "" {
		msg := rec.Error
		resp.Error = &msg
	}
	return resp
}
