package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"sports-manager/backend/internal/dto"
	"sports-manager/backend/internal/engine"
	"sports-manager/backend/internal/model"
	"sports-manager/backend/internal/repository"
)

// AssignmentRuleService 分配规则管理接口
type AssignmentRuleService interface {
	Create(ctx context.Context, req *dto.CreateAssignmentRuleRequest, callerID string) (*dto.AssignmentRuleResponse, error)
	GetByID(ctx context.Context, id string) (*dto.AssignmentRuleResponse, error)
	List(ctx context.Context, req *dto.AssignmentRuleListRequest) ([]dto.AssignmentRuleResponse, int64, error)
	Update(ctx context.Context, id string, req *dto.UpdateAssignmentRuleRequest, callerID string) (*dto.AssignmentRuleResponse, error)
	Delete(ctx context.Context, id, callerID string) error
	PreviewNextRun(ctx context.Context, id string, from *time.Time) (*dto.NextRunResponse, error)

	ListPartnerPreferences(ctx context.Context, ruleID string) ([]dto.PartnerPreferenceResponse, error)
	CreatePartnerPreference(ctx context.Context, ruleID string, req *dto.CreatePartnerPreferenceRequest, callerID string) (*dto.PartnerPreferenceResponse, error)
	DeletePartnerPreference(ctx context.Context, ruleID, prefID string) error
}

type assignmentRuleService struct {
	opts    Options
	repo    *repository.Repository
	planner *engine.Planner
	logger  *zap.Logger
	now     func() time.Time
}

// NewAssignmentRuleService 创建 AssignmentRuleService 实例
func NewAssignmentRuleService(opts Options, repo *repository.Repository, planner *engine.Planner, logger *zap.Logger) AssignmentRuleService {
	return &assignmentRuleService{opts: opts, repo: repo, planner: planner, logger: logger, now: time.Now}
}

// ────────────────────── Create ──────────────────────

func (s *assignmentRuleService) Create(ctx context.Context, req *dto.CreateAssignmentRuleRequest, callerID string) (*dto.AssignmentRuleResponse, error) {
	schedule, err := scheduleFromRequest(req.Schedule)
	if err != nil {
		return nil, err
	}

	rule := &model.AssignmentRule{
		Name:        req.Name,
		Description: req.Description,
		Enabled:     true,
		Strategy:    req.Strategy,
		Criteria:    datatypes.NewJSONType(criteriaFromRequest(req.Criteria)),
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.Weights != nil {
		rule.Weights = datatypes.NewJSONType(weightsFromRequest(*req.Weights))
	}
	if req.ModelSettings != nil {
		rule.ModelSettings = datatypes.NewJSONType(modelSettingsFromRequest(*req.ModelSettings))
	}
	rule.SetSchedule(schedule)
	rule.Version = 1
	rule.CreatedBy = &callerID
	rule.UpdatedBy = &callerID

	if err := s.planner.ValidateRule(rule.EngineRule()); err != nil {
		return nil, err
	}
	s.refreshNextRun(rule)

	if err := s.repo.Rule.Create(ctx, rule); err != nil {
		s.logger.Error("创建分配规则失败", zap.String("name", req.Name), zap.Error(err))
		return nil, err
	}

	s.logger.Info("分配规则已创建",
		zap.String("rule_id", rule.RuleID),
		zap.String("strategy", rule.Strategy),
		zap.String("schedule", rule.ScheduleKind))
	return toRuleResponse(rule), nil
}

// ────────────────────── GetByID ──────────────────────

func (s *assignmentRuleService) GetByID(ctx context.Context, id string) (*dto.AssignmentRuleResponse, error) {
	rule, err := s.loadRule(ctx, id)
	if err != nil {
		return nil, err
	}
	return toRuleResponse(rule), nil
}

// ────────────────────── List ──────────────────────

func (s *assignmentRuleService) List(ctx context.Context, req *dto.AssignmentRuleListRequest) ([]dto.AssignmentRuleResponse, int64, error) {
	rules, total, err := s.repo.Rule.List(ctx, repository.RuleFilter{
		Enabled: req.Enabled,
		Offset:  req.GetOffset(),
		Limit:   req.GetPageSize(),
	})
	if err != nil {
		s.logger.Error("列出分配规则失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.AssignmentRuleResponse, 0, len(rules))
	for i := range rules {
		result = append(result, *toRuleResponse(&rules[i]))
	}
	return result, total, nil
}

// ────────────────────── Update ──────────────────────

func (s *assignmentRuleService) Update(ctx context.Context, id string, req *dto.UpdateAssignmentRuleRequest, callerID string) (*dto.AssignmentRuleResponse, error) {
	rule, err := s.loadRule(ctx, id)
	if err != nil {
		return nil, err
	}

	// 客户端持有的版本号，过期时由仓储层返回乐观锁冲突
	rule.Version = req.Version

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.Schedule != nil {
		schedule, err := scheduleFromRequest(*req.Schedule)
		if err != nil {
			return nil, err
		}
		rule.SetSchedule(schedule)
	}
	if req.Criteria != nil {
		rule.Criteria = datatypes.NewJSONType(criteriaFromRequest(*req.Criteria))
	}
	if req.Strategy != nil {
		rule.Strategy = *req.Strategy
	}
	if req.Weights != nil {
		rule.Weights = datatypes.NewJSONType(weightsFromRequest(*req.Weights))
	}
	if req.ModelSettings != nil {
		rule.ModelSettings = datatypes.NewJSONType(modelSettingsFromRequest(*req.ModelSettings))
	}
	rule.UpdatedBy = &callerID

	if err := s.planner.ValidateRule(rule.EngineRule()); err != nil {
		return nil, err
	}
	s.refreshNextRun(rule)

	if err := s.repo.Rule.Update(ctx, rule); err != nil {
		s.logger.Error("更新分配规则失败", zap.String("rule_id", id), zap.Error(err))
		return nil, err
	}
	return toRuleResponse(rule), nil
}

// ────────────────────── Delete ──────────────────────

func (s *assignmentRuleService) Delete(ctx context.Context, id, callerID string) error {
	if err := s.repo.Rule.Delete(ctx, id, callerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRuleNotFound
		}
		s.logger.Error("删除分配规则失败", zap.String("rule_id", id), zap.Error(err))
		return err
	}
	s.logger.Info("分配规则已删除", zap.String("rule_id", id), zap.String("by", callerID))
	return nil
}

// ────────────────────── PreviewNextRun ──────────────────────

func (s *assignmentRuleService) PreviewNextRun(ctx context.Context, id string, from *time.Time) (*dto.NextRunResponse, error) {
	rule, err := s.loadRule(ctx, id)
	if err != nil {
		return nil, err
	}

	at := s.now()
	if from != nil {
		at = *from
	}
	schedule := rule.ScheduleSpec()
	next := nextRunAfter(schedule, at, s.opts.location(), false)
	return &dto.NextRunResponse{
		RuleID:  rule.RuleID,
		From:    dto.FormatTime(at.In(s.opts.location())),
		NextRun: dto.FormatTimePtr(inLocation(next, s.opts.location())),
		Expired: schedule.Kind == engine.ScheduleRecurring && next == nil,
	}, nil
}

// ────────────────────── 搭档偏好 ──────────────────────

func (s *assignmentRuleService) ListPartnerPreferences(ctx context.Context, ruleID string) ([]dto.PartnerPreferenceResponse, error) {
	if _, err := s.loadRule(ctx, ruleID); err != nil {
		return nil, err
	}
	prefs, err := s.repo.Partner.ListByRule(ctx, ruleID)
	if err != nil {
		s.logger.Error("列出搭档偏好失败", zap.String("rule_id", ruleID), zap.Error(err))
		return nil, err
	}
	result := make([]dto.PartnerPreferenceResponse, 0, len(prefs))
	for i := range prefs {
		result = append(result, toPartnerResponse(&prefs[i]))
	}
	return result, nil
}

func (s *assignmentRuleService) CreatePartnerPreference(ctx context.Context, ruleID string, req *dto.CreatePartnerPreferenceRequest, callerID string) (*dto.PartnerPreferenceResponse, error) {
	if req.RefereeAID == req.RefereeBID {
		return nil, ErrSelfPartner
	}
	if _, err := s.loadRule(ctx, ruleID); err != nil {
		return nil, err
	}

	pref := &model.RulePartnerPreference{
		RuleID:     ruleID,
		RefereeAID: req.RefereeAID,
		RefereeBID: req.RefereeBID,
		Polarity:   req.Polarity,
		Note:       req.Note,
	}
	pref.Canonicalize()
	pref.CreatedBy = &callerID

	if err := s.repo.Partner.Create(ctx, pref); err != nil {
		if errors.Is(err, repository.ErrDuplicatePartner) {
			return nil, ErrDuplicatePartner
		}
		s.logger.Error("创建搭档偏好失败", zap.String("rule_id", ruleID), zap.Error(err))
		return nil, err
	}
	resp := toPartnerResponse(pref)
	return &resp, nil
}

func (s *assignmentRuleService) DeletePartnerPreference(ctx context.Context, ruleID, prefID string) error {
	if err := s.repo.Partner.Delete(ctx, ruleID, prefID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPartnerNotFound
		}
		s.logger.Error("删除搭档偏好失败", zap.String("rule_id", ruleID), zap.String("preference_id", prefID), zap.Error(err))
		return err
	}
	return nil
}

// ── 内部辅助方法 ──

func (s *assignmentRuleService) loadRule(ctx context.Context, id string) (*model.AssignmentRule, error) {
	rule, err := s.repo.Rule.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		s.logger.Error("查询分配规则失败", zap.String("rule_id", id), zap.Error(err))
		return nil, err
	}
	return rule, nil
}

// refreshNextRun 停用或手动规则不参与定时触发
func (s *assignmentRuleService) refreshNextRun(rule *model.AssignmentRule) {
	if !rule.Enabled {
		rule.NextRunAt = nil
		return
	}
	rule.NextRunAt = nextRunAfter(rule.ScheduleSpec(), s.now(), s.opts.location(), false)
}

func scheduleFromRequest(req dto.ScheduleRequest) (engine.Schedule, error) {
	s := engine.Schedule{
		Kind:       engine.ScheduleKind(req.Kind),
		Frequency:  engine.Frequency(req.Frequency),
		Anchor:     req.Anchor,
		DayOfMonth: req.DayOfMonth,
		ValidFrom:  utcPtr(req.ValidFrom),
		ValidUntil: utcPtr(req.ValidUntil),
	}
	if req.DayOfWeek != nil {
		d, ok := engine.ParseWeekday(*req.DayOfWeek)
		if !ok {
			return engine.Schedule{}, ErrInvalidWeekday
		}
		s.DayOfWeek = &d
	}
	return s, nil
}

func criteriaFromRequest(req dto.CriteriaRequest) engine.Criteria {
	return engine.Criteria{
		GameTypes:            req.GameTypes,
		AgeGroups:            req.AgeGroups,
		MaxDaysAhead:         req.MaxDaysAhead,
		MinRefereeLevel:      req.MinRefereeLevel,
		MaxDistanceKm:        req.MaxDistanceKm,
		PrioritizeExperience: req.PrioritizeExperience,
		AvoidBackToBack:      req.AvoidBackToBack,
	}
}

func weightsFromRequest(req dto.WeightsRequest) engine.Weights {
	return engine.Weights{Distance: req.Distance, Skill: req.Skill, Experience: req.Experience, Partner: req.Partner}
}

func modelSettingsFromRequest(req dto.ModelSettingsRequest) engine.ModelSettings {
	return engine.ModelSettings{
		Model:                 req.Model,
		Temperature:           req.Temperature,
		FallbackToAlgorithmic: req.FallbackToAlgorithmic,
		Options:               req.Options,
	}
}

func toRuleResponse(rule *model.AssignmentRule) *dto.AssignmentRuleResponse {
	s := rule.ScheduleSpec()
	resp := &dto.AssignmentRuleResponse{
		ID:          rule.RuleID,
		Name:        rule.Name,
		Description: rule.Description,
		Enabled:     rule.Enabled,
		Schedule: dto.ScheduleResponse{
			Kind:       string(s.Kind),
			Frequency:  string(s.Frequency),
			Anchor:     s.Anchor,
			DayOfMonth: s.DayOfMonth,
			ValidFrom:  dto.FormatTimePtr(s.ValidFrom),
			ValidUntil: dto.FormatTimePtr(s.ValidUntil),
		},
		Criteria:           rule.Criteria.Data(),
		Strategy:           rule.Strategy,
		TotalRuns:          rule.TotalRuns,
		AssignmentsCreated: rule.AssignmentsCreated,
		ConflictsFound:     rule.ConflictsFound,
		LastRunAt:          dto.FormatTimePtr(rule.LastRunAt),
		LastRunStatus:      rule.LastRunStatus,
		NextRunAt:          dto.FormatTimePtr(rule.NextRunAt),
		Version:            rule.Version,
		CreatedAt:          dto.FormatTime(rule.CreatedAt),
		UpdatedAt:          dto.FormatTime(rule.UpdatedAt),
	}
	if s.DayOfWeek != nil {
		name := engine.WeekdayName(*s.DayOfWeek)
		resp.Schedule.DayOfWeek = &name
	}
	switch engine.StrategyKind(rule.Strategy) {
	case engine.StrategyAlgorithmic:
		w := rule.Weights.Data()
		resp.Weights = &w
	case engine.StrategyExternalModel:
		m := rule.ModelSettings.Data()
		resp.ModelSettings = &m
	}
	for i := range rule.PartnerPreferences {
		resp.PartnerPreferences = append(resp.PartnerPreferences, toPartnerResponse(&rule.PartnerPreferences[i]))
	}
	return resp
}

func toPartnerResponse(p *model.RulePartnerPreference) dto.PartnerPreferenceResponse {
	return dto.PartnerPreferenceResponse{
		ID:         p.PreferenceID,
		RuleID:     p.RuleID,
		RefereeAID: p.RefereeAID,
		RefereeBID: p.RefereeBID,
		Polarity:   p.Polarity,
		Note:       p.Note,
		CreatedAt:  dto.FormatTime(p.CreatedAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func inLocation(t *time.Time, loc *time.Location) *time.Time {
	if t == nil {
		return nil
	}
	l := t.In(loc)
	return &l
}
