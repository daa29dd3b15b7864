package service

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"sports-manager/backend/config"
	"sports-manager/backend/internal/engine"
	"sports-manager/backend/internal/repository"
	pkgredis "sports-manager/backend/pkg/redis"
)

// ── 分配模块业务错误 ──

var (
	ErrRuleNotFound       = errors.New("分配规则不存在")
	ErrRuleDisabled       = errors.New("分配规则已停用，仅允许手动试运行")
	ErrRuleRunInProgress  = errors.New("该规则正在运行，请稍后重试")
	ErrRunNotFound        = errors.New("运行记录不存在")
	ErrPartnerNotFound    = errors.New("搭档偏好不存在")
	ErrSelfPartner        = errors.New("搭档偏好必须是两名不同的裁判")
	ErrDuplicatePartner   = repository.ErrDuplicatePartner
	ErrInvalidWeekday     = errors.New("day_of_week 必须为 monday…sunday")
	ErrNoProposalSnapshot = errors.New("运行记录缺少方案快照")
)

// 运行触发方式
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

// Options 服务层可调参数
type Options struct {
	Location         *time.Location // 执行计划 anchor 所在时区
	RunLockTTL       time.Duration
	DefaultDaysAhead int // 规则未设置 max_days_ahead 时的默认窗口（天）
}

// OptionsFromConfig 从全局配置提取服务参数
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	loc, err := cfg.Engine.Location()
	if err != nil {
		return Options{}, err
	}
	return Options{Location: loc, RunLockTTL: cfg.Engine.RunLockTTL, DefaultDaysAhead: defaultDaysAhead}, nil
}

const defaultDaysAhead = 7

// Service 所有 Service 的聚合入口
type Service struct {
	Rule AssignmentRuleService
	Run  AssignmentRunService
}

// NewService 创建 Service 聚合；locker 为 nil 时不加运行锁
func NewService(
	opts Options,
	repo *repository.Repository,
	planner *engine.Planner,
	executor *engine.Executor,
	locker *pkgredis.Client,
	logger *zap.Logger,
) *Service {
	return &Service{
		Rule: NewAssignmentRuleService(opts, repo, planner, logger),
		Run:  NewAssignmentRunService(opts, repo, planner, executor, locker, logger),
	}
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

func (o Options) daysAhead(configured int) int {
	if configured > 0 {
		return configured
	}
	if o.DefaultDaysAhead > 0 {
		return o.DefaultDaysAhead
	}
	return defaultDaysAhead
}

// nextRunAfter 计算 now 之后的下一次执行（UTC）。
// 运行结束后调用时跳到下一分钟，避免同一 anchor 被重复触发。
func nextRunAfter(s engine.Schedule, now time.Time, loc *time.Location, strict bool) *time.Time {
	from := now.In(loc)
	if strict {
		from = from.Truncate(time.Minute).Add(time.Minute)
	}
	next, ok := engine.NextRun(s, from)
	if !ok {
		return nil
	}
	utc := next.UTC()
	return &utc
}
