package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"sports-manager/backend/config"
	"sports-manager/backend/internal/dto"
	"sports-manager/backend/internal/model"
	"sports-manager/backend/internal/service"
)

// ════════════════════════════════════════════════════════════
// 定时触发器 — 周期扫描到期规则并逐条执行
// ════════════════════════════════════════════════════════════
//
// 触发器只读取 next_run_at；下一次时间由运行服务在每次运行后写回。

const defaultBatchSize = 20

// DueRules 到期规则来源
type DueRules interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.AssignmentRule, error)
}

// Runner 规则执行入口
type Runner interface {
	RunRule(ctx context.Context, ruleID string, opts service.RunOptions) (*dto.RunResponse, error)
}

// Trigger cron 驱动的规则轮询器
type Trigger struct {
	cron   *cron.Cron
	rules  DueRules
	runner Runner
	cfg    config.TriggerConfig
	logger *zap.Logger
	now    func() time.Time
}

// New 注册轮询任务；上一轮未结束时跳过本轮
func New(cfg config.TriggerConfig, rules DueRules, runner Runner, logger *zap.Logger) (*Trigger, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	logger = logger.Named("trigger")
	cl := cronLogger{logger.Sugar()}

	t := &Trigger{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		rules:  rules,
		runner: runner,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	if _, err := t.cron.AddFunc(cfg.Spec, func() { t.Tick(context.Background()) }); err != nil {
		return nil, fmt.Errorf("无效的 trigger.spec %q: %w", cfg.Spec, err)
	}
	return t, nil
}

// Start 启动调度（非阻塞）
func (t *Trigger) Start() {
	t.cron.Start()
	t.logger.Info("定时触发器已启动", zap.String("spec", t.cfg.Spec), zap.Int("batch_size", t.cfg.BatchSize))
}

// Stop 停止调度并等待进行中的轮询结束，ctx 到期后返回 ctx.Err()
func (t *Trigger) Stop(ctx context.Context) error {
	done := t.cron.Stop()
	select {
	case <-done.Done():
		t.logger.Info("定时触发器已停止")
		return nil
	case <-ctx.Done():
		t.logger.Warn("等待进行中的规则运行超时")
		return ctx.Err()
	}
}

// Tick 扫描一轮到期规则，返回成功执行的数量
func (t *Trigger) Tick(ctx context.Context) int {
	now := t.now()
	due, err := t.rules.ListDue(ctx, now, t.cfg.BatchSize)
	if err != nil {
		t.logger.Error("查询到期规则失败", zap.Error(err))
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	ran := 0
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		if t.runOne(ctx, &due[i]) {
			ran++
		}
	}
	t.logger.Info("本轮定时触发完成", zap.Int("due", len(due)), zap.Int("ran", ran))
	return ran
}

func (t *Trigger) runOne(ctx context.Context, rule *model.AssignmentRule) bool {
	runCtx := ctx
	if t.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.cfg.RunTimeout)
		defer cancel()
	}

	resp, err := t.runner.RunRule(runCtx, rule.RuleID, service.RunOptions{Trigger: service.TriggerSchedule})
	switch {
	case errors.Is(err, service.ErrRuleRunInProgress):
		t.logger.Info("规则正在运行，跳过", zap.String("rule_id", rule.RuleID))
		return false
	case err != nil:
		fields := []zap.Field{zap.String("rule_id", rule.RuleID), zap.Error(err)}
		if resp != nil {
			fields = append(fields, zap.String("run_id", resp.ID))
		}
		t.logger.Error("定时运行规则失败", fields...)
		return false
	}
	return true
}

// cronLogger 将 cron 内部日志转给 zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
