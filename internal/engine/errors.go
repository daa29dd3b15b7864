package engine

import (
	"errors"
	"fmt"
)

// ── 配置错误：阻止规划开始，绝不静默默认 ──

var (
	ErrInvalidSchedule  = errors.New("执行计划配置无效")
	ErrUnknownStrategy  = errors.New("未知的评分策略")
	ErrInvalidRule      = errors.New("分配规则配置无效")
	ErrNoRecommender    = errors.New("外部模型策略未配置推荐服务")
	ErrRefereeConflict  = errors.New("裁判在重叠时段已有安排")
	ErrPositionNotFound = errors.New("裁判岗位不存在")
)

// scheduleError 携带具体字段原因的计划配置错误
func scheduleError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSchedule, fmt.Sprintf(format, args...))
}

// ruleError 携带具体字段原因的规则配置错误
func ruleError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRule, fmt.Sprintf(format, args...))
}

// ModelError 外部模型调用失败或超时。
// 与"零候选"区分开，调用方可据此回退到加权策略或重试。
type ModelError struct {
	Timeout bool
	Err     error
}

func (e *ModelError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("外部模型推荐超时: %v", e.Err)
	}
	return fmt.Sprintf("外部模型推荐失败: %v", e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// CommitError 提交阶段失败。Record 已写入审计（status=failed），
// 其中的方案快照可供运维人员手工补救。
type CommitError struct {
	Record *RunRecord
	Err    error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("提交分配方案失败（已处理 %d 场比赛，缺口 %d）: %v",
		e.Record.GamesProcessed, e.Record.ConflictsFound, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
