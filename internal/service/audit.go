package service

import (
	"context"

	"go.uber.org/zap"

	"sports-manager/backend/internal/engine"
)

type runAuditLogger struct {
	logger *zap.Logger
}

// NewRunAuditLogger 以结构化日志记录每一次规则运行
func NewRunAuditLogger(logger *zap.Logger) engine.AuditSink {
	return &runAuditLogger{logger: logger.Named("audit")}
}

func (a *runAuditLogger) RecordRun(_ context.Context, rec *engine.RunRecord) {
	fields := []zap.Field{
		zap.String("rule_id", rec.RuleID),
		zap.String("run_id", rec.ID),
		zap.String("status", string(rec.Status)),
		zap.Bool("dry_run", rec.DryRun),
		zap.String("trigger", rec.Trigger),
		zap.Int("games", rec.GamesProcessed),
		zap.Int("assignments", rec.AssignmentsCreated),
		zap.Int("conflicts", rec.ConflictsFound),
		zap.Int64("duration_ms", rec.DurationMs),
	}
	if rec.TriggeredBy != "" {
		fields = append(fields, zap.String("triggered_by", rec.TriggeredBy))
	}
	if rec.Status == engine.RunStatusFailed {
		fields = append(fields, zap.String("error", rec.Error))
		a.logger.Warn("规则运行失败", fields...)
		return
	}
	a.logger.Info("规则运行完成", fields...)
}
