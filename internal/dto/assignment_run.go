package dto

import "sports-manager/backend/internal/engine"

// ── 规则运行模块 DTO ──

// RunRuleRequest 手动触发规则运行
type RunRuleRequest struct {
	DryRun       bool   `json:"dry_run"`
	ContextNotes string `json:"context_notes" binding:"omitempty,max=2000"`
}

// RunListRequest 运行历史查询参数
type RunListRequest struct {
	PaginationRequest
}

// RunResponse 运行记录响应；列表中不含方案快照
type RunResponse struct {
	ID                 string           `json:"id"`
	RuleID             string           `json:"rule_id"`
	RunAt              string           `json:"run_at"`
	Status             string           `json:"status"`
	DryRun             bool             `json:"dry_run"`
	Trigger            string           `json:"trigger"`
	TriggeredBy        *string          `json:"triggered_by,omitempty"`
	GamesProcessed     int              `json:"games_processed"`
	AssignmentsCreated int              `json:"assignments_created"`
	ConflictsFound     int              `json:"conflicts_found"`
	DurationMs         int64            `json:"duration_ms"`
	Error              *string          `json:"error,omitempty"`
	Proposal           *engine.Proposal `json:"proposal,omitempty"`
}
