package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sports-manager/backend/internal/dto"
	"sports-manager/backend/internal/engine"
	"sports-manager/backend/internal/service"
	"sports-manager/backend/pkg/response"
)

// AssignmentRunHandler 规则运行模块 HTTP 处理器
type AssignmentRunHandler struct {
	runSvc service.AssignmentRunService
}

// NewAssignmentRunHandler 创建 AssignmentRunHandler
func NewAssignmentRunHandler(runSvc service.AssignmentRunService) *AssignmentRunHandler {
	return &AssignmentRunHandler{runSvc: runSvc}
}

// RunRule 手动触发规则运行（dry_run=true 时只返回方案）
// POST /api/v1/assignment-rules/:id/run
func (h *AssignmentRunHandler) RunRule(c *gin.Context) {
	id, ok := pathID(c, "id", "规则ID")
	if !ok {
		return
	}
	var req dto.RunRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, 10001, "参数校验失败", err.Error())
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	run, err := h.runSvc.RunRule(c.Request.Context(), id, service.RunOptions{
		DryRun:       req.DryRun,
		ContextNotes: req.ContextNotes,
		Trigger:      service.TriggerManual,
		TriggeredBy:  callerID,
	})
	if err != nil {
		var commitErr *engine.CommitError
		if errors.As(err, &commitErr) && run != nil {
			// 返回 failed 运行记录，便于人工补救
			response.ErrorWithData(c, http.StatusInternalServerError, 19007, "分配方案提交失败，未写入任何分配", run)
			return
		}
		handleRunError(c, err)
		return
	}
	response.OK(c, run)
}

// ListRuns 分页获取规则的运行历史
// GET /api/v1/assignment-rules/:id/runs
func (h *AssignmentRunHandler) ListRuns(c *gin.Context) {
	id, ok := pathID(c, "id", "规则ID")
	if !ok {
		return
	}
	var req dto.RunListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.runSvc.ListRuns(c.Request.Context(), id, &req)
	if err != nil {
		response.InternalError(c)
		return
	}
	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// GetRun 获取运行记录（含方案快照）
// GET /api/v1/assignment-runs/:id
func (h *AssignmentRunHandler) GetRun(c *gin.Context) {
	id, ok := pathID(c, "id", "运行记录ID")
	if !ok {
		return
	}

	run, err := h.runSvc.GetRun(c.Request.Context(), id)
	if err != nil {
		handleRunError(c, err)
		return
	}
	response.OK(c, run)
}

// ExportCalendar 导出运行方案的 iCalendar
// GET /api/v1/assignment-runs/:id/calendar.ics
func (h *AssignmentRunHandler) ExportCalendar(c *gin.Context) {
	id, ok := pathID(c, "id", "运行记录ID")
	if !ok {
		return
	}

	data, err := h.runSvc.ExportRunCalendar(c.Request.Context(), id)
	if err != nil {
		handleRunError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\"run-"+id+".ics\"")
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", data)
}

// handleRunError 统一处理规则运行模块业务错误
func handleRunError(c *gin.Context, err error) {
	var modelErr *engine.ModelError
	switch {
	case errors.Is(err, service.ErrRuleDisabled):
		response.Conflict(c, 19004, "分配规则已停用，仅允许手动试运行")
	case errors.Is(err, service.ErrRuleRunInProgress):
		response.Conflict(c, 19005, "该规则正在运行，请稍后重试")
	case errors.As(err, &modelErr):
		msg := "外部推荐服务不可用"
		if modelErr.Timeout {
			msg = "外部推荐服务超时"
		}
		response.Upstream(c, 19006, modelErr.Timeout, msg)
	case errors.Is(err, engine.ErrNoRecommender):
		response.Unavailable(c, 19006, "未配置外部推荐服务")
	case errors.Is(err, service.ErrRunNotFound):
		response.NotFound(c, 19008, "运行记录不存在")
	case errors.Is(err, service.ErrNoProposalSnapshot):
		response.NotFound(c, 19012, "运行记录缺少方案快照")
	default:
		handleRuleError(c, err)
	}
}
